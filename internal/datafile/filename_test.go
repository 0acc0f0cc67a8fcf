package datafile

import "testing"

func TestNormalizeFilename(t *testing.T) {
	cases := []struct {
		name string
		want string
	}{
		{"Threads connected", "threads-connected.dat"},
		{"buffer_pool_usage", "buffer-pool-usage.dat"},
		{"CPU % (total)", "cpu-total.dat"},
		{"  spaced   out  ", "spaced-out.dat"},
		{"a--b---c", "a-b-c.dat"},
		{"__leading__trailing__", "leading-trailing.dat"},
		{"MixedCase_And Spaces", "mixedcase-and-spaces.dat"},
		{"q1!@#$%^&*()", "q1.dat"},
	}

	for _, c := range cases {
		if got := NormalizeFilename(c.name, DataExtension); got != c.want {
			t.Errorf("NormalizeFilename(%q) = %q, want %q", c.name, got, c.want)
		}
	}
}

func TestNormalizeName_Idempotent(t *testing.T) {
	inputs := []string{"Threads connected", "CPU % (total)", "a__b  c--d", "plain"}
	for _, in := range inputs {
		once := NormalizeName(in)
		twice := NormalizeName(once)
		if once != twice {
			t.Errorf("NormalizeName not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestNormalizeName_Charset(t *testing.T) {
	got := NormalizeName("Wild! Name? With/Everything\\ _and_ More==")
	for _, r := range got {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-') {
			t.Fatalf("NormalizeName produced invalid rune %q in %q", r, got)
		}
	}
}
