package chart

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/queryviz/queryviz/internal/config"
	"github.com/queryviz/queryviz/internal/datafile"
	"github.com/queryviz/queryviz/internal/temporal"
)

func newTestFileSet(t *testing.T, dir string) *datafile.FileSet {
	t.Helper()
	fs := datafile.NewFileSet(zerolog.Nop())
	df, err := fs.Register(datafile.StreamConfig{
		Name:         "Threads connected",
		Interval:     time.Second,
		Columns:      []string{"threads", "aborted"},
		TemporalType: temporal.TypeElapsedSeconds,
	}, dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := df.Open(); err != nil {
		t.Fatal(err)
	}
	if _, err := df.WriteDataPoint([]interface{}{42, 1}); err != nil {
		t.Fatal(err)
	}
	return fs
}

func TestQueryAllColumns(t *testing.T) {
	dir := t.TempDir()
	fs := newTestFileSet(t, dir)

	q, err := NewQuery("Threads connected", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !q.UsesAllColumns() {
		t.Error("UsesAllColumns() = false for empty selection")
	}

	series, err := q.Series(fs.Get("Threads connected"))
	if err != nil {
		t.Fatal(err)
	}
	if len(series) != 2 {
		t.Fatalf("got %d series, want 2", len(series))
	}
	if series[0].Column != 2 || series[0].Title != "Threads connected-threads" {
		t.Errorf("series[0] = %+v", series[0])
	}
	if series[1].Column != 3 || series[1].Title != "Threads connected-aborted" {
		t.Errorf("series[1] = %+v", series[1])
	}
}

func TestQuerySelectedColumnsWithAlias(t *testing.T) {
	dir := t.TempDir()
	fs := newTestFileSet(t, dir)

	q, err := NewQuery("Threads connected", []string{"aborted:aborted clients", "threads"})
	if err != nil {
		t.Fatal(err)
	}
	series, err := q.Series(fs.Get("Threads connected"))
	if err != nil {
		t.Fatal(err)
	}
	if len(series) != 2 {
		t.Fatalf("got %d series, want 2", len(series))
	}
	if series[0].Column != 3 || series[0].Title != "aborted clients" {
		t.Errorf("series[0] = %+v", series[0])
	}
	if series[1].Column != 2 || series[1].Title != "threads" {
		t.Errorf("series[1] = %+v", series[1])
	}
}

func TestQueryRejectsTimeColumn(t *testing.T) {
	dir := t.TempDir()
	fs := newTestFileSet(t, dir)

	q, err := NewQuery("Threads connected", []string{"time"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := q.Series(fs.Get("Threads connected")); err == nil {
		t.Fatal("selecting the time column should fail")
	}
}

func TestQueryUnknownColumn(t *testing.T) {
	dir := t.TempDir()
	fs := newTestFileSet(t, dir)

	q, err := NewQuery("Threads connected", []string{"missing"})
	if err != nil {
		t.Fatal(err)
	}
	_, err = q.Series(fs.Get("Threads connected"))
	if err == nil || !strings.Contains(err.Error(), "Available columns") {
		t.Fatalf("error = %v, want unknown column with available list", err)
	}
}

func TestQueryEmptyColumnSpec(t *testing.T) {
	if _, err := NewQuery("q", []string{":alias"}); err == nil {
		t.Error("empty column name should fail")
	}
	if _, err := NewQuery("q", []string{"  "}); err == nil {
		t.Error("blank spec should fail")
	}
}

func TestQueryAliasDefaultsToColumn(t *testing.T) {
	dir := t.TempDir()
	fs := newTestFileSet(t, dir)

	q, err := NewQuery("Threads connected", []string{"threads:"})
	if err != nil {
		t.Fatal(err)
	}
	series, err := q.Series(fs.Get("Threads connected"))
	if err != nil {
		t.Fatal(err)
	}
	if series[0].Title != "threads" {
		t.Errorf("Title = %q, want column name fallback", series[0].Title)
	}
}

func chartConfig() config.ChartConfig {
	return config.ChartConfig{
		Title:       "Connections",
		Type:        "line_chart",
		YLabel:      "threads",
		XLabel:      "seconds",
		Terminal:    "png",
		KeyPosition: "outside right top",
		LineWidth:   2,
		Width:       800,
		Height:      600,
		Queries:     []config.ChartQueryRef{{Query: "Threads connected"}},
	}
}

func TestGeneratorBuildScript(t *testing.T) {
	dir := t.TempDir()
	fs := newTestFileSet(t, dir)

	g, err := NewGenerator(chartConfig(), dir, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if g.OutputFile() != "connections.png" {
		t.Errorf("OutputFile = %q, want normalized title", g.OutputFile())
	}

	script, err := g.buildScript(fs)
	if err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{
		"set terminal png size 800,600",
		"set output '" + filepath.Join(dir, "connections.png") + "'",
		"set title 'Connections'",
		"set ylabel 'threads'",
		"set key outside right top",
		"set style line 1 linecolor rgb '#1f77b4' linewidth 2 pointtype 7",
		"using 1:2 with lines linestyle 1 title 'Threads connected-threads'",
		"using 1:3 with lines linestyle 2 title 'Threads connected-aborted'",
	} {
		if !strings.Contains(script, want) {
			t.Errorf("script missing %q:\n%s", want, script)
		}
	}
}

func TestGeneratorAliasedType(t *testing.T) {
	cfg := chartConfig()
	cfg.Type = "line_graph"
	if _, err := NewGenerator(cfg, t.TempDir(), zerolog.Nop()); err != nil {
		t.Errorf("line_graph alias should resolve: %v", err)
	}
}

func TestGeneratorUnknownType(t *testing.T) {
	cfg := chartConfig()
	cfg.Type = "pie_chart"
	if _, err := NewGenerator(cfg, t.TempDir(), zerolog.Nop()); err == nil {
		t.Error("unknown chart type should fail")
	}
}

func TestGeneratorExplicitOutputFile(t *testing.T) {
	cfg := chartConfig()
	cfg.OutputFile = "custom.png"
	g, err := NewGenerator(cfg, t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if g.OutputFile() != "custom.png" {
		t.Errorf("OutputFile = %q", g.OutputFile())
	}
}

func TestGeneratorMissingDataFile(t *testing.T) {
	dir := t.TempDir()
	fs := datafile.NewFileSet(zerolog.Nop())

	g, err := NewGenerator(chartConfig(), dir, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := g.buildScript(fs); err == nil {
		t.Error("missing data file should fail script generation")
	}
}

func TestWriteIndex(t *testing.T) {
	dir := t.TempDir()
	if err := WriteIndex(dir, []string{"a.png", "b.png"}); err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(filepath.Join(dir, IndexFilename))
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != "a.png\nb.png\n" {
		t.Errorf("index content = %q", raw)
	}

	// Rewriting replaces the previous index.
	if err := WriteIndex(dir, nil); err != nil {
		t.Fatal(err)
	}
	raw, _ = os.ReadFile(filepath.Join(dir, IndexFilename))
	if string(raw) != "" {
		t.Errorf("index after rewrite = %q", raw)
	}
}
