package datafile

import (
	"regexp"
	"strings"
)

// DataExtension is the extension of all data record files.
const DataExtension = "dat"

var (
	invalidChars = regexp.MustCompile(`[^a-zA-Z0-9\s_-]`)
	separators   = regexp.MustCompile(`[\s_]+`)
	hyphenRuns   = regexp.MustCompile(`-+`)
)

// NormalizeName derives a filesystem-safe base name from a stream name:
// strip everything outside [A-Za-z0-9 _-], turn runs of spaces and
// underscores into single hyphens, collapse hyphen runs, trim leading
// and trailing hyphens, lowercase. The result is stable: normalizing an
// already-normalized name yields the same string.
func NormalizeName(name string) string {
	s := invalidChars.ReplaceAllString(name, "")
	s = separators.ReplaceAllString(s, "-")
	s = hyphenRuns.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	return strings.ToLower(s)
}

// NormalizeFilename is NormalizeName plus an extension.
func NormalizeFilename(name, extension string) string {
	base := NormalizeName(name)
	if extension == "" {
		return base
	}
	return base + "." + extension
}
