package chart

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// IndexFilename is the file listing all successfully rendered charts,
// one image filename per line. External viewers poll it to discover
// what to display.
const IndexFilename = "_CHART_INDEX"

// WriteIndex replaces the chart index in outputDir.
func WriteIndex(outputDir string, filenames []string) error {
	path := filepath.Join(outputDir, IndexFilename)
	var b strings.Builder
	for _, name := range filenames {
		b.WriteString(name)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("write chart index: %w", err)
	}
	return nil
}
