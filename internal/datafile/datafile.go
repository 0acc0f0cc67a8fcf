// Package datafile owns the on-disk data record files that accumulate
// query results. Each stream (one configured query) gets exactly one
// DataFile: a truncate-on-open, append-only text file with a comment
// header, flushed after every record, and rewritten in place when the
// bounded retention window is exceeded.
package datafile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/queryviz/queryviz/internal/temporal"
)

// ToolVersion is stamped into data file headers. Set at build time.
var ToolVersion = "dev"

const (
	toolName     = "queryviz"
	toolHomepage = "https://github.com/queryviz/queryviz"

	// MinMaxPoints is the smallest allowed retention bound. Smaller
	// windows would rotate constantly and produce useless charts.
	MinMaxPoints = 60

	// DefaultMaxPoints is used when a stream does not configure a bound.
	DefaultMaxPoints = 1000
)

// ErrNotOpen indicates WriteDataPoint was called before Open (or after
// Close). This is a setup defect in the caller, not a transient failure.
var ErrNotOpen = errors.New("data file is not open")

// StreamConfig describes one stream: a configured query and the data
// file that records its results.
type StreamConfig struct {
	Name        string
	Description string

	// Once marks a stream that executes exactly one time; Interval is
	// the sampling interval of recurring streams.
	Once     bool
	Interval time.Duration

	// Columns are the metric column names, excluding "time". When the
	// query result carries its own time column, HasTimeColumn is set
	// and the first written value is formatted rather than synthesized.
	Columns       []string
	HasTimeColumn bool

	TemporalType string

	// MaxPoints bounds retention by point count. RetentionWindow, when
	// non-zero, purges by wall-clock age instead; it is only meaningful
	// for the timestamp temporal type.
	MaxPoints       int
	RetentionWindow time.Duration
}

// DataFile manages the data record file for a single stream. The
// scheduling harness guarantees a single writer per stream, but the
// status API reads counters and the replay buffer from its own
// goroutines, so mutable state is guarded by a mutex.
type DataFile struct {
	cfg      StreamConfig
	column   temporal.Column
	filename string
	filepath string
	logger   zerolog.Logger

	mu         sync.Mutex
	file       *os.File
	open       bool
	pointCount int
	startTime  time.Time
	buffer     *lineRing
}

// New creates the DataFile for a stream. The backing file is not
// touched until Open.
func New(cfg StreamConfig, outputDir string, logger zerolog.Logger) (*DataFile, error) {
	column, err := temporal.Create(cfg.TemporalType)
	if err != nil {
		return nil, fmt.Errorf("stream %q: %w", cfg.Name, err)
	}
	if cfg.RetentionWindow > 0 && cfg.TemporalType != temporal.TypeTimestamp {
		return nil, fmt.Errorf("stream %q: retention window requires the %s temporal type",
			cfg.Name, temporal.TypeTimestamp)
	}

	if cfg.MaxPoints == 0 {
		cfg.MaxPoints = DefaultMaxPoints
	}
	if cfg.MaxPoints < MinMaxPoints {
		cfg.MaxPoints = MinMaxPoints
	}

	filename := NormalizeFilename(cfg.Name, DataExtension)
	return &DataFile{
		cfg:      cfg,
		column:   column,
		filename: filename,
		filepath: filepath.Join(outputDir, filename),
		logger:   logger.With().Str("component", "datafile").Str("stream", cfg.Name).Logger(),
		buffer:   newLineRing(cfg.MaxPoints),
	}, nil
}

// Open truncates or creates the backing file and writes the header
// block. Leftovers from a previous run are discarded: this tool does
// not resume data collection across restarts. Calling Open on an
// already-open file is a no-op.
func (d *DataFile) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.open {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(d.filepath), 0755); err != nil {
		return fmt.Errorf("stream %q: failed to create output directory: %w", d.cfg.Name, err)
	}
	if err := os.Remove(d.filepath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("stream %q: failed to remove stale data file: %w", d.cfg.Name, err)
	}

	f, err := os.OpenFile(d.filepath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("stream %q: failed to create data file: %w", d.cfg.Name, err)
	}
	if _, err := f.WriteString(d.header()); err != nil {
		f.Close()
		return fmt.Errorf("stream %q: failed to write header: %w", d.cfg.Name, err)
	}

	d.file = f
	d.pointCount = 0
	d.buffer.reset()
	d.open = true

	d.logger.Debug().Str("file", d.filename).Msg("Data file opened")
	return nil
}

// Close flushes and releases the file handle. Safe to call repeatedly,
// and safe on a DataFile that was never opened.
func (d *DataFile) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.file != nil {
		err := d.file.Close()
		d.file = nil
		d.open = false
		if err != nil {
			return fmt.Errorf("stream %q: failed to close data file: %w", d.cfg.Name, err)
		}
		d.logger.Debug().Str("file", d.filename).Msg("Data file closed")
	}
	d.open = false
	return nil
}

// WriteDataPoint appends one record line. values must align with the
// configured columns, with a leading time value when the stream
// declares a real time column. The returned bool reports whether this
// write triggered a rotation; it is informational only.
func (d *DataFile) WriteDataPoint(values []interface{}) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.open || d.file == nil {
		return false, fmt.Errorf("stream %q: %w", d.cfg.Name, ErrNotOpen)
	}

	line := d.formatLine(values)

	if _, err := d.file.WriteString(line + "\n"); err != nil {
		return false, fmt.Errorf("stream %q: failed to write data point: %w", d.cfg.Name, err)
	}
	// Flush after every point: the chart renderer may read the file
	// between any two writes.
	if err := d.file.Sync(); err != nil {
		return false, fmt.Errorf("stream %q: failed to sync data file: %w", d.cfg.Name, err)
	}

	d.buffer.push(line)
	d.pointCount++

	if d.pointCount > d.cfg.MaxPoints {
		if err := d.rotate(); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// formatLine renders a record line: time field first, then every metric
// value through default string conversion, single-space separated.
func (d *DataFile) formatLine(values []interface{}) string {
	fields := make([]string, 0, len(values)+1)

	if d.cfg.HasTimeColumn && len(values) > 0 {
		fields = append(fields, d.column.FormatValue(values[0]))
		values = values[1:]
	} else {
		fields = append(fields, d.column.GenerateArtificialTime(d.startTime, d.pointCount, d.cfg.Interval))
	}
	for _, v := range values {
		fields = append(fields, fmt.Sprint(v))
	}
	return strings.Join(fields, " ")
}

// rotate rewrites the file with only the retained window of buffered
// lines. Called with d.mu held. The rewrite is not crash-atomic: a
// crash mid-rewrite can leave the file with a header and a truncated
// body.
func (d *DataFile) rotate() error {
	retained := d.retainedLines()

	if err := d.file.Close(); err != nil {
		return fmt.Errorf("stream %q: failed to close data file for rotation: %w", d.cfg.Name, err)
	}
	d.file = nil

	f, err := os.OpenFile(d.filepath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("stream %q: failed to rewrite data file: %w", d.cfg.Name, err)
	}
	if _, err := f.WriteString(d.header()); err != nil {
		f.Close()
		return fmt.Errorf("stream %q: failed to rewrite header: %w", d.cfg.Name, err)
	}
	for _, line := range retained {
		if _, err := f.WriteString(line + "\n"); err != nil {
			f.Close()
			return fmt.Errorf("stream %q: failed to rewrite data point: %w", d.cfg.Name, err)
		}
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("stream %q: failed to finish rotation rewrite: %w", d.cfg.Name, err)
	}

	f, err = os.OpenFile(d.filepath, os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("stream %q: failed to reopen data file after rotation: %w", d.cfg.Name, err)
	}
	d.file = f

	d.buffer.reset()
	for _, line := range retained {
		d.buffer.push(line)
	}
	d.pointCount = len(retained)

	d.logger.Debug().
		Int("retained", len(retained)).
		Msg("Data file rotated")
	return nil
}

// retainedLines picks the lines that survive a rotation. With the
// timestamp temporal type and a retention window, lines older than
// now-window are purged from the oldest end; a line whose time field
// does not parse is kept rather than guessed at. In every other case
// the buffer bound already is the retention policy.
func (d *DataFile) retainedLines() []string {
	lines := d.buffer.snapshot()

	if d.cfg.TemporalType != temporal.TypeTimestamp || d.cfg.RetentionWindow <= 0 {
		return lines
	}

	cutoff := float64(time.Now().Add(-d.cfg.RetentionWindow).Unix())
	retained := make([]string, 0, len(lines))
	purging := true
	for _, line := range lines {
		if purging {
			ts, err := parseLeadingEpoch(line)
			if err != nil {
				// Over-retaining a malformed line is better than
				// losing data to a bad guess.
				d.logger.Warn().Str("line", line).Msg("Unparseable timestamp during rotation, keeping line")
				retained = append(retained, line)
				continue
			}
			if ts < cutoff {
				continue
			}
			purging = false
		}
		retained = append(retained, line)
	}
	return retained
}

// parseLeadingEpoch extracts the leading time field of a record line as
// a numeric epoch value.
func parseLeadingEpoch(line string) (float64, error) {
	field, _, _ := strings.Cut(line, " ")
	return strconv.ParseFloat(field, 64)
}

// header renders the comment block prepended on every Open and every
// rotation rewrite. Readers must skip lines starting with '#'.
func (d *DataFile) header() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Generated by %s %s - %s\n", toolName, ToolVersion, toolHomepage)
	fmt.Fprintf(&b, "# stream: %s\n", d.cfg.Name)
	if d.cfg.Description != "" {
		fmt.Fprintf(&b, "# description: %s\n", d.cfg.Description)
	}
	if d.cfg.Once {
		b.WriteString("# schedule: once\n")
	} else {
		fmt.Fprintf(&b, "# schedule: every %s\n", d.cfg.Interval)
	}
	fmt.Fprintf(&b, "# time_type: %s\n", d.cfg.TemporalType)
	fmt.Fprintf(&b, "# columns: time %s\n", strings.Join(d.cfg.Columns, " "))
	return b.String()
}

// Exists reports whether the backing file is currently on disk. Used to
// detect that a one-shot stream already produced its record in a
// previous process lifetime, before Open would truncate it.
func (d *DataFile) Exists() bool {
	_, err := os.Stat(d.filepath)
	return err == nil
}

// MarkStarted records the stream's start time, once. Elapsed-seconds
// streams without a query-supplied time column synthesize their time
// field from it.
func (d *DataFile) MarkStarted(t time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.startTime.IsZero() {
		d.startTime = t
	}
}

// StartTime returns the recorded start time, zero if never marked.
func (d *DataFile) StartTime() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.startTime
}

// FilePath returns the full path of the backing file.
func (d *DataFile) FilePath() string { return d.filepath }

// Filename returns the backing file's name without directory.
func (d *DataFile) Filename() string { return d.filename }

// PointCount returns the number of records currently represented in
// the file.
func (d *DataFile) PointCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pointCount
}

// IsOpen reports whether the file is open for writing.
func (d *DataFile) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

// Buffer returns a copy of the in-memory replay buffer, oldest first.
func (d *DataFile) Buffer() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.buffer.snapshot()
}

// Name returns the stream name.
func (d *DataFile) Name() string { return d.cfg.Name }

// Description returns the configured human description.
func (d *DataFile) Description() string { return d.cfg.Description }

// Once reports whether the stream executes exactly one time.
func (d *DataFile) Once() bool { return d.cfg.Once }

// Interval returns the sampling interval of a recurring stream.
func (d *DataFile) Interval() time.Duration { return d.cfg.Interval }

// Columns returns the metric column names, excluding "time".
func (d *DataFile) Columns() []string { return d.cfg.Columns }

// HasTimeColumn reports whether the query supplies its own time column.
func (d *DataFile) HasTimeColumn() bool { return d.cfg.HasTimeColumn }

// Temporal returns the stream's bound temporal column.
func (d *DataFile) Temporal() temporal.Column { return d.column }
