// Package temporal implements the time representations used for the
// leading column of data record lines. A column value can come from the
// query itself (formatted via FormatValue) or be synthesized when the
// query carries no time column (GenerateArtificialTime).
package temporal

import "time"

// Column renders the leading time field of a record line.
//
// Implementations are stateless: the stream owns its start time and
// passes it explicitly when synthesizing, so one Column instance could
// in principle be shared, but each stream still gets its own from the
// registry.
type Column interface {
	// FormatValue renders a time value produced by the query's own
	// time column.
	FormatValue(raw interface{}) string

	// GenerateArtificialTime fabricates a time value for a query that
	// has no time column. start is the stream's recorded start time
	// (zero when not yet recorded), pointCount the number of points
	// written so far, interval the stream's sampling interval.
	GenerateArtificialTime(start time.Time, pointCount int, interval time.Duration) string

	// DefaultDescription is the fallback label for the time axis.
	DefaultDescription() string
}
