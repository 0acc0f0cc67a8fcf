package temporal

import (
	"fmt"
	"strconv"
	"time"
)

// ElapsedSeconds renders time values as seconds elapsed since the
// beginning of data collection. Query-supplied values are assumed to
// already be elapsed seconds and pass through unchanged.
type ElapsedSeconds struct{}

func (ElapsedSeconds) FormatValue(raw interface{}) string {
	return fmt.Sprint(raw)
}

// GenerateArtificialTime returns "0" until the stream has recorded its
// start time, then whole seconds between now and that start.
func (ElapsedSeconds) GenerateArtificialTime(start time.Time, pointCount int, interval time.Duration) string {
	if start.IsZero() {
		return "0"
	}
	return strconv.FormatInt(int64(time.Since(start).Seconds()), 10)
}

func (ElapsedSeconds) DefaultDescription() string {
	return "Elapsed Time"
}
