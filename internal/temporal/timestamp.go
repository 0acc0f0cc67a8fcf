package temporal

import (
	"fmt"
	"strconv"
	"time"
)

// Timestamp renders time values as raw epoch seconds. The chart
// renderer parses the epoch value itself, so no calendar formatting
// happens here.
type Timestamp struct{}

func (Timestamp) FormatValue(raw interface{}) string {
	return fmt.Sprint(raw)
}

// GenerateArtificialTime returns the current wall-clock time as epoch
// seconds. pointCount and interval are irrelevant: the current instant
// is always the correct timestamp for "now".
func (Timestamp) GenerateArtificialTime(start time.Time, pointCount int, interval time.Duration) string {
	return strconv.FormatInt(time.Now().Unix(), 10)
}

func (Timestamp) DefaultDescription() string {
	return "Absolute Time"
}
