package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ScheduleOnce is the sentinel interval for streams that execute
// exactly one time.
const ScheduleOnce = "once"

// Schedule is a parsed query schedule: either one-shot or a recurring
// interval.
type Schedule struct {
	Once  bool
	Every time.Duration
}

func (s Schedule) String() string {
	if s.Once {
		return ScheduleOnce
	}
	return s.Every.String()
}

var intervalUnits = map[byte]time.Duration{
	's': time.Second,
	'm': time.Minute,
	'h': time.Hour,
	'd': 24 * time.Hour,
	'w': 7 * 24 * time.Hour,
}

// ParseInterval parses an interval setting. Accepted forms: a bare
// number (seconds) or a number with one of the units s, m, h, d, w.
// YAML delivers numbers as int or float, so raw config values are
// accepted as well as strings.
func ParseInterval(raw interface{}) (time.Duration, error) {
	switch v := raw.(type) {
	case int:
		return time.Duration(v) * time.Second, nil
	case int64:
		return time.Duration(v) * time.Second, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	case string:
		return parseIntervalString(v)
	case nil:
		return 0, fmt.Errorf("interval cannot be empty")
	default:
		return 0, fmt.Errorf("invalid interval value %v", raw)
	}
}

func parseIntervalString(s string) (time.Duration, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, fmt.Errorf("interval cannot be empty")
	}

	numPart := s
	unit := time.Second
	if u, ok := intervalUnits[s[len(s)-1]]; ok {
		unit = u
		numPart = s[:len(s)-1]
	}

	n, err := strconv.ParseFloat(numPart, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q (use e.g. '30s', '5m', '1h')", s)
	}
	if n < 0 {
		return 0, fmt.Errorf("interval cannot be negative: %q", s)
	}
	return time.Duration(n * float64(unit)), nil
}

// ParseSchedule parses a query schedule: an interval per ParseInterval,
// or the special value "once". Recurring intervals must be at least one
// second.
func ParseSchedule(raw interface{}) (Schedule, error) {
	if s, ok := raw.(string); ok && strings.EqualFold(strings.TrimSpace(s), ScheduleOnce) {
		return Schedule{Once: true}, nil
	}

	every, err := ParseInterval(raw)
	if err != nil {
		return Schedule{}, err
	}
	if every < time.Second {
		return Schedule{}, fmt.Errorf("query interval %v is too low, minimum is 1s", every)
	}
	return Schedule{Every: every}, nil
}
