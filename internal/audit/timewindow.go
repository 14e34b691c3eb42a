package audit

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultTimeWindow is the trailing window queried when a filter carries
// neither a start nor an end time. Providers may override it per binding.
const DefaultTimeWindow = 24 * time.Hour

var relativeTimeRegex = regexp.MustCompile(`^(\d+)([smhdw])$`)

// absoluteTimeLayouts are tried in order by ParseTime.
var absoluteTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseRelative parses durations of the form <n><unit> where unit is one of
// s, m, h, d (24h) or w (7d).
func ParseRelative(s string) (time.Duration, bool) {
	m := relativeTimeRegex.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	var unit time.Duration
	switch m[2] {
	case "s":
		unit = time.Second
	case "m":
		unit = time.Minute
	case "h":
		unit = time.Hour
	case "d":
		unit = 24 * time.Hour
	case "w":
		unit = 7 * 24 * time.Hour
	}
	return time.Duration(n) * unit, true
}

// ParseTime resolves an ISO 8601 timestamp or a relative duration (taken as
// "that long before now"). Timestamps without a zone are read as UTC.
func ParseTime(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range absoluteTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	if d, ok := ParseRelative(s); ok {
		return now.Add(-d).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%q is neither an ISO 8601 timestamp nor a relative duration like 30m, 24h or 7d", s)
}

// Window resolves the filter's time bounds against now. With no bounds the
// window is [now-defaultWindow, now]; with only an end it is
// [end-defaultWindow, end].
func (f QueryFilter) Window(now time.Time, defaultWindow time.Duration) (time.Time, time.Time, error) {
	if defaultWindow <= 0 {
		defaultWindow = DefaultTimeWindow
	}

	end := now.UTC()
	if f.EndTime != "" {
		t, err := ParseTime(f.EndTime, now)
		if err != nil {
			return time.Time{}, time.Time{}, &FilterError{Field: "end_time", Reason: err.Error()}
		}
		end = t
	}

	start := end.Add(-defaultWindow)
	if f.StartTime != "" {
		t, err := ParseTime(f.StartTime, now)
		if err != nil {
			return time.Time{}, time.Time{}, &FilterError{Field: "start_time", Reason: err.Error()}
		}
		start = t
	}

	if start.After(end) {
		return time.Time{}, time.Time{}, &FilterError{
			Field:  "start_time",
			Reason: fmt.Sprintf("%s is after end_time %s", start.Format(time.RFC3339), end.Format(time.RFC3339)),
		}
	}
	return start, end, nil
}
