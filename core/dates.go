package core

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// ISO date pattern matches: 2024-01-15, 2024-01-15 10:30, 2024-01-15T10:30:00, 2024-01-15T10:30:00.000Z, etc.
var isoDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}([T ]\d{2}:\d{2}(:\d{2}(\.\d{1,9})?)?(Z|[+-]\d{2}:?\d{2})?)?$`)

// isoLayouts are tried in order by ParseISODateIn. Layouts without a zone are
// interpreted in the caller's location.
var isoLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// IsISODateString checks if a string looks like an ISO 8601 date.
func IsISODateString(value string) bool {
	return isoDatePattern.MatchString(value)
}

// ParseISODate parses an ISO 8601 date string to time.Time.
// Zone-less values are interpreted as UTC.
func ParseISODate(value string) (time.Time, error) {
	return ParseISODateIn(value, time.UTC)
}

// ParseISODateIn parses an ISO 8601 date string, interpreting zone-less
// values in loc.
func ParseISODateIn(value string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &time.ParseError{Value: value, Message: "not a valid ISO 8601 date"}
}

// DateFormat is a date column's display pattern, in day.js token syntax.
type DateFormat string

// Date formats offered by date columns.
const (
	DateFormatDate       DateFormat = "YYYY-MM-DD"
	DateFormatDateMinute DateFormat = "YYYY-MM-DD HH:mm"
	DateFormatDateSecond DateFormat = "YYYY-MM-DD HH:mm:ss"
)

// dayjsTokens translates day.js tokens to Go layout elements. Longer tokens
// are listed first so they take precedence at the same position.
var dayjsTokens = strings.NewReplacer(
	"YYYY", "2006",
	"YY", "06",
	"MM", "01",
	"M", "1",
	"DD", "02",
	"D", "2",
	"HH", "15",
	"H", "15",
	"hh", "03",
	"h", "3",
	"mm", "04",
	"ss", "05",
	"A", "PM",
	"a", "pm",
)

// Layout returns the Go time layout for the format. An empty format renders
// as a plain date.
func (f DateFormat) Layout() string {
	switch f {
	case DateFormatDate, "":
		return "2006-01-02"
	case DateFormatDateMinute:
		return "2006-01-02 15:04"
	case DateFormatDateSecond:
		return "2006-01-02 15:04:05"
	}
	return dayjsTokens.Replace(string(f))
}

// DateRenderer renders a raw date cell value in the given format. It reports
// false when the value is not a date, and the caller keeps the raw value.
type DateRenderer func(value any, format DateFormat) (string, bool)

// NewDateRenderer returns a DateRenderer that renders in loc (time.Local when
// nil). Strings are parsed as strict ISO 8601 first, then leniently. Numbers
// are epoch milliseconds.
func NewDateRenderer(loc *time.Location) DateRenderer {
	if loc == nil {
		loc = time.Local
	}
	return func(value any, format DateFormat) (string, bool) {
		t, ok := toTime(value, loc)
		if !ok {
			return "", false
		}
		return t.In(loc).Format(format.Layout()), true
	}
}

func toTime(value any, loc *time.Location) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v, true
	case *time.Time:
		if v == nil {
			return time.Time{}, false
		}
		return *v, true
	case float64:
		return time.UnixMilli(int64(v)), true
	case float32:
		return time.UnixMilli(int64(v)), true
	case int:
		return time.UnixMilli(int64(v)), true
	case int64:
		return time.UnixMilli(v), true
	case json.Number:
		if ms, err := v.Int64(); err == nil {
			return time.UnixMilli(ms), true
		}
		if f, err := v.Float64(); err == nil {
			return time.UnixMilli(int64(f)), true
		}
	case string:
		if t, err := ParseISODateIn(v, loc); err == nil {
			return t, true
		}
		if t, err := dateparse.ParseIn(v, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
