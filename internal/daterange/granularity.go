package daterange

import (
	"fmt"
	"strings"
	"time"
)

// Granularity is the calendar unit a Span is subdivided by.
type Granularity int

const (
	Day Granularity = iota + 1
	Month
	Year
)

// ParseGranularity maps a report's chunkBy value ("day", "month", "year").
func ParseGranularity(s string) (Granularity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "day":
		return Day, nil
	case "month":
		return Month, nil
	case "year":
		return Year, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidGranularity, s)
	}
}

// String returns the config spelling of g.
func (g Granularity) String() string {
	switch g {
	case Day:
		return "day"
	case Month:
		return "month"
	case Year:
		return "year"
	default:
		return fmt.Sprintf("Granularity(%d)", int(g))
	}
}

// Label is the plural unit name used in progress output.
func (g Granularity) Label() string {
	switch g {
	case Day:
		return "days"
	case Month:
		return "months"
	case Year:
		return "years"
	default:
		return "unknown"
	}
}

func (g Granularity) valid() bool {
	return g == Day || g == Month || g == Year
}

// Add returns t advanced by n units of g. Month and year steps clamp to the
// last day of the target month, so Jan 31 + 1 month is Feb 28 (or 29).
func (g Granularity) Add(t time.Time, n int) time.Time {
	switch g {
	case Day:
		return t.AddDate(0, 0, n)
	case Month:
		return addMonths(t, n)
	case Year:
		return addMonths(t, 12*n)
	default:
		return t
	}
}

func addMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	if last := daysIn(first); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}
