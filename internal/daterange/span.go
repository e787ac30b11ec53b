package daterange

import (
	"errors"
	"fmt"
	"time"
)

// DateLayout is the wire format for report date ranges.
const DateLayout = "2006-01-02"

var (
	// ErrInvalidRange is returned when a span starts after it ends.
	ErrInvalidRange = errors.New("invalid date range: start is after end")
	// ErrInvalidGranularity is returned for an unrecognised chunk unit.
	ErrInvalidGranularity = errors.New("invalid granularity")
)

// Span is an inclusive range of calendar dates.
type Span struct {
	Start time.Time
	End   time.Time
}

// NewSpan truncates start and end to dates and validates their order.
func NewSpan(start, end time.Time) (Span, error) {
	s := Span{Start: dateOf(start), End: dateOf(end)}
	if err := s.Validate(); err != nil {
		return Span{}, err
	}
	return s, nil
}

// ParseSpan builds a Span from two YYYY-MM-DD strings.
func ParseSpan(start, end string) (Span, error) {
	s, err := time.Parse(DateLayout, start)
	if err != nil {
		return Span{}, fmt.Errorf("parsing start date: %w", err)
	}
	e, err := time.Parse(DateLayout, end)
	if err != nil {
		return Span{}, fmt.Errorf("parsing end date: %w", err)
	}
	return NewSpan(s, e)
}

// YearSpan covers Jan 1 through Dec 31 of year.
func YearSpan(year int) Span {
	return Span{
		Start: time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC),
	}
}

// Validate checks that Start is not after End.
func (s Span) Validate() error {
	if s.Start.After(s.End) {
		return fmt.Errorf("%w: %s > %s", ErrInvalidRange, s.Start.Format(DateLayout), s.End.Format(DateLayout))
	}
	return nil
}

// Days is the number of calendar days covered, inclusive.
func (s Span) Days() int {
	return int(s.End.Sub(s.Start).Hours()/24) + 1
}

func (s Span) String() string {
	return s.Start.Format(DateLayout) + ".." + s.End.Format(DateLayout)
}

// Chunk is one contiguous sub-range of a Span.
type Chunk struct {
	Start time.Time
	End   time.Time
}

// StartDate returns the chunk start in YYYY-MM-DD form.
func (c Chunk) StartDate() string { return c.Start.Format(DateLayout) }

// EndDate returns the chunk end in YYYY-MM-DD form.
func (c Chunk) EndDate() string { return c.End.Format(DateLayout) }

func (c Chunk) String() string { return c.StartDate() + ".." + c.EndDate() }

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
