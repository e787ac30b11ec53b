package daterange

import "fmt"

// Chunks splits span into consecutive granularity-sized chunks. Each chunk
// ends one day before the next unit boundary, clamped to span.End.
func Chunks(span Span, g Granularity) ([]Chunk, error) {
	if !g.valid() {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGranularity, g)
	}
	if err := span.Validate(); err != nil {
		return nil, err
	}

	var chunks []Chunk
	// Starts are derived from span.Start each time so month-end clamping
	// does not accumulate (Jan 31, Feb 29, Mar 31, ...).
	for n := 0; ; n++ {
		start := g.Add(span.Start, n)
		if start.After(span.End) {
			break
		}
		end := g.Add(span.Start, n+1).AddDate(0, 0, -1)
		if end.After(span.End) {
			end = span.End
		}
		chunks = append(chunks, Chunk{Start: start, End: end})
	}
	return chunks, nil
}

// EstimateCount is the progress total shown for span. It uses unit
// arithmetic (day difference, month index difference, year difference)
// and can be one less than the actual chunk count.
func EstimateCount(span Span, g Granularity) (int, error) {
	switch g {
	case Day:
		return span.Days() - 1, nil
	case Month:
		return (span.End.Year()-span.Start.Year())*12 + int(span.End.Month()) - int(span.Start.Month()), nil
	case Year:
		return span.End.Year() - span.Start.Year(), nil
	default:
		return 0, fmt.Errorf("%w: %v", ErrInvalidGranularity, g)
	}
}
