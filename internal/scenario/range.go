package scenario

import "fmt"

// Span is an inclusive range of operation indexes.
type Span struct {
	From uint64
	To   uint64
}

// Len returns the number of operations in the span.
func (s Span) Len() uint64 {
	return s.To - s.From + 1
}

// SplitRange splits [from, to] into spans of at most batchSize operations.
func SplitRange(from, to, batchSize uint64) ([]Span, error) {
	if batchSize == 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}
	if to < from {
		return nil, fmt.Errorf("range end %d is before start %d", to, from)
	}

	spans := make([]Span, 0, (to-from)/batchSize+1)
	for start := from; ; {
		end := to
		if to-start >= batchSize {
			end = start + batchSize - 1
		}
		spans = append(spans, Span{From: start, To: end})
		if end == to {
			break
		}
		start = end + 1
	}
	return spans, nil
}
