package primitive

import "sort"

// AbsencePersistence measures how much of [winStart, winEnd] the given
// presence spans cover. Overlapping spans are merged before measuring,
// so double coverage never counts twice. Spans must sit fully inside
// the window; zero-length spans contribute nothing.
func AbsencePersistence(spans []Span, winStart, winEnd float64) (*AbsenceFact, error) {
	if !finite(winStart, winEnd) || winEnd <= winStart {
		return nil, ErrInvalidWindow
	}
	for _, s := range spans {
		if !finite(s.Start, s.End) {
			return nil, ErrNotFinite
		}
		if s.End < s.Start || s.Start < winStart || s.End > winEnd {
			return nil, ErrInvalidInterval
		}
	}
	window := winEnd - winStart
	covered := coveredLength(spans)
	absence := window - covered
	return &AbsenceFact{
		CoveredDur:   covered,
		AbsenceDur:   absence,
		Persistence:  covered / window,
		AbsenceRatio: absence / window,
	}, nil
}

func coveredLength(spans []Span) float64 {
	if len(spans) == 0 {
		return 0
	}
	merged := make([]Span, len(spans))
	copy(merged, spans)
	sort.Slice(merged, func(i, j int) bool { return merged[i].Start < merged[j].Start })
	total := 0.0
	cur := merged[0]
	for _, s := range merged[1:] {
		if s.Start <= cur.End {
			if s.End > cur.End {
				cur.End = s.End
			}
			continue
		}
		total += cur.End - cur.Start
		cur = s
	}
	return total + (cur.End - cur.Start)
}
