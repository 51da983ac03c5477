package domain

// Segment is a user cohort (education level) used to key cache isolation.
// Cached subscription data for one segment must never be served to another,
// so every known segment is enumerated here rather than built from strings.
type Segment string

const (
	SegmentPrimary   Segment = "primary"
	SegmentSecondary Segment = "secondary"
	SegmentAdvance   Segment = "advance"
)

// AllSegments returns every known segment.
func AllSegments() []Segment {
	return []Segment{SegmentPrimary, SegmentSecondary, SegmentAdvance}
}

// ParseSegment converts a stored level string into a Segment, falling back to
// primary for unknown values.
func ParseSegment(s string) Segment {
	switch Segment(s) {
	case SegmentPrimary, SegmentSecondary, SegmentAdvance:
		return Segment(s)
	}
	return SegmentPrimary
}
