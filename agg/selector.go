// Package agg moves HZ-ordered samples between the ranks that encode them and the aggregator
// ranks that own file regions.
//
// A file region of one variable is split into segments of consecutive present blocks; a Triple
// (file, variable, segment) names one of them and the Selector assigns it to exactly one rank of
// the group. Aggregate gathers the samples of every rank into the aggregators' buffers, either
// with one bundled message per (sender, aggregator) pair or with puts into a fenced window.
// Distribute is the read-side inverse.
package agg

// Triple identifies one aggregation segment.
type Triple struct {
	File     int
	Variable int
	Segment  int
}

// Selector spreads aggregation triples evenly over the ranks of a group.
type Selector struct {
	GroupSize int
	Variables int
	Files     int
	Segments  int // segments per (file, variable)
	Stride    int // 0 derives the interval from the group size
}

// Interval returns the distance between the ranks of consecutive triples.
func (s Selector) Interval() int {
	if s.Stride > 0 {
		return s.Stride
	}

	n := s.Variables * s.Files * s.Segments
	if n <= 0 {
		return 1
	}

	return max(1, s.GroupSize/n)
}

// AggregatorOf returns the rank that owns triple t.
//
// When the group has at least one rank per triple every triple gets its own rank; otherwise
// ranks are reused round-robin.
func (s Selector) AggregatorOf(t Triple) int {
	n := (t.File*s.Variables+t.Variable)*s.Segments + t.Segment
	return n * s.Interval() % s.GroupSize
}
