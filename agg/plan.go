package agg

import (
	"fmt"
	"slices"

	"github.com/arloliu/hzvol/config"
	"github.com/arloliu/hzvol/errs"
	"github.com/arloliu/hzvol/layout"
)

// Segment is a run of present blocks of one (file, variable) region and the rank that
// aggregates it.
type Segment struct {
	Triple
	Aggregator int
	Blocks     []uint64 // block numbers, ascending
	Slots      []int    // position of each block among the present blocks of its file
	// WindowOffset is the segment's offset inside the concatenated buffers of its aggregator
	// for this variable.
	WindowOffset int
}

type blockRef struct {
	seg *Segment
	k   int
}

// Plan is the aggregation decomposition shared by every rank of the group.
type Plan struct {
	pipeline *config.Pipeline
	selector Selector
	from, to int
	segments []*Segment
	byBlock  []map[uint64]blockRef // per variable
	aggs     [][]int               // aggregator ranks per variable, ascending
}

// NewPlan splits the present blocks of the pipeline layout into segments and assigns each to a
// rank of a group of groupSize ranks.
//
// Every present (file, variable) region is split into min(ValuesPerSample, present blocks)
// contiguous segments.
func NewPlan(p *config.Pipeline, groupSize int) (*Plan, error) {
	if groupSize <= 0 {
		return nil, fmt.Errorf("%w: group of %d ranks", errs.ErrInvalidRank, groupSize)
	}

	maxValues := 1
	for _, v := range p.Variables() {
		maxValues = max(maxValues, v.ValuesPerSample)
	}

	from, to := p.Window()
	pl := &Plan{
		pipeline: p,
		selector: Selector{
			GroupSize: groupSize,
			Variables: len(p.Variables()),
			Files:     p.FileCount(),
			Segments:  maxValues,
			Stride:    p.Config().AggregatorStride,
		},
		from: from,
		to:   to,
	}

	l := p.Layout()
	bpf := p.BlocksPerFile()
	for f := 0; f < p.FileCount(); f++ {
		if !l.IsFilePresent(bpf, f) {
			continue
		}
		first, end := l.FileBlocks(bpf, f)
		blocks := l.PresentBlocksIn(first, end)

		for v, vr := range p.Variables() {
			n := len(blocks)
			segs := min(vr.ValuesPerSample, n)
			for s := 0; s < segs; s++ {
				lo, hi := s*n/segs, (s+1)*n/segs
				seg := &Segment{
					Triple: Triple{File: f, Variable: v, Segment: s},
					Blocks: blocks[lo:hi:hi],
					Slots:  make([]int, hi-lo),
				}
				seg.Aggregator = pl.selector.AggregatorOf(seg.Triple)
				for k := range seg.Slots {
					seg.Slots[k] = lo + k
				}
				pl.segments = append(pl.segments, seg)
			}
		}
	}
	pl.index()

	return pl, nil
}

// Window returns the plan restricted to the blocks that hold levels of [from, to). Block 0 is kept
// when from is below the block size exponent. Offsets inside files are unchanged.
func (pl *Plan) Window(from, to int) *Plan {
	bpb := pl.pipeline.BitsPerBlock()
	out := &Plan{
		pipeline: pl.pipeline,
		selector: pl.selector,
		from:     max(from, pl.from),
		to:       min(to, pl.to),
	}

	for _, seg := range pl.segments {
		cp := &Segment{Triple: seg.Triple, Aggregator: seg.Aggregator}
		for k, b := range seg.Blocks {
			level := layout.BlockLevel(b, bpb)
			keep := level >= from && level < to
			if b == 0 {
				keep = from < bpb
			}
			if keep {
				cp.Blocks = append(cp.Blocks, b)
				cp.Slots = append(cp.Slots, seg.Slots[k])
			}
		}
		if len(cp.Blocks) > 0 {
			out.segments = append(out.segments, cp)
		}
	}
	out.index()

	return out
}

// index builds the block lookup and the window offsets.
func (pl *Plan) index() {
	nv := len(pl.pipeline.Variables())
	pl.byBlock = make([]map[uint64]blockRef, nv)
	pl.aggs = make([][]int, nv)
	for v := range pl.byBlock {
		pl.byBlock[v] = make(map[uint64]blockRef)
	}

	// per variable, per aggregator running offset
	offsets := make([]map[int]int, nv)
	for v := range offsets {
		offsets[v] = make(map[int]int)
	}

	for _, seg := range pl.segments {
		v := seg.Variable
		for k, b := range seg.Blocks {
			pl.byBlock[v][b] = blockRef{seg: seg, k: k}
		}

		if _, seen := offsets[v][seg.Aggregator]; !seen {
			pl.aggs[v] = append(pl.aggs[v], seg.Aggregator)
		}
		seg.WindowOffset = offsets[v][seg.Aggregator]
		offsets[v][seg.Aggregator] += len(seg.Blocks) * pl.pipeline.BlockBytes(v)
	}

	for v := range pl.aggs {
		slices.Sort(pl.aggs[v])
	}
}

// Pipeline returns the pipeline context.
func (pl *Plan) Pipeline() *config.Pipeline { return pl.pipeline }

// Selector returns the aggregator selector.
func (pl *Plan) Selector() Selector { return pl.selector }

// Segments returns every segment ordered by (file, variable, segment).
func (pl *Plan) Segments() []*Segment { return pl.segments }

// Aggregators returns the ranks that aggregate variable v.
func (pl *Plan) Aggregators(v int) []int { return pl.aggs[v] }

// Owned returns the segments of variable v aggregated by rank.
func (pl *Plan) Owned(rank, v int) []*Segment {
	var out []*Segment
	for _, seg := range pl.segments {
		if seg.Variable == v && seg.Aggregator == rank {
			out = append(out, seg)
		}
	}

	return out
}

// WindowBytes returns the size of the concatenated buffers of variable v held by rank.
func (pl *Plan) WindowBytes(rank, v int) int {
	n := 0
	for _, seg := range pl.Owned(rank, v) {
		n += len(seg.Blocks) * pl.pipeline.BlockBytes(v)
	}

	return n
}

func (pl *Plan) lookup(v int, block uint64) (blockRef, bool) {
	ref, ok := pl.byBlock[v][block]
	return ref, ok
}
