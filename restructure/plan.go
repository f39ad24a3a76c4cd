// Package restructure redistributes the application's patches into power-of-two aligned
// super-patches and back.
//
// Every rank of a partition group learns every patch box of the group through one collective
// setup. From that all ranks compute the same super-patch grid: the restructuring-box aligned
// cells that intersect a patch, each owned by the rank contributing the largest overlap. The
// write path moves patch data to the owners; Scatter moves super-patch data back into patches.
package restructure

import (
	"context"
	"fmt"
	"slices"

	"github.com/arloliu/hzvol/comm"
	"github.com/arloliu/hzvol/config"
	"github.com/arloliu/hzvol/errs"
	"github.com/arloliu/hzvol/grid"
	"github.com/arloliu/hzvol/internal/collision"
	"github.com/arloliu/hzvol/patch"
)

// Plan is the super-patch decomposition of one partition group. It is shared by every variable.
type Plan struct {
	pipeline  *config.Pipeline
	comm      *comm.Comm
	partition int
	boxes     [][]grid.Box // patch boxes per group rank
	supers    []*patch.SuperPatch
	covered   int
	complete  bool
}

// Validate checks the local patch boxes against the domain and returns the partition they lie
// in, or -1 when there are none.
func Validate(p *config.Pipeline, boxes []grid.Box) (int, error) {
	part := -1
	for i, box := range boxes {
		if box.Empty() {
			return -1, fmt.Errorf("%w: patch %d has size %v", errs.ErrInvalidBox, i, box.Size)
		}
		if !p.Bounds().ContainsBox(box) {
			return -1, fmt.Errorf("%w: patch %d %v outside %v", errs.ErrLocalBoxTooLarge, i, box, p.Bounds())
		}

		idx, err := p.PartitionOf(box)
		if err != nil {
			return -1, err
		}
		if part >= 0 && idx != part {
			return -1, fmt.Errorf("%w: patches of one rank in partitions %d and %d", errs.ErrInvalidPartition, part, idx)
		}
		part = idx
	}

	return part, nil
}

// Setup gathers the patch boxes of the group and builds the super-patch plan. It is collective
// over c.
//
// The group is expected to be the partition communicator: every member holds at least one patch
// and all patches lie in the same partition.
func Setup(ctx context.Context, c *comm.Comm, p *config.Pipeline, boxes []grid.Box) (*Plan, error) {
	part, err := Validate(p, boxes)
	if err != nil {
		return nil, err
	}

	vals := make([]int, 0, 1+2*grid.NumDims*len(boxes))
	vals = append(vals, part)
	for _, b := range boxes {
		vals = append(vals, b.Offset[:]...)
		vals = append(vals, b.Size[:]...)
	}
	all, err := c.AllgatherInts(ctx, vals)
	if err != nil {
		return nil, err
	}

	pl := &Plan{
		pipeline:  p,
		comm:      c,
		partition: part,
		boxes:     make([][]grid.Box, len(all)),
	}
	for r, v := range all {
		if len(v) == 0 || (len(v)-1)%(2*grid.NumDims) != 0 {
			return nil, fmt.Errorf("%w: malformed patch list from rank %d", errs.ErrMessageSize, r)
		}
		if v[0] != part {
			return nil, fmt.Errorf("%w: ranks %d and %d hold patches of partitions %d and %d",
				errs.ErrInvalidPartition, c.Rank(), r, part, v[0])
		}
		for i := 1; i < len(v); i += 2 * grid.NumDims {
			var b grid.Box
			copy(b.Offset[:], v[i:i+grid.NumDims])
			copy(b.Size[:], v[i+grid.NumDims:i+2*grid.NumDims])
			pl.boxes[r] = append(pl.boxes[r], b)
		}
	}

	if err := pl.build(); err != nil {
		return nil, err
	}

	return pl, nil
}

// build computes the super-patch grid from the gathered boxes.
func (pl *Plan) build() error {
	rb := pl.pipeline.RestructureBox()
	bounds := pl.pipeline.Bounds()
	cells := bounds.Size.CeilDiv(rb)
	cellGrid := grid.NewBox(grid.Point3d{}, cells)

	byID := make(map[int]*patch.SuperPatch)
	for r, boxes := range pl.boxes {
		for i, box := range boxes {
			lo := box.Offset.Div(rb)
			span := box.End().Sub(grid.Point3d{1, 1, 1}).Div(rb).Sub(lo).Add(grid.Point3d{1, 1, 1})
			touched := grid.NewBox(lo, span)

			for k := 0; k < touched.Volume(); k++ {
				cell := touched.PointAt(k)
				id := cellGrid.LinearOffset(cell)
				s, ok := byID[id]
				if !ok {
					canonical := grid.NewBox(cell.Mul(rb), rb)
					s = &patch.SuperPatch{
						ID:        id,
						Canonical: canonical,
						Box:       canonical.Intersect(bounds),
					}
					s.IsBoundary = s.Box != s.Canonical
					byID[id] = s
				}
				s.Sources = append(s.Sources, patch.Source{Rank: r, Index: i, Box: box.Intersect(s.Box)})
			}
		}
	}

	pl.supers = make([]*patch.SuperPatch, 0, len(byID))
	for _, s := range byID {
		pl.supers = append(pl.supers, s)
	}
	slices.SortFunc(pl.supers, func(a, b *patch.SuperPatch) int { return a.ID - b.ID })

	filled := true
	for _, s := range pl.supers {
		t := collision.NewTracker(s.Box)
		for _, src := range s.Sources {
			if err := t.Claim(src.Rank, src.Box); err != nil {
				return err
			}
		}

		s.MaxPatchRank = -1
		best := 0
		for _, src := range s.Sources {
			if n := t.Contribution(src.Rank); n > best || (n == best && src.Rank < s.MaxPatchRank) {
				best, s.MaxPatchRank = n, src.Rank
			}
		}
		pl.covered += t.Covered()
		filled = filled && t.Complete(s.Box)
	}

	// a partition may also lack whole super-patches no rank contributes to
	if pl.partition >= 0 {
		pl.complete = filled && pl.covered == pl.pipeline.PartitionBox(pl.partition).Volume()
	}

	return nil
}

// Comm returns the group communicator.
func (pl *Plan) Comm() *comm.Comm { return pl.comm }

// Partition returns the partition index of the group.
func (pl *Plan) Partition() int { return pl.partition }

// Boxes returns the patch boxes of a group rank.
func (pl *Plan) Boxes(rank int) []grid.Box { return pl.boxes[rank] }

// Supers returns every super-patch of the group in ID order, without data.
func (pl *Plan) Supers() []*patch.SuperPatch { return pl.supers }

// Complete reports whether the patches cover the whole partition.
func (pl *Plan) Complete() bool { return pl.complete }

// Covered returns the number of samples covered by the group's patches.
func (pl *Plan) Covered() int { return pl.covered }

// Owned returns fresh copies, without data, of the super-patches owned by the calling rank.
func (pl *Plan) Owned() []*patch.SuperPatch {
	var out []*patch.SuperPatch
	for _, s := range pl.supers {
		if s.Owned(pl.comm.Rank()) {
			cp := *s
			cp.Data = nil
			out = append(out, &cp)
		}
	}

	return out
}

// checkCoverage fails unless the group's patches tile the whole partition.
func (pl *Plan) checkCoverage() error {
	if pl.complete {
		return nil
	}

	want := pl.pipeline.PartitionBox(pl.partition)

	return fmt.Errorf("%w: patches cover %d of the %d samples of partition %d %v",
		errs.ErrDecompositionMismatch, pl.covered, want.Volume(), pl.partition, want)
}
