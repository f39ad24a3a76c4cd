package collision

import (
	"fmt"

	"github.com/RoaringBitmap/roaring"

	"github.com/arloliu/hzvol/errs"
	"github.com/arloliu/hzvol/grid"
)

// Tracker records which cells of a super-patch have been claimed by contributing patches and
// detects two patches claiming the same cell.
type Tracker struct {
	region  grid.Box        // canonical region being assembled
	claimed *roaring.Bitmap // linear offsets (row-major over region) already claimed
	owners  map[int]int     // claim count per contributing rank
}

// NewTracker creates a tracker for one super-patch region.
func NewTracker(region grid.Box) *Tracker {
	return &Tracker{
		region:  region,
		claimed: roaring.New(),
		owners:  make(map[int]int),
	}
}

// Claim marks every cell of box (clipped to the region) as contributed by rank.
// Returns ErrOverlappingPatches if any cell was already claimed.
func (t *Tracker) Claim(rank int, box grid.Box) error {
	sub := t.region.Intersect(box)
	if sub.Empty() {
		return nil
	}

	claim := roaring.New()
	sub.Rows(func(r grid.Row) bool {
		start := uint64(t.region.LinearOffset(r.Start))
		claim.AddRange(start, start+uint64(r.Length))
		return true
	})

	if t.claimed.Intersects(claim) {
		return fmt.Errorf("%w: rank %d box %v overlaps an earlier contribution to %v",
			errs.ErrOverlappingPatches, rank, box, t.region)
	}

	t.claimed.Or(claim)
	t.owners[rank] += sub.Volume()

	return nil
}

// Covered returns the number of claimed cells.
func (t *Tracker) Covered() int {
	return int(t.claimed.GetCardinality())
}

// Complete reports whether every cell of want (clipped to the region) has been claimed.
func (t *Tracker) Complete(want grid.Box) bool {
	return t.Covered() == t.region.Intersect(want).Volume()
}

// Contribution returns the number of cells claimed by rank.
func (t *Tracker) Contribution(rank int) int {
	return t.owners[rank]
}
