package hz

import (
	"math/bits"

	"github.com/arloliu/hzvol/grid"
)

// Level returns the resolution level of an HZ index: 0 for indices 0 and 1, otherwise the
// position of the highest set bit.
func Level(hz uint64) int {
	if hz <= 1 {
		return 0
	}

	return bits.Len64(hz) - 1
}

// LevelStart returns the first HZ index of a level.
func LevelStart(level int) uint64 {
	if level == 0 {
		return 0
	}

	return uint64(1) << level
}

// LevelEnd returns the last HZ index of a level, inclusive.
func LevelEnd(level int) uint64 {
	return (uint64(1) << (level + 1)) - 1
}

// PrefixCount returns the number of indices visible in the window [0, to).
func PrefixCount(to int) uint64 {
	return uint64(1) << to
}

// Levels returns the number of levels of the curve. The window [0, Levels()) covers all indices.
func (c *Curve) Levels() int {
	return max(c.maxH, 1)
}

// LevelCount returns the number of indices of a level that exist on this curve.
func (c *Curve) LevelCount(level int) uint64 {
	if level < 0 || level >= c.Levels() {
		return 0
	}
	if level == 0 {
		return min(2, c.Total())
	}

	return uint64(1) << level
}

// LevelEnd returns the last index of a level that exists on this curve, inclusive.
func (c *Curve) LevelEnd(level int) uint64 {
	return LevelStart(level) + c.LevelCount(level) - 1
}

// Lattice describes the regular set of points addressed by an aligned run of HZ indices:
// every point Min + k*Stride (component-wise) that is <= Max.
type Lattice struct {
	Min    grid.Point3d
	Max    grid.Point3d
	Stride grid.Point3d
}

// Intersects reports whether at least one lattice point lies inside box.
func (l Lattice) Intersects(box grid.Box) bool {
	if box.Empty() {
		return false
	}

	for d := 0; d < grid.NumDims; d++ {
		lo, hi := box.Offset[d], box.Offset[d]+box.Size[d]-1
		first := l.Min[d]
		if first < lo {
			steps := (lo - first + l.Stride[d] - 1) / l.Stride[d]
			first += steps * l.Stride[d]
		}
		if first > l.Max[d] || first > hi {
			return false
		}
	}

	return true
}

// Lattice returns the points addressed by the HZ indices [first, first+count).
//
// The run must lie within a single level L >= 1, count must be a power of two and first must be
// a multiple of count; blocks of a BlockLayout satisfy all three.
func (c *Curve) Lattice(first, count uint64) Lattice {
	level := Level(first)
	k := bits.Len64(count) - 1

	l := Lattice{
		Min:    c.HZToXYZ(first),
		Max:    c.HZToXYZ(first + count - 1),
		Stride: grid.Point3d{1, 1, 1},
	}

	// positions level-k+1..level vary inside the run; the finest one per axis sets its stride
	var seen [grid.NumDims]bool
	for i := level; i > level-k && i >= 1; i-- {
		a := c.axis[i]
		if !seen[a] {
			seen[a] = true
			l.Stride[a] = 1 << c.bit[i]
		}
	}

	return l
}
