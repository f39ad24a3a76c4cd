// Package grid provides the integer 3-D geometry used throughout hzvol: points, axis-aligned
// boxes, intersections and the linear offsets of samples inside a box.
package grid

import (
	"fmt"
	"math/bits"
)

// NumDims is the dimensionality of every dataset.
const NumDims = 3

// Point3d is a point or an extent in sample units, ordered x, y, z.
type Point3d [NumDims]int

// Prod returns x*y*z.
func (p Point3d) Prod() int {
	return p[0] * p[1] * p[2]
}

// Add adds component-wise.
func (p Point3d) Add(q Point3d) Point3d {
	return Point3d{p[0] + q[0], p[1] + q[1], p[2] + q[2]}
}

// Sub subtracts component-wise.
func (p Point3d) Sub(q Point3d) Point3d {
	return Point3d{p[0] - q[0], p[1] - q[1], p[2] - q[2]}
}

// Mul multiplies component-wise.
func (p Point3d) Mul(q Point3d) Point3d {
	return Point3d{p[0] * q[0], p[1] * q[1], p[2] * q[2]}
}

// Div divides component-wise, truncating.
func (p Point3d) Div(q Point3d) Point3d {
	return Point3d{p[0] / q[0], p[1] / q[1], p[2] / q[2]}
}

// CeilDiv divides component-wise, rounding up.
func (p Point3d) CeilDiv(q Point3d) Point3d {
	return Point3d{ceilDiv(p[0], q[0]), ceilDiv(p[1], q[1]), ceilDiv(p[2], q[2])}
}

// Mod returns the component-wise remainder.
func (p Point3d) Mod(q Point3d) Point3d {
	return Point3d{p[0] % q[0], p[1] % q[1], p[2] % q[2]}
}

// Pow2 rounds every component up to a power of two. Zero components become one.
func (p Point3d) Pow2() Point3d {
	return Point3d{NextPow2(p[0]), NextPow2(p[1]), NextPow2(p[2])}
}

// Positive reports whether every component is greater than zero.
func (p Point3d) Positive() bool {
	return p[0] > 0 && p[1] > 0 && p[2] > 0
}

// AllLE reports whether p[i] <= q[i] for every axis.
func (p Point3d) AllLE(q Point3d) bool {
	return p[0] <= q[0] && p[1] <= q[1] && p[2] <= q[2]
}

func (p Point3d) String() string {
	return fmt.Sprintf("(%d,%d,%d)", p[0], p[1], p[2])
}

// Box is an axis-aligned box covering [Offset, Offset+Size).
type Box struct {
	Offset Point3d
	Size   Point3d
}

// NewBox builds a box from its offset and size.
func NewBox(offset, size Point3d) Box {
	return Box{Offset: offset, Size: size}
}

// End returns the exclusive upper corner.
func (b Box) End() Point3d {
	return b.Offset.Add(b.Size)
}

// Volume returns the number of samples in the box; empty boxes have volume 0.
func (b Box) Volume() int {
	if b.Empty() {
		return 0
	}

	return b.Size.Prod()
}

// Empty reports whether the box has zero extent along any axis.
func (b Box) Empty() bool {
	return !b.Size.Positive()
}

// Contains reports whether p lies inside the box.
func (b Box) Contains(p Point3d) bool {
	for d := 0; d < NumDims; d++ {
		if p[d] < b.Offset[d] || p[d] >= b.Offset[d]+b.Size[d] {
			return false
		}
	}

	return true
}

// ContainsBox reports whether o lies entirely inside b.
func (b Box) ContainsBox(o Box) bool {
	return b.Offset.AllLE(o.Offset) && o.End().AllLE(b.End())
}

// Intersect returns the overlap of two boxes. The result is empty when they are disjoint.
func (b Box) Intersect(o Box) Box {
	var r Box
	for d := 0; d < NumDims; d++ {
		lo := max(b.Offset[d], o.Offset[d])
		hi := min(b.Offset[d]+b.Size[d], o.Offset[d]+o.Size[d])
		r.Offset[d] = lo
		r.Size[d] = max(hi-lo, 0)
	}

	return r
}

// Intersects reports whether the boxes share at least one sample.
func (b Box) Intersects(o Box) bool {
	return !b.Intersect(o).Empty()
}

// LinearOffset returns the row-major (x fastest) linear offset of p relative to the box origin.
// p must lie inside the box.
func (b Box) LinearOffset(p Point3d) int {
	rel := p.Sub(b.Offset)
	return rel[0] + b.Size[0]*(rel[1]+b.Size[1]*rel[2])
}

// ColumnOffset returns the column-major (z fastest) linear offset of p relative to the box origin.
func (b Box) ColumnOffset(p Point3d) int {
	rel := p.Sub(b.Offset)
	return rel[2] + b.Size[2]*(rel[1]+b.Size[1]*rel[0])
}

// PointAt is the inverse of LinearOffset.
func (b Box) PointAt(offset int) Point3d {
	x := offset % b.Size[0]
	offset /= b.Size[0]
	y := offset % b.Size[1]
	z := offset / b.Size[1]

	return b.Offset.Add(Point3d{x, y, z})
}

func (b Box) String() string {
	return fmt.Sprintf("%v+%v", b.Offset, b.Size)
}

// Row is a run of Length samples along x starting at Start.
type Row struct {
	Start  Point3d
	Length int
}

// Rows iterates the x-rows of the box in row-major order and calls fn for each.
// Iteration stops when fn returns false.
func (b Box) Rows(fn func(Row) bool) {
	if b.Empty() {
		return
	}

	for z := 0; z < b.Size[2]; z++ {
		for y := 0; y < b.Size[1]; y++ {
			start := b.Offset.Add(Point3d{0, y, z})
			if !fn(Row{Start: start, Length: b.Size[0]}) {
				return
			}
		}
	}
}

// NextPow2 returns the smallest power of two >= n, with NextPow2(0) == 1.
func NextPow2(n int) int {
	if n <= 1 {
		return 1
	}

	return 1 << bits.Len(uint(n-1))
}

// IsPow2 reports whether n is a positive power of two.
func IsPow2(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// Log2 returns floor(log2(n)) for n >= 1.
func Log2(n int) int {
	return bits.Len(uint(n)) - 1
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
