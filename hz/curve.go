package hz

import (
	"fmt"
	"math/bits"

	"github.com/arloliu/hzvol/errs"
	"github.com/arloliu/hzvol/grid"
)

// Curve is a compiled BitPattern. It is immutable and safe for concurrent use.
type Curve struct {
	pattern BitPattern
	maxH    int
	axis    []uint8 // axis[i] for positions 1..maxH, axis[0] unused
	bit     []uint8 // coordinate bit consumed at position i
	dims    grid.Point3d
}

// NewCurve compiles a bit pattern.
func NewCurve(p BitPattern) (*Curve, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	maxH := p.MaxH()
	c := &Curve{
		pattern: p,
		maxH:    maxH,
		axis:    make([]uint8, maxH+1),
		bit:     make([]uint8, maxH+1),
		dims:    p.Dims(),
	}

	// the finest position of each axis consumes coordinate bit 0
	var used [grid.NumDims]uint8
	for i := maxH; i >= 1; i-- {
		a := uint8(p.Axis(i))
		c.axis[i] = a
		c.bit[i] = used[a]
		used[a]++
	}

	return c, nil
}

// MustCurve is like NewCurve but panics on an invalid pattern.
func MustCurve(p BitPattern) *Curve {
	c, err := NewCurve(p)
	if err != nil {
		panic(err)
	}

	return c
}

// Pattern returns the source pattern.
func (c *Curve) Pattern() BitPattern { return c.pattern }

// MaxH returns the number of bits of the curve.
func (c *Curve) MaxH() int { return c.maxH }

// Dims returns the power-of-two cube addressed by the curve.
func (c *Curve) Dims() grid.Point3d { return c.dims }

// Total returns the number of addressable indices, 2^maxH.
func (c *Curve) Total() uint64 { return PrefixCount(c.maxH) }

// XYZToZ returns the Morton address of p.
func (c *Curve) XYZToZ(p grid.Point3d) uint64 {
	var z uint64
	for i := 1; i <= c.maxH; i++ {
		b := (uint64(p[c.axis[i]]) >> c.bit[i]) & 1
		z |= b << (c.maxH - i)
	}

	return z
}

// ZToXYZ is the inverse of XYZToZ.
func (c *Curve) ZToXYZ(z uint64) grid.Point3d {
	var p grid.Point3d
	for i := 1; i <= c.maxH; i++ {
		b := (z >> (c.maxH - i)) & 1
		p[c.axis[i]] |= int(b << c.bit[i])
	}

	return p
}

// ZToHZ reorders a Morton address into hierarchical order.
func (c *Curve) ZToHZ(z uint64) uint64 {
	z |= uint64(1) << c.maxH
	z >>= bits.TrailingZeros64(z)

	return z >> 1
}

// HZToZ is the inverse of ZToHZ.
func (c *Curve) HZToZ(hz uint64) uint64 {
	last := uint64(1) << c.maxH
	h := hz<<1 | 1
	h <<= c.maxH + 1 - bits.Len64(h)

	return h &^ last
}

// XYZToHZ returns the multiresolution linear index of p.
func (c *Curve) XYZToHZ(p grid.Point3d) uint64 {
	return c.ZToHZ(c.XYZToZ(p))
}

// HZToXYZ returns the point addressed by a multiresolution linear index.
func (c *Curve) HZToXYZ(hz uint64) grid.Point3d {
	return c.ZToXYZ(c.HZToZ(hz))
}

// prefixCurve compiles the first maxLevel positions of pattern.
func prefixCurve(pattern BitPattern, maxLevel int) (*Curve, error) {
	if err := pattern.Validate(); err != nil {
		return nil, err
	}
	if maxLevel < 0 || maxLevel > pattern.MaxH() {
		return nil, fmt.Errorf("%w: level %d outside [0, %d] of %q",
			errs.ErrInvalidBitPattern, maxLevel, pattern.MaxH(), pattern)
	}

	return NewCurve(pattern[:maxLevel+1])
}

// XYZToLinear returns the multiresolution index of point on the curve formed by the first
// maxLevel positions of pattern.
func XYZToLinear(pattern BitPattern, maxLevel int, point grid.Point3d) (uint64, error) {
	c, err := prefixCurve(pattern, maxLevel)
	if err != nil {
		return 0, err
	}

	return c.XYZToHZ(point), nil
}

// LinearToXYZ is the inverse of XYZToLinear.
func LinearToXYZ(pattern BitPattern, maxLevel int, index uint64) (grid.Point3d, error) {
	c, err := prefixCurve(pattern, maxLevel)
	if err != nil {
		return grid.Point3d{}, err
	}

	return c.HZToXYZ(index), nil
}
