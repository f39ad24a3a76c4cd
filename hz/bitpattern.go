// Package hz implements the hierarchical Z-order (HZ) space-filling curve that lays out every
// dataset in multiresolution order.
//
// # Bit patterns
//
// A BitPattern is the string "V" followed by one axis selector ('0' = x, '1' = y, '2' = z) per
// bit of the curve. Position 1 is the coarsest split of the domain and the last position is the
// finest. The number of selectors is maxH; the curve addresses the 2^maxH samples of the
// power-of-two cube that encloses the domain.
//
//	V012012012   8x8x8 cube, classical Morton order
//	V00012       8x2x2 box, coarse levels split the long axis first
//
// # HZ order
//
// The Morton (Z) address of a point is reordered so that every resolution level is a contiguous
// run of indices. Level 0 holds indices {0, 1}; level L >= 1 holds [2^L, 2^(L+1)). Reading the
// prefix [0, 2^L) therefore yields a complete, coarser sampling of the whole domain, and every
// extra level doubles the prefix.
package hz

import (
	"fmt"
	"strings"

	"github.com/arloliu/hzvol/errs"
	"github.com/arloliu/hzvol/grid"
)

// BitPattern is the per-level axis selector sequence, prefixed with 'V'.
type BitPattern string

// MaxH returns the number of axis selectors in the pattern.
func (p BitPattern) MaxH() int {
	if len(p) == 0 {
		return 0
	}

	return len(p) - 1
}

// Validate checks the pattern syntax.
func (p BitPattern) Validate() error {
	if len(p) == 0 || p[0] != 'V' {
		return fmt.Errorf("%w: %q must start with 'V'", errs.ErrInvalidBitPattern, string(p))
	}
	if p.MaxH() > 62 {
		return fmt.Errorf("%w: %q has more than 62 levels", errs.ErrInvalidBitPattern, string(p))
	}
	for i := 1; i < len(p); i++ {
		if p[i] < '0' || p[i] > '2' {
			return fmt.Errorf("%w: invalid selector %q at position %d", errs.ErrInvalidBitPattern, p[i], i)
		}
	}

	return nil
}

// Dims returns the power-of-two extent covered by the pattern along each axis.
func (p BitPattern) Dims() grid.Point3d {
	dims := grid.Point3d{1, 1, 1}
	for i := 1; i < len(p); i++ {
		dims[p[i]-'0'] <<= 1
	}

	return dims
}

// Axis returns the axis selected at position i, 1 <= i <= MaxH.
func (p BitPattern) Axis(i int) int {
	return int(p[i] - '0')
}

// selectors returns the pattern without the leading 'V'.
func (p BitPattern) selectors() string {
	if len(p) == 0 {
		return ""
	}

	return string(p[1:])
}

// DeriveBitPattern derives the bit pattern for a box of the given dimensions.
//
// Each axis is first padded to a power of two. The axis with the largest remaining extent is
// then halved repeatedly (ties go to the lowest axis index) and its selector appended, so the
// coarsest levels split the longest axes first.
func DeriveBitPattern(dims grid.Point3d) BitPattern {
	pow2 := dims.Pow2()

	var sb strings.Builder
	sb.WriteByte('V')
	for {
		axis := -1
		for d := 0; d < grid.NumDims; d++ {
			if pow2[d] > 1 && (axis < 0 || pow2[d] > pow2[axis]) {
				axis = d
			}
		}
		if axis < 0 {
			break
		}

		pow2[axis] >>= 1
		sb.WriteByte(byte('0' + axis))
	}

	return BitPattern(sb.String())
}

// ComposeBitPattern concatenates the patterns of the partition grid, the restructuring-box grid
// inside one partition and a single restructuring box, coarsest first.
//
// The composition keeps every restructuring box and every partition a contiguous, aligned run
// of Z addresses, which is what lets a box owner encode its region without knowing about its
// neighbours.
func ComposeBitPattern(partitionCount, boxesPerPartition, boxDims grid.Point3d) BitPattern {
	return BitPattern("V" +
		DeriveBitPattern(partitionCount).selectors() +
		DeriveBitPattern(boxesPerPartition).selectors() +
		DeriveBitPattern(boxDims).selectors())
}
