package patch

import (
	"fmt"

	"github.com/arloliu/hzvol/errs"
	"github.com/arloliu/hzvol/grid"
)

// Region is one contiguous byte run of a buffer.
type Region struct {
	Offset int
	Length int
}

// RegionList is a scatter/gather descriptor: the ordered byte runs of a buffer that make up one
// transfer. Packing a buffer through a RegionList concatenates the runs in order.
type RegionList []Region

// RowRegions describes the sub-box sub of a row-major buffer laid out over box.
//
// One run is produced per x-row of sub; runs that are adjacent in the buffer are merged, so a sub
// covering whole rows (or the whole box) collapses to a single run.
func RowRegions(box, sub grid.Box, bytesPerSample int) RegionList {
	var rl RegionList
	sub.Rows(func(r grid.Row) bool {
		off := box.LinearOffset(r.Start) * bytesPerSample
		n := r.Length * bytesPerSample
		if last := len(rl) - 1; last >= 0 && rl[last].Offset+rl[last].Length == off {
			rl[last].Length += n
		} else {
			rl = append(rl, Region{Offset: off, Length: n})
		}

		return true
	})

	return rl
}

// Bytes returns the total number of bytes described.
func (rl RegionList) Bytes() int {
	n := 0
	for _, r := range rl {
		n += r.Length
	}

	return n
}

// Contiguous reports whether the list is a single run.
func (rl RegionList) Contiguous() bool {
	return len(rl) <= 1
}

// Gather packs the described runs of src into a buffer. A contiguous list returns a view of src
// instead of a copy.
func (rl RegionList) Gather(src []byte) ([]byte, error) {
	for _, r := range rl {
		if r.Offset < 0 || r.Offset+r.Length > len(src) {
			return nil, fmt.Errorf("%w: region %d+%d outside %d-byte buffer", errs.ErrOffsetOutOfRange, r.Offset, r.Length, len(src))
		}
	}
	if rl.Contiguous() {
		if len(rl) == 0 {
			return []byte{}, nil
		}
		r := rl[0]

		return src[r.Offset : r.Offset+r.Length : r.Offset+r.Length], nil
	}

	out := make([]byte, 0, rl.Bytes())
	for _, r := range rl {
		out = append(out, src[r.Offset:r.Offset+r.Length]...)
	}

	return out, nil
}

// Scatter unpacks a buffer produced by Gather into the described runs of dst.
func (rl RegionList) Scatter(dst, packed []byte) error {
	if len(packed) != rl.Bytes() {
		return fmt.Errorf("%w: packed %d bytes, regions describe %d", errs.ErrMessageSize, len(packed), rl.Bytes())
	}

	pos := 0
	for _, r := range rl {
		if r.Offset < 0 || r.Offset+r.Length > len(dst) {
			return fmt.Errorf("%w: region %d+%d outside %d-byte buffer", errs.ErrOffsetOutOfRange, r.Offset, r.Length, len(dst))
		}
		copy(dst[r.Offset:r.Offset+r.Length], packed[pos:pos+r.Length])
		pos += r.Length
	}

	return nil
}

// CopyBox copies the samples of sub from a row-major buffer over srcBox into a row-major buffer
// over dstBox. sub must lie inside both boxes.
func CopyBox(dst []byte, dstBox grid.Box, src []byte, srcBox grid.Box, sub grid.Box, bytesPerSample int) {
	sub.Rows(func(r grid.Row) bool {
		s := srcBox.LinearOffset(r.Start) * bytesPerSample
		d := dstBox.LinearOffset(r.Start) * bytesPerSample
		n := r.Length * bytesPerSample
		copy(dst[d:d+n], src[s:s+n])

		return true
	})
}
