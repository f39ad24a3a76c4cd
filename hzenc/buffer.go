// Package hzenc converts chunked super-patches into per-level runs of HZ-ordered samples and back.
//
// A super-patch is an aligned run of the curve, so for every level its samples occupy one
// contiguous HZ range that no other super-patch touches. A Buffer stores each level densely over
// that range; indices inside the range that fall outside the clipped region are zero.
package hzenc

import (
	"context"
	"fmt"
	"runtime"

	"github.com/RoaringBitmap/roaring"
	"golang.org/x/sync/errgroup"

	"github.com/arloliu/hzvol/chunk"
	"github.com/arloliu/hzvol/errs"
	"github.com/arloliu/hzvol/grid"
	"github.com/arloliu/hzvol/hz"
	"github.com/arloliu/hzvol/internal/pool"
)

// Buffer holds the samples of one region for the levels [From, To).
//
// Slices are indexed by level-From. End is inclusive; a level without samples has Count 0 and no
// data.
type Buffer struct {
	ID          int
	From, To    int
	SampleBytes int
	Start       []uint64
	End         []uint64
	Count       []uint64
	Data        [][]byte
}

// HasLevel reports whether the buffer holds samples of level.
func (b *Buffer) HasLevel(level int) bool {
	return level >= b.From && level < b.To && b.Count[level-b.From] > 0
}

// Range returns the inclusive HZ range of a level.
func (b *Buffer) Range(level int) (uint64, uint64, bool) {
	if !b.HasLevel(level) {
		return 0, 0, false
	}
	i := level - b.From

	return b.Start[i], b.End[i], true
}

// Sample returns the bytes of the sample at an HZ index, or nil when the buffer does not cover it.
func (b *Buffer) Sample(idx uint64) []byte {
	start, end, ok := b.Range(hz.Level(idx))
	if !ok || idx < start || idx > end {
		return nil
	}
	off := int(idx-start) * b.SampleBytes

	return b.Data[hz.Level(idx)-b.From][off : off+b.SampleBytes]
}

// Bytes returns the size of all level buffers.
func (b *Buffer) Bytes() int {
	n := 0
	for _, d := range b.Data {
		n += len(d)
	}

	return n
}

// Samples returns the number of samples of the region inside the window.
func (b *Buffer) Samples() uint64 {
	var n uint64
	for _, c := range b.Count {
		n += c
	}

	return n
}

// NewBuffer computes the per-level ranges of the chunk grid region and allocates zeroed level
// buffers of sampleBytes-wide samples.
func NewBuffer(id int, region grid.Box, curve *hz.Curve, from, to, sampleBytes int) (*Buffer, error) {
	idx, release, err := indices(region, curve)
	if err != nil {
		return nil, err
	}
	defer release()

	return newBuffer(id, idx, from, to, sampleBytes), nil
}

func newBuffer(id int, idx []uint64, from, to, sampleBytes int) *Buffer {
	n := max(to-from, 0)
	b := &Buffer{
		ID:          id,
		From:        from,
		To:          to,
		SampleBytes: sampleBytes,
		Start:       make([]uint64, n),
		End:         make([]uint64, n),
		Count:       make([]uint64, n),
		Data:        make([][]byte, n),
	}

	for _, h := range idx {
		l := hz.Level(h)
		if l < from || l >= to {
			continue
		}
		i := l - from
		if b.Count[i] == 0 || h < b.Start[i] {
			b.Start[i] = h
		}
		if b.Count[i] == 0 || h > b.End[i] {
			b.End[i] = h
		}
		b.Count[i]++
	}

	for i := range b.Data {
		if b.Count[i] > 0 {
			b.Data[i] = make([]byte, int(b.End[i]-b.Start[i]+1)*sampleBytes)
		}
	}

	return b
}

// indices returns the HZ index of every point of region in row-major order.
func indices(region grid.Box, curve *hz.Curve) ([]uint64, func(), error) {
	if region.Empty() {
		return nil, nil, fmt.Errorf("%w: empty region %v", errs.ErrInvalidBox, region)
	}
	if !region.End().AllLE(curve.Dims()) || !(grid.Point3d{}).AllLE(region.Offset) {
		return nil, nil, fmt.Errorf("%w: region %v outside curve %v", errs.ErrLocalBoxTooLarge, region, curve.Dims())
	}

	idx, release := pool.GetUint64Slice(region.Volume())
	for i := range idx {
		idx[i] = curve.XYZToHZ(region.PointAt(i))
	}

	return idx, release, nil
}

// Encode writes the chunks of c into a new buffer covering the levels [from, to).
//
// Each level is filled by its own goroutine.
func Encode(ctx context.Context, c *chunk.Chunked, curve *hz.Curve, from, to int) (*Buffer, error) {
	idx, release, err := indices(c.Grid, curve)
	if err != nil {
		return nil, err
	}
	defer release()

	size := c.ChunkBytes()
	b := newBuffer(c.ID, idx, from, to, size)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for level := from; level < to; level++ {
		if !b.HasLevel(level) {
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			i := level - from
			dst, start := b.Data[i], b.Start[i]
			for ci, h := range idx {
				if hz.Level(h) != level {
					continue
				}
				off := int(h-start) * size
				copy(dst[off:off+size], c.Data[ci*size:(ci+1)*size])
			}

			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return b, nil
}

// Decode copies the samples of b back into the chunks of c and returns the set of chunk indices
// (row-major over c.Grid) that were filled.
func Decode(b *Buffer, c *chunk.Chunked, curve *hz.Curve) (*roaring.Bitmap, error) {
	if b.SampleBytes != c.ChunkBytes() {
		return nil, fmt.Errorf("%w: %d-byte samples into %d-byte chunks", errs.ErrMessageSize, b.SampleBytes, c.ChunkBytes())
	}

	idx, release, err := indices(c.Grid, curve)
	if err != nil {
		return nil, err
	}
	defer release()

	size := c.ChunkBytes()
	mask := roaring.New()
	for ci, h := range idx {
		src := b.Sample(h)
		if src == nil {
			continue
		}
		copy(c.Data[ci*size:(ci+1)*size], src)
		mask.Add(uint32(ci)) //nolint: gosec
	}

	return mask, nil
}
