// Package chunk reshapes super-patches into chunk-major order and frames compressed blocks.
//
// A chunked region stores every chunk of ChunkBox samples contiguously, chunks ordered row-major
// over the chunk grid. Chunks that stick out of the clipped super-patch are zero padded, so every
// chunk has the same byte size and one chunk is one sample of the HZ curve.
package chunk

import (
	"fmt"

	"github.com/arloliu/hzvol/errs"
	"github.com/arloliu/hzvol/grid"
	"github.com/arloliu/hzvol/patch"
)

// Chunked is a region in chunk-major order.
type Chunked struct {
	ID             int
	Box            grid.Box // region in samples
	ChunkBox       grid.Point3d
	Grid           grid.Box // chunk grid in chunk units, in the global chunk frame
	BytesPerSample int
	Data           []byte
}

// NewChunked allocates a zeroed chunked region over box.
//
// The box offset must be a multiple of the chunk box.
func NewChunked(id int, box grid.Box, chunkBox grid.Point3d, bytesPerSample int) (*Chunked, error) {
	if !chunkBox.Positive() {
		return nil, fmt.Errorf("%w: %v", errs.ErrInvalidChunkBox, chunkBox)
	}
	if box.Empty() {
		return nil, fmt.Errorf("%w: empty region %v", errs.ErrInvalidBox, box)
	}
	if box.Offset.Mod(chunkBox) != (grid.Point3d{}) {
		return nil, fmt.Errorf("%w: region %v is not aligned to chunk box %v", errs.ErrInvalidChunkBox, box, chunkBox)
	}

	c := &Chunked{
		ID:             id,
		Box:            box,
		ChunkBox:       chunkBox,
		Grid:           grid.NewBox(box.Offset.Div(chunkBox), box.Size.CeilDiv(chunkBox)),
		BytesPerSample: bytesPerSample,
	}
	c.Data = make([]byte, c.Grid.Volume()*c.ChunkBytes())

	return c, nil
}

// ChunkBytes returns the size of one chunk.
func (c *Chunked) ChunkBytes() int {
	return c.ChunkBox.Prod() * c.BytesPerSample
}

// Chunks returns the number of chunks.
func (c *Chunked) Chunks() int {
	return c.Grid.Volume()
}

// ChunkAt returns the bytes of the chunk at p, given in global chunk units.
func (c *Chunked) ChunkAt(p grid.Point3d) []byte {
	off := c.Grid.LinearOffset(p) * c.ChunkBytes()
	return c.Data[off : off+c.ChunkBytes()]
}

// chunkRegion returns the sample box of chunk i and its part inside the region.
func (c *Chunked) chunkRegion(i int) (grid.Box, grid.Box) {
	canon := grid.NewBox(c.Grid.PointAt(i).Mul(c.ChunkBox), c.ChunkBox)
	return canon, canon.Intersect(c.Box)
}

// Chunk reshapes the row-major data of a super-patch.
func Chunk(super *patch.SuperPatch, chunkBox grid.Point3d, bytesPerSample int) (*Chunked, error) {
	if want := super.Volume() * bytesPerSample; len(super.Data) != want {
		return nil, fmt.Errorf("%w: super-patch %d holds %d bytes, want %d",
			errs.ErrPatchSizeMismatch, super.ID, len(super.Data), want)
	}

	c, err := NewChunked(super.ID, super.Box, chunkBox, bytesPerSample)
	if err != nil {
		return nil, err
	}

	size := c.ChunkBytes()
	for i := 0; i < c.Chunks(); i++ {
		canon, inside := c.chunkRegion(i)
		patch.CopyBox(c.Data[i*size:(i+1)*size], canon, super.Data, super.Box, inside, bytesPerSample)
	}

	return c, nil
}

// Unchunk writes the samples of a chunked region back into the row-major buffer of super.
// Padding is dropped.
func Unchunk(c *Chunked, super *patch.SuperPatch) error {
	if super.Box != c.Box {
		return fmt.Errorf("%w: chunked region %v, super-patch %v", errs.ErrInvalidBox, c.Box, super.Box)
	}
	if super.Data == nil {
		super.Allocate(c.BytesPerSample)
	}

	size := c.ChunkBytes()
	for i := 0; i < c.Chunks(); i++ {
		canon, inside := c.chunkRegion(i)
		patch.CopyBox(super.Data, super.Box, c.Data[i*size:(i+1)*size], canon, inside, c.BytesPerSample)
	}

	return nil
}
