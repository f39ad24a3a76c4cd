package chunk

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/hzvol/compress"
	"github.com/arloliu/hzvol/errs"
	"github.com/arloliu/hzvol/format"
	"github.com/arloliu/hzvol/grid"
	"github.com/arloliu/hzvol/patch"
)

func newSuper(box grid.Box, bps int) *patch.SuperPatch {
	s := &patch.SuperPatch{ID: 7, Box: box, Canonical: box}
	s.Allocate(bps)
	for i := range s.Data {
		s.Data[i] = byte(i%251 + 1)
	}

	return s
}

func TestChunk_Layout(t *testing.T) {
	box := grid.NewBox(grid.Point3d{4, 0, 0}, grid.Point3d{4, 2, 1})
	super := newSuper(box, 1)

	c, err := Chunk(super, grid.Point3d{2, 2, 1}, 1)
	require.NoError(t, err)
	require.Equal(t, grid.NewBox(grid.Point3d{2, 0, 0}, grid.Point3d{2, 1, 1}), c.Grid)
	require.Equal(t, 2, c.Chunks())
	require.Equal(t, 4, c.ChunkBytes())

	// rows of 4: [1 2 3 4] [5 6 7 8]
	require.Equal(t, []byte{1, 2, 5, 6}, c.ChunkAt(grid.Point3d{2, 0, 0}))
	require.Equal(t, []byte{3, 4, 7, 8}, c.ChunkAt(grid.Point3d{3, 0, 0}))
}

func TestChunk_BoundaryPadding(t *testing.T) {
	box := grid.NewBox(grid.Point3d{}, grid.Point3d{3, 3, 1})
	super := newSuper(box, 2)

	c, err := Chunk(super, grid.Point3d{2, 2, 1}, 2)
	require.NoError(t, err)
	require.Equal(t, grid.Point3d{2, 2, 1}, c.Grid.Size)
	require.Len(t, c.Data, 4*4*2)

	// the last chunk holds one real sample, (2,2), followed by zero padding
	last := c.ChunkAt(grid.Point3d{1, 1, 0})
	off := super.Box.LinearOffset(grid.Point3d{2, 2, 0}) * 2
	require.Equal(t, super.Data[off:off+2], last[:2])
	require.Equal(t, make([]byte, 6), last[2:])
}

func TestChunk_RoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		box   grid.Box
		chunk grid.Point3d
	}{
		{"unit chunk", grid.NewBox(grid.Point3d{8, 8, 0}, grid.Point3d{8, 8, 8}), grid.Point3d{1, 1, 1}},
		{"cubic", grid.NewBox(grid.Point3d{8, 8, 0}, grid.Point3d{8, 8, 8}), grid.Point3d{4, 4, 4}},
		{"clipped", grid.NewBox(grid.Point3d{16, 0, 0}, grid.Point3d{5, 7, 3}), grid.Point3d{4, 2, 2}},
		{"chunk larger than region", grid.NewBox(grid.Point3d{}, grid.Point3d{3, 1, 1}), grid.Point3d{8, 8, 8}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			super := newSuper(tt.box, 3)
			c, err := Chunk(super, tt.chunk, 3)
			require.NoError(t, err)
			require.Len(t, c.Data, c.Chunks()*tt.chunk.Prod()*3)

			back := &patch.SuperPatch{ID: super.ID, Box: super.Box}
			require.NoError(t, Unchunk(c, back))
			require.Equal(t, super.Data, back.Data)
		})
	}
}

func TestChunk_Errors(t *testing.T) {
	super := newSuper(grid.NewBox(grid.Point3d{1, 0, 0}, grid.Point3d{4, 4, 4}), 1)
	_, err := Chunk(super, grid.Point3d{2, 2, 2}, 1)
	require.ErrorIs(t, err, errs.ErrInvalidChunkBox)

	super = newSuper(grid.NewBox(grid.Point3d{}, grid.Point3d{4, 4, 4}), 1)
	_, err = Chunk(super, grid.Point3d{2, 2, 2}, 2)
	require.ErrorIs(t, err, errs.ErrPatchSizeMismatch)

	c, err := NewChunked(0, grid.NewBox(grid.Point3d{}, grid.Point3d{2, 2, 2}), grid.Point3d{2, 2, 2}, 1)
	require.NoError(t, err)
	require.ErrorIs(t, Unchunk(c, super), errs.ErrInvalidBox)
}

func TestFrame_RoundTrip(t *testing.T) {
	chunkBox := grid.Point3d{4, 4, 4}
	buf := bytes.Repeat([]byte{1, 2, 3, 4, 0, 0, 0, 0}, 512)

	for _, typ := range []format.CompressionType{format.CompressionZstd, format.CompressionS2, format.CompressionLZ4} {
		t.Run(typ.String(), func(t *testing.T) {
			codec, err := compress.Get(typ)
			require.NoError(t, err)

			frame, err := Compress(codec, buf, chunkBox)
			require.NoError(t, err)
			require.NotNil(t, frame)
			require.Less(t, len(frame), len(buf))

			out, err := Decompress(codec, frame, chunkBox, len(buf))
			require.NoError(t, err)
			require.Equal(t, buf, out)

			_, err = Decompress(codec, frame, grid.Point3d{2, 2, 2}, len(buf))
			require.ErrorIs(t, err, errs.ErrInvalidChunkHeader)
			_, err = Decompress(codec, frame, chunkBox, len(buf)-1)
			require.ErrorIs(t, err, errs.ErrInvalidChunkHeader)
			_, err = Decompress(codec, frame[:len(frame)-1], chunkBox, len(buf))
			require.ErrorIs(t, err, errs.ErrInvalidChunkHeader)
		})
	}
}

func TestFrame_NotSmaller(t *testing.T) {
	codec, err := compress.Get(format.CompressionNone)
	require.NoError(t, err)

	frame, err := Compress(codec, make([]byte, 64), grid.Point3d{1, 1, 1})
	require.NoError(t, err)
	require.Nil(t, frame)
}
