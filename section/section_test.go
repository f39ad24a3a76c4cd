package section

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/hzvol/errs"
	"github.com/arloliu/hzvol/grid"
)

func TestBlockEntry(t *testing.T) {
	e := BlockEntry{Offset: 0x01020304, Length: 0x0a0b0c0d}
	b := e.Bytes()
	require.Equal(t, []byte{1, 2, 3, 4, 0x0a, 0x0b, 0x0c, 0x0d}, b, "entries are big-endian")

	got, err := ParseBlockEntry(b)
	require.NoError(t, err)
	require.Equal(t, e, got)
	require.True(t, got.Present())
	require.Equal(t, int64(0x01020304+0x0a0b0c0d), got.End())

	require.False(t, BlockEntry{Offset: 99}.Present())

	_, err = ParseBlockEntry(b[:7])
	require.ErrorIs(t, err, errs.ErrInvalidBlockEntry)
}

func TestHeader_RoundTrip(t *testing.T) {
	h := NewHeader(2, 4)
	require.Equal(t, 64, h.Size())
	require.Equal(t, 64, HeaderSize(2, 4))

	h.SetEntry(0, 1, BlockEntry{Offset: 64, Length: 16})
	h.SetEntry(1, 3, BlockEntry{Offset: 80, Length: 32})
	require.Equal(t, 7, h.EntryIndex(1, 3))
	require.Equal(t, 56, h.EntryOffset(1, 3))

	parsed, err := ParseHeader(h.Bytes(), 2, 4, 112)
	require.NoError(t, err)
	require.Equal(t, h.Entries, parsed.Entries)
	require.Equal(t, 1, parsed.PresentCount(0))
	require.Equal(t, 1, parsed.PresentCount(1))
	require.False(t, parsed.Entry(0, 0).Present())
}

func TestHeader_ParseErrors(t *testing.T) {
	h := NewHeader(1, 2)

	_, err := ParseHeader(make([]byte, 15), 1, 2, -1)
	require.ErrorIs(t, err, errs.ErrInvalidHeaderSize)
	require.Equal(t, errs.KindFormat, errs.KindOf(err))

	h.SetEntry(0, 0, BlockEntry{Offset: 8, Length: 4})
	_, err = ParseHeader(h.Bytes(), 1, 2, -1)
	require.ErrorIs(t, err, errs.ErrOffsetOutOfRange, "offset inside the table")

	h.SetEntry(0, 0, BlockEntry{Offset: 16, Length: 100})
	_, err = ParseHeader(h.Bytes(), 1, 2, 50)
	require.ErrorIs(t, err, errs.ErrOffsetOutOfRange, "entry past the end of file")

	_, err = ParseHeader(h.Bytes(), 1, 2, -1)
	require.NoError(t, err)
}

func TestChunkHeader(t *testing.T) {
	payload := []byte{9, 8, 7}
	h := NewChunkHeader(len(payload), grid.Point3d{4, 2, 1})
	frame := append(h.Bytes(), payload...)

	got, err := ParseChunkHeader(frame)
	require.NoError(t, err)
	require.Equal(t, h, got)
	require.Equal(t, grid.Point3d{4, 2, 1}, got.ChunkDims())

	_, err = ParseChunkHeader(frame[:10])
	require.ErrorIs(t, err, errs.ErrInvalidChunkHeader)

	_, err = ParseChunkHeader(frame[:ChunkHeaderSize+2])
	require.ErrorIs(t, err, errs.ErrInvalidChunkHeader, "length mismatch")

	zero := NewChunkHeader(0, grid.Point3d{0, 1, 1}).Bytes()
	_, err = ParseChunkHeader(zero)
	require.ErrorIs(t, err, errs.ErrInvalidChunkHeader, "zero dims")
}
