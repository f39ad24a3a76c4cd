package section

import (
	"fmt"

	"github.com/arloliu/hzvol/endian"
	"github.com/arloliu/hzvol/errs"
)

var tableEngine = endian.GetBigEndianEngine()

// BlockEntry locates one block inside a file.
//
// Layout: Offset at byte 0 (4 bytes), Length at byte 4 (4 bytes), both big-endian.
type BlockEntry struct {
	Offset uint32
	Length uint32
}

// Present reports whether the block was written.
func (e BlockEntry) Present() bool {
	return e.Length != 0
}

// End returns the offset just past the block.
func (e BlockEntry) End() int64 {
	return int64(e.Offset) + int64(e.Length)
}

// Bytes returns the 8-byte encoding of the entry.
func (e BlockEntry) Bytes() []byte {
	var b [BlockEntrySize]byte
	e.WriteToSlice(b[:])

	return b[:]
}

// WriteToSlice encodes the entry into the first 8 bytes of b.
func (e BlockEntry) WriteToSlice(b []byte) {
	tableEngine.PutUint32(b[0:4], e.Offset)
	tableEngine.PutUint32(b[4:8], e.Length)
}

// ParseBlockEntry decodes an entry from exactly 8 bytes.
func ParseBlockEntry(data []byte) (BlockEntry, error) {
	if len(data) != BlockEntrySize {
		return BlockEntry{}, fmt.Errorf("%w: block entry of %d bytes", errs.ErrInvalidBlockEntry, len(data))
	}

	return BlockEntry{
		Offset: tableEngine.Uint32(data[0:4]),
		Length: tableEngine.Uint32(data[4:8]),
	}, nil
}
