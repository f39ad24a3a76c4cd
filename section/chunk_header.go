package section

import (
	"fmt"

	"github.com/arloliu/hzvol/errs"
	"github.com/arloliu/hzvol/grid"
)

// ChunkHeader prefixes every compressed block.
//
// Layout (big-endian): CompressedLength at byte 0, chunk dimensions x, y, z at bytes 4, 8, 12.
type ChunkHeader struct {
	CompressedLength uint32
	Dims             [3]uint32
}

// NewChunkHeader creates the header of a compressed payload of n bytes.
func NewChunkHeader(n int, chunk grid.Point3d) ChunkHeader {
	return ChunkHeader{
		CompressedLength: uint32(n), //nolint: gosec
		Dims:             [3]uint32{uint32(chunk[0]), uint32(chunk[1]), uint32(chunk[2])}, //nolint: gosec
	}
}

// ChunkDims returns the chunk dimensions as a point.
func (h ChunkHeader) ChunkDims() grid.Point3d {
	return grid.Point3d{int(h.Dims[0]), int(h.Dims[1]), int(h.Dims[2])}
}

// WriteToSlice encodes the header into the first 16 bytes of b.
func (h ChunkHeader) WriteToSlice(b []byte) {
	tableEngine.PutUint32(b[0:4], h.CompressedLength)
	tableEngine.PutUint32(b[4:8], h.Dims[0])
	tableEngine.PutUint32(b[8:12], h.Dims[1])
	tableEngine.PutUint32(b[12:16], h.Dims[2])
}

// Bytes returns the 16-byte encoding.
func (h ChunkHeader) Bytes() []byte {
	var b [ChunkHeaderSize]byte
	h.WriteToSlice(b[:])

	return b[:]
}

// ParseChunkHeader decodes the header at the start of a compressed block and checks it against
// the block length.
func ParseChunkHeader(data []byte) (ChunkHeader, error) {
	if len(data) < ChunkHeaderSize {
		return ChunkHeader{}, fmt.Errorf("%w: %d-byte frame", errs.ErrInvalidChunkHeader, len(data))
	}

	h := ChunkHeader{
		CompressedLength: tableEngine.Uint32(data[0:4]),
		Dims: [3]uint32{
			tableEngine.Uint32(data[4:8]),
			tableEngine.Uint32(data[8:12]),
			tableEngine.Uint32(data[12:16]),
		},
	}
	if int(h.CompressedLength) != len(data)-ChunkHeaderSize {
		return ChunkHeader{}, fmt.Errorf("%w: header announces %d bytes, frame holds %d",
			errs.ErrInvalidChunkHeader, h.CompressedLength, len(data)-ChunkHeaderSize)
	}
	if h.Dims[0] == 0 || h.Dims[1] == 0 || h.Dims[2] == 0 {
		return ChunkHeader{}, fmt.Errorf("%w: chunk dims %v", errs.ErrInvalidChunkHeader, h.Dims)
	}

	return h, nil
}
