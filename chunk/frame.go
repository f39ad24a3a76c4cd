package chunk

import (
	"errors"
	"fmt"

	"github.com/arloliu/hzvol/compress"
	"github.com/arloliu/hzvol/errs"
	"github.com/arloliu/hzvol/grid"
	"github.com/arloliu/hzvol/section"
)

// Compress compresses buf and prefixes the result with a chunk header.
//
// It returns nil, without error, when the frame would not be smaller than buf; the caller then
// stores buf raw.
func Compress(codec compress.Codec, buf []byte, chunkBox grid.Point3d) ([]byte, error) {
	body, err := codec.Compress(buf)
	if errors.Is(err, compress.ErrIncompressible) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if section.ChunkHeaderSize+len(body) >= len(buf) {
		return nil, nil
	}

	frame := make([]byte, section.ChunkHeaderSize+len(body))
	section.NewChunkHeader(len(body), chunkBox).WriteToSlice(frame)
	copy(frame[section.ChunkHeaderSize:], body)

	return frame, nil
}

// Decompress validates the chunk header of frame and returns the decompressed bytes, which must
// be exactly size bytes long.
func Decompress(codec compress.Codec, frame []byte, chunkBox grid.Point3d, size int) ([]byte, error) {
	h, err := section.ParseChunkHeader(frame)
	if err != nil {
		return nil, err
	}
	if h.ChunkDims() != chunkBox {
		return nil, fmt.Errorf("%w: frame of chunk %v, dataset uses %v", errs.ErrInvalidChunkHeader, h.ChunkDims(), chunkBox)
	}

	out, err := codec.Decompress(frame[section.ChunkHeaderSize:])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrInvalidChunkHeader, err)
	}
	if len(out) != size {
		return nil, fmt.Errorf("%w: frame expands to %d bytes, want %d", errs.ErrInvalidChunkHeader, len(out), size)
	}

	return out, nil
}
