package compress

import (
	"github.com/klauspost/compress/s2"

	"github.com/arloliu/hzvol/format"
)

// S2Compressor compresses with S2. Levels 0 and 1 use the default encoder, 2 the "better"
// encoder and 3 the "best" encoder.
type S2Compressor struct {
	level int
}

var _ Codec = (*S2Compressor)(nil)

// NewS2Compressor creates an S2 codec.
func NewS2Compressor(level int) S2Compressor {
	return S2Compressor{level: level}
}

// Type returns CompressionS2.
func (c S2Compressor) Type() format.CompressionType { return format.CompressionS2 }

// Compress compresses data.
func (c S2Compressor) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	switch {
	case c.level >= 3:
		return s2.EncodeBest(nil, data), nil
	case c.level == 2:
		return s2.EncodeBetter(nil, data), nil
	default:
		return s2.Encode(nil, data), nil
	}
}

// Decompress decompresses data produced by any S2 level.
func (c S2Compressor) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	return s2.Decode(nil, data)
}
