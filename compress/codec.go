// Package compress provides the block codecs of the chunking stage.
//
// A Codec turns the bytes of one chunked region into a compressed frame and back. Codecs are
// stateless values; the heavy encoder and decoder state is pooled per package, so a single
// Codec may be used from many goroutines at once.
//
// Available codecs:
//   - None: returns its input unchanged
//   - Zstd: best ratio; pure Go by default, cgo-backed gozstd with the "gozstd" build tag
//   - S2: fast Snappy-compatible compression
//   - LZ4: fastest decompression
package compress

import (
	"errors"
	"fmt"

	"github.com/arloliu/hzvol/errs"
	"github.com/arloliu/hzvol/format"
)

// ErrIncompressible is returned by codecs that refuse input they cannot shrink. Callers store
// such data uncompressed.
var ErrIncompressible = errors.New("compress: input is incompressible")

// DefaultLevel selects each codec's default speed/ratio trade-off.
const DefaultLevel = 0

// Compressor compresses one region.
//
// The returned slice is owned by the caller; the input is not modified.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
}

// Decompressor reverses a Compressor of the same algorithm.
//
// Decompress fails when the input is corrupted or was produced by another algorithm.
type Decompressor interface {
	Decompress(data []byte) ([]byte, error)
}

// Codec combines both directions.
type Codec interface {
	Compressor
	Decompressor
	Type() format.CompressionType
}

// Stats describes one compression operation. The write pipeline logs these per file.
type Stats struct {
	Algorithm      format.CompressionType
	OriginalSize   int64
	CompressedSize int64
}

// Add accumulates another operation into s.
func (s *Stats) Add(original, compressed int) {
	s.OriginalSize += int64(original)
	s.CompressedSize += int64(compressed)
}

// Ratio returns compressed size / original size, or 0 when nothing was compressed.
func (s Stats) Ratio() float64 {
	if s.OriginalSize == 0 {
		return 0.0
	}

	return float64(s.CompressedSize) / float64(s.OriginalSize)
}

// SpaceSavings returns the saved space as a percentage.
func (s Stats) SpaceSavings() float64 {
	if s.OriginalSize == 0 {
		return 0.0
	}

	return (1.0 - s.Ratio()) * 100.0
}

// New creates a codec for a compression type and level.
//
// Parameters:
//   - typ: compression algorithm
//   - level: algorithm-specific level, DefaultLevel for the default
//
// Returns:
//   - Codec: codec instance
//   - error: ErrInvalidCompression for unknown types or out-of-range levels
func New(typ format.CompressionType, level int) (Codec, error) {
	switch typ {
	case format.CompressionNone:
		return NewNoOpCompressor(), nil
	case format.CompressionZstd:
		if level < DefaultLevel || level > 22 {
			return nil, fmt.Errorf("%w: zstd level %d", errs.ErrInvalidCompression, level)
		}

		return NewZstdCompressor(level), nil
	case format.CompressionS2:
		if level < DefaultLevel || level > 3 {
			return nil, fmt.Errorf("%w: s2 level %d", errs.ErrInvalidCompression, level)
		}

		return NewS2Compressor(level), nil
	case format.CompressionLZ4:
		if level < DefaultLevel || level > 9 {
			return nil, fmt.Errorf("%w: lz4 level %d", errs.ErrInvalidCompression, level)
		}

		return NewLZ4Compressor(level), nil
	default:
		return nil, fmt.Errorf("%w: %s", errs.ErrInvalidCompression, typ)
	}
}

var builtinCodecs = map[format.CompressionType]Codec{
	format.CompressionNone: NewNoOpCompressor(),
	format.CompressionZstd: NewZstdCompressor(DefaultLevel),
	format.CompressionS2:   NewS2Compressor(DefaultLevel),
	format.CompressionLZ4:  NewLZ4Compressor(DefaultLevel),
}

// Get returns the default-level codec of a compression type. Decompression never depends on the
// level, so readers use Get.
func Get(typ format.CompressionType) (Codec, error) {
	if codec, ok := builtinCodecs[typ]; ok {
		return codec, nil
	}

	return nil, fmt.Errorf("%w: %s", errs.ErrInvalidCompression, typ)
}
