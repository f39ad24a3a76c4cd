package compress

import "github.com/arloliu/hzvol/format"

// ZstdCompressor compresses with Zstandard at a zstd level (1-22, 0 for the default of 3).
//
// The pure-Go implementation maps the level onto the nearest klauspost encoder speed. Builds
// with cgo and the "gozstd" tag use the reference C library at the exact level.
type ZstdCompressor struct {
	level int
}

var _ Codec = (*ZstdCompressor)(nil)

// NewZstdCompressor creates a Zstandard codec.
func NewZstdCompressor(level int) ZstdCompressor {
	if level == DefaultLevel {
		level = 3
	}

	return ZstdCompressor{level: level}
}

// Type returns CompressionZstd.
func (c ZstdCompressor) Type() format.CompressionType { return format.CompressionZstd }

// Level returns the zstd level in use.
func (c ZstdCompressor) Level() int { return c.level }
