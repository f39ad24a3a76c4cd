// Package fileio writes the aggregated block buffers into the binary files of a time step and
// reads them back.
//
// A file starts with a block table of variables x blocksPerFile big-endian entries, followed by
// one region per variable. The region of a variable reserves presentBlocks x blockBytes bytes and
// block k of the file is stored at its slot, the number of present blocks that precede it.
// Every block except block 0 may be stored as a compressed frame; a frame always fits its slot
// and an entry whose length equals the block size marks a raw block.
//
// Aggregators write disjoint byte ranges, so the ranks of a group never coordinate on a file.
package fileio

import (
	"runtime"

	"github.com/arloliu/hzvol/config"
	"github.com/arloliu/hzvol/internal/options"
	"github.com/arloliu/hzvol/logging"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// VariableRegion returns the byte offset of the region of variable v inside a file.
func VariableRegion(p *config.Pipeline, file, v int) int64 {
	present := int64(p.Layout().PresentBlocksInFile(p.BlocksPerFile(), file))
	off := int64(p.HeaderSize())
	for i := 0; i < v; i++ {
		off += present * int64(p.BlockBytes(i))
	}

	return off
}

// BlockOffset returns the byte offset of the block at slot of variable v inside a file.
func BlockOffset(p *config.Pipeline, file, v, slot int) int64 {
	return VariableRegion(p, file, v) + int64(slot)*int64(p.BlockBytes(v))
}

type settings struct {
	logger      logging.Logger
	concurrency int
}

func defaultSettings() *settings {
	return &settings{
		logger:      logging.Default(),
		concurrency: runtime.GOMAXPROCS(0),
	}
}

// Option configures a Writer or a Reader.
type Option = options.Option[*settings]

// WithLogger sets the logger used for per-file progress lines.
func WithLogger(l logging.Logger) Option {
	return options.NoError(func(s *settings) {
		if l != nil {
			s.logger = l
		}
	})
}

// WithConcurrency bounds the number of files written or read at the same time.
func WithConcurrency(n int) Option {
	return options.NoError(func(s *settings) {
		if n > 0 {
			s.concurrency = n
		}
	})
}
