package config

import (
	"fmt"
	"math"

	"github.com/arloliu/hzvol/errs"
	"github.com/arloliu/hzvol/grid"
	"github.com/arloliu/hzvol/hz"
	"github.com/arloliu/hzvol/layout"
	"github.com/arloliu/hzvol/patch"
	"github.com/arloliu/hzvol/section"
)

// Pipeline is the read-only context shared by every stage of one dataset.
//
// All geometry on the curve side is in chunk units: one HZ sample is one chunk of
// ChunkBox samples.
type Pipeline struct {
	cfg Config

	partitionSize grid.Point3d // grid units, a multiple of the restructuring box
	chunkBounds   grid.Box
	pattern       hz.BitPattern
	curve         *hz.Curve
	layout        *layout.BlockLayout
	from, to      int
}

// Derive builds the pipeline context of a validated configuration.
//
// The bit pattern is composed from the partition grid, the restructuring-box grid of one
// partition and one restructuring box, so every restructuring box is an aligned run of the curve.
func (c *Config) Derive() (*Pipeline, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	boxesPerPartition := c.Bounds.CeilDiv(c.PartitionCount).CeilDiv(c.RestructureBox)
	p := &Pipeline{
		cfg:           *c,
		partitionSize: boxesPerPartition.Pow2().Mul(c.RestructureBox),
		chunkBounds:   grid.NewBox(grid.Point3d{}, c.Bounds.CeilDiv(c.ChunkBox)),
		pattern: hz.ComposeBitPattern(c.PartitionCount, boxesPerPartition,
			c.RestructureBox.Div(c.ChunkBox)),
	}
	p.cfg.Variables = append([]patch.Variable(nil), c.Variables...)

	curve, err := hz.NewCurve(p.pattern)
	if err != nil {
		return nil, err
	}
	p.curve = curve

	if curve.MaxH()-c.BitsPerBlock > layout.MaxBlockBits {
		return nil, fmt.Errorf("%w: %d levels need more than 2^%d blocks of 2^%d samples",
			errs.ErrInvalidBitsPerBlock, curve.MaxH(), layout.MaxBlockBits, c.BitsPerBlock)
	}

	p.from, p.to = c.ResolutionFrom, c.ResolutionTo
	if p.to == 0 {
		p.to = curve.Levels()
	}
	if p.to > curve.Levels() || p.from >= p.to {
		return nil, fmt.Errorf("%w: [%d, %d) outside the %d levels of %s",
			errs.ErrInvalidResolution, p.from, p.to, curve.Levels(), p.pattern)
	}

	if size := p.MaxFileBytes(); size > math.MaxUint32 {
		return nil, fmt.Errorf("%w: files of up to %d bytes exceed 32-bit offsets",
			errs.ErrInvalidBlocksPerFile, size)
	}

	p.layout = layout.Build(p.chunkBounds, curve, c.BitsPerBlock, p.from, p.to)

	return p, nil
}

// Config returns a copy of the configuration the pipeline was derived from.
func (p *Pipeline) Config() Config { return p.cfg }

// MetadataPath returns the path of the metadata file.
func (p *Pipeline) MetadataPath() string { return p.cfg.MetadataPath() }

// TimeDir returns the directory holding the files of a time step.
func (p *Pipeline) TimeDir(step int) string { return p.cfg.TimeDir(step) }

// FilePath returns the path of a binary file of a time step.
func (p *Pipeline) FilePath(step, file int) string { return p.cfg.FilePath(step, file) }

// Variables returns the dataset variables.
func (p *Pipeline) Variables() []patch.Variable { return p.cfg.Variables }

// Variable returns variable v.
func (p *Pipeline) Variable(v int) patch.Variable { return p.cfg.Variables[v] }

// Bounds returns the global domain in samples.
func (p *Pipeline) Bounds() grid.Box { return grid.NewBox(grid.Point3d{}, p.cfg.Bounds) }

// ChunkBounds returns the global domain in chunk units.
func (p *Pipeline) ChunkBounds() grid.Box { return p.chunkBounds }

// ChunkBox returns the chunk size in samples.
func (p *Pipeline) ChunkBox() grid.Point3d { return p.cfg.ChunkBox }

// ChunkVolume returns the number of samples in one chunk.
func (p *Pipeline) ChunkVolume() int { return p.cfg.ChunkBox.Prod() }

// RestructureBox returns the restructuring box size in samples.
func (p *Pipeline) RestructureBox() grid.Point3d { return p.cfg.RestructureBox }

// Pattern returns the composed bit pattern.
func (p *Pipeline) Pattern() hz.BitPattern { return p.pattern }

// Curve returns the HZ curve over the chunk grid.
func (p *Pipeline) Curve() *hz.Curve { return p.curve }

// Layout returns the block layout of the written window.
func (p *Pipeline) Layout() *layout.BlockLayout { return p.layout }

// Window returns the written resolution window [from, to).
func (p *Pipeline) Window() (int, int) { return p.from, p.to }

// Levels returns the number of levels of the curve.
func (p *Pipeline) Levels() int { return p.curve.Levels() }

// BitsPerBlock returns log2 of the samples per block.
func (p *Pipeline) BitsPerBlock() int { return p.cfg.BitsPerBlock }

// BlocksPerFile returns the number of block slots per file.
func (p *Pipeline) BlocksPerFile() int { return p.cfg.BlocksPerFile }

// FileCount returns the number of files addressed by the curve, present or not.
func (p *Pipeline) FileCount() int { return p.layout.FileCount(p.cfg.BlocksPerFile) }

// SampleBytes returns the bytes of one HZ sample (one chunk) of variable v.
func (p *Pipeline) SampleBytes(v int) int {
	return p.ChunkVolume() * p.cfg.Variables[v].BytesPerSample()
}

// BlockBytes returns the uncompressed bytes of one block of variable v.
func (p *Pipeline) BlockBytes(v int) int {
	return p.SampleBytes(v) << p.cfg.BitsPerBlock
}

// HeaderSize returns the size of the block table at the start of every file.
func (p *Pipeline) HeaderSize() int {
	return section.HeaderSize(len(p.cfg.Variables), p.cfg.BlocksPerFile)
}

// MaxFileBytes returns the size of a file whose every block is present.
func (p *Pipeline) MaxFileBytes() int64 {
	n := int64(p.HeaderSize())
	for v := range p.cfg.Variables {
		n += int64(p.cfg.BlocksPerFile) * int64(p.BlockBytes(v))
	}

	return n
}

// PartitionSize returns the extent of one partition in samples.
func (p *Pipeline) PartitionSize() grid.Point3d { return p.partitionSize }

// PartitionBox returns the region of partition idx clipped to the domain.
func (p *Pipeline) PartitionBox(idx int) grid.Box {
	n := p.cfg.PartitionCount
	pos := grid.Point3d{idx % n[0], (idx / n[0]) % n[1], idx / (n[0] * n[1])}
	box := grid.NewBox(pos.Mul(p.partitionSize), p.partitionSize)

	return box.Intersect(p.Bounds())
}

// PartitionCount returns the number of partitions.
func (p *Pipeline) PartitionCount() int { return p.cfg.PartitionCount.Prod() }

// PartitionOf returns the partition that contains box. A box spanning partitions is an error.
func (p *Pipeline) PartitionOf(box grid.Box) (int, error) {
	if box.Empty() {
		return -1, fmt.Errorf("%w: empty box %v", errs.ErrInvalidBox, box)
	}

	lo := box.Offset.Div(p.partitionSize)
	hi := box.End().Sub(grid.Point3d{1, 1, 1}).Div(p.partitionSize)
	if lo != hi {
		return -1, fmt.Errorf("%w: box %v spans partitions %v..%v", errs.ErrInvalidPartition, box, lo, hi)
	}

	n := p.cfg.PartitionCount
	if !lo.AllLE(n.Sub(grid.Point3d{1, 1, 1})) {
		return -1, fmt.Errorf("%w: box %v outside the partition grid", errs.ErrInvalidPartition, box)
	}

	return lo[0] + n[0]*(lo[1]+n[1]*lo[2]), nil
}
