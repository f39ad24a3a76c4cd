// Package config holds the dataset parameters and the immutable pipeline context derived from
// them.
//
// A Config is what the application chooses: bounds, variables, block geometry, chunking and
// restructuring boxes, resolution window, output byte order, compression and aggregation
// strategy. Derive turns a validated Config into a Pipeline, the read-only context every stage
// receives: the composed bit pattern, the HZ curve, the block layout and the partition geometry.
package config

import (
	"fmt"
	"path/filepath"

	"github.com/arloliu/hzvol/compress"
	"github.com/arloliu/hzvol/errs"
	"github.com/arloliu/hzvol/format"
	"github.com/arloliu/hzvol/grid"
	"github.com/arloliu/hzvol/internal/options"
	"github.com/arloliu/hzvol/patch"
)

// Defaults applied by New.
const (
	DefaultBitsPerBlock  = 15
	DefaultBlocksPerFile = 256
	DefaultPipeLength    = 1

	// defaultRestructureEdge caps the default restructuring box edge.
	defaultRestructureEdge = 64

	// MetadataFile is the name of the dataset metadata file inside the dataset directory.
	MetadataFile = "dataset.toml"
)

// Config describes a dataset. The global domain always starts at the origin.
type Config struct {
	Dir              string
	Bounds           grid.Point3d
	Variables        []patch.Variable
	BitsPerBlock     int
	BlocksPerFile    int
	ChunkBox         grid.Point3d
	RestructureBox   grid.Point3d
	PartitionCount   grid.Point3d
	ResolutionFrom   int
	ResolutionTo     int // 0 selects every level
	Endianness       format.ByteOrder
	Compression      format.CompressionType
	CompressionLevel int
	AggregationMode  format.AggregationMode
	PipeLength       int
	AggregatorStride int // 0 derives the stride from the group size
}

// Option configures a Config.
type Option = options.Option[*Config]

// New creates a validated configuration.
//
// Parameters:
//   - dir: dataset directory
//   - bounds: global domain size in samples
//   - vars: the variables stored in the dataset
//   - opts: functional options overriding the defaults
//
// Returns:
//   - *Config: the validated configuration
//   - error: an errs.KindConfig error describing the first invalid parameter
func New(dir string, bounds grid.Point3d, vars []patch.Variable, opts ...Option) (*Config, error) {
	c := &Config{
		Dir:             dir,
		Bounds:          bounds,
		Variables:       vars,
		BitsPerBlock:    DefaultBitsPerBlock,
		BlocksPerFile:   DefaultBlocksPerFile,
		ChunkBox:        grid.Point3d{1, 1, 1},
		PartitionCount:  grid.Point3d{1, 1, 1},
		Endianness:      format.LittleEndian,
		Compression:     format.CompressionNone,
		AggregationMode: format.AggregationP2P,
		PipeLength:      DefaultPipeLength,
	}

	opts = append(opts[:len(opts):len(opts)], options.NoError(func(c *Config) {
		if c.RestructureBox == (grid.Point3d{}) {
			c.RestructureBox = c.defaultRestructureBox()
		}
	}))
	if err := options.ApplyAndValidate(c, opts...); err != nil {
		return nil, err
	}

	return c, nil
}

// defaultRestructureBox covers one partition with power-of-two boxes of at most 64 samples per
// edge, never smaller than a chunk.
func (c *Config) defaultRestructureBox() grid.Point3d {
	if !c.Bounds.Positive() || !c.PartitionCount.Positive() {
		return grid.Point3d{}
	}

	part := c.Bounds.CeilDiv(c.PartitionCount).Pow2()
	var box grid.Point3d
	for d := 0; d < grid.NumDims; d++ {
		box[d] = max(min(part[d], defaultRestructureEdge), c.ChunkBox[d])
	}

	return box
}

// WithBitsPerBlock sets log2 of the samples per block.
func WithBitsPerBlock(bits int) Option {
	return options.NoError(func(c *Config) { c.BitsPerBlock = bits })
}

// WithBlocksPerFile sets the number of block slots per file.
func WithBlocksPerFile(n int) Option {
	return options.NoError(func(c *Config) { c.BlocksPerFile = n })
}

// WithChunkBox sets the chunk box; every axis must be a power of two.
func WithChunkBox(box grid.Point3d) Option {
	return options.NoError(func(c *Config) { c.ChunkBox = box })
}

// WithRestructureBox sets the restructuring box; every axis must be a power of two and at least
// the chunk box.
func WithRestructureBox(box grid.Point3d) Option {
	return options.NoError(func(c *Config) { c.RestructureBox = box })
}

// WithPartitionCount splits the domain into a grid of spatial partitions.
func WithPartitionCount(n grid.Point3d) Option {
	return options.NoError(func(c *Config) { c.PartitionCount = n })
}

// WithResolution restricts writes to the levels [from, to). to == 0 selects every level.
func WithResolution(from, to int) Option {
	return options.NoError(func(c *Config) {
		c.ResolutionFrom = from
		c.ResolutionTo = to
	})
}

// WithEndianness sets the byte order of the files.
func WithEndianness(order format.ByteOrder) Option {
	return options.New(func(c *Config) error {
		if order != format.LittleEndian && order != format.BigEndian {
			return fmt.Errorf("%w: byte order %d", errs.ErrInvalidMetadata, order)
		}
		c.Endianness = order

		return nil
	})
}

// WithCompression enables block compression with a codec and level.
func WithCompression(typ format.CompressionType, level int) Option {
	return options.New(func(c *Config) error {
		if _, err := compress.New(typ, level); err != nil {
			return err
		}
		c.Compression = typ
		c.CompressionLevel = level

		return nil
	})
}

// WithAggregationMode selects point-to-point or one-sided aggregation.
func WithAggregationMode(mode format.AggregationMode) Option {
	return options.NoError(func(c *Config) { c.AggregationMode = mode })
}

// WithPipeLength sets how many variables are exchanged concurrently during restructuring.
func WithPipeLength(n int) Option {
	return options.NoError(func(c *Config) { c.PipeLength = n })
}

// WithAggregatorStride fixes the distance between aggregator ranks.
func WithAggregatorStride(stride int) Option {
	return options.NoError(func(c *Config) { c.AggregatorStride = stride })
}

// Validate checks every parameter that does not depend on the derived curve.
func (c *Config) Validate() error {
	if !c.Bounds.Positive() {
		return fmt.Errorf("%w: bounds %v", errs.ErrInvalidBox, c.Bounds)
	}
	if len(c.Variables) == 0 {
		return errs.ErrNoVariables
	}

	names := make(map[string]struct{}, len(c.Variables))
	for _, v := range c.Variables {
		if err := v.Validate(); err != nil {
			return err
		}
		if _, dup := names[v.Name]; dup {
			return fmt.Errorf("%w: duplicate name %q", errs.ErrInvalidVariable, v.Name)
		}
		names[v.Name] = struct{}{}
	}

	if c.BitsPerBlock < 1 || c.BitsPerBlock > 30 {
		return fmt.Errorf("%w: %d", errs.ErrInvalidBitsPerBlock, c.BitsPerBlock)
	}
	if !grid.IsPow2(c.BlocksPerFile) {
		return fmt.Errorf("%w: %d is not a power of two", errs.ErrInvalidBlocksPerFile, c.BlocksPerFile)
	}

	if !c.PartitionCount.Positive() {
		return fmt.Errorf("%w: partition count %v", errs.ErrInvalidPartition, c.PartitionCount)
	}
	if !c.PartitionCount.AllLE(c.Bounds) {
		return fmt.Errorf("%w: %v partitions for bounds %v", errs.ErrInvalidPartition, c.PartitionCount, c.Bounds)
	}

	for d := 0; d < grid.NumDims; d++ {
		if !grid.IsPow2(c.ChunkBox[d]) {
			return fmt.Errorf("%w: %v", errs.ErrInvalidChunkBox, c.ChunkBox)
		}
		if !grid.IsPow2(c.RestructureBox[d]) || c.RestructureBox[d] < c.ChunkBox[d] {
			return fmt.Errorf("%w: %v with chunk box %v", errs.ErrInvalidRestructureBox, c.RestructureBox, c.ChunkBox)
		}
	}

	if c.ResolutionFrom < 0 || c.ResolutionTo < 0 || (c.ResolutionTo != 0 && c.ResolutionTo <= c.ResolutionFrom) {
		return fmt.Errorf("%w: [%d, %d)", errs.ErrInvalidResolution, c.ResolutionFrom, c.ResolutionTo)
	}
	if _, err := compress.New(c.Compression, c.CompressionLevel); err != nil {
		return err
	}
	if c.Endianness != format.LittleEndian && c.Endianness != format.BigEndian {
		return fmt.Errorf("%w: byte order %d", errs.ErrInvalidMetadata, c.Endianness)
	}
	if c.AggregationMode != format.AggregationP2P && c.AggregationMode != format.AggregationOneSided {
		return fmt.Errorf("%w: aggregation mode %d", errs.ErrInvalidMetadata, c.AggregationMode)
	}
	if c.PipeLength < 1 {
		return fmt.Errorf("%w: pipe length %d", errs.ErrInvalidMetadata, c.PipeLength)
	}
	if c.AggregatorStride < 0 {
		return fmt.Errorf("%w: aggregator stride %d", errs.ErrInvalidMetadata, c.AggregatorStride)
	}

	return nil
}

// VariableIndex returns the index of a named variable.
func (c *Config) VariableIndex(name string) (int, error) {
	for i, v := range c.Variables {
		if v.Name == name {
			return i, nil
		}
	}

	return -1, fmt.Errorf("%w: no variable %q", errs.ErrInvalidVariable, name)
}

// MetadataPath returns the path of the metadata file.
func (c *Config) MetadataPath() string {
	return filepath.Join(c.Dir, MetadataFile)
}

// TimeDir returns the directory holding the files of a time step.
func (c *Config) TimeDir(step int) string {
	return filepath.Join(c.Dir, fmt.Sprintf("time%06d", step))
}

// FilePath returns the path of a binary file of a time step.
func (c *Config) FilePath(step, file int) string {
	return filepath.Join(c.TimeDir(step), fmt.Sprintf("%05d.bin", file))
}
