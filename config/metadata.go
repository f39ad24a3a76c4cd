package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"

	"github.com/arloliu/hzvol/errs"
	"github.com/arloliu/hzvol/format"
	"github.com/arloliu/hzvol/grid"
	"github.com/arloliu/hzvol/hz"
	"github.com/arloliu/hzvol/internal/hash"
	"github.com/arloliu/hzvol/patch"
)

// Metadata is the self-describing part of a dataset, persisted as TOML next to the binary files.
type Metadata struct {
	Version          int                `toml:"version"`
	Bounds           [3]int             `toml:"bounds"`
	BitsPerBlock     int                `toml:"bits_per_block"`
	BlocksPerFile    int                `toml:"blocks_per_file"`
	ChunkBox         [3]int             `toml:"chunk_box"`
	RestructureBox   [3]int             `toml:"restructure_box"`
	PartitionCount   [3]int             `toml:"partition_count"`
	ResolutionFrom   int                `toml:"resolution_from"`
	ResolutionTo     int                `toml:"resolution_to"`
	Endianness       string             `toml:"endianness"`
	Compression      string             `toml:"compression"`
	CompressionLevel int                `toml:"compression_level"`
	BitPattern       string             `toml:"bit_pattern"`
	FileCount        int                `toml:"file_count"`
	TimeSteps        []int              `toml:"time_steps"`
	Variables        []VariableMetadata `toml:"variables"`
}

// VariableMetadata describes one variable.
type VariableMetadata struct {
	Name string `toml:"name"`
	Type string `toml:"type"` // e.g. "3*float32"
}

// metadataFile is the on-disk document: the checksum covers the encoded dataset table.
type metadataFile struct {
	Checksum string    `toml:"checksum"`
	Dataset  *Metadata `toml:"dataset"`
}

// MetadataVersion is the version written by this package.
const MetadataVersion = 1

// Metadata describes the pipeline for persistence.
func (p *Pipeline) Metadata(timeSteps []int) *Metadata {
	c := p.cfg
	m := &Metadata{
		Version:          MetadataVersion,
		Bounds:           c.Bounds,
		BitsPerBlock:     c.BitsPerBlock,
		BlocksPerFile:    c.BlocksPerFile,
		ChunkBox:         c.ChunkBox,
		RestructureBox:   c.RestructureBox,
		PartitionCount:   c.PartitionCount,
		ResolutionFrom:   p.from,
		ResolutionTo:     p.to,
		Endianness:       c.Endianness.String(),
		Compression:      c.Compression.String(),
		CompressionLevel: c.CompressionLevel,
		BitPattern:       string(p.pattern),
		FileCount:        p.FileCount(),
		TimeSteps:        timeSteps,
	}
	for _, v := range c.Variables {
		m.Variables = append(m.Variables, VariableMetadata{Name: v.Name, Type: v.TypeString()})
	}

	return m
}

// Config rebuilds a configuration rooted at dir. opts set the runtime parameters that are not
// persisted, such as the aggregation mode.
func (m *Metadata) Config(dir string, opts ...Option) (*Config, error) {
	if m.Version != MetadataVersion {
		return nil, fmt.Errorf("%w: version %d", errs.ErrInvalidMetadata, m.Version)
	}

	order, err := format.ParseByteOrder(m.Endianness)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrInvalidMetadata, err)
	}
	compression, err := format.ParseCompressionType(m.Compression)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrInvalidMetadata, err)
	}

	vars := make([]patch.Variable, 0, len(m.Variables))
	for _, vm := range m.Variables {
		n, typ, err := format.ParseTypeString(vm.Type)
		if err != nil {
			return nil, fmt.Errorf("%w: variable %q: %w", errs.ErrInvalidMetadata, vm.Name, err)
		}
		vars = append(vars, patch.NewVariable(vm.Name, n, typ))
	}

	stored := []Option{
		WithBitsPerBlock(m.BitsPerBlock),
		WithBlocksPerFile(m.BlocksPerFile),
		WithChunkBox(m.ChunkBox),
		WithRestructureBox(m.RestructureBox),
		WithPartitionCount(m.PartitionCount),
		WithResolution(m.ResolutionFrom, m.ResolutionTo),
		WithEndianness(order),
		WithCompression(compression, m.CompressionLevel),
	}

	return New(dir, grid.Point3d(m.Bounds), vars, append(stored, opts...)...)
}

func checksum(m *Metadata) (string, error) {
	if m.TimeSteps == nil {
		m.TimeSteps = []int{}
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(m); err != nil {
		return "", fmt.Errorf("%w: %w", errs.ErrInvalidMetadata, err)
	}

	return strconv.FormatUint(hash.Checksum(buf.Bytes()), 16), nil
}

// SaveMetadata writes the metadata file atomically.
func SaveMetadata(path string, m *Metadata) error {
	sum, err := checksum(m)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(metadataFile{Checksum: sum, Dataset: m}); err != nil {
		return fmt.Errorf("%w: %w", errs.ErrInvalidMetadata, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%w: %w", errs.ErrOpenFailed, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil { //nolint: gosec
		return fmt.Errorf("%w: %w", errs.ErrWriteFailed, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("%w: %w", errs.ErrWriteFailed, err)
	}

	return nil
}

// ReadMetadata returns the raw contents of the metadata file of the dataset in dir.
func ReadMetadata(dir string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(dir, MetadataFile))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrOpenFailed, err)
	}

	return data, nil
}

// DecodeMetadata parses the contents of a metadata file and verifies its checksum.
func DecodeMetadata(data []byte) (*Metadata, error) {
	var f metadataFile
	if _, err := toml.Decode(string(data), &f); err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrInvalidMetadata, err)
	}
	if f.Dataset == nil {
		return nil, fmt.Errorf("%w: missing [dataset] table", errs.ErrInvalidMetadata)
	}

	sum, err := checksum(f.Dataset)
	if err != nil {
		return nil, err
	}
	if sum != f.Checksum {
		return nil, fmt.Errorf("%w: stored %s, computed %s", errs.ErrChecksumMismatch, f.Checksum, sum)
	}

	return f.Dataset, nil
}

// Pipeline derives the pipeline of the dataset in dir that m describes.
//
// The stored bit pattern must match the one derived from the stored parameters.
func (m *Metadata) Pipeline(dir string, opts ...Option) (*Pipeline, error) {
	cfg, err := m.Config(dir, opts...)
	if err != nil {
		return nil, err
	}
	p, err := cfg.Derive()
	if err != nil {
		return nil, err
	}
	if p.pattern != hz.BitPattern(m.BitPattern) {
		return nil, fmt.Errorf("%w: stored pattern %s, derived %s", errs.ErrInvalidMetadata, m.BitPattern, p.pattern)
	}

	return p, nil
}
