// Package patch defines the data model moved through the write and read pipelines: variables,
// the application's process-local patches and the power-of-two aligned super-patches they are
// redistributed into.
package patch

import (
	"fmt"

	"github.com/arloliu/hzvol/errs"
	"github.com/arloliu/hzvol/format"
	"github.com/arloliu/hzvol/grid"
)

// Variable is a named field over the grid.
type Variable struct {
	Name            string
	ValuesPerSample int
	BitsPerValue    int
	Type            format.DataType
}

// NewVariable creates a variable whose value width is taken from its data type.
func NewVariable(name string, valuesPerSample int, typ format.DataType) Variable {
	return Variable{
		Name:            name,
		ValuesPerSample: valuesPerSample,
		BitsPerValue:    typ.Bits(),
		Type:            typ,
	}
}

// BytesPerValue returns the width of one value in bytes.
func (v Variable) BytesPerValue() int {
	return v.BitsPerValue / 8
}

// BytesPerSample returns the width of one sample (all of its values) in bytes.
func (v Variable) BytesPerSample() int {
	return v.ValuesPerSample * v.BitsPerValue / 8
}

// TypeString returns the "<values>*<type>" form of the variable's sample type.
func (v Variable) TypeString() string {
	return format.TypeString(v.ValuesPerSample, v.Type)
}

// Validate checks that the variable describes a whole number of bytes per sample.
func (v Variable) Validate() error {
	if v.Name == "" {
		return fmt.Errorf("%w: empty name", errs.ErrInvalidVariable)
	}
	if v.ValuesPerSample <= 0 {
		return fmt.Errorf("%w: %s has %d values per sample", errs.ErrInvalidVariable, v.Name, v.ValuesPerSample)
	}
	if v.BitsPerValue <= 0 || v.BitsPerValue%8 != 0 {
		return fmt.Errorf("%w: %s has %d bits per value", errs.ErrInvalidVariable, v.Name, v.BitsPerValue)
	}
	if v.Type.Bits() != 0 && v.Type.Bits() != v.BitsPerValue {
		return fmt.Errorf("%w: %s is %s but declares %d bits", errs.ErrInvalidVariable, v.Name, v.Type, v.BitsPerValue)
	}

	return nil
}

// Patch is an application-supplied box of samples owned by one rank.
//
// Data holds Box.Volume() samples of one variable in Order. The stage holding a patch owns its
// buffer exclusively.
type Patch struct {
	Rank  int
	Index int
	Box   grid.Box
	Order format.Order
	Data  []byte
}

// NewPatch allocates a zeroed patch buffer for a box.
func NewPatch(rank, index int, box grid.Box, bytesPerSample int) *Patch {
	return &Patch{
		Rank:  rank,
		Index: index,
		Box:   box,
		Data:  make([]byte, box.Volume()*bytesPerSample),
	}
}

// CheckSize verifies that the buffer holds exactly one sample per box cell.
func (p *Patch) CheckSize(bytesPerSample int) error {
	if want := p.Box.Volume() * bytesPerSample; len(p.Data) != want {
		return fmt.Errorf("%w: patch %d of rank %d holds %d bytes, want %d",
			errs.ErrPatchSizeMismatch, p.Index, p.Rank, len(p.Data), want)
	}

	return nil
}

// SampleOffset returns the byte offset of point pt inside the patch buffer.
func (p *Patch) SampleOffset(pt grid.Point3d, bytesPerSample int) int {
	if p.Order == format.ColumnMajor {
		return p.Box.ColumnOffset(pt) * bytesPerSample
	}

	return p.Box.LinearOffset(pt) * bytesPerSample
}

// RowMajor returns a row-major copy of a column-major patch; row-major patches are returned as is.
func (p *Patch) RowMajor(bytesPerSample int) *Patch {
	if p.Order != format.ColumnMajor {
		return p
	}

	out := &Patch{Rank: p.Rank, Index: p.Index, Box: p.Box, Data: make([]byte, len(p.Data))}
	for i := 0; i < p.Box.Volume(); i++ {
		pt := p.Box.PointAt(i)
		src := p.Box.ColumnOffset(pt) * bytesPerSample
		copy(out.Data[i*bytesPerSample:(i+1)*bytesPerSample], p.Data[src:src+bytesPerSample])
	}

	return out
}

// FromRowMajor fills the patch from row-major data over the same box, converting to the patch
// order.
func (p *Patch) FromRowMajor(data []byte, bytesPerSample int) {
	if p.Order != format.ColumnMajor {
		copy(p.Data, data)
		return
	}

	for i := 0; i < p.Box.Volume(); i++ {
		dst := p.Box.ColumnOffset(p.Box.PointAt(i)) * bytesPerSample
		copy(p.Data[dst:dst+bytesPerSample], data[i*bytesPerSample:(i+1)*bytesPerSample])
	}
}

// Source records which patch contributed to a super-patch, and where.
type Source struct {
	Rank  int
	Index int
	Box   grid.Box // intersection of the source patch with the super-patch
}

// SuperPatch is the canonical power-of-two aligned region a group of patches is merged into.
//
// Canonical is the unclipped aligned region; Box is Canonical clipped to the global bounds and
// is the region actually stored in Data (row-major). Exactly one rank, MaxPatchRank, owns Data.
type SuperPatch struct {
	ID           int
	Canonical    grid.Box
	Box          grid.Box
	IsBoundary   bool
	MaxPatchRank int
	Sources      []Source
	Data         []byte
}

// Volume returns the number of samples held by the super-patch.
func (s *SuperPatch) Volume() int {
	return s.Box.Volume()
}

// Owned reports whether rank owns the super-patch data.
func (s *SuperPatch) Owned(rank int) bool {
	return s.MaxPatchRank == rank
}

// Allocate sizes Data for bytesPerSample-wide samples.
func (s *SuperPatch) Allocate(bytesPerSample int) {
	s.Data = make([]byte, s.Box.Volume()*bytesPerSample)
}

// Release drops the data buffer once the next stage consumed it.
func (s *SuperPatch) Release() {
	s.Data = nil
}
