package section

import (
	"fmt"

	"github.com/arloliu/hzvol/errs"
)

// Header is the block table of one file.
type Header struct {
	Variables     int
	BlocksPerFile int
	Entries       []BlockEntry // variable-major
}

// HeaderSize returns the on-disk size of a block table.
func HeaderSize(variables, blocksPerFile int) int {
	return variables * blocksPerFile * BlockEntrySize
}

// NewHeader creates an empty table; every block is absent.
func NewHeader(variables, blocksPerFile int) *Header {
	return &Header{
		Variables:     variables,
		BlocksPerFile: blocksPerFile,
		Entries:       make([]BlockEntry, variables*blocksPerFile),
	}
}

// Size returns the on-disk size of the table.
func (h *Header) Size() int {
	return HeaderSize(h.Variables, h.BlocksPerFile)
}

// EntryIndex returns the position of the entry for a variable and a block slot of the file.
func (h *Header) EntryIndex(variable, slot int) int {
	return variable*h.BlocksPerFile + slot
}

// EntryOffset returns the byte offset of an entry inside the table.
func (h *Header) EntryOffset(variable, slot int) int {
	return h.EntryIndex(variable, slot) * BlockEntrySize
}

// Entry returns the entry for a variable and a block slot.
func (h *Header) Entry(variable, slot int) BlockEntry {
	return h.Entries[h.EntryIndex(variable, slot)]
}

// SetEntry stores the entry for a variable and a block slot.
func (h *Header) SetEntry(variable, slot int, e BlockEntry) {
	h.Entries[h.EntryIndex(variable, slot)] = e
}

// PresentCount returns the number of present entries of a variable.
func (h *Header) PresentCount(variable int) int {
	n := 0
	for slot := 0; slot < h.BlocksPerFile; slot++ {
		if h.Entry(variable, slot).Present() {
			n++
		}
	}

	return n
}

// Bytes serializes the table.
func (h *Header) Bytes() []byte {
	b := make([]byte, h.Size())
	for i, e := range h.Entries {
		e.WriteToSlice(b[i*BlockEntrySize:])
	}

	return b
}

// Parse decodes a table. data must hold exactly the table size.
//
// Returns:
//   - error: ErrInvalidHeaderSize when the size does not match, ErrOffsetOutOfRange when an
//     entry points into the table itself or past fileSize (fileSize < 0 skips that check)
func (h *Header) Parse(data []byte, fileSize int64) error {
	if len(data) != h.Size() {
		return fmt.Errorf("%w: %d bytes, want %d for %d variables x %d blocks",
			errs.ErrInvalidHeaderSize, len(data), h.Size(), h.Variables, h.BlocksPerFile)
	}

	h.Entries = make([]BlockEntry, h.Variables*h.BlocksPerFile)
	for i := range h.Entries {
		e, err := ParseBlockEntry(data[i*BlockEntrySize : (i+1)*BlockEntrySize])
		if err != nil {
			return err
		}
		if e.Present() {
			if int(e.Offset) < h.Size() || (fileSize >= 0 && e.End() > fileSize) {
				return fmt.Errorf("%w: entry %d spans [%d, %d) in a %d-byte file with a %d-byte table",
					errs.ErrOffsetOutOfRange, i, e.Offset, e.End(), fileSize, h.Size())
			}
		}
		h.Entries[i] = e
	}

	return nil
}

// ParseHeader decodes the table of a file with the given geometry.
func ParseHeader(data []byte, variables, blocksPerFile int, fileSize int64) (*Header, error) {
	h := &Header{Variables: variables, BlocksPerFile: blocksPerFile}
	if err := h.Parse(data, fileSize); err != nil {
		return nil, err
	}

	return h, nil
}
