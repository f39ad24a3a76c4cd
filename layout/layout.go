// Package layout computes which fixed-size blocks of HZ indices exist for a dataset domain.
//
// Samples are grouped into blocks of 2^bitsPerBlock consecutive HZ indices and blocks are grouped
// into files of blocksPerFile blocks. For a domain whose extent is not a power of two, many
// blocks address only points outside the domain; such blocks are absent. A BlockLayout records
// the present blocks per resolution level and answers the two questions the writers and readers
// need: is a block present, and how many absent blocks precede it in its file (the negative
// offset used to compact the file payload).
//
// Block 0 holds levels [0, bitsPerBlock); every other block b lies entirely inside level
// floor(log2 b) + bitsPerBlock.
package layout

import (
	"github.com/RoaringBitmap/roaring"

	"github.com/arloliu/hzvol/grid"
	"github.com/arloliu/hzvol/hz"
)

// MaxBlockBits bounds the number of block-number bits so block numbers fit the presence bitmap.
const MaxBlockBits = 32

// BlockLayout is the set of present blocks for a bounding box, bit pattern and resolution window.
// It is immutable after Build and safe for concurrent use.
type BlockLayout struct {
	bounds       grid.Box
	curve        *hz.Curve
	bitsPerBlock int
	from, to     int
	total        uint64
	levels       [][]uint32 // present block numbers, indexed by level-from
	present      *roaring.Bitmap
}

// Build computes the block layout of bounds over the levels [from, to) of curve.
//
// Levels outside the curve are ignored. A bounding box with zero extent in any dimension yields
// an empty layout.
func Build(bounds grid.Box, curve *hz.Curve, bitsPerBlock, from, to int) *BlockLayout {
	from = max(from, 0)
	to = min(to, curve.Levels())

	l := &BlockLayout{
		bounds:       bounds,
		curve:        curve,
		bitsPerBlock: bitsPerBlock,
		from:         from,
		to:           to,
		total:        TotalBlocks(curve.MaxH(), bitsPerBlock),
		levels:       make([][]uint32, max(to-from, 0)),
		present:      roaring.New(),
	}

	if bounds.Empty() {
		return l
	}

	blockSize := uint64(1) << bitsPerBlock
	for level := from; level < to; level++ {
		if level < bitsPerBlock {
			if l.levelPresent(level) {
				l.levels[level-from] = []uint32{0}
				l.present.Add(0)
			}

			continue
		}

		end := curve.LevelEnd(level)
		for first := hz.LevelStart(level); first <= end; first += blockSize {
			if curve.Lattice(first, blockSize).Intersects(bounds) {
				b := uint32(first >> bitsPerBlock)
				l.levels[level-from] = append(l.levels[level-from], b)
				l.present.Add(b)
			}
		}
	}

	return l
}

// levelPresent tests a whole level that lives inside block 0.
func (l *BlockLayout) levelPresent(level int) bool {
	if level == 0 {
		for idx := uint64(0); idx < l.curve.LevelCount(0); idx++ {
			if l.curve.Lattice(idx, 1).Intersects(l.bounds) {
				return true
			}
		}

		return false
	}

	return l.curve.Lattice(hz.LevelStart(level), l.curve.LevelCount(level)).Intersects(l.bounds)
}

// TotalBlocks returns the number of block slots addressed by a curve of maxH bits.
func TotalBlocks(maxH, bitsPerBlock int) uint64 {
	if maxH <= bitsPerBlock {
		return 1
	}

	return uint64(1) << (maxH - bitsPerBlock)
}

// BlockLevel decodes the resolution level of a block number. Block 0 reports level 0 although
// it holds every level below bitsPerBlock.
func BlockLevel(block uint64, bitsPerBlock int) int {
	if block == 0 {
		return 0
	}

	return grid.Log2(int(block)) + bitsPerBlock
}

// BitsPerBlock returns the block size exponent.
func (l *BlockLayout) BitsPerBlock() int { return l.bitsPerBlock }

// SamplesPerBlock returns 2^bitsPerBlock.
func (l *BlockLayout) SamplesPerBlock() uint64 { return uint64(1) << l.bitsPerBlock }

// Curve returns the curve the layout was built on.
func (l *BlockLayout) Curve() *hz.Curve { return l.curve }

// Bounds returns the bounding box the layout was built for.
func (l *BlockLayout) Bounds() grid.Box { return l.bounds }

// Window returns the resolution window [from, to) of the layout.
func (l *BlockLayout) Window() (int, int) { return l.from, l.to }

// Levels returns the number of levels of the curve.
func (l *BlockLayout) Levels() int { return l.curve.Levels() }

// TotalBlocks returns the number of block slots of the curve, present or not.
func (l *BlockLayout) TotalBlocks() uint64 { return l.total }

// PresentCount returns the number of present blocks.
func (l *BlockLayout) PresentCount() uint64 { return l.present.GetCardinality() }

// Empty reports whether no block is present.
func (l *BlockLayout) Empty() bool { return l.present.IsEmpty() }

// BlocksAtLevel returns the present block numbers recorded for a level, or nil outside the window.
func (l *BlockLayout) BlocksAtLevel(level int) []uint32 {
	if level < l.from || level >= l.to {
		return nil
	}

	return l.levels[level-l.from]
}

// IsPresent reports whether a block exists in the layout.
func (l *BlockLayout) IsPresent(block uint64) bool {
	if block >= l.total {
		return false
	}

	return l.present.Contains(uint32(block))
}

// NegativeOffset returns the number of absent blocks preceding block within its file.
func (l *BlockLayout) NegativeOffset(blocksPerFile int, block uint64) uint64 {
	fileStart := block / uint64(blocksPerFile) * uint64(blocksPerFile)
	return (block - fileStart) - l.countRange(fileStart, block)
}

// FileCount returns the number of files needed to hold every block slot.
func (l *BlockLayout) FileCount(blocksPerFile int) int {
	bpf := uint64(blocksPerFile)
	return int((l.total + bpf - 1) / bpf)
}

// FileBlocks returns the block range [first, end) of a file, clipped to the block slots.
func (l *BlockLayout) FileBlocks(blocksPerFile, file int) (uint64, uint64) {
	first := uint64(file) * uint64(blocksPerFile)
	end := min(first+uint64(blocksPerFile), l.total)

	return first, end
}

// PresentBlocksInFile returns how many present blocks a file holds.
func (l *BlockLayout) PresentBlocksInFile(blocksPerFile, file int) uint64 {
	first, end := l.FileBlocks(blocksPerFile, file)
	return l.countRange(first, end)
}

// IsFilePresent reports whether a file holds at least one present block.
func (l *BlockLayout) IsFilePresent(blocksPerFile, file int) bool {
	return l.PresentBlocksInFile(blocksPerFile, file) > 0
}

// PresentBlocksIn returns the present blocks in [first, end), ascending.
func (l *BlockLayout) PresentBlocksIn(first, end uint64) []uint64 {
	var out []uint64
	it := l.present.Iterator()
	it.AdvanceIfNeeded(uint32(first))
	for it.HasNext() {
		b := uint64(it.Next())
		if b >= end {
			break
		}
		out = append(out, b)
	}

	return out
}

// countRange counts present blocks in [lo, hi).
func (l *BlockLayout) countRange(lo, hi uint64) uint64 {
	if hi <= lo {
		return 0
	}

	n := l.present.Rank(uint32(hi - 1))
	if lo > 0 {
		n -= l.present.Rank(uint32(lo - 1))
	}

	return n
}
