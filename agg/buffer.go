package agg

import (
	"github.com/arloliu/hzvol/hzenc"
)

// Buffer holds the blocks of one segment, block k at k*BlockBytes.
type Buffer struct {
	Segment    *Segment
	BlockBytes int
	Data       []byte
}

// Block returns the bytes of the k-th block of the segment.
func (b *Buffer) Block(k int) []byte {
	return b.Data[k*b.BlockBytes : (k+1)*b.BlockBytes]
}

// NewBuffers allocates the zeroed buffers of the segments of variable v aggregated by rank. The
// buffers are views of one backing slice laid out at the segments' window offsets, which is
// returned as well.
func NewBuffers(pl *Plan, rank, v int) ([]*Buffer, []byte) {
	size := pl.pipeline.BlockBytes(v)
	backing := make([]byte, pl.WindowBytes(rank, v))

	var out []*Buffer
	for _, seg := range pl.Owned(rank, v) {
		n := len(seg.Blocks) * size
		out = append(out, &Buffer{
			Segment:    seg,
			BlockBytes: size,
			Data:       backing[seg.WindowOffset : seg.WindowOffset+n : seg.WindowOffset+n],
		})
	}

	return out, backing
}

// piece is a run of consecutive HZ samples that lies inside one block.
type piece struct {
	ref   blockRef
	first uint64
	n     int
	data  []byte // the samples inside the HZ buffer
}

// offset returns the byte offset of the piece inside its segment buffer.
func (p piece) offset(blockBytes, sampleBytes, bitsPerBlock int) int {
	b := p.ref.seg.Blocks[p.ref.k]
	return p.ref.k*blockBytes + int(p.first-b<<bitsPerBlock)*sampleBytes
}

// pieces splits the level runs of the HZ buffers at block boundaries and calls fn for every run
// that lands in a segment of the plan. Runs in blocks the plan does not hold are skipped.
func (pl *Plan) pieces(v int, bufs []*hzenc.Buffer, fn func(piece) error) error {
	bpb := pl.pipeline.BitsPerBlock()
	for _, hb := range bufs {
		sb := hb.SampleBytes
		for level := hb.From; level < hb.To; level++ {
			start, end, ok := hb.Range(level)
			if !ok {
				continue
			}
			data := hb.Data[level-hb.From]

			for idx := start; idx <= end; {
				block := idx >> bpb
				last := min(end, (block+1)<<bpb-1)
				if ref, ok := pl.lookup(v, block); ok {
					p := piece{
						ref:   ref,
						first: idx,
						n:     int(last - idx + 1),
						data:  data[int(idx-start)*sb : int(last-start+1)*sb],
					}
					if err := fn(p); err != nil {
						return err
					}
				}
				idx = last + 1
			}
		}
	}

	return nil
}
