package agg

import (
	"context"
	"fmt"

	"github.com/arloliu/hzvol/comm"
	"github.com/arloliu/hzvol/endian"
	"github.com/arloliu/hzvol/errs"
	"github.com/arloliu/hzvol/format"
	"github.com/arloliu/hzvol/hzenc"
	"github.com/arloliu/hzvol/internal/pool"
)

// recordHeaderSize is the size of a bundle record header: first HZ index and sample count.
const recordHeaderSize = 12

var wireEngine = endian.GetLittleEndianEngine()

func appendRecord(bb *pool.ByteBuffer, first uint64, n int, data []byte) {
	hdr := bb.Extend(recordHeaderSize)
	wireEngine.PutUint64(hdr[0:8], first)
	wireEngine.PutUint32(hdr[8:12], uint32(n)) //nolint: gosec
	if data != nil {
		_, _ = bb.Write(data)
	}
}

// parseRecords walks the records of a bundle. withData selects whether records carry samples.
func parseRecords(msg []byte, sampleBytes int, withData bool, fn func(first uint64, n int, data []byte) error) error {
	for pos := 0; pos < len(msg); {
		if len(msg)-pos < recordHeaderSize {
			return fmt.Errorf("%w: truncated record header at %d", errs.ErrMessageSize, pos)
		}
		first := wireEngine.Uint64(msg[pos : pos+8])
		n := int(wireEngine.Uint32(msg[pos+8 : pos+12]))
		pos += recordHeaderSize

		var data []byte
		if withData {
			size := n * sampleBytes
			if len(msg)-pos < size {
				return fmt.Errorf("%w: record of %d samples truncated at %d", errs.ErrMessageSize, n, pos)
			}
			data = msg[pos : pos+size]
			pos += size
		}
		if err := fn(first, n, data); err != nil {
			return err
		}
	}

	return nil
}

func (pl *Plan) checkBuffers(v int, bufs []*hzenc.Buffer) error {
	want := pl.pipeline.SampleBytes(v)
	for _, hb := range bufs {
		if hb.SampleBytes != want {
			return fmt.Errorf("%w: HZ buffer %d has %d-byte samples, variable %d uses %d",
				errs.ErrMessageSize, hb.ID, hb.SampleBytes, v, want)
		}
	}

	return nil
}

// Aggregate moves the samples of variable v from the caller's HZ buffers to the aggregators and
// returns the buffers of the segments the caller aggregates. It is collective over c, which must
// be the group the plan was built for.
func Aggregate(ctx context.Context, c *comm.Comm, pl *Plan, v int, bufs []*hzenc.Buffer) ([]*Buffer, error) {
	if c.Size() != pl.selector.GroupSize {
		return nil, fmt.Errorf("%w: plan for %d ranks used on %d", errs.ErrInvalidRank, pl.selector.GroupSize, c.Size())
	}
	if err := pl.checkBuffers(v, bufs); err != nil {
		return nil, err
	}

	if pl.pipeline.Config().AggregationMode == format.AggregationOneSided {
		return aggregateOneSided(ctx, c, pl, v, bufs)
	}

	return aggregateP2P(ctx, c, pl, v, bufs)
}

func aggregateP2P(ctx context.Context, c *comm.Comm, pl *Plan, v int, bufs []*hzenc.Buffer) ([]*Buffer, error) {
	tag := comm.TagAggregate + v

	bundles := make(map[int]*pool.ByteBuffer, len(pl.Aggregators(v)))
	for _, a := range pl.Aggregators(v) {
		bundles[a] = pool.GetFrameBuffer()
	}
	defer func() {
		for _, bb := range bundles {
			pool.PutFrameBuffer(bb)
		}
	}()

	err := pl.pieces(v, bufs, func(p piece) error {
		appendRecord(bundles[p.ref.seg.Aggregator], p.first, p.n, p.data)
		return nil
	})
	if err != nil {
		return nil, err
	}

	// every aggregator hears from every rank, possibly an empty bundle
	for _, a := range pl.Aggregators(v) {
		if _, err := c.Isend(a, tag, bundles[a].Bytes()); err != nil {
			return nil, err
		}
	}

	out, _ := NewBuffers(pl, c.Rank(), v)
	if len(out) == 0 {
		return nil, nil
	}

	reqs := make([]*comm.Request, c.Size())
	for src := range reqs {
		if reqs[src], err = c.Irecv(src, tag, nil); err != nil {
			return nil, err
		}
	}
	if err := comm.WaitAll(ctx, reqs); err != nil {
		return nil, err
	}

	mine := make(map[*Segment]*Buffer, len(out))
	for _, b := range out {
		mine[b.Segment] = b
	}

	sb := pl.pipeline.SampleBytes(v)
	bb := pl.pipeline.BlockBytes(v)
	bpb := pl.pipeline.BitsPerBlock()
	for src, req := range reqs {
		err := parseRecords(req.Data(), sb, true, func(first uint64, n int, data []byte) error {
			ref, ok := pl.lookup(v, first>>bpb)
			if !ok || mine[ref.seg] == nil {
				return fmt.Errorf("%w: rank %d sent index %d this rank does not aggregate", errs.ErrCommFailed, src, first)
			}
			off := piece{ref: ref, first: first}.offset(bb, sb, bpb)
			copy(mine[ref.seg].Data[off:off+n*sb], data)

			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	return out, nil
}

func aggregateOneSided(ctx context.Context, c *comm.Comm, pl *Plan, v int, bufs []*hzenc.Buffer) ([]*Buffer, error) {
	out, backing := NewBuffers(pl, c.Rank(), v)
	win, err := c.NewWindow(ctx, backing)
	if err != nil {
		return nil, err
	}

	sb := pl.pipeline.SampleBytes(v)
	bb := pl.pipeline.BlockBytes(v)
	bpb := pl.pipeline.BitsPerBlock()
	err = pl.pieces(v, bufs, func(p piece) error {
		return win.Put(p.ref.seg.Aggregator, p.ref.seg.WindowOffset+p.offset(bb, sb, bpb), p.data)
	})
	if err != nil {
		return nil, err
	}

	if err := win.Fence(ctx); err != nil {
		return nil, err
	}
	if err := win.Close(ctx); err != nil {
		return nil, err
	}

	return out, nil
}
