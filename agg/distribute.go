package agg

import (
	"context"
	"fmt"

	"github.com/arloliu/hzvol/comm"
	"github.com/arloliu/hzvol/errs"
	"github.com/arloliu/hzvol/format"
	"github.com/arloliu/hzvol/hzenc"
	"github.com/arloliu/hzvol/internal/pool"
)

// replyTagOffset separates the replies of the read exchange from its requests.
const replyTagOffset = 1 << 19

// Distribute is the read-side inverse of Aggregate: it fills the caller's HZ buffers from the
// aggregators' segment buffers. aggBufs are the caller's buffers for variable v, as returned by
// NewBuffers and filled from disk. It is collective over c.
//
// Samples whose blocks the plan does not hold are left untouched.
func Distribute(ctx context.Context, c *comm.Comm, pl *Plan, v int, aggBufs []*Buffer, bufs []*hzenc.Buffer) error {
	if c.Size() != pl.selector.GroupSize {
		return fmt.Errorf("%w: plan for %d ranks used on %d", errs.ErrInvalidRank, pl.selector.GroupSize, c.Size())
	}
	if err := pl.checkBuffers(v, bufs); err != nil {
		return err
	}

	if pl.pipeline.Config().AggregationMode == format.AggregationOneSided {
		return distributeOneSided(ctx, c, pl, v, aggBufs, bufs)
	}

	return distributeP2P(ctx, c, pl, v, aggBufs, bufs)
}

func distributeP2P(ctx context.Context, c *comm.Comm, pl *Plan, v int, aggBufs []*Buffer, bufs []*hzenc.Buffer) error {
	reqTag := comm.TagDistribute + v
	replyTag := comm.TagDistribute + replyTagOffset + v

	// requests per aggregator, and where the replies go
	requests := make(map[int]*pool.ByteBuffer, len(pl.Aggregators(v)))
	targets := make(map[int][][]byte, len(pl.Aggregators(v)))
	for _, a := range pl.Aggregators(v) {
		requests[a] = pool.GetHeaderBuffer()
	}
	defer func() {
		for _, bb := range requests {
			pool.PutHeaderBuffer(bb)
		}
	}()

	err := pl.pieces(v, bufs, func(p piece) error {
		a := p.ref.seg.Aggregator
		appendRecord(requests[a], p.first, p.n, nil)
		targets[a] = append(targets[a], p.data)

		return nil
	})
	if err != nil {
		return err
	}

	for _, a := range pl.Aggregators(v) {
		if _, err := c.Isend(a, reqTag, requests[a].Bytes()); err != nil {
			return err
		}
	}

	if len(aggBufs) > 0 {
		if err := serveRequests(ctx, c, pl, v, aggBufs, reqTag, replyTag); err != nil {
			return err
		}
	}

	replies := make(map[int]*comm.Request, len(pl.Aggregators(v)))
	for _, a := range pl.Aggregators(v) {
		if replies[a], err = c.Irecv(a, replyTag, nil); err != nil {
			return err
		}
	}
	for _, a := range pl.Aggregators(v) {
		if err := replies[a].Wait(ctx); err != nil {
			return err
		}

		msg, pos := replies[a].Data(), 0
		for _, dst := range targets[a] {
			if len(msg)-pos < len(dst) {
				return fmt.Errorf("%w: reply of rank %d holds %d bytes, requested more", errs.ErrMessageSize, a, len(msg))
			}
			copy(dst, msg[pos:pos+len(dst)])
			pos += len(dst)
		}
		if pos != len(msg) {
			return fmt.Errorf("%w: reply of rank %d holds %d bytes, requested %d", errs.ErrMessageSize, a, len(msg), pos)
		}
	}

	return nil
}

// serveRequests answers the read requests of every rank from the aggregator's buffers.
func serveRequests(ctx context.Context, c *comm.Comm, pl *Plan, v int, aggBufs []*Buffer, reqTag, replyTag int) error {
	mine := make(map[*Segment]*Buffer, len(aggBufs))
	for _, b := range aggBufs {
		mine[b.Segment] = b
	}

	reqs := make([]*comm.Request, c.Size())
	for src := range reqs {
		var err error
		if reqs[src], err = c.Irecv(src, reqTag, nil); err != nil {
			return err
		}
	}
	if err := comm.WaitAll(ctx, reqs); err != nil {
		return err
	}

	sb := pl.pipeline.SampleBytes(v)
	bb := pl.pipeline.BlockBytes(v)
	bpb := pl.pipeline.BitsPerBlock()
	reply := pool.GetFrameBuffer()
	defer pool.PutFrameBuffer(reply)

	for src, req := range reqs {
		reply.Reset()
		err := parseRecords(req.Data(), sb, false, func(first uint64, n int, _ []byte) error {
			ref, ok := pl.lookup(v, first>>bpb)
			if !ok || mine[ref.seg] == nil {
				return fmt.Errorf("%w: rank %d requested index %d this rank does not aggregate", errs.ErrCommFailed, src, first)
			}
			off := piece{ref: ref, first: first}.offset(bb, sb, bpb)
			_, _ = reply.Write(mine[ref.seg].Data[off : off+n*sb])

			return nil
		})
		if err != nil {
			return err
		}
		if _, err := c.Isend(src, replyTag, reply.Bytes()); err != nil {
			return err
		}
	}

	return nil
}

func distributeOneSided(ctx context.Context, c *comm.Comm, pl *Plan, v int, aggBufs []*Buffer, bufs []*hzenc.Buffer) error {
	local := make([]byte, pl.WindowBytes(c.Rank(), v))
	for _, b := range aggBufs {
		copy(local[b.Segment.WindowOffset:], b.Data)
	}

	win, err := c.NewWindow(ctx, local)
	if err != nil {
		return err
	}

	sb := pl.pipeline.SampleBytes(v)
	bb := pl.pipeline.BlockBytes(v)
	bpb := pl.pipeline.BitsPerBlock()
	err = pl.pieces(v, bufs, func(p piece) error {
		return win.Get(p.ref.seg.Aggregator, p.ref.seg.WindowOffset+p.offset(bb, sb, bpb), p.data)
	})
	if err != nil {
		return err
	}

	if err := win.Fence(ctx); err != nil {
		return err
	}

	return win.Close(ctx)
}
