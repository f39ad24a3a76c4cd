package dataset

import (
	"context"
	"fmt"

	"github.com/RoaringBitmap/roaring"

	"github.com/arloliu/hzvol/agg"
	"github.com/arloliu/hzvol/chunk"
	"github.com/arloliu/hzvol/config"
	"github.com/arloliu/hzvol/errs"
	"github.com/arloliu/hzvol/fileio"
	"github.com/arloliu/hzvol/grid"
	"github.com/arloliu/hzvol/hz"
	"github.com/arloliu/hzvol/hzenc"
	"github.com/arloliu/hzvol/logging"
	"github.com/arloliu/hzvol/patch"
	"github.com/arloliu/hzvol/restructure"
)

// ReadMask returns the samples of box filled by a read of the levels [from, to), as row-major
// offsets within box. A sample belongs to the level of the chunk that holds it.
func ReadMask(p *config.Pipeline, box grid.Box, from, to int) *roaring.Bitmap {
	mask := roaring.New()
	cb := p.ChunkBox()
	curve := p.Curve()
	for i := 0; i < box.Volume(); i++ {
		level := hz.Level(curve.XYZToHZ(box.PointAt(i).Div(cb)))
		if level >= from && level < to {
			mask.Add(uint32(i)) //nolint: gosec
		}
	}

	return mask
}

// Read reads every stored level of a time step into the caller's patches. See ReadWindow.
func (d *Dataset) Read(ctx context.Context, step int, patches [][]*patch.Patch) ([]*roaring.Bitmap, error) {
	from, to := d.pipeline.Window()
	return d.ReadWindow(ctx, step, patches, from, to)
}

// ReadWindow reads the levels [from, to) of a time step into the caller's patches, which must
// be allocated. patches[v] holds the patches of variable v; every variable uses the same boxes
// and the patches need not cover the domain.
//
// The window is clipped to the levels the dataset stores. Samples of other levels are zeroed.
//
// Returns:
//   - []*roaring.Bitmap: per patch, the row-major offsets of the samples that were filled
//   - error: ErrInvalidResolution when the clipped window is empty
func (d *Dataset) ReadWindow(ctx context.Context, step int, patches [][]*patch.Patch, from, to int) ([]*roaring.Bitmap, error) {
	wfrom, wto := d.pipeline.Window()
	from, to = max(from, wfrom), min(to, wto)
	if from >= to {
		return nil, fmt.Errorf("%w: [%d, %d) outside the stored levels [%d, %d)",
			errs.ErrInvalidResolution, from, to, wfrom, wto)
	}

	boxes, err := d.patchBoxes(patches)
	if err != nil {
		return nil, err
	}
	rpl, err := d.restructurePlan(ctx, boxes)
	if err != nil {
		return nil, err
	}
	var owned []*patch.SuperPatch
	if rpl != nil {
		owned = rpl.Owned()
	}

	r, err := fileio.NewReader(d.pipeline, step, d.fileOptions()...)
	if err != nil {
		return nil, err
	}
	plan := d.plan.Window(from, to)

	for v := range d.pipeline.Variables() {
		aggBufs, _ := agg.NewBuffers(plan, d.comm.Rank(), v)
		if err := r.ReadAll(ctx, aggBufs); err != nil {
			return nil, err
		}

		supers, err := d.decode(ctx, v, plan, aggBufs, owned, from, to)
		if err != nil {
			return nil, err
		}
		if rpl != nil {
			if err := restructure.Scatter(ctx, rpl, v, supers, patches[v]); err != nil {
				return nil, err
			}
		}
	}

	masks := make([]*roaring.Bitmap, len(boxes))
	var filled uint64
	for i, b := range boxes {
		masks[i] = ReadMask(d.pipeline, b, from, to)
		filled += masks[i].GetCardinality()
	}
	d.logger.Debugf("read time step %d levels [%d, %d): %s samples in %d patches",
		step, from, to, logging.Count(filled), len(boxes))

	return masks, nil
}

// decode distributes the aggregated samples of variable v into HZ buffers of the owned
// super-patches and rebuilds their row-major data.
func (d *Dataset) decode(ctx context.Context, v int, plan *agg.Plan, aggBufs []*agg.Buffer,
	owned []*patch.SuperPatch, from, to int,
) ([]*patch.SuperPatch, error) {
	bps := d.pipeline.Variable(v).BytesPerSample()
	curve := d.pipeline.Curve()

	chunks := make([]*chunk.Chunked, len(owned))
	bufs := make([]*hzenc.Buffer, len(owned))
	for i, s := range owned {
		c, err := chunk.NewChunked(s.ID, s.Box, d.pipeline.ChunkBox(), bps)
		if err != nil {
			return nil, err
		}
		b, err := hzenc.NewBuffer(s.ID, c.Grid, curve, from, to, d.pipeline.SampleBytes(v))
		if err != nil {
			return nil, err
		}
		chunks[i], bufs[i] = c, b
	}

	if err := agg.Distribute(ctx, d.comm, plan, v, aggBufs, bufs); err != nil {
		return nil, err
	}

	supers := make([]*patch.SuperPatch, len(owned))
	for i, s := range owned {
		if _, err := hzenc.Decode(bufs[i], chunks[i], curve); err != nil {
			return nil, err
		}
		sp := *s
		sp.Data = nil
		if err := chunk.Unchunk(chunks[i], &sp); err != nil {
			return nil, err
		}
		supers[i] = &sp
	}

	return supers, nil
}
