package dataset

import (
	"context"
	"fmt"

	"github.com/arloliu/hzvol/agg"
	"github.com/arloliu/hzvol/chunk"
	"github.com/arloliu/hzvol/compress"
	"github.com/arloliu/hzvol/errs"
	"github.com/arloliu/hzvol/fileio"
	"github.com/arloliu/hzvol/grid"
	"github.com/arloliu/hzvol/hzenc"
	"github.com/arloliu/hzvol/logging"
	"github.com/arloliu/hzvol/patch"
	"github.com/arloliu/hzvol/restructure"
)

// patchBoxes returns the boxes shared by the patches of every variable.
func (d *Dataset) patchBoxes(patches [][]*patch.Patch) ([]grid.Box, error) {
	if len(patches) != len(d.pipeline.Variables()) {
		return nil, fmt.Errorf("%w: patches for %d variables, dataset has %d",
			errs.ErrDecompositionMismatch, len(patches), len(d.pipeline.Variables()))
	}

	boxes := make([]grid.Box, len(patches[0]))
	for i, p := range patches[0] {
		boxes[i] = p.Box
	}
	for v, ps := range patches[1:] {
		if len(ps) != len(boxes) {
			return nil, fmt.Errorf("%w: variable %d has %d patches, variable 0 has %d",
				errs.ErrDecompositionMismatch, v+1, len(ps), len(boxes))
		}
		for i, p := range ps {
			if p.Box != boxes[i] {
				return nil, fmt.Errorf("%w: patch %d of variable %d is %v, variable 0 has %v",
					errs.ErrDecompositionMismatch, i, v+1, p.Box, boxes[i])
			}
		}
	}

	return boxes, nil
}

// restructurePlan splits the communicator by partition and sets up the super-patch plan of the
// caller's group. Ranks without patches get a nil plan.
func (d *Dataset) restructurePlan(ctx context.Context, boxes []grid.Box) (*restructure.Plan, error) {
	part, err := restructure.Validate(d.pipeline, boxes)
	if err != nil {
		return nil, err
	}

	local, err := d.comm.Split(ctx, part, d.comm.Rank())
	if err != nil {
		return nil, err
	}
	if local == nil {
		return nil, nil //nolint: nilnil
	}

	return restructure.Setup(ctx, local, d.pipeline, boxes)
}

// checkTiling fails unless the patches of all ranks hold as many samples as the domain. Overlaps
// are caught by the restructure setup, so together both checks require an exact tiling.
func (d *Dataset) checkTiling(ctx context.Context, boxes []grid.Box) error {
	n := 0
	for _, b := range boxes {
		n += b.Volume()
	}
	all, err := d.comm.AllgatherInts(ctx, []int{n})
	if err != nil {
		return err
	}

	total := 0
	for _, vals := range all {
		total += vals[0]
	}
	if want := d.pipeline.Bounds().Volume(); total != want {
		return fmt.Errorf("%w: patches hold %d samples, the domain %d",
			errs.ErrDecompositionMismatch, total, want)
	}

	return nil
}

// encode chunks the super-patches of one variable and encodes them into HZ buffers. The
// super-patch buffers are released.
func (d *Dataset) encode(ctx context.Context, v int, supers []*patch.SuperPatch) ([]*hzenc.Buffer, error) {
	bps := d.pipeline.Variable(v).BytesPerSample()
	from, to := d.pipeline.Window()

	out := make([]*hzenc.Buffer, 0, len(supers))
	for _, s := range supers {
		c, err := chunk.Chunk(s, d.pipeline.ChunkBox(), bps)
		if err != nil {
			return nil, err
		}
		s.Release()

		b, err := hzenc.Encode(ctx, c, d.pipeline.Curve(), from, to)
		if err != nil {
			return nil, err
		}
		d.logger.Debugf("encoded %s samples of %s in super-patch %v",
			logging.Count(b.Samples()), d.pipeline.Variable(v).Name, s.Box)
		out = append(out, b)
	}

	return out, nil
}

// Write stores the patches of one time step. patches[v] holds the calling rank's patches of
// variable v; every variable uses the same boxes. Ranks may hold no patches, but together the
// patches must tile the domain.
//
// Writing a step again overwrites it.
func (d *Dataset) Write(ctx context.Context, step int, patches [][]*patch.Patch) error {
	boxes, err := d.patchBoxes(patches)
	if err != nil {
		return err
	}
	if err := d.checkTiling(ctx, boxes); err != nil {
		return err
	}
	rpl, err := d.restructurePlan(ctx, boxes)
	if err != nil {
		return err
	}

	nv := len(d.pipeline.Variables())
	supers := make([][]*patch.SuperPatch, nv)
	if rpl != nil {
		vars := make([]int, nv)
		for v := range vars {
			vars[v] = v
		}
		if supers, err = restructure.RestructureBatch(ctx, rpl, vars, patches); err != nil {
			return err
		}
	}

	w, err := fileio.NewWriter(d.pipeline, step, d.fileOptions()...)
	if err != nil {
		return err
	}

	err = writeVariables(ctx, w, nv, func(ctx context.Context, v int) ([]*agg.Buffer, error) {
		bufs, err := d.encode(ctx, v, supers[v])
		if err != nil {
			return nil, err
		}

		return agg.Aggregate(ctx, d.comm, d.plan, v, bufs)
	})
	if err != nil {
		return err
	}

	if err := d.logWrite(ctx, step, w); err != nil {
		return err
	}

	return d.recordTimeStep(ctx, step)
}

// writeVariables aggregates the variables in order and queues the resulting buffers on w, so
// that the writes of a variable overlap the encoding and aggregation of the next one. It
// returns only once every queued write finished, also when a variable fails.
func writeVariables(ctx context.Context, w *fileio.Writer, nv int,
	aggregate func(ctx context.Context, v int) ([]*agg.Buffer, error),
) error {
	for v := 0; v < nv; v++ {
		aggBufs, err := aggregate(ctx, v)
		if err != nil {
			_ = w.Wait()
			return err
		}
		for _, b := range aggBufs {
			w.WriteAsync(ctx, b)
		}
	}

	return w.Wait()
}

func (d *Dataset) logWrite(ctx context.Context, step int, w *fileio.Writer) error {
	stats := w.Stats()
	all, err := d.comm.AllgatherInts(ctx, []int{int(stats.OriginalSize), int(stats.CompressedSize), w.Files()})
	if err != nil {
		return err
	}
	if d.comm.Rank() != 0 {
		return nil
	}

	total := compress.Stats{Algorithm: stats.Algorithm}
	aggregators := 0
	for _, vals := range all {
		total.Add(vals[0], vals[1])
		if vals[2] > 0 {
			aggregators++
		}
	}
	d.logger.Infof("wrote time step %d: %s of samples as %s on disk (%.1f%% saved) by %d of %d ranks (%s)",
		step, logging.Bytes(total.OriginalSize), logging.Bytes(total.CompressedSize), total.SpaceSavings(),
		aggregators, d.comm.Size(), total.Algorithm)

	return nil
}
