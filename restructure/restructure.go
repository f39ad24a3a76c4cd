package restructure

import (
	"context"
	"fmt"

	"github.com/arloliu/hzvol/comm"
	"github.com/arloliu/hzvol/errs"
	"github.com/arloliu/hzvol/grid"
	"github.com/arloliu/hzvol/patch"
)

// MaxTransferBytes bounds a single staging or transfer buffer.
const MaxTransferBytes = 1 << 36

func alloc(n int) ([]byte, error) {
	if n < 0 || n > MaxTransferBytes {
		return nil, fmt.Errorf("%w: %d-byte transfer buffer", errs.ErrAllocation, n)
	}

	return make([]byte, n), nil
}

// incoming is a posted receive and the part of a buffer it fills.
type incoming struct {
	req     *comm.Request
	dst     []byte
	regions patch.RegionList
}

// exchange is the posted communication of one variable.
type exchange struct {
	supers   []*patch.SuperPatch
	incoming []incoming
}

func (e *exchange) requests() []*comm.Request {
	reqs := make([]*comm.Request, len(e.incoming))
	for i, in := range e.incoming {
		reqs[i] = in.req
	}

	return reqs
}

// finish unpacks every completed receive.
func (e *exchange) finish() error {
	for _, in := range e.incoming {
		if err := in.regions.Scatter(in.dst, in.req.Data()); err != nil {
			return err
		}
	}

	return nil
}

// localPatches checks the patches of the calling rank against the plan and returns them row-major.
func (pl *Plan) localPatches(bytesPerSample int, patches []*patch.Patch) ([]*patch.Patch, error) {
	boxes := pl.boxes[pl.comm.Rank()]
	if len(patches) != len(boxes) {
		return nil, fmt.Errorf("%w: %d patches, plan has %d", errs.ErrDecompositionMismatch, len(patches), len(boxes))
	}

	out := make([]*patch.Patch, len(patches))
	for i, p := range patches {
		if p.Box != boxes[i] {
			return nil, fmt.Errorf("%w: patch %d is %v, plan has %v", errs.ErrDecompositionMismatch, i, p.Box, boxes[i])
		}
		if err := p.CheckSize(bytesPerSample); err != nil {
			return nil, err
		}
		out[i] = p.RowMajor(bytesPerSample)
	}

	return out, nil
}

// sourceRegions describes the part of a patch that goes to one super-patch: the whole buffer when
// the patch lies inside the super-patch, otherwise one run per row.
func sourceRegions(patchBox, part grid.Box, bytesPerSample int) patch.RegionList {
	if part == patchBox {
		return patch.RegionList{{Offset: 0, Length: patchBox.Volume() * bytesPerSample}}
	}

	return patch.RowRegions(patchBox, part, bytesPerSample)
}

// post issues the sends and receives that move variable v from the patches into the owned
// super-patches.
func (pl *Plan) post(variable int, patches []*patch.Patch) (*exchange, error) {
	if err := pl.checkCoverage(); err != nil {
		return nil, err
	}

	bps := pl.pipeline.Variable(variable).BytesPerSample()
	local, err := pl.localPatches(bps, patches)
	if err != nil {
		return nil, err
	}

	me := pl.comm.Rank()
	tag := comm.TagRestructure + variable
	e := &exchange{}
	for _, s := range pl.supers {
		if !s.Owned(me) {
			for _, src := range s.Sources {
				if src.Rank != me {
					continue
				}
				p := local[src.Index]
				data, err := sourceRegions(p.Box, src.Box, bps).Gather(p.Data)
				if err != nil {
					return nil, err
				}
				if _, err := pl.comm.Isend(s.MaxPatchRank, tag, data); err != nil {
					return nil, err
				}
			}

			continue
		}

		out := *s
		if out.Data, err = alloc(s.Volume() * bps); err != nil {
			return nil, err
		}
		e.supers = append(e.supers, &out)

		for _, src := range s.Sources {
			if src.Rank == me {
				p := local[src.Index]
				patch.CopyBox(out.Data, out.Box, p.Data, p.Box, src.Box, bps)

				continue
			}

			buf, err := alloc(src.Box.Volume() * bps)
			if err != nil {
				return nil, err
			}
			req, err := pl.comm.Irecv(src.Rank, tag, buf)
			if err != nil {
				return nil, err
			}
			e.incoming = append(e.incoming, incoming{
				req:     req,
				dst:     out.Data,
				regions: patch.RowRegions(out.Box, src.Box, bps),
			})
		}
	}

	return e, nil
}

// Restructure moves variable v from the calling rank's patches into the super-patches it owns. It
// is collective over the plan's group.
//
// Parameters:
//   - ctx: cancels the pending receives
//   - pl: the group plan
//   - variable: index of the variable in the pipeline
//   - patches: the rank's patches, in the order their boxes were passed to Setup
//
// Returns:
//   - []*patch.SuperPatch: the owned super-patches in ID order, with row-major data
//   - error: ErrDecompositionMismatch when the group does not cover its partition, a
//     communication error otherwise
func Restructure(ctx context.Context, pl *Plan, variable int, patches []*patch.Patch) ([]*patch.SuperPatch, error) {
	out, err := RestructureBatch(ctx, pl, []int{variable}, [][]*patch.Patch{patches})
	if err != nil {
		return nil, err
	}

	return out[0], nil
}

// RestructureBatch restructures several variables, keeping up to the configured pipe length of
// exchanges in flight and joining each round with a single wait.
func RestructureBatch(ctx context.Context, pl *Plan, variables []int, patches [][]*patch.Patch) ([][]*patch.SuperPatch, error) {
	if len(variables) != len(patches) {
		return nil, fmt.Errorf("%w: %d variables, %d patch sets", errs.ErrDecompositionMismatch, len(variables), len(patches))
	}

	pipe := pl.pipeline.Config().PipeLength
	out := make([][]*patch.SuperPatch, len(variables))
	for first := 0; first < len(variables); first += pipe {
		last := min(first+pipe, len(variables))

		exchanges := make([]*exchange, 0, last-first)
		var reqs []*comm.Request
		for i := first; i < last; i++ {
			e, err := pl.post(variables[i], patches[i])
			if err != nil {
				return nil, err
			}
			exchanges = append(exchanges, e)
			reqs = append(reqs, e.requests()...)
		}

		if err := comm.WaitAll(ctx, reqs); err != nil {
			return nil, err
		}
		for j, e := range exchanges {
			if err := e.finish(); err != nil {
				return nil, err
			}
			out[first+j] = e.supers
		}
	}

	return out, nil
}

// Scatter is the inverse of Restructure: it moves the data of the owned super-patches back into
// the calling rank's patches. Patches must be allocated; their order is honoured. It is
// collective over the plan's group.
//
// Super-patches missing from supers leave the matching patch regions untouched.
func Scatter(ctx context.Context, pl *Plan, variable int, supers []*patch.SuperPatch, patches []*patch.Patch) error {
	bps := pl.pipeline.Variable(variable).BytesPerSample()
	boxes := pl.boxes[pl.comm.Rank()]
	if len(patches) != len(boxes) {
		return fmt.Errorf("%w: %d patches, plan has %d", errs.ErrDecompositionMismatch, len(patches), len(boxes))
	}

	// row-major staging for every patch
	staging := make([]*patch.Patch, len(patches))
	for i, p := range patches {
		if p.Box != boxes[i] {
			return fmt.Errorf("%w: patch %d is %v, plan has %v", errs.ErrDecompositionMismatch, i, p.Box, boxes[i])
		}
		if err := p.CheckSize(bps); err != nil {
			return err
		}
		staging[i] = p.RowMajor(bps)
	}

	owned := make(map[int]*patch.SuperPatch, len(supers))
	for _, s := range supers {
		owned[s.ID] = s
	}

	me := pl.comm.Rank()
	tag := comm.TagScatter + variable
	e := &exchange{}
	for _, s := range pl.supers {
		if s.Owned(me) {
			data := owned[s.ID]
			for _, src := range s.Sources {
				var (
					part []byte
					err  error
				)
				if data != nil {
					part, err = patch.RowRegions(s.Box, src.Box, bps).Gather(data.Data)
					if err != nil {
						return err
					}
				}

				if src.Rank == me {
					if data != nil {
						p := staging[src.Index]
						if err := sourceRegions(p.Box, src.Box, bps).Scatter(p.Data, part); err != nil {
							return err
						}
					}

					continue
				}

				// an empty message tells the contributor the region was not read
				if _, err := pl.comm.Isend(src.Rank, tag, part); err != nil {
					return err
				}
			}

			continue
		}

		for _, src := range s.Sources {
			if src.Rank != me {
				continue
			}
			req, err := pl.comm.Irecv(s.MaxPatchRank, tag, nil)
			if err != nil {
				return err
			}
			p := staging[src.Index]
			e.incoming = append(e.incoming, incoming{req: req, dst: p.Data, regions: sourceRegions(p.Box, src.Box, bps)})
		}
	}

	if err := comm.WaitAll(ctx, e.requests()); err != nil {
		return err
	}
	for _, in := range e.incoming {
		if len(in.req.Data()) == 0 {
			continue
		}
		if err := in.regions.Scatter(in.dst, in.req.Data()); err != nil {
			return err
		}
	}

	for i, p := range patches {
		if staging[i] != p {
			p.FromRowMajor(staging[i].Data, bps)
		}
	}

	return nil
}
