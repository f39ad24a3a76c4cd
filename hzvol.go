// Package hzvol stores 3D multi-variable volumes as multiresolution datasets written and read
// in parallel by a group of ranks.
//
// Samples are reordered along a hierarchical Z-order curve so that every prefix of a variable's
// stream is a coarser view of the whole volume. Ranks exchange their patches into partition
// aligned super-patches, chunk and HZ-encode them, and aggregate the encoded blocks on a subset
// of ranks that write them into block-addressable files. Reads run the same stages backwards and
// may stop at any resolution level.
//
// # Basic Usage
//
// Writing one time step from four ranks, each holding a slab of the domain:
//
//	bounds := grid.Point3d{64, 64, 64}
//	vars := []patch.Variable{patch.NewVariable("pressure", 1, format.TypeFloat32)}
//	cfg, _ := config.New("/data/run1", bounds, vars, config.WithCompression(format.CompressionZstd, 0))
//
//	err := hzvol.Run(ctx, 4, func(ctx context.Context, c *comm.Comm) error {
//	    ds, err := hzvol.CreateDataset(ctx, c, cfg)
//	    if err != nil {
//	        return err
//	    }
//	    box := grid.NewBox(grid.Point3d{16 * c.Rank(), 0, 0}, grid.Point3d{16, 64, 64})
//	    p := patch.NewPatch(c.Rank(), 0, box, vars[0].BytesPerSample())
//	    // fill p.Data
//	    return ds.Write(ctx, 0, [][]*patch.Patch{{p}})
//	})
//
// Reading the four coarsest levels back:
//
//	err := hzvol.Run(ctx, 4, func(ctx context.Context, c *comm.Comm) error {
//	    ds, err := hzvol.OpenDataset(ctx, c, "/data/run1")
//	    if err != nil {
//	        return err
//	    }
//	    // allocate patches as above
//	    _, err = ds.ReadWindow(ctx, 0, patches, 0, 4)
//	    return err
//	})
//
// # Package Structure
//
// This package wraps the dataset and comm packages for the common cases. The pipeline stages
// (restructure, chunk, hzenc, agg, fileio) remain individually usable.
package hzvol

import (
	"context"

	"github.com/arloliu/hzvol/comm"
	"github.com/arloliu/hzvol/config"
	"github.com/arloliu/hzvol/dataset"
)

// Run starts ranks goroutines, each with its rank of a fresh world communicator, and waits for
// all of them. The first error cancels ctx for every rank and is returned.
func Run(ctx context.Context, ranks int, fn func(ctx context.Context, c *comm.Comm) error) error {
	return comm.NewWorld(ranks).Run(ctx, fn)
}

// CreateDataset creates a dataset described by cfg. It is collective over c.
//
// Parameters:
//   - ctx: cancels the collective steps
//   - c: the communicator of every rank taking part in the dataset's writes and reads
//   - cfg: a validated configuration, see config.New
//   - opts: dataset options
//
// Returns:
//   - *dataset.Dataset: the calling rank's handle
//   - error: a config error, or an I/O error if the metadata file could not be written
func CreateDataset(ctx context.Context, c *comm.Comm, cfg *config.Config, opts ...dataset.Option) (*dataset.Dataset, error) {
	return dataset.Create(ctx, c, cfg, opts...)
}

// OpenDataset opens the dataset stored in dir. It is collective over c, whose size may differ
// from the one that created the dataset.
func OpenDataset(ctx context.Context, c *comm.Comm, dir string, opts ...dataset.Option) (*dataset.Dataset, error) {
	return dataset.Open(ctx, c, dir, opts...)
}
