// Package dataset is the entry point of the storage engine: it creates and opens datasets and
// runs the write and read pipelines across the ranks of a communicator.
//
// A write moves every rank's patches through restructure, chunk, HZ encoding, aggregation and
// the file writers. A read runs the same stages backwards, optionally restricted to a window of
// resolution levels. Every method of a Dataset is collective over the communicator it was
// created with.
package dataset

import (
	"context"
	"fmt"
	"slices"

	"github.com/arloliu/hzvol/agg"
	"github.com/arloliu/hzvol/comm"
	"github.com/arloliu/hzvol/config"
	"github.com/arloliu/hzvol/errs"
	"github.com/arloliu/hzvol/fileio"
	"github.com/arloliu/hzvol/internal/options"
	"github.com/arloliu/hzvol/logging"
)

// Dataset is one rank's handle on a dataset.
type Dataset struct {
	pipeline  *config.Pipeline
	comm      *comm.Comm
	plan      *agg.Plan
	timeSteps []int

	logger        logging.Logger
	ioConcurrency int
	configOpts    []config.Option
}

// Option configures a Dataset.
type Option = options.Option[*Dataset]

// WithLogger sets the logger. The default tags every line with the world rank.
func WithLogger(l logging.Logger) Option {
	return options.NoError(func(d *Dataset) {
		if l != nil {
			d.logger = l
		}
	})
}

// WithIOConcurrency bounds the number of files one rank writes or reads at the same time.
func WithIOConcurrency(n int) Option {
	return options.NoError(func(d *Dataset) {
		d.ioConcurrency = n
	})
}

// WithConfigOptions sets the runtime configuration options applied by Open, such as the
// aggregation mode, which are not persisted in the metadata file.
func WithConfigOptions(opts ...config.Option) Option {
	return options.NoError(func(d *Dataset) {
		d.configOpts = append(d.configOpts, opts...)
	})
}

func newDataset(c *comm.Comm, opts []Option) (*Dataset, error) {
	d := &Dataset{
		comm:   c,
		logger: logging.WithRank(c.WorldRank(c.Rank())),
	}
	if err := options.Apply(d, opts...); err != nil {
		return nil, err
	}

	return d, nil
}

func (d *Dataset) init(p *config.Pipeline) error {
	plan, err := agg.NewPlan(p, d.comm.Size())
	if err != nil {
		return err
	}
	d.pipeline = p
	d.plan = plan

	return nil
}

// Create derives the pipeline of cfg and writes the metadata file of a new dataset. Rank 0
// writes the file; every rank fails if it could not.
func Create(ctx context.Context, c *comm.Comm, cfg *config.Config, opts ...Option) (*Dataset, error) {
	d, err := newDataset(c, opts)
	if err != nil {
		return nil, err
	}

	p, err := cfg.Derive()
	if err != nil {
		return nil, err
	}
	if err := d.init(p); err != nil {
		return nil, err
	}

	var saveErr error
	if c.Rank() == 0 {
		saveErr = config.SaveMetadata(cfg.MetadataPath(), p.Metadata(nil))
	}
	if err := agree(ctx, c, saveErr); err != nil {
		return nil, err
	}

	if c.Rank() == 0 {
		d.logger.Infof("created dataset %s: %v (%s samples), pattern %s, %d levels, %d files of up to %s",
			cfg.Dir, cfg.Bounds, logging.Count(cfg.Bounds.Prod()), p.Pattern(), p.Levels(), p.FileCount(),
			logging.Bytes(p.MaxFileBytes()))
	}

	return d, nil
}

// Open loads the metadata file of an existing dataset.
func Open(ctx context.Context, c *comm.Comm, dir string, opts ...Option) (*Dataset, error) {
	d, err := newDataset(c, opts)
	if err != nil {
		return nil, err
	}

	// rank 0 reads the metadata file for everyone
	var data []byte
	var readErr error
	if c.Rank() == 0 {
		data, readErr = config.ReadMetadata(dir)
	}
	if err := agree(ctx, c, readErr); err != nil {
		return nil, err
	}
	if data, err = c.Bcast(ctx, 0, data); err != nil {
		return nil, err
	}

	m, openErr := config.DecodeMetadata(data)
	var p *config.Pipeline
	if openErr == nil {
		p, openErr = m.Pipeline(dir, d.configOpts...)
	}
	if err := agree(ctx, c, openErr); err != nil {
		return nil, err
	}
	if err := d.init(p); err != nil {
		return nil, err
	}
	d.timeSteps = slices.Clone(m.TimeSteps)

	return d, nil
}

// agree returns err on the ranks that failed and ErrCommFailed on the others, so that every
// rank of c stops at the same point. It is collective over c.
func agree(ctx context.Context, c *comm.Comm, err error) error {
	failed := 0
	if err != nil {
		failed = 1
	}
	all, gerr := c.AllgatherInts(ctx, []int{failed})
	if gerr != nil {
		return gerr
	}
	if err != nil {
		return err
	}
	for r, v := range all {
		if v[0] != 0 {
			return fmt.Errorf("%w: rank %d failed", errs.ErrCommFailed, r)
		}
	}

	return nil
}

// Pipeline returns the derived pipeline context.
func (d *Dataset) Pipeline() *config.Pipeline { return d.pipeline }

// Comm returns the communicator the dataset runs on.
func (d *Dataset) Comm() *comm.Comm { return d.comm }

// TimeSteps returns the time steps written so far, ascending.
func (d *Dataset) TimeSteps() []int { return slices.Clone(d.timeSteps) }

func (d *Dataset) fileOptions() []fileio.Option {
	return []fileio.Option{
		fileio.WithLogger(d.logger),
		fileio.WithConcurrency(d.ioConcurrency),
	}
}

// recordTimeStep adds step to the time steps and rewrites the metadata file from rank 0.
func (d *Dataset) recordTimeStep(ctx context.Context, step int) error {
	if !slices.Contains(d.timeSteps, step) {
		d.timeSteps = append(d.timeSteps, step)
		slices.Sort(d.timeSteps)
	}

	var err error
	if d.comm.Rank() == 0 {
		err = config.SaveMetadata(d.pipeline.MetadataPath(), d.pipeline.Metadata(d.timeSteps))
	}

	return agree(ctx, d.comm, err)
}
