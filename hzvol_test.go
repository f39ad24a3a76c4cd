package hzvol

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/hzvol/comm"
	"github.com/arloliu/hzvol/config"
	"github.com/arloliu/hzvol/errs"
	"github.com/arloliu/hzvol/format"
	"github.com/arloliu/hzvol/grid"
	"github.com/arloliu/hzvol/logging"
	"github.com/arloliu/hzvol/patch"
	"github.com/arloliu/hzvol/verify"
)

func TestMain(m *testing.M) {
	logging.SetMode(logging.SilentMode)
	os.Exit(m.Run())
}

func TestRun(t *testing.T) {
	t.Run("every rank runs", func(t *testing.T) {
		seen := make([]bool, 3)
		err := Run(context.Background(), 3, func(_ context.Context, c *comm.Comm) error {
			seen[c.Rank()] = true
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, []bool{true, true, true}, seen)
	})

	t.Run("first error cancels the others", func(t *testing.T) {
		boom := errors.New("boom")
		err := Run(context.Background(), 2, func(ctx context.Context, c *comm.Comm) error {
			if c.Rank() == 1 {
				return boom
			}
			// rank 1 never reaches the barrier
			return c.Barrier(ctx)
		})
		require.ErrorIs(t, err, boom)
	})

	t.Run("empty world", func(t *testing.T) {
		err := Run(context.Background(), 0, func(context.Context, *comm.Comm) error { return nil })
		require.ErrorIs(t, err, errs.ErrInvalidRank)
	})
}

// TestDataset_ReopenWithFewerRanks writes from two ranks and reads the whole domain back from
// one.
func TestDataset_ReopenWithFewerRanks(t *testing.T) {
	dir := t.TempDir()
	bounds := grid.Point3d{8, 6, 4}
	v := patch.NewVariable("temperature", 1, format.TypeFloat64)
	cfg, err := config.New(dir, bounds, []patch.Variable{v},
		config.WithBitsPerBlock(3),
		config.WithBlocksPerFile(2),
		config.WithCompression(format.CompressionS2, 0),
	)
	require.NoError(t, err)
	domain := grid.NewBox(grid.Point3d{}, bounds)

	err = Run(context.Background(), 2, func(ctx context.Context, c *comm.Comm) error {
		ds, err := CreateDataset(ctx, c, cfg)
		if err != nil {
			return err
		}
		box := grid.NewBox(grid.Point3d{4 * c.Rank(), 0, 0}, grid.Point3d{4, 6, 4})
		p, err := verify.NewPatch(c.Rank(), 0, box, domain, v)
		if err != nil {
			return err
		}

		return ds.Write(ctx, 5, [][]*patch.Patch{{p}})
	})
	require.NoError(t, err)

	var report verify.Report
	var steps []int
	err = Run(context.Background(), 1, func(ctx context.Context, c *comm.Comm) error {
		ds, err := OpenDataset(ctx, c, dir)
		if err != nil {
			return err
		}
		steps = ds.TimeSteps()

		p := patch.NewPatch(0, 0, domain, v.BytesPerSample())
		masks, err := ds.Read(ctx, 5, [][]*patch.Patch{{p}})
		if err != nil {
			return err
		}
		report = verify.Check(p, domain, v, masks[0], domain.Volume())

		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []int{5}, steps)
	require.True(t, report.Passed, report.String())
	require.Equal(t, domain.Volume(), report.Volume)
}
