package layout

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/hzvol/grid"
	"github.com/arloliu/hzvol/hz"
)

// bruteForcePresence marks a block present when any of its indices inside the window maps into
// bounds.
func bruteForcePresence(curve *hz.Curve, bounds grid.Box, bitsPerBlock, from, to int) map[uint64]bool {
	present := make(map[uint64]bool)
	for idx := uint64(0); idx < curve.Total(); idx++ {
		level := hz.Level(idx)
		if level < from || level >= to {
			continue
		}
		if bounds.Contains(curve.HZToXYZ(idx)) {
			present[idx>>bitsPerBlock] = true
		}
	}

	return present
}

func TestBuild_FullCube(t *testing.T) {
	curve := hz.MustCurve(hz.DeriveBitPattern(grid.Point3d{8, 8, 8}))
	l := Build(grid.NewBox(grid.Point3d{}, grid.Point3d{8, 8, 8}), curve, 2, 0, curve.Levels())

	require.Equal(t, uint64(128), l.TotalBlocks())
	require.Equal(t, uint64(128), l.PresentCount())
	require.Equal(t, 32, l.FileCount(4))
	for b := uint64(0); b < l.TotalBlocks(); b++ {
		require.True(t, l.IsPresent(b))
		require.Zero(t, l.NegativeOffset(4, b))
	}
	require.False(t, l.IsPresent(128))

	// block 0 is recorded for each of its two levels
	require.Equal(t, []uint32{0}, l.BlocksAtLevel(0))
	require.Equal(t, []uint32{0}, l.BlocksAtLevel(1))
	require.Equal(t, []uint32{1}, l.BlocksAtLevel(2))
	require.Equal(t, []uint32{2, 3}, l.BlocksAtLevel(3))
	require.Len(t, l.BlocksAtLevel(8), 64)
	require.Nil(t, l.BlocksAtLevel(9))
}

func TestBuild_MatchesBruteForce(t *testing.T) {
	tests := []struct {
		name     string
		bounds   grid.Box
		bpb      int
		from, to int
	}{
		{"5x3x1", grid.NewBox(grid.Point3d{}, grid.Point3d{5, 3, 1}), 1, 0, 99},
		{"7x5x3", grid.NewBox(grid.Point3d{}, grid.Point3d{7, 5, 3}), 2, 0, 99},
		{"7x5x3 window", grid.NewBox(grid.Point3d{}, grid.Point3d{7, 5, 3}), 2, 3, 6},
		{"offset box", grid.NewBox(grid.Point3d{3, 2, 1}, grid.Point3d{4, 5, 2}), 3, 0, 99},
		{"large blocks", grid.NewBox(grid.Point3d{}, grid.Point3d{6, 6, 6}), 5, 0, 99},
		{"block 0 partially in window", grid.NewBox(grid.Point3d{}, grid.Point3d{6, 6, 6}), 4, 2, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dims := tt.bounds.End()
			curve := hz.MustCurve(hz.DeriveBitPattern(dims))
			l := Build(tt.bounds, curve, tt.bpb, tt.from, tt.to)
			expected := bruteForcePresence(curve, tt.bounds, tt.bpb, tt.from, min(tt.to, curve.Levels()))

			for b := uint64(0); b < l.TotalBlocks(); b++ {
				require.Equal(t, expected[b], l.IsPresent(b), "block %d", b)
			}
			require.Equal(t, uint64(len(expected)), l.PresentCount())
		})
	}
}

func TestBuild_PresenceConsistency(t *testing.T) {
	bounds := grid.NewBox(grid.Point3d{}, grid.Point3d{7, 6, 5})
	curve := hz.MustCurve(hz.DeriveBitPattern(bounds.Size))
	bpb := 2
	from, to := 3, 7
	l := Build(bounds, curve, bpb, from, to)

	recorded := make(map[uint64]bool)
	for level := from; level < to; level++ {
		for _, b := range l.BlocksAtLevel(level) {
			recorded[uint64(b)] = true
			if b != 0 {
				require.Equal(t, level, BlockLevel(uint64(b), bpb))
			}
		}
	}

	for b := uint64(1); b < l.TotalBlocks(); b++ {
		level := BlockLevel(b, bpb)
		want := level >= from && level < to && recorded[b]
		require.Equal(t, want, l.IsPresent(b), "block %d level %d", b, level)
	}
}

func TestNegativeOffset(t *testing.T) {
	bounds := grid.NewBox(grid.Point3d{}, grid.Point3d{5, 7, 3})
	curve := hz.MustCurve(hz.DeriveBitPattern(bounds.Size))
	l := Build(bounds, curve, 2, 0, curve.Levels())
	bpf := 4

	require.Less(t, l.PresentCount(), l.TotalBlocks())

	for f := 0; f < l.FileCount(bpf); f++ {
		first, end := l.FileBlocks(bpf, f)
		absent := uint64(0)
		present := uint64(0)
		for b := first; b < end; b++ {
			require.Equal(t, absent, l.NegativeOffset(bpf, b), "block %d", b)
			if l.IsPresent(b) {
				present++
			} else {
				absent++
			}
		}
		require.Equal(t, present, l.PresentBlocksInFile(bpf, f))
		require.Equal(t, present > 0, l.IsFilePresent(bpf, f))
		require.Len(t, l.PresentBlocksIn(first, end), int(present))
	}
}

func TestBuild_EmptyBounds(t *testing.T) {
	curve := hz.MustCurve("V012012")
	l := Build(grid.NewBox(grid.Point3d{}, grid.Point3d{4, 0, 4}), curve, 2, 0, curve.Levels())

	require.True(t, l.Empty())
	require.Zero(t, l.PresentCount())
	require.False(t, l.IsPresent(0))
	require.Equal(t, uint64(16), l.TotalBlocks())
	require.Empty(t, l.PresentBlocksIn(0, l.TotalBlocks()))
}

func TestBlockLevel(t *testing.T) {
	require.Equal(t, 0, BlockLevel(0, 2))
	require.Equal(t, 2, BlockLevel(1, 2))
	require.Equal(t, 3, BlockLevel(2, 2))
	require.Equal(t, 3, BlockLevel(3, 2))
	require.Equal(t, 4, BlockLevel(4, 2))
	require.Equal(t, 8, BlockLevel(127, 2))

	require.Equal(t, uint64(1), TotalBlocks(3, 5))
	require.Equal(t, uint64(128), TotalBlocks(9, 2))
}
