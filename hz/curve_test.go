package hz

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/hzvol/errs"
	"github.com/arloliu/hzvol/grid"
)

func TestDeriveBitPattern(t *testing.T) {
	tests := []struct {
		dims grid.Point3d
		want BitPattern
	}{
		{grid.Point3d{1, 1, 1}, "V"},
		{grid.Point3d{2, 1, 1}, "V0"},
		{grid.Point3d{8, 8, 8}, "V012012012"},
		{grid.Point3d{8, 2, 2}, "V00012"},
		{grid.Point3d{5, 3, 1}, "V001"},
		{grid.Point3d{1, 1, 4}, "V22"},
	}

	for _, tt := range tests {
		t.Run(tt.dims.String(), func(t *testing.T) {
			got := DeriveBitPattern(tt.dims)
			require.Equal(t, tt.want, got)
			require.NoError(t, got.Validate())
			require.Equal(t, tt.dims.Pow2(), got.Dims())
		})
	}
}

func TestComposeBitPattern(t *testing.T) {
	p := ComposeBitPattern(grid.Point3d{2, 1, 1}, grid.Point3d{2, 2, 1}, grid.Point3d{4, 4, 4})
	require.Equal(t, BitPattern("V0"+"01"+"012012"), p)
	require.Equal(t, grid.Point3d{16, 8, 4}, p.Dims())

	// every restructuring box is a contiguous aligned Z range
	c := MustCurve(p)
	boxVolume := uint64(64)
	box := grid.NewBox(grid.Point3d{4, 4, 0}, grid.Point3d{4, 4, 4})
	var lo, hi uint64 = ^uint64(0), 0
	for i := 0; i < box.Volume(); i++ {
		z := c.XYZToZ(box.PointAt(i))
		lo = min(lo, z)
		hi = max(hi, z)
	}
	require.Equal(t, boxVolume-1, hi-lo)
	require.Zero(t, lo%boxVolume)
}

func TestBitPattern_Validate(t *testing.T) {
	require.NoError(t, BitPattern("V").Validate())
	require.Error(t, BitPattern("").Validate())
	require.Error(t, BitPattern("012").Validate())
	require.Error(t, BitPattern("V013").Validate())
}

func TestCurve_RoundTrip(t *testing.T) {
	patterns := []BitPattern{"V", "V0", "V012012012", "V00012", "V22101", "V2102100"}

	for _, p := range patterns {
		t.Run(string(p), func(t *testing.T) {
			c := MustCurve(p)
			cube := grid.NewBox(grid.Point3d{}, c.Dims())
			seen := make(map[uint64]bool, cube.Volume())

			for i := 0; i < cube.Volume(); i++ {
				pt := cube.PointAt(i)
				idx := c.XYZToHZ(pt)
				require.Less(t, idx, c.Total())
				require.False(t, seen[idx], "index %d assigned twice", idx)
				seen[idx] = true
				require.Equal(t, pt, c.HZToXYZ(idx))
				lin, err := XYZToLinear(p, p.MaxH(), pt)
				require.NoError(t, err)
				require.Equal(t, idx, lin)
				back, err := LinearToXYZ(p, p.MaxH(), idx)
				require.NoError(t, err)
				require.Equal(t, pt, back)
			}
			require.Len(t, seen, cube.Volume())
		})
	}
}

func TestLinear_Levels(t *testing.T) {
	p := BitPattern("V012012012")

	// a shorter prefix is the curve of the coarser cube
	coarse := MustCurve("V0120")
	for i := uint64(0); i < coarse.Total(); i++ {
		pt, err := LinearToXYZ(p, 4, i)
		require.NoError(t, err)
		require.Equal(t, coarse.HZToXYZ(i), pt)
	}

	for _, level := range []int{-1, p.MaxH() + 1, 64} {
		_, err := XYZToLinear(p, level, grid.Point3d{})
		require.ErrorIs(t, err, errs.ErrInvalidBitPattern)
		_, err = LinearToXYZ(p, level, 0)
		require.ErrorIs(t, err, errs.ErrInvalidBitPattern)
	}

	_, err := XYZToLinear("012", 1, grid.Point3d{})
	require.ErrorIs(t, err, errs.ErrInvalidBitPattern)
}

func TestCurve_ZHZ(t *testing.T) {
	c := MustCurve("V012012012")

	require.Equal(t, uint64(0), c.ZToHZ(0))
	require.Equal(t, uint64(1), c.ZToHZ(1<<8))
	for z := uint64(0); z < c.Total(); z++ {
		require.Equal(t, z, c.HZToZ(c.ZToHZ(z)))
	}
}

func TestCurve_MultiresolutionPrefix(t *testing.T) {
	c := MustCurve("V012012012")

	// the prefix [0, 2^L) is a regular sampling whose stride halves per extra level
	for L := 1; L <= c.MaxH(); L++ {
		count := PrefixCount(L)
		points := make(map[grid.Point3d]bool, count)
		var stride grid.Point3d
		for d := 0; d < grid.NumDims; d++ {
			stride[d] = c.Dims()[d]
		}
		for i := 1; i <= L; i++ {
			stride[c.axis[i]] /= 2
		}

		for idx := uint64(0); idx < count; idx++ {
			p := c.HZToXYZ(idx)
			require.Zero(t, p[0]%stride[0])
			require.Zero(t, p[1]%stride[1])
			require.Zero(t, p[2]%stride[2])
			points[p] = true
		}
		require.Len(t, points, int(count))
		require.Equal(t, int(count), c.Dims().Div(stride).Prod())

		if L > 1 {
			// every point of the coarser prefix is still addressed by the same index
			for idx := uint64(0); idx < PrefixCount(L-1); idx++ {
				require.True(t, points[c.HZToXYZ(idx)])
			}
		}
	}
}

func TestLevel(t *testing.T) {
	require.Equal(t, 0, Level(0))
	require.Equal(t, 0, Level(1))
	require.Equal(t, 1, Level(2))
	require.Equal(t, 1, Level(3))
	require.Equal(t, 2, Level(4))
	require.Equal(t, 8, Level(511))

	for L := 0; L < 10; L++ {
		require.Equal(t, L, Level(LevelStart(L)))
		require.Equal(t, L, Level(LevelEnd(L)))
	}

	c := MustCurve("V012012012")
	require.Equal(t, 9, c.Levels())
	var total uint64
	for L := 0; L < c.Levels(); L++ {
		total += c.LevelCount(L)
	}
	require.Equal(t, c.Total(), total)
	require.Equal(t, uint64(0), c.LevelCount(9))

	single := MustCurve("V")
	require.Equal(t, 1, single.Levels())
	require.Equal(t, uint64(1), single.LevelCount(0))
	require.Equal(t, uint64(0), single.LevelEnd(0))
}

func TestCurve_Lattice(t *testing.T) {
	c := MustCurve("V00012012")

	for level := 1; level < c.Levels(); level++ {
		for _, count := range []uint64{1, 2, 4} {
			if count > c.LevelCount(level) {
				continue
			}
			for first := LevelStart(level); first <= c.LevelEnd(level); first += count {
				lat := c.Lattice(first, count)

				expected := make(map[grid.Point3d]bool)
				for idx := first; idx < first+count; idx++ {
					expected[c.HZToXYZ(idx)] = true
				}

				got := make(map[grid.Point3d]bool)
				for x := lat.Min[0]; x <= lat.Max[0]; x += lat.Stride[0] {
					for y := lat.Min[1]; y <= lat.Max[1]; y += lat.Stride[1] {
						for z := lat.Min[2]; z <= lat.Max[2]; z += lat.Stride[2] {
							got[grid.Point3d{x, y, z}] = true
						}
					}
				}
				require.Equal(t, expected, got, "level %d first %d count %d", level, first, count)
			}
		}
	}
}

func TestLattice_Intersects(t *testing.T) {
	l := Lattice{Min: grid.Point3d{0, 0, 0}, Max: grid.Point3d{12, 0, 0}, Stride: grid.Point3d{4, 1, 1}}

	require.True(t, l.Intersects(grid.NewBox(grid.Point3d{0, 0, 0}, grid.Point3d{1, 1, 1})))
	require.True(t, l.Intersects(grid.NewBox(grid.Point3d{3, 0, 0}, grid.Point3d{2, 1, 1})))
	require.False(t, l.Intersects(grid.NewBox(grid.Point3d{5, 0, 0}, grid.Point3d{3, 1, 1})))
	require.False(t, l.Intersects(grid.NewBox(grid.Point3d{13, 0, 0}, grid.Point3d{8, 1, 1})))
	require.False(t, l.Intersects(grid.NewBox(grid.Point3d{0, 1, 0}, grid.Point3d{8, 1, 1})))
	require.False(t, l.Intersects(grid.Box{}))
}

func BenchmarkCurve_XYZToHZ(b *testing.B) {
	c := MustCurve("V012012012012012012")
	p := grid.Point3d{37, 12, 59}

	b.ReportAllocs()
	for b.Loop() {
		_ = c.XYZToHZ(p)
	}
}

func BenchmarkCurve_HZToXYZ(b *testing.B) {
	c := MustCurve("V012012012012012012")

	b.ReportAllocs()
	for b.Loop() {
		_ = c.HZToXYZ(123456)
	}
}
