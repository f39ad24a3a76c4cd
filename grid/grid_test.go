package grid

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPoint3d_Arithmetic(t *testing.T) {
	p := Point3d{6, 4, 2}
	q := Point3d{3, 2, 1}

	require.Equal(t, Point3d{9, 6, 3}, p.Add(q))
	require.Equal(t, Point3d{3, 2, 1}, p.Sub(q))
	require.Equal(t, Point3d{18, 8, 2}, p.Mul(q))
	require.Equal(t, Point3d{2, 2, 2}, p.Div(q))
	require.Equal(t, p, p.Sub(q).Add(q))
}

func TestBox_Intersect(t *testing.T) {
	a := NewBox(Point3d{0, 0, 0}, Point3d{8, 8, 8})
	b := NewBox(Point3d{4, 6, -2}, Point3d{8, 8, 4})

	r := a.Intersect(b)
	require.Equal(t, Point3d{4, 6, 0}, r.Offset)
	require.Equal(t, Point3d{4, 2, 2}, r.Size)
	require.Equal(t, 16, r.Volume())
	require.True(t, a.Intersects(b))

	c := NewBox(Point3d{8, 0, 0}, Point3d{2, 2, 2})
	require.True(t, a.Intersect(c).Empty())
	require.False(t, a.Intersects(c))
	require.Equal(t, 0, a.Intersect(c).Volume())
}

func TestBox_Contains(t *testing.T) {
	b := NewBox(Point3d{2, 2, 2}, Point3d{3, 4, 5})

	require.True(t, b.Contains(Point3d{2, 2, 2}))
	require.True(t, b.Contains(Point3d{4, 5, 6}))
	require.False(t, b.Contains(Point3d{5, 5, 6}))
	require.False(t, b.Contains(Point3d{1, 2, 2}))

	require.True(t, b.ContainsBox(NewBox(Point3d{3, 3, 3}, Point3d{1, 1, 1})))
	require.False(t, b.ContainsBox(NewBox(Point3d{3, 3, 3}, Point3d{3, 1, 1})))
}

func TestBox_LinearOffset(t *testing.T) {
	b := NewBox(Point3d{10, 20, 30}, Point3d{4, 3, 2})

	for i := 0; i < b.Volume(); i++ {
		p := b.PointAt(i)
		require.True(t, b.Contains(p))
		require.Equal(t, i, b.LinearOffset(p))
	}

	require.Equal(t, 0, b.ColumnOffset(Point3d{10, 20, 30}))
	require.Equal(t, 1, b.ColumnOffset(Point3d{10, 20, 31}))
	require.Equal(t, 2, b.ColumnOffset(Point3d{10, 21, 30}))
	require.Equal(t, 6, b.ColumnOffset(Point3d{11, 20, 30}))
}

func TestBox_Rows(t *testing.T) {
	b := NewBox(Point3d{1, 1, 1}, Point3d{3, 2, 2})

	var rows []Row
	b.Rows(func(r Row) bool {
		rows = append(rows, r)
		return true
	})

	require.Len(t, rows, 4)
	require.Equal(t, Row{Start: Point3d{1, 1, 1}, Length: 3}, rows[0])
	require.Equal(t, Row{Start: Point3d{1, 2, 2}, Length: 3}, rows[3])

	count := 0
	b.Rows(func(Row) bool {
		count++
		return false
	})
	require.Equal(t, 1, count)
}

func TestPow2Helpers(t *testing.T) {
	require.Equal(t, 1, NextPow2(0))
	require.Equal(t, 1, NextPow2(1))
	require.Equal(t, 2, NextPow2(2))
	require.Equal(t, 8, NextPow2(5))
	require.Equal(t, 64, NextPow2(64))
	require.Equal(t, 128, NextPow2(65))

	require.True(t, IsPow2(16))
	require.False(t, IsPow2(12))
	require.False(t, IsPow2(0))

	require.Equal(t, 0, Log2(1))
	require.Equal(t, 3, Log2(8))
	require.Equal(t, 3, Log2(15))

	require.Equal(t, Point3d{8, 1, 4}, Point3d{5, 0, 3}.Pow2())
	require.Equal(t, Point3d{3, 2, 1}, Point3d{9, 5, 4}.CeilDiv(Point3d{4, 4, 4}))
}
