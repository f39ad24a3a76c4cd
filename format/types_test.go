package format

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseTypeString(t *testing.T) {
	tests := []struct {
		in     string
		values int
		typ    DataType
		bits   int
	}{
		{"float32", 1, TypeFloat32, 32},
		{"1*float64", 1, TypeFloat64, 64},
		{"3*float32", 3, TypeFloat32, 32},
		{"4*uint8", 4, TypeUint8, 8},
		{"2*int16", 2, TypeInt16, 16},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			n, d, err := ParseTypeString(tt.in)
			require.NoError(t, err)
			require.Equal(t, tt.values, n)
			require.Equal(t, tt.typ, d)
			require.Equal(t, tt.bits, d.Bits())
		})
	}

	t.Run("RoundTrip", func(t *testing.T) {
		n, d, err := ParseTypeString(TypeString(3, TypeFloat64))
		require.NoError(t, err)
		require.Equal(t, 3, n)
		require.Equal(t, TypeFloat64, d)
	})

	t.Run("Invalid", func(t *testing.T) {
		for _, s := range []string{"", "float16", "0*float32", "x*float32", "3*"} {
			_, _, err := ParseTypeString(s)
			require.Error(t, err, s)
		}
	})
}

func TestCompressionType(t *testing.T) {
	for _, c := range []CompressionType{CompressionNone, CompressionZstd, CompressionS2, CompressionLZ4} {
		parsed, err := ParseCompressionType(c.String())
		require.NoError(t, err)
		require.Equal(t, c, parsed)
	}

	require.Equal(t, "Unknown", CompressionType(0xFF).String())
	_, err := ParseCompressionType("brotli")
	require.Error(t, err)
}

func TestByteOrderAndModes(t *testing.T) {
	b, err := ParseByteOrder("BIG")
	require.NoError(t, err)
	require.Equal(t, BigEndian, b)
	require.Equal(t, "little", LittleEndian.String())

	m, err := ParseAggregationMode("one-sided")
	require.NoError(t, err)
	require.Equal(t, AggregationOneSided, m)

	m, err = ParseAggregationMode("")
	require.NoError(t, err)
	require.Equal(t, AggregationP2P, m)

	require.Equal(t, "column-major", ColumnMajor.String())
	require.Equal(t, "row-major", RowMajor.String())
}
