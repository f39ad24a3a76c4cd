package compress

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/hzvol/errs"
	"github.com/arloliu/hzvol/format"
)

// smoothField returns float32 samples of a slowly varying field, the typical content of a chunk.
func smoothField(n int) []byte {
	buf := make([]byte, 4*n)
	for i := range n {
		v := float32(math.Sin(float64(i)/64.0) * 100)
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}

	return buf
}

func TestCodecs_RoundTrip(t *testing.T) {
	inputs := map[string][]byte{
		"zeros":  make([]byte, 8192),
		"smooth": smoothField(4096),
		"short":  []byte("hz"),
	}

	tests := []struct {
		typ   format.CompressionType
		level int
	}{
		{format.CompressionNone, DefaultLevel},
		{format.CompressionZstd, DefaultLevel},
		{format.CompressionZstd, 1},
		{format.CompressionZstd, 19},
		{format.CompressionS2, DefaultLevel},
		{format.CompressionS2, 2},
		{format.CompressionS2, 3},
		{format.CompressionLZ4, DefaultLevel},
		{format.CompressionLZ4, 9},
	}

	for _, tt := range tests {
		codec, err := New(tt.typ, tt.level)
		require.NoError(t, err)
		require.Equal(t, tt.typ, codec.Type())

		for name, in := range inputs {
			t.Run(tt.typ.String()+"/"+name, func(t *testing.T) {
				compressed, err := codec.Compress(in)
				if errors.Is(err, ErrIncompressible) {
					return
				}
				require.NoError(t, err)

				reader, err := Get(tt.typ)
				require.NoError(t, err)
				out, err := reader.Decompress(compressed)
				require.NoError(t, err)
				require.True(t, bytes.Equal(in, out))
			})
		}
	}
}

func TestCodecs_Empty(t *testing.T) {
	for _, typ := range []format.CompressionType{format.CompressionZstd, format.CompressionS2, format.CompressionLZ4} {
		codec, err := Get(typ)
		require.NoError(t, err)

		out, err := codec.Compress(nil)
		require.NoError(t, err)
		require.Empty(t, out)

		out, err = codec.Decompress(nil)
		require.NoError(t, err)
		require.Empty(t, out)
	}
}

func TestCodecs_ZerosShrink(t *testing.T) {
	in := make([]byte, 1<<16)
	for _, typ := range []format.CompressionType{format.CompressionZstd, format.CompressionS2, format.CompressionLZ4} {
		codec, err := Get(typ)
		require.NoError(t, err)

		out, err := codec.Compress(in)
		require.NoError(t, err)
		require.Less(t, len(out), len(in)/10, typ.String())
	}
}

func TestCodecs_CorruptInput(t *testing.T) {
	garbage := []byte{0xde, 0xad, 0xbe, 0xef, 0x01, 0x02, 0x03}
	for _, typ := range []format.CompressionType{format.CompressionZstd, format.CompressionS2} {
		codec, err := Get(typ)
		require.NoError(t, err)

		_, err = codec.Decompress(garbage)
		require.Error(t, err, typ.String())
	}
}

func TestNew_Invalid(t *testing.T) {
	_, err := New(format.CompressionType(0x9), 0)
	require.ErrorIs(t, err, errs.ErrInvalidCompression)

	_, err = New(format.CompressionZstd, 23)
	require.ErrorIs(t, err, errs.ErrInvalidCompression)

	_, err = New(format.CompressionLZ4, -1)
	require.ErrorIs(t, err, errs.ErrInvalidCompression)

	_, err = Get(format.CompressionType(0))
	require.ErrorIs(t, err, errs.ErrInvalidCompression)
}

func TestNoOp_PassThrough(t *testing.T) {
	in := []byte{1, 2, 3}
	codec := NewNoOpCompressor()

	out, err := codec.Compress(in)
	require.NoError(t, err)
	require.Same(t, &in[0], &out[0])
}

func TestStats(t *testing.T) {
	var s Stats
	require.Zero(t, s.Ratio())
	require.Zero(t, s.SpaceSavings())

	s.Add(100, 25)
	s.Add(100, 25)
	require.InDelta(t, 0.25, s.Ratio(), 1e-9)
	require.InDelta(t, 75.0, s.SpaceSavings(), 1e-9)
}

func BenchmarkCompress(b *testing.B) {
	in := smoothField(1 << 14)
	for _, typ := range []format.CompressionType{format.CompressionZstd, format.CompressionS2, format.CompressionLZ4} {
		codec, err := Get(typ)
		require.NoError(b, err)

		b.Run(typ.String(), func(b *testing.B) {
			b.SetBytes(int64(len(in)))
			b.ReportAllocs()
			for b.Loop() {
				_, _ = codec.Compress(in)
			}
		})
	}
}
