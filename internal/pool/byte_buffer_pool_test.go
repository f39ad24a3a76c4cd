package pool

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestByteBuffer_WriteAndExtend(t *testing.T) {
	bb := NewByteBuffer(4)
	n, err := bb.Write([]byte{1, 2, 3})
	require.NoError(t, err)
	require.Equal(t, 3, n)

	ext := bb.Extend(5)
	require.Len(t, ext, 5)
	ext[0] = 9
	require.Equal(t, []byte{1, 2, 3, 9, 0, 0, 0, 0}, bb.Bytes())
	require.Equal(t, 8, bb.Len())

	var out bytes.Buffer
	written, err := bb.WriteTo(&out)
	require.NoError(t, err)
	require.Equal(t, int64(8), written)
	require.Equal(t, bb.Bytes(), out.Bytes())

	bb.Reset()
	require.Zero(t, bb.Len())
	require.GreaterOrEqual(t, bb.Cap(), 8)
}

func TestByteBuffer_ExtendClearsReusedBytes(t *testing.T) {
	bb := NewByteBuffer(8)
	_, _ = bb.Write([]byte{7, 7, 7, 7})
	bb.Reset()

	require.Equal(t, []byte{0, 0, 0, 0}, bb.Extend(4))
}

func TestByteBuffer_Grow(t *testing.T) {
	bb := NewByteBuffer(0)
	bb.Grow(10)
	require.GreaterOrEqual(t, bb.Cap(), byteBufferGrowSmallBuffers)

	big := NewByteBuffer(1 << 20)
	_, _ = big.Write(make([]byte, 1<<20))
	big.Grow(1)
	require.GreaterOrEqual(t, big.Cap(), (1<<20)+(1<<18))
}

func TestByteBufferPool_DropsOversized(t *testing.T) {
	p := NewByteBufferPool(16, 64)
	bb := p.Get()
	require.Zero(t, bb.Len())

	_, _ = bb.Write(make([]byte, 32))
	p.Put(bb)
	reused := p.Get()
	require.Zero(t, reused.Len())

	p.Put(nil)
}

func TestDefaultPools(t *testing.T) {
	h := GetHeaderBuffer()
	require.GreaterOrEqual(t, h.Cap(), HeaderBufferDefaultSize)
	PutHeaderBuffer(h)

	f := GetFrameBuffer()
	require.GreaterOrEqual(t, f.Cap(), FrameBufferDefaultSize)
	PutFrameBuffer(f)
}
