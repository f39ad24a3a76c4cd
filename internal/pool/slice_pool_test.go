package pool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetByteSlice(t *testing.T) {
	s, cleanup := GetByteSlice(16)
	require.Len(t, s, 16)
	for i := range s {
		s[i] = 0xff
	}
	cleanup()

	s2, cleanup2 := GetByteSlice(8)
	defer cleanup2()
	require.Len(t, s2, 8)
	require.Equal(t, make([]byte, 8), s2)
}

func TestGetUint64Slice(t *testing.T) {
	s, cleanup := GetUint64Slice(100)
	defer cleanup()
	require.Len(t, s, 100)

	small, cleanupSmall := GetUint64Slice(0)
	defer cleanupSmall()
	require.Empty(t, small)
}
