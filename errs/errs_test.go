package errs

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"config", ErrInvalidBox, KindConfig},
		{"comm", ErrCommFailed, KindComm},
		{"alloc", ErrAllocation, KindAlloc},
		{"io", ErrWriteFailed, KindIO},
		{"format", ErrInvalidHeaderSize, KindFormat},
		{"wrapped once", fmt.Errorf("%w: size 0x0x4", ErrInvalidBox), KindConfig},
		{"wrapped twice", Wrap("restructure", fmt.Errorf("%w: rank 3", ErrCommFailed)), KindComm},
		{"unclassified", os.ErrNotExist, KindUnknown},
		{"nil", nil, KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestWrap(t *testing.T) {
	require.NoError(t, Wrap("op", nil))

	err := Wrap("fileio.write", fmt.Errorf("%w: file 3", ErrShortWrite))
	require.ErrorIs(t, err, ErrShortWrite)
	require.Equal(t, "fileio.write: short write: file 3", err.Error())

	var e *Error
	require.True(t, errors.As(err, &e))
	require.Equal(t, "fileio.write", e.Op)
}

func TestKind_String(t *testing.T) {
	require.Equal(t, "config", KindConfig.String())
	require.Equal(t, "comm", KindComm.String())
	require.Equal(t, "alloc", KindAlloc.String())
	require.Equal(t, "io", KindIO.String())
	require.Equal(t, "format", KindFormat.String())
	require.Equal(t, "unknown", Kind(99).String())
}
