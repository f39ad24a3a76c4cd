package pool

import "sync"

var (
	byteSlicePool = sync.Pool{
		New: func() any { return &[]byte{} },
	}
	uint64SlicePool = sync.Pool{
		New: func() any { return &[]uint64{} },
	}
)

// GetByteSlice returns a zeroed byte slice of length size from the pool.
//
// The caller must call the returned cleanup function once the slice is no longer referenced.
//
// Example:
//
//	scratch, cleanup := pool.GetByteSlice(n)
//	defer cleanup()
func GetByteSlice(size int) ([]byte, func()) {
	ptr, _ := byteSlicePool.Get().(*[]byte)
	slice := *ptr

	if cap(slice) < size {
		slice = make([]byte, size)
	} else {
		slice = slice[:size]
		clear(slice)
	}
	*ptr = slice

	return slice, func() { byteSlicePool.Put(ptr) }
}

// GetUint64Slice returns a uint64 slice of length size from the pool. Its contents are
// unspecified.
//
// Parameters:
//   - size: the desired length
//
// Returns:
//   - []uint64: a slice of length size
//   - func(): cleanup returning the slice to the pool
func GetUint64Slice(size int) ([]uint64, func()) {
	ptr, _ := uint64SlicePool.Get().(*[]uint64)
	slice := *ptr

	if cap(slice) < size {
		slice = make([]uint64, size)
	} else {
		slice = slice[:size]
	}
	*ptr = slice

	return slice, func() { uint64SlicePool.Put(ptr) }
}
