// Package endian provides byte order utilities for the on-disk block tables and sample payloads.
//
// Two different byte orders are involved when a dataset is written:
//
//   - The block header table is always big-endian (network order), independent of the host.
//   - Sample payloads are stored in the dataset's configured byte order. When it differs from the
//     host order, every value is swapped in place right before the write and swapped back right
//     after the read.
//
// # Basic Usage
//
//	engine := endian.EngineFor(format.BigEndian)
//	engine.PutUint32(record[0:4], offset)
//
//	if endian.NeedsSwap(format.BigEndian) {
//	    endian.SwapInPlace(payload, 8)
//	}
//
// # Thread Safety
//
// All functions in this package are safe for concurrent use. The returned EndianEngine instances
// are immutable and stateless. SwapInPlace mutates its argument and must not race with other
// users of the same buffer.
package endian

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	"github.com/arloliu/hzvol/format"
)

// EndianEngine combines ByteOrder and AppendByteOrder interfaces from encoding/binary
// into a single interface for convenient byte order operations.
//
// This interface is satisfied by binary.LittleEndian and binary.BigEndian from
// the standard library.
type EndianEngine interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// CheckEndianness uses a fixed integer value to determine the host's byte order.
func CheckEndianness() binary.ByteOrder {
	// 0x0100 is 256. For a little-endian system, the LSB (0x00) is first.
	var i uint16 = 0x0100
	b := (*[2]byte)(unsafe.Pointer(&i))

	if b[0] == 0x01 {
		return binary.BigEndian
	}

	return binary.LittleEndian
}

// HostOrder returns the host byte order as a format.ByteOrder.
func HostOrder() format.ByteOrder {
	if CheckEndianness() == binary.BigEndian {
		return format.BigEndian
	}

	return format.LittleEndian
}

// NeedsSwap reports whether values must be swapped to convert between the host order and target.
func NeedsSwap(target format.ByteOrder) bool {
	return target != HostOrder()
}

// EngineFor returns the engine for the given byte order. Unknown orders map to little-endian.
func EngineFor(order format.ByteOrder) EndianEngine {
	if order == format.BigEndian {
		return binary.BigEndian
	}

	return binary.LittleEndian
}

// GetLittleEndianEngine returns the little-endian engine.
func GetLittleEndianEngine() EndianEngine {
	return binary.LittleEndian
}

// GetBigEndianEngine returns the big-endian engine, used for every block header table.
func GetBigEndianEngine() EndianEngine {
	return binary.BigEndian
}

// SwapInPlace reverses the byte order of every width-byte element of buf.
//
// Parameters:
//   - buf: Payload holding consecutive values; its length must be a multiple of width
//   - width: Element width in bytes (1, 2, 4 or 8); width 1 is a no-op
//
// Returns:
//   - error: If width is unsupported or buf is not a whole number of elements
func SwapInPlace(buf []byte, width int) error {
	if width != 1 && width != 2 && width != 4 && width != 8 {
		return fmt.Errorf("unsupported element width %d", width)
	}
	if len(buf)%width != 0 {
		return fmt.Errorf("buffer length %d is not a multiple of %d", len(buf), width)
	}

	switch width {
	case 2:
		for i := 0; i < len(buf); i += 2 {
			buf[i], buf[i+1] = buf[i+1], buf[i]
		}
	case 4:
		for i := 0; i < len(buf); i += 4 {
			buf[i], buf[i+1], buf[i+2], buf[i+3] = buf[i+3], buf[i+2], buf[i+1], buf[i]
		}
	case 8:
		for i := 0; i < len(buf); i += 8 {
			v := binary.LittleEndian.Uint64(buf[i:])
			binary.BigEndian.PutUint64(buf[i:], v)
		}
	}

	return nil
}
