package format

import (
	"fmt"
	"strconv"
	"strings"
)

type (
	DataType        uint8
	CompressionType uint8
	ByteOrder       uint8
	Order           uint8
	AggregationMode uint8
)

const (
	TypeUint8   DataType = 0x1 // TypeUint8 represents unsigned 8-bit integer values.
	TypeInt16   DataType = 0x2 // TypeInt16 represents signed 16-bit integer values.
	TypeUint16  DataType = 0x3 // TypeUint16 represents unsigned 16-bit integer values.
	TypeInt32   DataType = 0x4 // TypeInt32 represents signed 32-bit integer values.
	TypeUint32  DataType = 0x5 // TypeUint32 represents unsigned 32-bit integer values.
	TypeInt64   DataType = 0x6 // TypeInt64 represents signed 64-bit integer values.
	TypeUint64  DataType = 0x7 // TypeUint64 represents unsigned 64-bit integer values.
	TypeFloat32 DataType = 0x8 // TypeFloat32 represents IEEE-754 single precision values.
	TypeFloat64 DataType = 0x9 // TypeFloat64 represents IEEE-754 double precision values.

	CompressionNone CompressionType = 0x1 // CompressionNone represents no compression.
	CompressionZstd CompressionType = 0x2 // CompressionZstd represents Zstandard compression.
	CompressionS2   CompressionType = 0x3 // CompressionS2 represents S2 compression.
	CompressionLZ4  CompressionType = 0x4 // CompressionLZ4 represents LZ4 compression.

	LittleEndian ByteOrder = 0x1 // LittleEndian stores multi-byte values least significant byte first.
	BigEndian    ByteOrder = 0x2 // BigEndian stores multi-byte values most significant byte first.

	RowMajor    Order = 0x0 // RowMajor patches vary x fastest.
	ColumnMajor Order = 0x1 // ColumnMajor patches vary z fastest.

	AggregationP2P      AggregationMode = 0x1 // AggregationP2P moves slices with send/receive pairs.
	AggregationOneSided AggregationMode = 0x2 // AggregationOneSided puts slices into a fenced window.
)

func (d DataType) String() string {
	switch d {
	case TypeUint8:
		return "uint8"
	case TypeInt16:
		return "int16"
	case TypeUint16:
		return "uint16"
	case TypeInt32:
		return "int32"
	case TypeUint32:
		return "uint32"
	case TypeInt64:
		return "int64"
	case TypeUint64:
		return "uint64"
	case TypeFloat32:
		return "float32"
	case TypeFloat64:
		return "float64"
	default:
		return "Unknown"
	}
}

// Bits returns the width of one value of the type, or 0 for an unknown type.
func (d DataType) Bits() int {
	switch d {
	case TypeUint8:
		return 8
	case TypeInt16, TypeUint16:
		return 16
	case TypeInt32, TypeUint32, TypeFloat32:
		return 32
	case TypeInt64, TypeUint64, TypeFloat64:
		return 64
	default:
		return 0
	}
}

// ParseDataType parses a scalar type name such as "float32".
func ParseDataType(s string) (DataType, error) {
	for d := TypeUint8; d <= TypeFloat64; d++ {
		if d.String() == s {
			return d, nil
		}
	}

	return 0, fmt.Errorf("unknown data type: %q", s)
}

// TypeString renders a sample type in "<values>*<type>" form, e.g. "3*float32".
func TypeString(valuesPerSample int, d DataType) string {
	return strconv.Itoa(valuesPerSample) + "*" + d.String()
}

// ParseTypeString parses the "<values>*<type>" form produced by TypeString.
// A bare type name means one value per sample.
func ParseTypeString(s string) (int, DataType, error) {
	count, name, found := strings.Cut(s, "*")
	if !found {
		d, err := ParseDataType(s)
		return 1, d, err
	}

	n, err := strconv.Atoi(count)
	if err != nil || n <= 0 {
		return 0, 0, fmt.Errorf("invalid values per sample in %q", s)
	}

	d, err := ParseDataType(name)
	if err != nil {
		return 0, 0, err
	}

	return n, d, nil
}

func (c CompressionType) String() string {
	switch c {
	case CompressionNone:
		return "None"
	case CompressionZstd:
		return "Zstd"
	case CompressionS2:
		return "S2"
	case CompressionLZ4:
		return "LZ4"
	default:
		return "Unknown"
	}
}

// ParseCompressionType is the inverse of CompressionType.String, case-insensitive.
func ParseCompressionType(s string) (CompressionType, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return CompressionNone, nil
	case "zstd":
		return CompressionZstd, nil
	case "s2":
		return CompressionS2, nil
	case "lz4":
		return CompressionLZ4, nil
	default:
		return 0, fmt.Errorf("unknown compression type: %q", s)
	}
}

func (b ByteOrder) String() string {
	switch b {
	case LittleEndian:
		return "little"
	case BigEndian:
		return "big"
	default:
		return "Unknown"
	}
}

// ParseByteOrder accepts "little" or "big".
func ParseByteOrder(s string) (ByteOrder, error) {
	switch strings.ToLower(s) {
	case "little":
		return LittleEndian, nil
	case "big":
		return BigEndian, nil
	default:
		return 0, fmt.Errorf("unknown byte order: %q", s)
	}
}

func (o Order) String() string {
	if o == ColumnMajor {
		return "column-major"
	}

	return "row-major"
}

func (m AggregationMode) String() string {
	switch m {
	case AggregationP2P:
		return "p2p"
	case AggregationOneSided:
		return "one-sided"
	default:
		return "Unknown"
	}
}

// ParseAggregationMode accepts "p2p" or "one-sided".
func ParseAggregationMode(s string) (AggregationMode, error) {
	switch strings.ToLower(s) {
	case "", "p2p":
		return AggregationP2P, nil
	case "one-sided", "onesided":
		return AggregationOneSided, nil
	default:
		return 0, fmt.Errorf("unknown aggregation mode: %q", s)
	}
}
