package format

import (
	"fmt"
	"strings"

	"github.com/arloliu/atmogrid/errs"
)

type (
	DType           uint8
	CompressionType uint8
)

const (
	Float32 DType = 0x1 // Float32 stores IEEE 754 single precision values.
	Float64 DType = 0x2 // Float64 stores IEEE 754 double precision values.
	Int16   DType = 0x3 // Int16 stores signed 16-bit integers.
	Int32   DType = 0x4 // Int32 stores signed 32-bit integers.
	Record  DType = 0x5 // Record stores fixed-width opaque records.

	CompressionNone CompressionType = 0x1 // CompressionNone represents no compression.
	CompressionZstd CompressionType = 0x2 // CompressionZstd represents Zstandard compression.
	CompressionS2   CompressionType = 0x3 // CompressionS2 represents S2 compression.
	CompressionLZ4  CompressionType = 0x4 // CompressionLZ4 represents LZ4 compression.
)

// Size returns the element width in bytes, or 0 for Record whose width is per dataset.
func (d DType) Size() int {
	switch d {
	case Float32, Int32:
		return 4
	case Float64:
		return 8
	case Int16:
		return 2
	default:
		return 0
	}
}

// IsNumeric reports whether d is one of the numeric element types.
func (d DType) IsNumeric() bool {
	return d >= Float32 && d <= Int32
}

// IsFloat reports whether d can represent NaN.
func (d DType) IsFloat() bool {
	return d == Float32 || d == Float64
}

func (d DType) String() string {
	switch d {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Int16:
		return "int16"
	case Int32:
		return "int32"
	case Record:
		return "record"
	default:
		return "unknown"
	}
}

// ParseDType parses the lower-case dtype name produced by DType.String.
func ParseDType(s string) (DType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "float32", "f4":
		return Float32, nil
	case "float64", "f8":
		return Float64, nil
	case "int16", "i2":
		return Int16, nil
	case "int32", "i4":
		return Int32, nil
	case "record":
		return Record, nil
	default:
		return 0, fmt.Errorf("%w: %q", errs.ErrInvalidDType, s)
	}
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

// ParseCompression parses a compression name case-insensitively.
// An empty string selects CompressionNone.
func ParseCompression(s string) (CompressionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return CompressionNone, nil
	case "zstd":
		return CompressionZstd, nil
	case "s2":
		return CompressionS2, nil
	case "lz4":
		return CompressionLZ4, nil
	default:
		return 0, fmt.Errorf("%w: %q", errs.ErrInvalidCompression, s)
	}
}
