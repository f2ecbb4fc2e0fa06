package encoding

import (
	"fmt"
	"math"

	"github.com/arloliu/atmogrid/endian"
	"github.com/arloliu/atmogrid/errs"
	"github.com/arloliu/atmogrid/format"
)

// ValueCodec encodes float64 samples as fixed-width elements of a numeric dtype.
//
// Integer dtypes round to the nearest integer and saturate at the type bounds.
// NaN has no integer form and is stored as zero, so integer datasets should use a
// finite missing value.
//
// ValueCodec is immutable and safe for concurrent use.
type ValueCodec struct {
	dtype  format.DType
	engine endian.EndianEngine
}

// NewValueCodec creates a codec for the given numeric dtype.
//
// Parameters:
//   - dtype: Element type (must be numeric)
//   - engine: Endian engine for byte order (typically little-endian)
//
// Returns:
//   - ValueCodec: A new codec (stateless, can be reused)
//   - error: ErrInvalidDType if dtype is not numeric
func NewValueCodec(dtype format.DType, engine endian.EndianEngine) (ValueCodec, error) {
	if !dtype.IsNumeric() {
		return ValueCodec{}, fmt.Errorf("%w: %s is not numeric", errs.ErrInvalidDType, dtype)
	}

	return ValueCodec{dtype: dtype, engine: engine}, nil
}

// DType returns the element type.
func (c ValueCodec) DType() format.DType {
	return c.dtype
}

// ItemSize returns the encoded width of one element in bytes.
func (c ValueCodec) ItemSize() int {
	return c.dtype.Size()
}

// Encode appends the encoded values to dst and returns the extended slice.
func (c ValueCodec) Encode(dst []byte, values []float64) []byte {
	size := c.ItemSize()
	start := len(dst)
	dst = grow(dst, len(values)*size)

	for i, v := range values {
		c.put(dst[start+i*size:], v)
	}

	return dst
}

// EncodeOne returns the encoding of a single value, used for fill patterns.
func (c ValueCodec) EncodeOne(v float64) []byte {
	buf := make([]byte, c.ItemSize())
	c.put(buf, v)

	return buf
}

// Decode decodes len(dst) elements from src into dst.
//
// Returns:
//   - error: ErrDimensionMismatch if src does not hold exactly len(dst) elements
func (c ValueCodec) Decode(src []byte, dst []float64) error {
	size := c.ItemSize()
	if len(src) != len(dst)*size {
		return fmt.Errorf("%w: %d bytes for %d %s values", errs.ErrDimensionMismatch, len(src), len(dst), c.dtype)
	}

	for i := range dst {
		dst[i] = c.get(src[i*size:])
	}

	return nil
}

// At decodes the element at index i.
func (c ValueCodec) At(src []byte, i int) (float64, bool) {
	size := c.ItemSize()
	if i < 0 || (i+1)*size > len(src) {
		return 0, false
	}

	return c.get(src[i*size:]), true
}

func (c ValueCodec) put(b []byte, v float64) {
	switch c.dtype {
	case format.Float32:
		c.engine.PutUint32(b, math.Float32bits(float32(v)))
	case format.Float64:
		c.engine.PutUint64(b, math.Float64bits(v))
	case format.Int16:
		c.engine.PutUint16(b, uint16(int16(toInt(v, math.MinInt16, math.MaxInt16)))) //nolint:gosec
	case format.Int32:
		c.engine.PutUint32(b, uint32(int32(toInt(v, math.MinInt32, math.MaxInt32)))) //nolint:gosec
	}
}

func (c ValueCodec) get(b []byte) float64 {
	switch c.dtype {
	case format.Float32:
		return float64(math.Float32frombits(c.engine.Uint32(b)))
	case format.Float64:
		return math.Float64frombits(c.engine.Uint64(b))
	case format.Int16:
		return float64(int16(c.engine.Uint16(b))) //nolint:gosec
	case format.Int32:
		return float64(int32(c.engine.Uint32(b))) //nolint:gosec
	default:
		return math.NaN()
	}
}

func toInt(v float64, lo, hi int64) int64 {
	if math.IsNaN(v) {
		return 0
	}

	r := math.Round(v)
	switch {
	case r < float64(lo):
		return lo
	case r > float64(hi):
		return hi
	default:
		return int64(r)
	}
}

// grow extends b by n bytes, reallocating with amortized growth when needed.
func grow(b []byte, n int) []byte {
	if cap(b)-len(b) >= n {
		return b[:len(b)+n]
	}

	nb := make([]byte, len(b)+n, 2*len(b)+n)
	copy(nb, b)

	return nb
}
