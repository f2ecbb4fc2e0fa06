package ncimport

import (
	"fmt"
	"math"

	"github.com/arloliu/atmogrid/errs"
)

type number interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~float32 | ~float64
}

// flatten1 converts a decoded 1-D NetCDF variable to float64.
func flatten1(v any) ([]float64, error) {
	switch s := v.(type) {
	case []float64:
		return convert(s), nil
	case []float32:
		return convert(s), nil
	case []int64:
		return convert(s), nil
	case []int32:
		return convert(s), nil
	case []int16:
		return convert(s), nil
	case []int8:
		return convert(s), nil
	case []uint8:
		return convert(s), nil
	default:
		return nil, fmt.Errorf("%w: unsupported 1-D value type %T", errs.ErrInvalidDType, v)
	}
}

// flatten3 converts a decoded 3-D NetCDF slice to row-major float64 with its shape.
func flatten3(v any) ([]float64, []int, error) {
	switch s := v.(type) {
	case [][][]float64:
		return cube(s)
	case [][][]float32:
		return cube(s)
	case [][][]int32:
		return cube(s)
	case [][][]int16:
		return cube(s)
	case [][][]int8:
		return cube(s)
	case [][][]uint8:
		return cube(s)
	default:
		return nil, nil, fmt.Errorf("%w: unsupported 3-D value type %T", errs.ErrInvalidDType, v)
	}
}

func convert[T number](s []T) []float64 {
	out := make([]float64, len(s))
	for i, v := range s {
		out[i] = float64(v)
	}

	return out
}

func cube[T number](s [][][]T) ([]float64, []int, error) {
	shape := []int{len(s), 0, 0}
	if len(s) > 0 {
		shape[1] = len(s[0])
		if len(s[0]) > 0 {
			shape[2] = len(s[0][0])
		}
	}

	out := make([]float64, 0, shape[0]*shape[1]*shape[2])
	for _, plane := range s {
		if len(plane) != shape[1] {
			return nil, nil, fmt.Errorf("%w: ragged NetCDF slice", errs.ErrDimensionMismatch)
		}
		for _, row := range plane {
			if len(row) != shape[2] {
				return nil, nil, fmt.Errorf("%w: ragged NetCDF slice", errs.ErrDimensionMismatch)
			}
			for _, v := range row {
				out = append(out, float64(v))
			}
		}
	}

	return out, shape, nil
}

// scalar converts a numeric attribute value, scalar or single-element slice, to float64.
func scalar(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	case int16:
		return float64(x), true
	case int8:
		return float64(x), true
	case uint8:
		return float64(x), true
	}

	s, err := flatten1(v)
	if err != nil || len(s) == 0 {
		return 0, false
	}

	return s[0], true
}

// packing describes how stored samples map to physical values.
type packing struct {
	scale  float64
	offset float64
	fills  []float64
}

func readPacking(v Variable) packing {
	p := packing{scale: 1}
	if s, ok := attrFloat(v, "scale_factor"); ok {
		p.scale = s
	}
	if o, ok := attrFloat(v, "add_offset"); ok {
		p.offset = o
	}
	for _, key := range []string{"_FillValue", "missing_value"} {
		if f, ok := attrFloat(v, key); ok {
			p.fills = append(p.fills, f)
		}
	}

	return p
}

func (p packing) apply(values []float64) {
	for i, raw := range values {
		if p.isFill(raw) {
			values[i] = math.NaN()
			continue
		}
		values[i] = raw*p.scale + p.offset
	}
}

func (p packing) isFill(raw float64) bool {
	for _, f := range p.fills {
		if raw == f || (math.IsNaN(f) && math.IsNaN(raw)) {
			return true
		}
	}

	return false
}

func attrFloat(v Variable, key string) (float64, bool) {
	a, ok := v.Attr(key)
	if !ok {
		return 0, false
	}

	return scalar(a)
}
