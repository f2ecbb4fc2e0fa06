package grid

import (
	"fmt"
	"math"
	"slices"

	"github.com/arloliu/atmogrid/errs"
)

// Range is a half-open index range [Lo, Hi).
type Range struct {
	Lo, Hi int
}

// Point returns the single-index range [i, i+1).
func Point(i int) Range {
	return Range{Lo: i, Hi: i + 1}
}

// Span returns the range [lo, lo+n).
func Span(lo, n int) Range {
	return Range{Lo: lo, Hi: lo + n}
}

// Len returns the number of indices covered.
func (r Range) Len() int {
	return r.Hi - r.Lo
}

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d)", r.Lo, r.Hi)
}

// Selection maps axis kinds to index ranges. Axes without an entry select
// their full extent on read and the input extent from 0 on write.
type Selection map[AxisKind]Range

// Region is the per-axis index ranges of a completed read or write, in view order.
type Region []Range

// Count returns the extent of every axis.
func (r Region) Count() []int {
	count := make([]int, len(r))
	for i, rg := range r {
		count[i] = rg.Len()
	}

	return count
}

// Start returns the lower bound of every axis.
func (r Region) Start() []int {
	start := make([]int, len(r))
	for i, rg := range r {
		start[i] = rg.Lo
	}

	return start
}

// Array is a dense row-major N-dimensional array of float64.
type Array struct {
	Shape []int
	Data  []float64
}

// NewArray returns a zeroed array.
func NewArray(shape ...int) Array {
	return Array{Shape: slices.Clone(shape), Data: make([]float64, product(shape))}
}

// Full returns an array with every element set to v.
func Full(v float64, shape ...int) Array {
	a := NewArray(shape...)
	for i := range a.Data {
		a.Data[i] = v
	}

	return a
}

// FromSlice wraps data with the given shape.
func FromSlice(data []float64, shape ...int) (Array, error) {
	a := Array{Shape: slices.Clone(shape), Data: data}

	return a, a.Validate()
}

// Validate checks that Data holds exactly the elements Shape describes.
func (a Array) Validate() error {
	for _, n := range a.Shape {
		if n < 0 {
			return fmt.Errorf("%w: negative extent in shape %v", errs.ErrDimensionMismatch, a.Shape)
		}
	}
	if len(a.Data) != product(a.Shape) {
		return fmt.Errorf("%w: %d values for shape %v", errs.ErrDimensionMismatch, len(a.Data), a.Shape)
	}

	return nil
}

// Rank returns the number of dimensions.
func (a Array) Rank() int {
	return len(a.Shape)
}

// Len returns the number of elements.
func (a Array) Len() int {
	return len(a.Data)
}

// At returns the element at idx.
func (a Array) At(idx ...int) float64 {
	return a.Data[a.offset(idx)]
}

// Set stores v at idx.
func (a Array) Set(v float64, idx ...int) {
	a.Data[a.offset(idx)] = v
}

// Clone returns a deep copy.
func (a Array) Clone() Array {
	return Array{Shape: slices.Clone(a.Shape), Data: slices.Clone(a.Data)}
}

// Step returns the i-th sub-array along the leading axis. It shares memory with a.
func (a Array) Step(i int) Array {
	inner := product(a.Shape[1:])

	return Array{Shape: a.Shape[1:], Data: a.Data[i*inner : (i+1)*inner]}
}

// Equal reports whether a and b have the same shape and elements, treating NaN as equal to NaN.
func (a Array) Equal(b Array) bool {
	if !slices.Equal(a.Shape, b.Shape) || len(a.Data) != len(b.Data) {
		return false
	}
	for i, v := range a.Data {
		w := b.Data[i]
		if v != w && !(math.IsNaN(v) && math.IsNaN(w)) {
			return false
		}
	}

	return true
}

// Sub copies the sub-array selected by one range per axis.
func (a Array) Sub(ranges []Range) (Array, error) {
	if len(ranges) != a.Rank() {
		return Array{}, fmt.Errorf("%w: %d ranges for rank %d", errs.ErrDimensionMismatch, len(ranges), a.Rank())
	}
	shape := make([]int, len(ranges))
	for i, r := range ranges {
		if r.Lo < 0 || r.Hi > a.Shape[i] || r.Hi < r.Lo {
			return Array{}, fmt.Errorf("%w: axis %d range %s outside [0,%d)", errs.ErrInvalidRange, i, r, a.Shape[i])
		}
		shape[i] = r.Len()
	}

	out := NewArray(shape...)
	if out.Len() == 0 {
		return out, nil
	}

	src := make([]int, len(ranges))
	forEachIndex(shape, func(i int, idx []int) {
		for d, r := range ranges {
			src[d] = idx[d] + r.Lo
		}
		out.Data[i] = a.Data[a.offset(src)]
	})

	return out, nil
}

// Reshape returns a with a new shape of the same size, sharing memory.
func (a Array) Reshape(shape ...int) (Array, error) {
	if product(shape) != len(a.Data) {
		return Array{}, fmt.Errorf("%w: cannot reshape %v to %v", errs.ErrDimensionMismatch, a.Shape, shape)
	}

	return Array{Shape: slices.Clone(shape), Data: a.Data}, nil
}

// Transpose reorders the axes of a, laid out in from, into the order of to.
func Transpose(a Array, from, to View) (Array, error) {
	if err := a.Validate(); err != nil {
		return Array{}, err
	}
	if len(from) != a.Rank() || !from.SameAxes(to) {
		return Array{}, fmt.Errorf("%w: cannot transpose %v array from %s to %s", errs.ErrDimensionMismatch, a.Shape, from, to)
	}

	perm := make([]int, len(to))
	shape := make([]int, len(to))
	for j, k := range to {
		perm[j] = from.Index(k)
		shape[j] = a.Shape[perm[j]]
	}
	if slices.IsSorted(perm) {
		return a.Clone(), nil
	}

	strides := a.strides()
	out := NewArray(shape...)
	forEachIndex(shape, func(i int, idx []int) {
		off := 0
		for j, p := range perm {
			off += idx[j] * strides[p]
		}
		out.Data[i] = a.Data[off]
	})

	return out, nil
}

func (a Array) offset(idx []int) int {
	off := 0
	for i, n := range a.Shape {
		off = off*n + idx[i]
	}

	return off
}

func (a Array) strides() []int {
	strides := make([]int, len(a.Shape))
	s := 1
	for i := len(a.Shape) - 1; i >= 0; i-- {
		strides[i] = s
		s *= a.Shape[i]
	}

	return strides
}

// forEachIndex visits every index of shape in row-major order.
func forEachIndex(shape []int, fn func(i int, idx []int)) {
	n := product(shape)
	if n == 0 {
		return
	}

	idx := make([]int, len(shape))
	for i := range n {
		fn(i, idx)
		for d := len(shape) - 1; d >= 0; d-- {
			idx[d]++
			if idx[d] < shape[d] {
				break
			}
			idx[d] = 0
		}
	}
}

func product(dims []int) int {
	n := 1
	for _, d := range dims {
		n *= d
	}

	return n
}
