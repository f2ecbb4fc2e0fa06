package store

import (
	"fmt"
	"slices"

	"github.com/arloliu/atmogrid/errs"
	"github.com/arloliu/atmogrid/format"
)

// RootObject addresses file-level attributes in Attr, SetAttr and DeleteAttr.
const RootObject = ""

// Store is the array store contract consumed by grid files.
//
// Implementations need not be safe for concurrent mutation: a grid file has a
// single writer. Readers on the same handle must observe whole pages.
type Store interface {
	// CreateDataset creates a dataset whose every element holds info.Fill.
	CreateDataset(info DatasetInfo) error
	// Dataset returns the descriptor of an existing dataset.
	Dataset(name string) (DatasetInfo, error)
	// Datasets lists dataset names in lexical order.
	Datasets() ([]string, error)
	// ReadSubarray returns the elements of the hyperslab [start, start+count) in row-major order.
	ReadSubarray(name string, start, count []int) ([]byte, error)
	// WriteSubarray overwrites the hyperslab [start, start+count) with data in row-major order.
	WriteSubarray(name string, start, count []int, data []byte) error
	// Attr returns an attribute of object, reporting whether it is set.
	Attr(object, key string) (string, bool, error)
	// SetAttr sets an attribute of object.
	SetAttr(object, key, value string) error
	// DeleteAttr removes an attribute of object. Removing an unset attribute is not an error.
	DeleteAttr(object, key string) error
	// Attrs returns a copy of every attribute of object.
	Attrs(object string) (map[string]string, error)
	// ReadOnly reports whether mutations are rejected.
	ReadOnly() bool
	// Close releases the store.
	Close() error
}

// DatasetInfo describes the shape and element encoding of a dataset.
type DatasetInfo struct {
	Name        string                 `json:"name"`
	Shape       []int                  `json:"shape"`
	ChunkShape  []int                  `json:"chunk_shape"`
	DType       format.DType           `json:"dtype"`
	ItemSize    int                    `json:"item_size"`
	Fill        []byte                 `json:"fill,omitempty"`
	Compression format.CompressionType `json:"compression"`
}

// Validate checks the descriptor and fills in defaults: a missing chunk shape
// chunks along nothing, a zero item size takes the dtype width, and a zero
// compression means none.
func (d *DatasetInfo) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: dataset name is empty", errs.ErrInvalidView)
	}
	if len(d.Shape) == 0 {
		return fmt.Errorf("%w: dataset %q has no dimensions", errs.ErrDimensionMismatch, d.Name)
	}
	for _, n := range d.Shape {
		if n <= 0 {
			return fmt.Errorf("%w: dataset %q shape %v", errs.ErrDimensionMismatch, d.Name, d.Shape)
		}
	}

	if len(d.ChunkShape) == 0 {
		d.ChunkShape = slices.Clone(d.Shape)
	}
	if len(d.ChunkShape) != len(d.Shape) {
		return fmt.Errorf("%w: dataset %q chunk rank %d != rank %d", errs.ErrDimensionMismatch, d.Name, len(d.ChunkShape), len(d.Shape))
	}
	for i, n := range d.ChunkShape {
		if n <= 0 {
			return fmt.Errorf("%w: dataset %q chunk shape %v", errs.ErrDimensionMismatch, d.Name, d.ChunkShape)
		}
		d.ChunkShape[i] = min(n, d.Shape[i])
	}

	if d.DType < format.Float32 || d.DType > format.Record {
		return fmt.Errorf("%w: dataset %q dtype %d", errs.ErrInvalidDType, d.Name, d.DType)
	}
	if d.ItemSize == 0 {
		d.ItemSize = d.DType.Size()
	}
	if d.ItemSize <= 0 || (d.DType.Size() != 0 && d.ItemSize != d.DType.Size()) {
		return fmt.Errorf("%w: dataset %q item size %d for %s", errs.ErrInvalidDType, d.Name, d.ItemSize, d.DType)
	}
	if len(d.Fill) != 0 && len(d.Fill) != d.ItemSize {
		return fmt.Errorf("%w: dataset %q fill is %d bytes, item size %d", errs.ErrDimensionMismatch, d.Name, len(d.Fill), d.ItemSize)
	}

	if d.Compression == 0 {
		d.Compression = format.CompressionNone
	}
	if d.Compression > format.CompressionLZ4 {
		return fmt.Errorf("%w: dataset %q compression %d", errs.ErrInvalidCompression, d.Name, d.Compression)
	}

	return nil
}

// Rank returns the number of dimensions.
func (d DatasetInfo) Rank() int {
	return len(d.Shape)
}

// Len returns the total number of elements.
func (d DatasetInfo) Len() int {
	return product(d.Shape)
}

// ChunkLen returns the number of elements in one chunk page.
func (d DatasetInfo) ChunkLen() int {
	return product(d.ChunkShape)
}

// Clone returns a deep copy.
func (d DatasetInfo) Clone() DatasetInfo {
	d.Shape = slices.Clone(d.Shape)
	d.ChunkShape = slices.Clone(d.ChunkShape)
	d.Fill = slices.Clone(d.Fill)

	return d
}

func product(dims []int) int {
	n := 1
	for _, d := range dims {
		n *= d
	}

	return n
}
