package provenance

import (
	"fmt"
	"math"

	"github.com/arloliu/atmogrid/encoding"
	"github.com/arloliu/atmogrid/endian"
	"github.com/arloliu/atmogrid/errs"
)

// FieldKind is the wire type of a record field.
type FieldKind uint8

const (
	FieldString  FieldKind = iota + 1 // NUL-padded fixed-width string
	FieldFloat32                      // little-endian IEEE 754 single
)

// Field names shared by the record types.
const (
	FieldTime      = "time"
	FieldDate      = "date"
	FieldMin       = "min"
	FieldMax       = "max"
	FieldMean      = "mean"
	FieldMedian    = "median"
	FieldObsMin    = "obs_min"
	FieldObsMax    = "obs_max"
	FieldObsMean   = "obs_mean"
	FieldAccumMin  = "accum_min"
	FieldAccumMax  = "accum_max"
	FieldAccumMean = "accum_mean"
	FieldProcessed = "processed"
	FieldSource    = "source"
)

// Field is one typed, fixed-width record field.
type Field struct {
	Name  string
	Kind  FieldKind
	Width int
}

// String returns a fixed-width string field.
func String(name string, width int) Field {
	return Field{Name: name, Kind: FieldString, Width: width}
}

// Float32 returns a float32 field.
func Float32(name string) Field {
	return Field{Name: name, Kind: FieldFloat32, Width: 4}
}

// Schema is the ordered field layout of a record type.
type Schema struct {
	fields  []Field
	offsets []int
	size    int
}

// NewSchema lays out fields back to back in the given order.
func NewSchema(fields ...Field) Schema {
	s := Schema{fields: fields, offsets: make([]int, len(fields))}
	for i, f := range fields {
		s.offsets[i] = s.size
		s.size += f.Width
	}

	return s
}

// Size returns the record width in bytes.
func (s Schema) Size() int {
	return s.size
}

// Fields returns the fields in wire order.
func (s Schema) Fields() []Field {
	return s.fields
}

// Encode appends the wire form of r to dst.
func (s Schema) Encode(dst []byte, r Record) ([]byte, error) {
	start := len(dst)
	dst = append(dst, make([]byte, s.size)...)
	buf := dst[start:]
	engine := endian.GetLittleEndianEngine()

	for i, f := range s.fields {
		off := s.offsets[i]
		switch f.Kind {
		case FieldString:
			if err := encoding.PutFixedString(buf[off:off+f.Width], r.stringField(f.Name), f.Width); err != nil {
				return nil, fmt.Errorf("record field %s: %w", f.Name, err)
			}
		case FieldFloat32:
			engine.PutUint32(buf[off:], math.Float32bits(float32(r.floatField(f.Name))))
		}
	}

	return dst, nil
}

// Decode parses one record.
func (s Schema) Decode(src []byte) (Record, error) {
	if len(src) != s.size {
		return Record{}, fmt.Errorf("%w: record is %d bytes, schema %d", errs.ErrDimensionMismatch, len(src), s.size)
	}

	engine := endian.GetLittleEndianEngine()
	r := Record{}
	for i, f := range s.fields {
		off := s.offsets[i]
		switch f.Kind {
		case FieldString:
			r.setString(f.Name, encoding.FixedString(src[off:off+f.Width]))
		case FieldFloat32:
			r.setFloat(f.Name, float64(math.Float32frombits(engine.Uint32(src[off:]))))
		}
	}

	return r, nil
}

// Record is a decoded provenance record. Fields a record type does not carry
// stay zero.
type Record struct {
	Time      string // step timestamp; a date for datestats
	Min       float64
	Max       float64
	Mean      float64
	Median    float64
	AccumMin  float64
	AccumMax  float64
	AccumMean float64
	Processed string
	Source    string
}

// IsEmpty reports whether r is the sentinel of a step that never received data.
func (r Record) IsEmpty() bool {
	return r.Time == "" && r.Source == ""
}

func (r Record) stringField(name string) string {
	switch name {
	case FieldTime, FieldDate:
		return r.Time
	case FieldProcessed:
		return r.Processed
	case FieldSource:
		return r.Source
	default:
		return ""
	}
}

func (r *Record) setString(name, v string) {
	switch name {
	case FieldTime, FieldDate:
		r.Time = v
	case FieldProcessed:
		r.Processed = v
	case FieldSource:
		r.Source = v
	}
}

func (r Record) floatField(name string) float64 {
	switch name {
	case FieldMin, FieldObsMin:
		return r.Min
	case FieldMax, FieldObsMax:
		return r.Max
	case FieldMean, FieldObsMean:
		return r.Mean
	case FieldMedian:
		return r.Median
	case FieldAccumMin:
		return r.AccumMin
	case FieldAccumMax:
		return r.AccumMax
	case FieldAccumMean:
		return r.AccumMean
	default:
		return math.NaN()
	}
}

func (r *Record) setFloat(name string, v float64) {
	switch name {
	case FieldMin, FieldObsMin:
		r.Min = v
	case FieldMax, FieldObsMax:
		r.Max = v
	case FieldMean, FieldObsMean:
		r.Mean = v
	case FieldMedian:
		r.Median = v
	case FieldAccumMin:
		r.AccumMin = v
	case FieldAccumMax:
		r.AccumMax = v
	case FieldAccumMean:
		r.AccumMean = v
	}
}
