// Package encoding converts grid values and record fields to and from their
// persisted byte form.
//
// ValueCodec encodes float64 samples into the element type of a dataset
// (float32, float64, int16 or int32) using a fixed byte order. Fixed-width
// string fields are NUL-padded, as used by provenance records.
//
//	codec, _ := encoding.NewValueCodec(format.Float32, endian.GetLittleEndianEngine())
//	buf := codec.Encode(nil, values)
//	out := make([]float64, len(values))
//	err := codec.Decode(buf, out)
package encoding
