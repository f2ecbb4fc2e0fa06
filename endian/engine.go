// Package endian provides the byte order used by atmogrid's value, record and
// page codecs.
//
// Every persisted structure (numeric pages, provenance records, page headers) is
// written little-endian regardless of the host, so files move between machines
// unchanged. The big-endian engine serves arrays produced elsewhere.
//
//	engine := endian.GetLittleEndianEngine()
//	buf = engine.AppendUint32(buf, math.Float32bits(v))
package endian

import "encoding/binary"

// EndianEngine combines ByteOrder and AppendByteOrder from encoding/binary.
//
// It is satisfied by binary.LittleEndian and binary.BigEndian.
type EndianEngine interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// GetLittleEndianEngine returns the little-endian engine used for all persisted data.
func GetLittleEndianEngine() EndianEngine {
	return binary.LittleEndian
}

// GetBigEndianEngine returns the big-endian engine.
func GetBigEndianEngine() EndianEngine {
	return binary.BigEndian
}
