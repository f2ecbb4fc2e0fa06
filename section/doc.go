// Package section defines the fixed binary layout of a stored array page.
//
// The durable store keeps one page per chunk of a dataset. Each page is a
// 32-byte header followed by the (optionally compressed) payload:
//
//	┌──────────────────────────────────────────────┐
//	│ PageHeader (32 bytes, little-endian)         │
//	├──────────────────────────────────────────────┤
//	│ Payload (StoredLength bytes)                 │
//	│  - chunk elements in row-major order         │
//	│  - compressed with Compression               │
//	└──────────────────────────────────────────────┘
//
// Header layout:
//
//	Bytes  | Field         | Type   | Description
//	-------|---------------|--------|-------------------------------------
//	0-1    | Magic         | uint16 | MagicPageV1
//	2      | DType         | uint8  | format.DType of the elements
//	3      | Compression   | uint8  | format.CompressionType of the payload
//	4-7    | ItemSize      | uint32 | bytes per element
//	8-11   | ElementCount  | uint32 | elements in the chunk
//	12-15  | RawLength     | uint32 | decoded payload length
//	16-19  | StoredLength  | uint32 | payload length as stored
//	20-27  | Checksum      | uint64 | xxHash64 of the decoded payload
//	28-31  | Reserved      | uint32 | must be zero
package section
