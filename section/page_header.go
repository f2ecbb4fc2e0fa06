package section

import (
	"fmt"

	"github.com/arloliu/atmogrid/endian"
	"github.com/arloliu/atmogrid/errs"
	"github.com/arloliu/atmogrid/format"
)

// PageHeader describes one stored chunk.
type PageHeader struct {
	Magic        uint16                 // byte offset 0-1
	DType        format.DType           // byte offset 2
	Compression  format.CompressionType // byte offset 3
	ItemSize     uint32                 // byte offset 4-7
	ElementCount uint32                 // byte offset 8-11
	RawLength    uint32                 // byte offset 12-15
	StoredLength uint32                 // byte offset 16-19
	Checksum     uint64                 // byte offset 20-27
}

// NewPageHeader creates a header for a chunk of count elements of itemSize bytes.
// StoredLength and Checksum are filled in by the page encoder.
func NewPageHeader(dtype format.DType, compression format.CompressionType, itemSize, count int) *PageHeader {
	return &PageHeader{
		Magic:        MagicPageV1,
		DType:        dtype,
		Compression:  compression,
		ItemSize:     uint32(itemSize),         //nolint:gosec
		ElementCount: uint32(count),            //nolint:gosec
		RawLength:    uint32(itemSize * count), //nolint:gosec
	}
}

// Parse parses the header from a byte slice.
//
// Parameters:
//   - data: Byte slice containing header (must be exactly 32 bytes)
//
// Returns:
//   - error: ErrInvalidHeaderSize if data is not 32 bytes, ErrInvalidPageHeader on validation failure
func (h *PageHeader) Parse(data []byte) error {
	if len(data) != HeaderSize {
		return errs.ErrInvalidHeaderSize
	}

	engine := endian.GetLittleEndianEngine()
	h.Magic = engine.Uint16(data[0:2])
	h.DType = format.DType(data[2])
	h.Compression = format.CompressionType(data[3])
	h.ItemSize = engine.Uint32(data[4:8])
	h.ElementCount = engine.Uint32(data[8:12])
	h.RawLength = engine.Uint32(data[12:16])
	h.StoredLength = engine.Uint32(data[16:20])
	h.Checksum = engine.Uint64(data[20:28])

	if reserved := engine.Uint32(data[28:32]); reserved != 0 {
		return fmt.Errorf("%w: reserved bits set 0x%08x", errs.ErrInvalidPageHeader, reserved)
	}

	return h.Validate()
}

// Validate checks the magic number, enums and length consistency.
func (h *PageHeader) Validate() error {
	if h.Magic != MagicPageV1 {
		return fmt.Errorf("%w: magic 0x%04x", errs.ErrInvalidPageHeader, h.Magic)
	}
	if h.DType < format.Float32 || h.DType > format.Record {
		return fmt.Errorf("%w: dtype %d", errs.ErrInvalidPageHeader, h.DType)
	}
	if h.Compression < format.CompressionNone || h.Compression > format.CompressionLZ4 {
		return fmt.Errorf("%w: compression %d", errs.ErrInvalidPageHeader, h.Compression)
	}
	if size := h.DType.Size(); size != 0 && uint32(size) != h.ItemSize { //nolint:gosec
		return fmt.Errorf("%w: item size %d for %s", errs.ErrInvalidPageHeader, h.ItemSize, h.DType)
	}
	if uint64(h.ItemSize)*uint64(h.ElementCount) != uint64(h.RawLength) {
		return fmt.Errorf("%w: raw length %d != %d×%d", errs.ErrInvalidPageHeader, h.RawLength, h.ElementCount, h.ItemSize)
	}

	return nil
}

// Bytes serializes the header.
func (h *PageHeader) Bytes() []byte {
	return h.AppendTo(make([]byte, 0, HeaderSize))
}

// AppendTo appends the serialized header to dst.
func (h *PageHeader) AppendTo(dst []byte) []byte {
	engine := endian.GetLittleEndianEngine()
	dst = engine.AppendUint16(dst, h.Magic)
	dst = append(dst, byte(h.DType), byte(h.Compression))
	dst = engine.AppendUint32(dst, h.ItemSize)
	dst = engine.AppendUint32(dst, h.ElementCount)
	dst = engine.AppendUint32(dst, h.RawLength)
	dst = engine.AppendUint32(dst, h.StoredLength)
	dst = engine.AppendUint64(dst, h.Checksum)

	return engine.AppendUint32(dst, 0)
}

// ParsePageHeader parses the header at the start of a stored page.
//
// Returns:
//   - PageHeader: parsed header
//   - []byte: the payload following the header, StoredLength bytes long
//   - error: ErrInvalidHeaderSize or ErrInvalidPageHeader
func ParsePageHeader(page []byte) (PageHeader, []byte, error) {
	if len(page) < HeaderSize {
		return PageHeader{}, nil, errs.ErrInvalidHeaderSize
	}

	h := PageHeader{}
	if err := h.Parse(page[:HeaderSize]); err != nil {
		return PageHeader{}, nil, err
	}

	payload := page[HeaderSize:]
	if uint64(len(payload)) != uint64(h.StoredLength) {
		return PageHeader{}, nil, fmt.Errorf("%w: payload %d bytes, header says %d", errs.ErrInvalidPageHeader, len(payload), h.StoredLength)
	}

	return h, payload, nil
}
