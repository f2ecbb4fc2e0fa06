package boltstore

import (
	"fmt"
	"slices"

	"github.com/arloliu/atmogrid/compress"
	"github.com/arloliu/atmogrid/errs"
	"github.com/arloliu/atmogrid/format"
	"github.com/arloliu/atmogrid/internal/hash"
	"github.com/arloliu/atmogrid/internal/pool"
	"github.com/arloliu/atmogrid/section"
	"github.com/arloliu/atmogrid/store"
)

// encodePage compresses a decoded page and frames it with a page header.
//
// A page whose compressed form is not smaller than the raw bytes is stored
// uncompressed; the header records the compression actually applied.
func encodePage(info store.DatasetInfo, raw []byte, buf *pool.ByteBuffer) ([]byte, error) {
	header := section.NewPageHeader(info.DType, info.Compression, info.ItemSize, info.ChunkLen())
	if int(header.RawLength) != len(raw) {
		return nil, fmt.Errorf("%w: page of %q is %d bytes, want %d", errs.ErrDimensionMismatch, info.Name, len(raw), header.RawLength)
	}

	payload := raw
	if info.Compression != format.CompressionNone {
		codec, err := compress.CreateCodec(info.Compression, "dataset "+info.Name)
		if err != nil {
			return nil, err
		}
		compressed, err := codec.Compress(raw)
		if err != nil {
			return nil, fmt.Errorf("compress page of %q: %w", info.Name, err)
		}
		if len(compressed) > 0 && len(compressed) < len(raw) {
			payload = compressed
		} else {
			header.Compression = format.CompressionNone
		}
	}

	header.StoredLength = uint32(len(payload)) //nolint:gosec
	header.Checksum = hash.Checksum(raw)

	buf.Grow(section.HeaderSize + len(payload))
	buf.B = header.AppendTo(buf.B)
	_, _ = buf.Write(payload)

	return buf.Bytes(), nil
}

// decodePage verifies and decompresses a stored page. The result never aliases stored.
func decodePage(info store.DatasetInfo, key string, stored []byte) ([]byte, error) {
	header, payload, err := section.ParsePageHeader(stored)
	if err != nil {
		return nil, fmt.Errorf("page %s of %q: %w", key, info.Name, err)
	}
	if header.DType != info.DType || int(header.ItemSize) != info.ItemSize || int(header.ElementCount) != info.ChunkLen() {
		return nil, fmt.Errorf("%w: page %s of %q does not match dataset layout", errs.ErrInvalidPageHeader, key, info.Name)
	}

	var raw []byte
	switch header.Compression {
	case format.CompressionNone:
		raw = slices.Clone(payload)
	case format.CompressionLZ4:
		raw, err = compress.NewLZ4Compressor().DecompressSized(payload, int(header.RawLength))
	default:
		var codec compress.Codec
		codec, err = compress.GetCodec(header.Compression)
		if err == nil {
			raw, err = codec.Decompress(payload)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("decompress page %s of %q: %w", key, info.Name, err)
	}

	if len(raw) != int(header.RawLength) {
		return nil, fmt.Errorf("%w: page %s of %q decoded to %d bytes, want %d", errs.ErrInvalidPageHeader, key, info.Name, len(raw), header.RawLength)
	}
	if hash.Checksum(raw) != header.Checksum {
		return nil, fmt.Errorf("%w: page %s of %q", errs.ErrChecksumMismatch, key, info.Name)
	}

	return raw, nil
}
