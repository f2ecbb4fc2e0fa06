// Package compress provides the page codecs used by the durable array store.
//
// A dataset page is the encoded bytes of one chunk of an N-dimensional array.
// Pages of gridded atmospheric fields are dominated by long runs of the missing
// value (ocean, outside-domain cells) and smoothly varying floats, so general
// purpose compression pays off well:
//
//   - None: pages are stored as encoded
//   - Zstd: best ratio; the default for archival reanalysis grids
//   - S2: fast, moderate ratio; suited to frequently rewritten forecast grids
//   - LZ4: fastest decompression for read-heavy files
//
// Zstd uses github.com/klauspost/compress/zstd by default. Building with the
// gozstd tag (and cgo) switches to github.com/valyala/gozstd.
//
//	codec, err := compress.CreateCodec(format.CompressionZstd, "page")
//	if err != nil {
//	    return err
//	}
//	stored, err := codec.Compress(page)
package compress
