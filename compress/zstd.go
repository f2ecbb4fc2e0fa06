package compress

// ZstdCompressor compresses pages with Zstandard.
//
// The implementation is selected at build time: klauspost/compress by default,
// valyala/gozstd with the gozstd build tag.
type ZstdCompressor struct{}

var _ Codec = (*ZstdCompressor)(nil)

// NewZstdCompressor creates a Zstd codec.
func NewZstdCompressor() ZstdCompressor {
	return ZstdCompressor{}
}
