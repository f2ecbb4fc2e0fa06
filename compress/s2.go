package compress

import "github.com/klauspost/compress/s2"

// S2Compressor compresses pages with S2, a Snappy-compatible format.
//
// Pages are written once and read many times, so Compress uses the slower
// "better" encoder. Decoding speed is the same for both encoders.
type S2Compressor struct{}

var _ Codec = (*S2Compressor)(nil)

func NewS2Compressor() S2Compressor {
	return S2Compressor{}
}

func (c S2Compressor) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	return s2.EncodeBetter(nil, data), nil
}

// Decompress decodes an S2 block produced by either encoder.
func (c S2Compressor) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	return s2.Decode(nil, data)
}
