package encoding

import (
	"bytes"
	"fmt"

	"github.com/arloliu/atmogrid/errs"
)

// PutFixedString writes s into dst[:width], padding with NUL bytes.
//
// Strings longer than width are rejected rather than truncated so that a
// record never silently loses a timestamp or source tag.
//
// Parameters:
//   - dst: Destination buffer (must be at least width bytes)
//   - s: String to encode
//   - width: Field width in bytes
//
// Returns:
//   - error: ErrDimensionMismatch if s does not fit
func PutFixedString(dst []byte, s string, width int) error {
	if len(s) > width {
		return fmt.Errorf("%w: string %q exceeds field width %d", errs.ErrDimensionMismatch, s, width)
	}
	if len(dst) < width {
		return fmt.Errorf("%w: buffer %d bytes, field width %d", errs.ErrDimensionMismatch, len(dst), width)
	}

	n := copy(dst, s)
	clear(dst[n:width])

	return nil
}

// FixedString decodes a NUL-padded field, dropping the padding.
func FixedString(src []byte) string {
	if i := bytes.IndexByte(src, 0); i >= 0 {
		src = src[:i]
	}

	return string(src)
}
