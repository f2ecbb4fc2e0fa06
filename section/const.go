package section

const (
	// MagicPageV1 identifies a version 1 array page.
	MagicPageV1 = 0xA610

	// HeaderSize is the fixed page header size in bytes.
	HeaderSize = 32

	// MaxPageLength bounds RawLength and StoredLength.
	MaxPageLength = 1<<32 - 1
)
