// Package errs defines the sentinel errors shared by every atmogrid package.
//
// Errors are wrapped with context at the point of detection using
//
//	fmt.Errorf("%w: detail", errs.ErrX, ...)
//
// and callers match them with errors.Is. No package retries internally.
package errs

import "errors"

// Coordinate and time resolution errors.
var (
	// ErrOutOfBounds is returned when a coordinate has no grid node within the search radius.
	ErrOutOfBounds = errors.New("coordinate out of bounds")
	// ErrRange is returned when a timestamp or index lies outside a dataset's time span.
	ErrRange = errors.New("time out of range")
	// ErrAlignment is returned when an exact time lookup does not land on a sampled step.
	ErrAlignment = errors.New("time not aligned to frequency")
	// ErrInvalidTimestamp is returned when a persisted timestamp cannot be parsed.
	ErrInvalidTimestamp = errors.New("invalid timestamp")
)

// Merge and provenance errors.
var (
	// ErrPrecedence is returned when a write violates the source-tier ordering.
	ErrPrecedence = errors.New("source precedence violation")
	// ErrInvariant is returned by explicit re-validation when watermarks are inconsistent.
	ErrInvariant = errors.New("watermark invariant violated")
	// ErrUnknownRecordType is returned when no generator exists for a provenance record type.
	ErrUnknownRecordType = errors.New("unknown provenance record type")
	// ErrNoProvenance is returned when a dataset has no companion provenance dataset.
	ErrNoProvenance = errors.New("dataset has no provenance")
)

// Array shape and slicing errors.
var (
	// ErrDimensionMismatch is returned when an input array's rank or shape is incompatible with a view.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrInvalidRange is returned when an axis range starts outside the axis or is empty.
	ErrInvalidRange = errors.New("invalid index range")
	// ErrInvalidView is returned for malformed or duplicated axis views.
	ErrInvalidView = errors.New("invalid view")
	// ErrInvalidDType is returned for unsupported element types.
	ErrInvalidDType = errors.New("invalid dtype")
	// ErrInvalidCompression is returned for unsupported page compression types.
	ErrInvalidCompression = errors.New("invalid compression")
)

// Store errors.
var (
	// ErrDatasetNotFound is returned when a named dataset does not exist.
	ErrDatasetNotFound = errors.New("dataset not found")
	// ErrDatasetExists is returned when creating a dataset whose name is taken.
	ErrDatasetExists = errors.New("dataset already exists")
	// ErrAttributeNotFound is returned when a required attribute is missing.
	ErrAttributeNotFound = errors.New("attribute not found")
	// ErrInvalidPageHeader is returned when a stored page header fails validation.
	ErrInvalidPageHeader = errors.New("invalid page header")
	// ErrInvalidHeaderSize is returned when a page header is not exactly the fixed size.
	ErrInvalidHeaderSize = errors.New("invalid page header size")
	// ErrChecksumMismatch is returned when a page payload does not match its checksum.
	ErrChecksumMismatch = errors.New("page checksum mismatch")
	// ErrReadOnly is returned for mutations on a read-only store handle.
	ErrReadOnly = errors.New("store is read-only")
	// ErrClosed is returned for operations on a closed store.
	ErrClosed = errors.New("store is closed")
)

// ErrInvalidConfig is returned when configuration fails to decode or validate.
var ErrInvalidConfig = errors.New("invalid configuration")
