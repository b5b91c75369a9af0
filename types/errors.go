package types

import "errors"

var (
	// ErrMalformedHeader is returned when the volume header cannot be read or validated
	ErrMalformedHeader = errors.New("malformed volume header")
	// ErrShortKey is returned when a key is too short for its declared contents
	ErrShortKey = errors.New("short key")
	// ErrShortRecord is returned when an on-disk structure is cut short
	ErrShortRecord = errors.New("short record")
)
