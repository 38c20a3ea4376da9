package internalerr

import "errors"

// Sentinel errors for common cases
var (
	ErrMalformedRecord  = errors.New("malformed record")
	ErrMissingField     = errors.New("missing field")
	ErrInvalidInput     = errors.New("invalid input")
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// IsRecordError reports whether err is a per-record failure that the
// pipeline recovers from locally.
func IsRecordError(err error) bool {
	return errors.Is(err, ErrMalformedRecord) || errors.Is(err, ErrMissingField)
}
