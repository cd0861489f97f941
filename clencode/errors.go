package clencode

import (
	"errors"
	"fmt"
)

// ErrEncoding is matched by every *EncodingError via errors.Is.
var ErrEncoding = errors.New("clencode: encoding error")

// EncodingError reports a string or prefix that the canonical scheme cannot represent.
type EncodingError struct {
	Length int
	Reason string
}

func (e *EncodingError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Length > 0 {
		return fmt.Sprintf("clencode: %s (length %d)", e.Reason, e.Length)
	}
	return "clencode: " + e.Reason
}

func (e *EncodingError) Is(target error) bool { return target == ErrEncoding }

// IsEncodingError reports whether err is (or wraps) an *EncodingError.
func IsEncodingError(err error) bool { return errors.Is(err, ErrEncoding) }
