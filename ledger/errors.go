package ledger

import (
	"errors"
	"fmt"
)

// ErrNotFound reports that the node holds no value at the requested key.
// It is a normal outcome of a read, not a failure.
var ErrNotFound = errors.New("ledger: value not found")

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// Kind classifies ledger failures.
type Kind string

const (
	// KindTransient failures may succeed on retry (network, 5xx, rate limits, deadlines).
	KindTransient Kind = "transient"
	// KindProtocol failures mean the node answered with something unusable.
	KindProtocol Kind = "protocol"
	// KindTimeout means a submitted action's outcome was not observed in time.
	// The action may still execute; its outcome is unconfirmed.
	KindTimeout Kind = "timeout"
)

// Error is a classified ledger failure.
type Error struct {
	Kind    Kind
	Op      string
	Code    int
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("ledger: %s: %s", e.Op, e.Kind)
	if e.Code != 0 {
		msg += fmt.Sprintf(" (code %d)", e.Code)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// IsKind reports whether err is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	var le *Error
	if !errors.As(err, &le) {
		return false
	}
	return le.Kind == k
}

func transient(op string, cause error, format string, args ...any) *Error {
	return &Error{Kind: KindTransient, Op: op, Message: fmt.Sprintf(format, args...), Cause: cause}
}

func protocol(op string, cause error, format string, args ...any) *Error {
	return &Error{Kind: KindProtocol, Op: op, Message: fmt.Sprintf(format, args...), Cause: cause}
}
