package storage

import "errors"

var (
	ErrNotFound    = errors.New("storage: artifact not found")
	ErrInvalidCID  = errors.New("storage: invalid cid")
	ErrCIDMismatch = errors.New("storage: cid mismatch")
	ErrImmutable   = errors.New("storage: stored artifact differs from payload")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
