package repository

import "errors"

// Sentinel kinds for roster store errors.
var (
	// ErrUnavailable wraps any driver failure. Callers degrade instead of failing.
	ErrUnavailable   = errors.New("roster store unavailable")
	ErrUnknownDriver = errors.New("unknown roster driver")
)
