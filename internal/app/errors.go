package service

import "errors"

// Sentinel kinds for service errors.
var (
	// ErrInvalidParameters means the request could not be resolved to a track.
	ErrInvalidParameters = errors.New("invalid parameters")
	// ErrRosterUnavailable means no roster store is configured or reachable.
	ErrRosterUnavailable = errors.New("roster unavailable")
)
