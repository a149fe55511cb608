package upstream

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel kinds for provider errors.
var (
	// ErrAuthMissing means no bearer credential is configured. Nothing is sent.
	ErrAuthMissing = errors.New("upstream credential missing")
	// ErrRateLimited matches a 429 response.
	ErrRateLimited = errors.New("upstream rate limited")
	// ErrProtocol matches any other non-2xx response or an unreadable 2xx body.
	ErrProtocol = errors.New("upstream protocol error")
	// ErrNotJSON is joined with ErrProtocol when a 2xx body is not JSON.
	ErrNotJSON = errors.New("upstream body is not JSON")
	// ErrBodyTooLarge is joined with ErrProtocol when a 2xx body exceeds the read limit.
	ErrBodyTooLarge = errors.New("upstream body too large")
	// ErrCircuitOpen means the breaker rejected the call without sending it.
	ErrCircuitOpen = errors.New("upstream circuit open")
	// ErrTransport wraps network failures.
	ErrTransport = errors.New("upstream transport error")
)

// maxErrorBody bounds the body text kept on a StatusError.
const maxErrorBody = 2048

// StatusError carries a non-2xx provider response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.Code, e.Body)
}

// Is lets errors.Is match ErrRateLimited for 429 and ErrProtocol otherwise.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrRateLimited:
		return e.Code == http.StatusTooManyRequests
	case ErrProtocol:
		return e.Code != http.StatusTooManyRequests
	}
	return false
}

// Fallbackable reports whether a cached result may be served instead of err.
func Fallbackable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrCircuitOpen)
}

func newStatusError(code int, body []byte) *StatusError {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return &StatusError{Code: code, Body: string(body)}
}
