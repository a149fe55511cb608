package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/fpvleague/lapboard/internal/adapters/repository"
	"github.com/fpvleague/lapboard/internal/adapters/upstream"
	service "github.com/fpvleague/lapboard/internal/app"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrUnauthorized = errors.New("unauthorized")
)

// Error codes returned in the JSON error payload.
const (
	codeInvalidParameters   = "invalid_parameters"
	codeInvalidPayload      = "invalid_payload"
	codeUnauthorized        = "unauthorized"
	codeUpstreamAuthMissing = "upstream_auth_missing"
	codeUpstreamRateLimited = "upstream_rate_limited"
	codeUpstreamError       = "upstream_error"
	codeRosterUnavailable   = "roster_unavailable"
	codeInternal            = "internal_error"
)

// NewKind tags a sentinel kind with the operation that produced it.
func NewKind(op string, kind error) error {
	return fmt.Errorf("%s: %w", op, kind)
}

// classify maps a service error to an HTTP status and error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrInvalidParameters), errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, codeInvalidParameters
	case errors.Is(err, upstream.ErrAuthMissing):
		return http.StatusUnauthorized, codeUpstreamAuthMissing
	case upstream.Fallbackable(err):
		return http.StatusServiceUnavailable, codeUpstreamRateLimited
	case errors.Is(err, upstream.ErrProtocol), errors.Is(err, upstream.ErrTransport):
		return http.StatusBadGateway, codeUpstreamError
	case errors.Is(err, service.ErrRosterUnavailable), errors.Is(err, repository.ErrUnavailable):
		return http.StatusServiceUnavailable, codeRosterUnavailable
	default:
		return http.StatusInternalServerError, codeInternal
	}
}
