// Package upstream talks to the external racing leaderboard provider.
package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/fpvleague/lapboard/internal/domain/model"
	"github.com/fpvleague/lapboard/pkg/logger"
	"github.com/fpvleague/lapboard/pkg/metrics"
)

// Default client configuration constants.
const (
	defaultURL              = "https://velocidrone.co.uk/api/leaderboard"
	defaultSimVersion       = "1.16"
	defaultPageSize         = 200
	defaultProtectedValue   = 1
	defaultTimeout          = 15 * time.Second
	defaultRatePerSec       = 2
	defaultBurst            = 4
	defaultFailureThreshold = 5
	defaultOpenFor          = 30 * time.Second
	breakerHalfOpenRequests = 1
	breakerName             = "upstream"
	defaultMaxBodyBytes     = 8 << 20

	// resultsField holds the leaderboard rows in a provider response.
	resultsField = "tracktimes"
)

// Outcome labels for metrics.
const (
	outcomeOK          = "ok"
	outcomeAuthMissing = "auth_missing"
	outcomeRateLimited = "rate_limited"
	outcomeHTTPError   = "http_error"
	outcomeNotJSON     = "not_json"
	outcomeTooLarge    = "body_too_large"
	outcomeTransport   = "transport_error"
	outcomeCircuitOpen = "circuit_open"
)

// Fetcher returns raw provider rows for a track.
type Fetcher interface {
	FetchLeaderboard(ctx context.Context, ref model.TrackRef) ([]model.RawRecord, error)
}

var _ Fetcher = (*Client)(nil)

// Client implements Fetcher over HTTP.
type Client struct {
	url                 string
	token               string
	simVersion          string
	pageSize            int
	maxBody             int64
	protectedTrackValue int
	timeout             time.Duration

	ratePerSec       float64
	burst            int
	failureThreshold uint32
	openFor          time.Duration
	onState          func(from, to string)

	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[[]model.RawRecord]
	logger  logger.Logger
}

// New constructs a Client with default configuration.
func New(opts ...Option) *Client {
	c := &Client{
		url:                 defaultURL,
		simVersion:          defaultSimVersion,
		pageSize:            defaultPageSize,
		maxBody:             defaultMaxBodyBytes,
		protectedTrackValue: defaultProtectedValue,
		timeout:             defaultTimeout,
		ratePerSec:          defaultRatePerSec,
		burst:               defaultBurst,
		failureThreshold:    defaultFailureThreshold,
		openFor:             defaultOpenFor,
		http:                &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Get().Named("upstream")
	}

	if c.ratePerSec > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(c.ratePerSec), c.burst)
	}

	metrics.UpdateBreakerState(breakerName, 0)
	c.breaker = gobreaker.NewCircuitBreaker[[]model.RawRecord](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: breakerHalfOpenRequests,
		Timeout:     c.openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= c.failureThreshold
		},
		IsSuccessful: func(err error) bool {
			return !tripsBreaker(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn(context.Background(), "circuit breaker state change",
				logger.String("name", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
			metrics.UpdateBreakerState(name, stateValue(to))
			if c.onState != nil {
				c.onState(from.String(), to.String())
			}
		},
	})
	return c
}

// HasCredential reports whether a bearer token is configured.
func (c *Client) HasCredential() bool {
	return strings.TrimSpace(c.token) != ""
}

// BreakerState returns closed, half-open or open.
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}

// FetchLeaderboard posts the leaderboard query for ref and returns the rows.
func (c *Client) FetchLeaderboard(ctx context.Context, ref model.TrackRef) ([]model.RawRecord, error) {
	const op = "upstream.fetch_leaderboard"
	if !c.HasCredential() {
		metrics.RecordUpstreamRequest(outcomeAuthMissing)
		return nil, fmt.Errorf("%s: %w", op, ErrAuthMissing)
	}
	if err := ref.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rows, err := c.breaker.Execute(func() ([]model.RawRecord, error) {
		return c.do(ctx, ref)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.RecordUpstreamRequest(outcomeCircuitOpen)
		return nil, fmt.Errorf("%s: %w: %w", op, ErrCircuitOpen, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return rows, nil
}

func (c *Client) do(ctx context.Context, ref model.TrackRef) ([]model.RawRecord, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate wait: %w", ErrTransport, err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	form := url.Values{"post_data": {c.PostData(ref)}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrTransport, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.RecordUpstreamLatency(float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.RecordUpstreamRequest(outcomeTransport)
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		metrics.RecordUpstreamRequest(outcomeTransport)
		return nil, fmt.Errorf("%w: read body: %w", ErrTransport, err)
	}
	truncated := int64(len(body)) > c.maxBody
	if truncated {
		body = body[:c.maxBody]
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		serr := newStatusError(resp.StatusCode, body)
		if resp.StatusCode == http.StatusTooManyRequests {
			metrics.RecordUpstreamRequest(outcomeRateLimited)
		} else {
			metrics.RecordUpstreamRequest(outcomeHTTPError)
		}
		c.logger.Warn(ctx, "upstream returned error status",
			logger.Int("status", resp.StatusCode),
			logger.String("track", ref.String()),
		)
		return nil, serr
	}

	if truncated {
		metrics.RecordUpstreamRequest(outcomeTooLarge)
		c.logger.Warn(ctx, "upstream body exceeds limit",
			logger.Int64("limit", c.maxBody),
			logger.String("track", ref.String()),
		)
		return nil, fmt.Errorf("%w: %w: limit %d bytes", ErrProtocol, ErrBodyTooLarge, c.maxBody)
	}

	rows, err := decodeRows(body)
	if err != nil {
		metrics.RecordUpstreamRequest(outcomeNotJSON)
		return nil, err
	}
	metrics.RecordUpstreamRequest(outcomeOK)
	c.logger.Debug(ctx, "upstream leaderboard fetched",
		logger.String("track", ref.String()),
		logger.Int("rows", len(rows)),
	)
	return rows, nil
}

// PostData renders the provider query string carried in the post_data field.
// The parameter order matches what the provider documents.
func (c *Client) PostData(ref model.TrackRef) string {
	var b strings.Builder
	if ref.Mode == model.ModeUnofficial {
		b.WriteString("online_id=" + url.QueryEscape(ref.OnlineID))
	} else {
		b.WriteString("track_id=" + strconv.FormatInt(ref.TrackID, 10))
	}
	b.WriteString("&sim_version=" + url.QueryEscape(c.simVersion))
	b.WriteString("&offset=0")
	b.WriteString("&count=" + strconv.Itoa(c.pageSize))
	b.WriteString("&protected_track_value=" + strconv.Itoa(c.protectedTrackValue))
	b.WriteString("&race_mode=" + strconv.Itoa(ref.RaceMode()))
	return b.String()
}

// decodeRows extracts the results list. A body that is not JSON is an error;
// valid JSON without a usable results array yields no rows.
func decodeRows(body []byte) ([]model.RawRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %w: %v", ErrProtocol, ErrNotJSON, err)
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return []model.RawRecord{}, nil
	}
	list, ok := obj[resultsField].([]any)
	if !ok {
		return []model.RawRecord{}, nil
	}
	rows := make([]model.RawRecord, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			rows = append(rows, model.RawRecord(m))
		}
	}
	return rows, nil
}

// tripsBreaker counts transport failures and 5xx responses against the breaker.
func tripsBreaker(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransport) {
		return true
	}
	var serr *StatusError
	return errors.As(err, &serr) && serr.Code >= http.StatusInternalServerError
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
