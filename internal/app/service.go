// Package service provides the aggregation engine behind the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fpvleague/lapboard/internal/adapters/cache"
	"github.com/fpvleague/lapboard/internal/adapters/mq/queue"
	"github.com/fpvleague/lapboard/internal/adapters/mq/worker"
	"github.com/fpvleague/lapboard/internal/adapters/notifier"
	"github.com/fpvleague/lapboard/internal/adapters/repository"
	"github.com/fpvleague/lapboard/internal/adapters/upstream"
	"github.com/fpvleague/lapboard/internal/domain/model"
	"github.com/fpvleague/lapboard/internal/domain/normalize"
	"github.com/fpvleague/lapboard/internal/domain/ranking"
	"github.com/fpvleague/lapboard/internal/domain/types"
	"github.com/fpvleague/lapboard/pkg/logger"
	"github.com/fpvleague/lapboard/pkg/metrics"
)

// Default service configuration constants.
const (
	defaultQueueSize   = 64
	defaultWorkerCount = 1
	maxOverlapIDs      = 100

	rosterOK          = "ok"
	rosterUnavailable = "unavailable"
)

// FilterMode selects whether the roster filter applies.
type FilterMode string

// Filter modes.
const (
	FilterRoster FilterMode = "roster"
	FilterAll    FilterMode = "all"
)

// Upstream is the provider client the service depends on.
type Upstream interface {
	upstream.Fetcher
	HasCredential() bool
	BreakerState() string
}

// LeaderboardRequest selects a leaderboard. Leave both ids empty to use the
// first active track (optionally restricted to Laps).
type LeaderboardRequest struct {
	TrackID         *int64
	OnlineID        string
	Laps            int
	Filter          FilterMode
	IncludeUnparsed bool
	// UseCache serves a fresh cached result when present. When false the
	// provider is always called; the result is still stored.
	UseCache bool
}

// Service implements the API dependencies for the leaderboard system.
type Service struct {
	mu sync.RWMutex

	// Core components
	upstream Upstream
	roster   repository.Store
	cache    *cache.Cache
	ranker   *ranking.Ranker

	// Notifications
	sender      worker.Sender
	queue       queue.Queue
	pool        *worker.Pool
	stopWorkers context.CancelFunc
	queueSize   int
	workerCount int

	clock   func() time.Time
	started bool

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithUpstream sets the provider client.
func WithUpstream(u Upstream) Option {
	return func(s *Service) {
		s.upstream = u
	}
}

// WithRoster sets the roster store. Without one every roster read degrades.
func WithRoster(r repository.Store) Option {
	return func(s *Service) {
		s.roster = r
	}
}

// WithCache sets the result cache.
func WithCache(c *cache.Cache) Option {
	return func(s *Service) {
		if c != nil {
			s.cache = c
		}
	}
}

// WithRanker sets the ranking pipeline.
func WithRanker(r *ranking.Ranker) Option {
	return func(s *Service) {
		if r != nil {
			s.ranker = r
		}
	}
}

// WithNotifier enables admin notifications through sender.
func WithNotifier(sender worker.Sender) Option {
	return func(s *Service) {
		s.sender = sender
	}
}

// WithQueueSize sets the notification queue capacity.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithWorkerCount sets the number of notification workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.clock = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		queueSize:   defaultQueueSize,
		workerCount: defaultWorkerCount,
		clock:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cache == nil {
		s.cache = cache.New(cache.WithClock(s.clock))
	}
	if s.ranker == nil {
		s.ranker = ranking.New()
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	return s
}

// Start launches the notification workers. It is a no-op without a notifier.
// The workers outlive ctx and run until Stop has drained the queue.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.sender != nil {
		q := queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
		s.queue = q
		s.pool = worker.NewPool(s.workerCount, q, s.sender)
		runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		s.stopWorkers = cancel
		s.pool.Start(runCtx)
	}
	s.started = true
	s.logger.Info(ctx, "leaderboard service started",
		logger.Bool("notifications", s.sender != nil),
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
	)
	return nil
}

// Stop drains pending notifications and stops the workers.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	var err error
	if s.pool != nil {
		err = s.pool.Shutdown(ctx)
		s.stopWorkers()
		s.pool = nil
		s.queue = nil
		s.stopWorkers = nil
	}
	s.started = false
	s.logger.Info(ctx, "leaderboard service stopped")
	return err
}

// Leaderboard fetches, normalizes, filters and ranks one provider leaderboard.
func (s *Service) Leaderboard(ctx context.Context, req LeaderboardRequest) (types.Board, error) {
	const op = "service.leaderboard"

	ref, err := s.resolve(ctx, req.TrackID, req.OnlineID, req.Laps)
	if err != nil {
		return types.Board{}, fmt.Errorf("%s: %w", op, err)
	}

	entry, stale, err := s.records(ctx, ref, req.UseCache)
	if err != nil {
		return types.Board{}, fmt.Errorf("%s: %w", op, err)
	}

	rows := normalize.Records(entry.Records)
	recordNormalization(rows)

	bypass := req.Filter == FilterAll
	var roster ranking.Roster
	if !bypass {
		roster = s.activeRoster(ctx)
	}

	board := types.NewBoard(ref)
	board.Stale = stale
	board.FetchedAt = entry.FetchedAt
	board.Results = s.ranker.Rank(rows, roster, ranking.Request{
		BypassFilter:    bypass,
		IncludeUnparsed: req.IncludeUnparsed,
	})
	metrics.RecordLeaderboardSize(len(board.Results))

	s.logger.Debug(ctx, "leaderboard built",
		logger.String("track", ref.String()),
		logger.Int("upstream_rows", len(entry.Records)),
		logger.Int("results", len(board.Results)),
		logger.Bool("stale", stale),
	)
	return board, nil
}

// Diagnose reports how the provider rows for a track overlap with the active roster.
func (s *Service) Diagnose(ctx context.Context, req LeaderboardRequest) (types.Diagnosis, error) {
	const op = "service.diagnose"

	ref, err := s.resolve(ctx, req.TrackID, req.OnlineID, req.Laps)
	if err != nil {
		return types.Diagnosis{}, fmt.Errorf("%s: %w", op, err)
	}
	entry, _, err := s.records(ctx, ref, req.UseCache)
	if err != nil {
		return types.Diagnosis{}, fmt.Errorf("%s: %w", op, err)
	}
	rows := normalize.Records(entry.Records)
	roster := s.activeRoster(ctx)

	board := types.NewBoard(ref)
	d := types.Diagnosis{
		TrackID:        board.TrackID,
		OnlineID:       board.OnlineID,
		Laps:           board.Laps,
		RaceMode:       board.RaceMode,
		UpstreamCount:  len(rows),
		PilotsActive:   len(roster),
		OverlapUserIDs: []int64{},
	}

	seen := make(map[int64]struct{}, len(rows))
	for _, r := range rows {
		if !r.LapTimeMs.Valid {
			d.UnparseableCount++
		}
		if !r.HasUserID {
			continue
		}
		if _, dup := seen[r.UserID]; dup {
			continue
		}
		seen[r.UserID] = struct{}{}
		if roster.Has(r.UserID) {
			d.OverlapCount++
			if len(d.OverlapUserIDs) < maxOverlapIDs {
				d.OverlapUserIDs = append(d.OverlapUserIDs, r.UserID)
			}
		}
	}
	d.UpstreamUnique = len(seen)
	return d, nil
}

// ActiveTracks returns the active track selections. A failing store yields an empty list.
func (s *Service) ActiveTracks(ctx context.Context) []model.TrackConfig {
	if s.roster == nil {
		return []model.TrackConfig{}
	}
	tracks, err := s.roster.ActiveTracks(ctx)
	if err != nil {
		s.logger.Warn(ctx, "active tracks unavailable, returning empty list", logger.Error(err))
		return []model.TrackConfig{}
	}
	return tracks
}

// ReplaceTracks validates entries, replaces the active selection and queues a notification.
func (s *Service) ReplaceTracks(ctx context.Context, entries []model.TrackConfig) (int, error) {
	const op = "service.replace_tracks"

	for i, e := range entries {
		if err := e.Validate(); err != nil {
			return 0, fmt.Errorf("%s: entry %d: %w: %w", op, i, ErrInvalidParameters, err)
		}
	}
	if s.roster == nil {
		return 0, fmt.Errorf("%s: %w", op, ErrRosterUnavailable)
	}
	if err := s.roster.ReplaceTracks(ctx, entries); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	s.logger.Info(ctx, "active tracks replaced", logger.Int("count", len(entries)))
	s.notify(ctx, notifier.TracksUpdated(entries, s.clock()))
	return len(entries), nil
}

// Health summarizes dependency state.
func (s *Service) Health(ctx context.Context) types.Health {
	h := types.Health{
		OK:           true,
		Roster:       rosterUnavailable,
		CacheEntries: s.cache.Len(),
	}
	if s.upstream != nil {
		h.UpstreamToken = s.upstream.HasCredential()
		h.Breaker = s.upstream.BreakerState()
	}
	if s.roster != nil {
		if err := s.roster.Ping(ctx); err == nil {
			h.Roster = rosterOK
		} else {
			s.logger.Warn(ctx, "roster ping failed", logger.Error(err))
		}
	}
	return h
}

// CacheStats exposes the result cache counters.
func (s *Service) CacheStats() cache.Stats {
	return s.cache.Stats()
}

// resolve turns request ids into a TrackRef. Without ids it falls back to the
// first active track, restricted to laps when laps is set.
func (s *Service) resolve(ctx context.Context, trackID *int64, onlineID string, laps int) (model.TrackRef, error) {
	var ref model.TrackRef
	switch {
	case trackID != nil && onlineID != "":
		return ref, fmt.Errorf("%w: %w", ErrInvalidParameters, model.ErrInvalidTrack)
	case trackID != nil:
		ref = model.Official(*trackID, laps)
	case onlineID != "":
		ref = model.Unofficial(onlineID, laps)
	default:
		found := false
		for _, t := range s.ActiveTracks(ctx) {
			if laps == 0 || t.Laps == laps {
				ref, found = t.Ref(), true
				break
			}
		}
		if !found {
			return ref, fmt.Errorf("%w: no active track", ErrInvalidParameters)
		}
	}
	if err := ref.Validate(); err != nil {
		return ref, fmt.Errorf("%w: %w", ErrInvalidParameters, err)
	}
	return ref, nil
}

// records returns provider rows for ref, reporting whether a stale entry was served.
func (s *Service) records(ctx context.Context, ref model.TrackRef, useCache bool) (cache.Entry, bool, error) {
	key := ref.Key()
	if useCache {
		if e, ok := s.cache.Lookup(key); ok {
			return e, false, nil
		}
	}
	if s.upstream == nil {
		return cache.Entry{}, false, upstream.ErrAuthMissing
	}

	e, err := s.cache.Do(ctx, key, func(fctx context.Context) ([]model.RawRecord, error) {
		return s.upstream.FetchLeaderboard(fctx, ref)
	})
	if err == nil {
		return e, false, nil
	}

	if upstream.Fallbackable(err) {
		if old, ok := s.cache.Get(key); ok {
			s.cache.MarkStaleServed()
			s.logger.Warn(ctx, "upstream unavailable, serving stale result",
				logger.String("track", ref.String()),
				logger.Duration("age", s.clock().Sub(old.FetchedAt)),
				logger.Error(err),
			)
			return old, true, nil
		}
	}
	return cache.Entry{}, false, err
}

// activeRoster loads the roster, degrading to empty on failure.
func (s *Service) activeRoster(ctx context.Context) ranking.Roster {
	if s.roster == nil {
		return ranking.Roster{}
	}
	pilots, err := s.roster.ActivePilots(ctx)
	if err != nil {
		s.logger.Warn(ctx, "roster unavailable, using empty roster", logger.Error(err))
		return ranking.Roster{}
	}
	return ranking.NewRoster(pilots)
}

func (s *Service) notify(ctx context.Context, n model.Notification) {
	s.mu.RLock()
	q := s.queue
	s.mu.RUnlock()
	if q == nil {
		return
	}
	if err := q.Enqueue(ctx, n); err != nil {
		level := s.logger.Warn
		if errors.Is(err, queue.ErrClosed) {
			level = s.logger.Debug
		}
		level(ctx, "notification dropped", logger.String("subject", n.Subject), logger.Error(err))
	}
}

func recordNormalization(rows []model.NormalizedResult) {
	var parsed, unparseable, anonymous int
	for _, r := range rows {
		if r.LapTimeMs.Valid {
			parsed++
		} else {
			unparseable++
		}
		if !r.HasUserID {
			anonymous++
		}
	}
	metrics.RecordNormalized(metrics.RecordParsed, parsed)
	metrics.RecordNormalized(metrics.RecordUnparseable, unparseable)
	metrics.RecordNormalized(metrics.RecordNoIdentity, anonymous)
}
