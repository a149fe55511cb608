package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/fpvleague/lapboard/internal/adapters/cache"
	"github.com/fpvleague/lapboard/internal/adapters/http/api"
	"github.com/fpvleague/lapboard/internal/adapters/http/swagger"
	"github.com/fpvleague/lapboard/internal/adapters/notifier"
	"github.com/fpvleague/lapboard/internal/adapters/repository"
	"github.com/fpvleague/lapboard/internal/adapters/upstream"
	app "github.com/fpvleague/lapboard/internal/app"
	"github.com/fpvleague/lapboard/internal/config"
	"github.com/fpvleague/lapboard/internal/domain/ranking"
	"github.com/fpvleague/lapboard/pkg/logger"
	"github.com/fpvleague/lapboard/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 30 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// Logger isn't available yet
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	a, err := newApplication(ctx, cfg)
	if err != nil {
		log.Fatal(ctx, "failed to build application", logger.Error(err))
	}

	go startSystemMetricsUpdater(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           a.handler,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "HTTP server failed", logger.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	a.close(shutdownCtx)

	log.Info(ctx, "server stopped")
}

// application holds the wired components and the root HTTP handler.
type application struct {
	svc     *app.Service
	roster  repository.Store
	handler http.Handler
}

// newApplication wires every component from cfg. A roster store that cannot be
// opened is logged and left out; requests then degrade to an empty roster.
func newApplication(ctx context.Context, cfg *config.Config) (*application, error) {
	log := logger.Get()

	client := upstream.New(
		upstream.WithURL(cfg.UpstreamURL),
		upstream.WithToken(cfg.UpstreamToken),
		upstream.WithSimVersion(cfg.SimVersion),
		upstream.WithPageSize(cfg.UpstreamPageSize),
		upstream.WithProtectedTrackValue(cfg.ProtectedTrackValue),
		upstream.WithTimeout(cfg.UpstreamTimeout()),
		upstream.WithRateLimit(cfg.UpstreamRatePerSec, cfg.UpstreamBurst),
		upstream.WithBreaker(cfg.BreakerFailureThreshold, cfg.BreakerOpen()),
	)
	if !client.HasCredential() {
		log.Warn(ctx, "upstream token is not configured; leaderboard requests will fail")
	}

	a := &application{}
	dsn := cfg.DatabaseURL
	if cfg.RosterDriver == config.DriverSQLite {
		dsn = cfg.SQLitePath
	}
	store, err := repository.Open(ctx, cfg.RosterDriver, dsn, repository.WithTimeout(cfg.RosterTimeout()))
	if err != nil {
		log.Error(ctx, "roster store unavailable; continuing without it",
			logger.String("driver", cfg.RosterDriver), logger.Error(err))
	} else {
		a.roster = store
	}

	sender, err := notifier.New(notifier.WithTelegram(cfg.NotifyTelegramToken, cfg.NotifyTelegramChatIDs...))
	if err != nil {
		log.Error(ctx, "notifier setup failed; notifications disabled", logger.Error(err))
		sender = nil
	}

	opts := []app.Option{
		app.WithLogger(log.Named("service")),
		app.WithUpstream(client),
		app.WithCache(cache.New(cache.WithTTL(cfg.CacheTTL()))),
		app.WithRanker(ranking.New(
			ranking.WithEmptyRosterPolicy(ranking.ParsePolicy(cfg.EmptyRosterPolicy)),
			ranking.WithDedupeByPilot(cfg.DedupeByPilot),
			ranking.WithPreviewLimit(cfg.UnparsedPreviewLimit),
		)),
		app.WithQueueSize(cfg.NotifyQueueSize),
		app.WithWorkerCount(cfg.NotifyWorkerCount),
	}
	if a.roster != nil {
		opts = append(opts, app.WithRoster(a.roster))
	}
	if sender != nil && sender.Enabled() {
		opts = append(opts, app.WithNotifier(sender))
	}

	a.svc = app.New(opts...)
	if err := a.svc.Start(ctx); err != nil {
		a.close(ctx)
		return nil, err
	}

	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(a.svc, api.WithAdminKey(cfg.AdminKey)).Register(ctx, mux)
	a.handler = api.RequestIDMiddleware(mux)
	return a, nil
}

// close stops the service and releases the roster store.
func (a *application) close(ctx context.Context) {
	log := logger.Get()
	if a.svc != nil {
		if err := a.svc.Stop(ctx); err != nil {
			log.Error(ctx, "service shutdown failed", logger.Error(err))
		}
	}
	if a.roster != nil {
		if err := a.roster.Close(); err != nil {
			log.Error(ctx, "roster close failed", logger.Error(err))
		}
	}
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}
