// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"

	"github.com/goccy/go-json"

	service "github.com/fpvleague/lapboard/internal/app"
	"github.com/fpvleague/lapboard/internal/domain/model"
	"github.com/fpvleague/lapboard/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	LeaderboardDependencies
	TracksDependencies
	HealthDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	leaderboardHandler *LeaderboardHandler
	tracksHandler      *TracksHandler
	healthHandler      *HealthHandler
}

// ServerOption applies a configuration option to the Server.
type ServerOption func(*serverConfig)

type serverConfig struct {
	adminKey string
}

// WithAdminKey sets the shared secret required by admin routes.
func WithAdminKey(key string) ServerOption {
	return func(c *serverConfig) {
		c.adminKey = key
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...ServerOption) *Server {
	var cfg serverConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{
		leaderboardHandler: NewLeaderboardHandler(deps),
		tracksHandler:      NewTracksHandler(deps, cfg.adminKey),
		healthHandler:      NewHealthHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/api/health", MetricsMiddleware(s.healthHandler.HandleHealth, "health"))
	mux.HandleFunc("/metrics", s.healthHandler.HandleMetrics)
	mux.HandleFunc("/api/leaderboard", MetricsMiddleware(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))
	mux.HandleFunc("/api/debug/leaderboard", MetricsMiddleware(s.leaderboardHandler.HandleDebugLeaderboard, "debug_leaderboard"))
	mux.HandleFunc("/api/tracks/active", MetricsMiddleware(s.tracksHandler.HandleActiveTracks, "tracks_active"))
	mux.HandleFunc("/api/admin/set-tracks", MetricsMiddleware(s.tracksHandler.HandleSetTracks, "admin_set_tracks"))
}

// Compile-time check that the service satisfies the handler contracts.
var _ Dependencies = (*service.Service)(nil)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type tracksResponse struct {
	Tracks []model.TrackConfig `json:"tracks"`
}

type setTracksRequest struct {
	Entries []model.TrackConfig `json:"entries"`
}

type setTracksResponse struct {
	OK    bool `json:"ok"`
	Count int  `json:"count"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError classifies err, logs server-side failures and writes the payload.
func writeServiceError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		logger.Get().Named("api").Error(ctx, "request failed",
			logger.String("op", op),
			logger.String("code", code),
			logger.Error(err),
		)
	}
	writeError(w, status, code, err)
}
