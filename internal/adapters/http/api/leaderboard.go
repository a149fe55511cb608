package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	service "github.com/fpvleague/lapboard/internal/app"
	"github.com/fpvleague/lapboard/internal/domain/types"
)

// LeaderboardDependencies defines the interface for leaderboard operations.
type LeaderboardDependencies interface {
	Leaderboard(ctx context.Context, req service.LeaderboardRequest) (types.Board, error)
	Diagnose(ctx context.Context, req service.LeaderboardRequest) (types.Diagnosis, error)
}

// LeaderboardHandler handles leaderboard requests.
type LeaderboardHandler struct {
	deps LeaderboardDependencies
}

// NewLeaderboardHandler creates a new leaderboard handler.
func NewLeaderboardHandler(deps LeaderboardDependencies) *LeaderboardHandler {
	return &LeaderboardHandler{deps: deps}
}

// HandleGetLeaderboard handles GET /api/leaderboard?track_id=N&laps=1|3 (or online_id=...).
func (h *LeaderboardHandler) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_leaderboard"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	req, err := parseLeaderboardQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidParameters, NewKind(op, err))
		return
	}
	board, err := h.deps.Leaderboard(r.Context(), req)
	if err != nil {
		writeServiceError(r.Context(), w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

// HandleDebugLeaderboard handles GET /api/debug/leaderboard with the same query parameters.
func (h *LeaderboardHandler) HandleDebugLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.debug_leaderboard"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	req, err := parseLeaderboardQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidParameters, NewKind(op, err))
		return
	}
	d, err := h.deps.Diagnose(r.Context(), req)
	if err != nil {
		writeServiceError(r.Context(), w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// parseLeaderboardQuery reads track_id, online_id, laps, filter, include_unparsed and use_cache.
func parseLeaderboardQuery(q url.Values) (service.LeaderboardRequest, error) {
	req := service.LeaderboardRequest{
		Filter:   service.FilterRoster,
		UseCache: true,
	}

	if raw := strings.TrimSpace(q.Get("track_id")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return req, ErrBadRequest
		}
		req.TrackID = &id
	}
	req.OnlineID = strings.TrimSpace(q.Get("online_id"))

	if raw := strings.TrimSpace(q.Get("laps")); raw != "" {
		laps, err := strconv.Atoi(raw)
		if err != nil {
			return req, ErrBadRequest
		}
		req.Laps = laps
	}

	if strings.EqualFold(q.Get("filter"), string(service.FilterAll)) {
		req.Filter = service.FilterAll
	}
	req.IncludeUnparsed = flag(q.Get("include_unparsed"), false)
	req.UseCache = flag(q.Get("use_cache"), true)
	return req, nil
}

// flag reads 1/0 and true/false, returning def for anything else.
func flag(v string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	default:
		return def
	}
}
