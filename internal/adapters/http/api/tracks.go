package api

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/fpvleague/lapboard/internal/domain/model"
)

// AdminKeyHeader carries the admin shared secret.
const AdminKeyHeader = "x-admin-key"

// maxAdminBody bounds the set-tracks payload.
const maxAdminBody = 1 << 20

// TracksDependencies defines the interface for track selection operations.
type TracksDependencies interface {
	ActiveTracks(ctx context.Context) []model.TrackConfig
	ReplaceTracks(ctx context.Context, entries []model.TrackConfig) (int, error)
}

// TracksHandler handles track selection requests.
type TracksHandler struct {
	deps     TracksDependencies
	adminKey []byte
}

// NewTracksHandler creates a new tracks handler. An empty adminKey rejects every admin call.
func NewTracksHandler(deps TracksDependencies, adminKey string) *TracksHandler {
	return &TracksHandler{deps: deps, adminKey: []byte(adminKey)}
}

// HandleActiveTracks handles GET /api/tracks/active.
func (h *TracksHandler) HandleActiveTracks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, tracksResponse{Tracks: h.deps.ActiveTracks(r.Context())})
}

// HandleSetTracks handles POST /api/admin/set-tracks.
func (h *TracksHandler) HandleSetTracks(w http.ResponseWriter, r *http.Request) {
	const op = "api.set_tracks"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	if !h.authorized(r) {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, NewKind(op, ErrUnauthorized))
		return
	}

	var body setTracksRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAdminBody))
	if err := dec.Decode(&body); err != nil || body.Entries == nil {
		writeError(w, http.StatusBadRequest, codeInvalidPayload, NewKind(op, ErrBadRequest))
		return
	}

	n, err := h.deps.ReplaceTracks(r.Context(), body.Entries)
	if err != nil {
		writeServiceError(r.Context(), w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, setTracksResponse{OK: true, Count: n})
}

func (h *TracksHandler) authorized(r *http.Request) bool {
	if len(h.adminKey) == 0 {
		return false
	}
	got := []byte(r.Header.Get(AdminKeyHeader))
	return subtle.ConstantTimeCompare(got, h.adminKey) == 1
}
