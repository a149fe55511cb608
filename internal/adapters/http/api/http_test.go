package api_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/fpvleague/lapboard/internal/adapters/http/api"
	"github.com/fpvleague/lapboard/internal/adapters/repository"
	"github.com/fpvleague/lapboard/internal/adapters/upstream"
	service "github.com/fpvleague/lapboard/internal/app"
	"github.com/fpvleague/lapboard/internal/domain/laptime"
	"github.com/fpvleague/lapboard/internal/domain/model"
	"github.com/fpvleague/lapboard/internal/domain/types"
	"github.com/fpvleague/lapboard/pkg/logger"
)

func init() {
	if err := logger.Init(logger.WithWriter(io.Discard)); err != nil {
		panic(err)
	}
}

type mockDependencies struct {
	lastReq  service.LeaderboardRequest
	board    types.Board
	diag     types.Diagnosis
	lbErr    error
	tracks   []model.TrackConfig
	replaced []model.TrackConfig
	replErr  error
}

func (m *mockDependencies) Leaderboard(_ context.Context, req service.LeaderboardRequest) (types.Board, error) {
	m.lastReq = req
	return m.board, m.lbErr
}

func (m *mockDependencies) Diagnose(_ context.Context, req service.LeaderboardRequest) (types.Diagnosis, error) {
	m.lastReq = req
	return m.diag, m.lbErr
}

func (m *mockDependencies) ActiveTracks(context.Context) []model.TrackConfig {
	if m.tracks == nil {
		return []model.TrackConfig{}
	}
	return m.tracks
}

func (m *mockDependencies) ReplaceTracks(_ context.Context, entries []model.TrackConfig) (int, error) {
	if m.replErr != nil {
		return 0, m.replErr
	}
	m.replaced = entries
	return len(entries), nil
}

func (m *mockDependencies) Health(context.Context) types.Health {
	return types.Health{OK: true, UpstreamToken: true, Roster: "ok", Breaker: "closed"}
}

func newMux(deps *mockDependencies) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps, api.WithAdminKey("sekret")).Register(context.Background(), mux)
	return mux
}

func do(mux http.Handler, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	var r io.Reader = http.NoBody
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decodeError(w *httptest.ResponseRecorder) map[string]string {
	var out map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return out
}

func TestLeaderboardEndpoint(t *testing.T) {
	Convey("Given the API server", t, func() {
		trackID := int64(42)
		deps := &mockDependencies{board: types.Board{
			TrackID: &trackID, Laps: 3, RaceMode: 6,
			Results: []model.RankedResult{{
				Position: 1,
				NormalizedResult: model.NormalizedResult{
					UserID: 7, HasUserID: true, DisplayName: "Ace",
					LapTimeText: "61.234", LapTimeMs: laptime.Of(61234),
				},
			}},
		}}
		mux := newMux(deps)

		Convey("When a leaderboard is requested", func() {
			w := do(mux, http.MethodGet, "/api/leaderboard?track_id=42&laps=3", "", nil)

			Convey("Then the board is returned as JSON", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Header().Get("Content-Type"), ShouldEqual, "application/json; charset=utf-8")

				var body map[string]any
				So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
				So(body["track_id"], ShouldEqual, 42)
				So(body["race_mode"], ShouldEqual, 6)
				results := body["results"].([]any)
				So(results, ShouldHaveLength, 1)
				first := results[0].(map[string]any)
				So(first["position"], ShouldEqual, 1)
				So(first["playername"], ShouldEqual, "Ace")
				So(first["lap_time_ms"], ShouldEqual, 61234)
			})

			Convey("Then defaults are applied", func() {
				So(*deps.lastReq.TrackID, ShouldEqual, 42)
				So(deps.lastReq.Laps, ShouldEqual, 3)
				So(deps.lastReq.Filter, ShouldEqual, service.FilterRoster)
				So(deps.lastReq.UseCache, ShouldBeTrue)
				So(deps.lastReq.IncludeUnparsed, ShouldBeFalse)
			})
		})

		Convey("When toggles are passed", func() {
			w := do(mux, http.MethodGet, "/api/leaderboard?online_id=abc&laps=1&filter=all&include_unparsed=1&use_cache=0", "", nil)

			Convey("Then they reach the service", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.lastReq.OnlineID, ShouldEqual, "abc")
				So(deps.lastReq.Filter, ShouldEqual, service.FilterAll)
				So(deps.lastReq.IncludeUnparsed, ShouldBeTrue)
				So(deps.lastReq.UseCache, ShouldBeFalse)
			})
		})

		Convey("When track_id is malformed", func() {
			w := do(mux, http.MethodGet, "/api/leaderboard?track_id=abc&laps=3", "", nil)

			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(decodeError(w)["code"], ShouldEqual, "invalid_parameters")
		})

		Convey("When the service errors", func() {
			cases := []struct {
				err    error
				status int
				code   string
			}{
				{service.ErrInvalidParameters, http.StatusBadRequest, "invalid_parameters"},
				{upstream.ErrAuthMissing, http.StatusUnauthorized, "upstream_auth_missing"},
				{&upstream.StatusError{Code: 429}, http.StatusServiceUnavailable, "upstream_rate_limited"},
				{upstream.ErrCircuitOpen, http.StatusServiceUnavailable, "upstream_rate_limited"},
				{&upstream.StatusError{Code: 500, Body: "boom"}, http.StatusBadGateway, "upstream_error"},
				{errors.New("unexpected"), http.StatusInternalServerError, "internal_error"},
			}

			Convey("Then each kind maps to its status and code", func() {
				for _, c := range cases {
					deps.lbErr = c.err
					w := do(mux, http.MethodGet, "/api/leaderboard?track_id=1&laps=1", "", nil)
					So(w.Code, ShouldEqual, c.status)
					So(decodeError(w)["code"], ShouldEqual, c.code)
				}
			})
		})

		Convey("When the diagnostic endpoint is requested", func() {
			deps.diag = types.Diagnosis{UpstreamCount: 5, OverlapCount: 2, OverlapUserIDs: []int64{1, 2}}
			w := do(mux, http.MethodGet, "/api/debug/leaderboard?track_id=42&laps=3&use_cache=0", "", nil)

			Convey("Then the overlap report is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var body map[string]any
				So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
				So(body["velo_count"], ShouldEqual, 5)
				So(body["overlap_count"], ShouldEqual, 2)
				So(deps.lastReq.UseCache, ShouldBeFalse)
			})
		})

		Convey("When the wrong method is used", func() {
			w := do(mux, http.MethodPost, "/api/leaderboard?track_id=42&laps=3", "", nil)

			So(w.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestTracksEndpoints(t *testing.T) {
	Convey("Given the API server", t, func() {
		deps := &mockDependencies{tracks: []model.TrackConfig{{ID: 1, Title: "T", TrackID: 42, Laps: 3, Active: true}}}
		mux := newMux(deps)
		payload := `{"entries":[{"title":"T","scenery_id":16,"track_id":42,"laps":3,"active":true}]}`

		Convey("When active tracks are listed", func() {
			w := do(mux, http.MethodGet, "/api/tracks/active", "", nil)

			So(w.Code, ShouldEqual, http.StatusOK)
			var body struct {
				Tracks []model.TrackConfig `json:"tracks"`
			}
			So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
			So(body.Tracks, ShouldHaveLength, 1)
		})

		Convey("When the admin key is missing", func() {
			w := do(mux, http.MethodPost, "/api/admin/set-tracks", payload, nil)

			So(w.Code, ShouldEqual, http.StatusUnauthorized)
			So(deps.replaced, ShouldBeNil)
		})

		Convey("When the admin key is wrong", func() {
			w := do(mux, http.MethodPost, "/api/admin/set-tracks", payload, map[string]string{"x-admin-key": "nope"})

			So(w.Code, ShouldEqual, http.StatusUnauthorized)
		})

		Convey("When the payload is malformed", func() {
			w := do(mux, http.MethodPost, "/api/admin/set-tracks", `{"entries":`, map[string]string{"x-admin-key": "sekret"})

			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(decodeError(w)["code"], ShouldEqual, "invalid_payload")
		})

		Convey("When entries are missing", func() {
			w := do(mux, http.MethodPost, "/api/admin/set-tracks", `{}`, map[string]string{"x-admin-key": "sekret"})

			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When a valid payload is posted", func() {
			w := do(mux, http.MethodPost, "/api/admin/set-tracks", payload, map[string]string{"x-admin-key": "sekret"})

			Convey("Then the tracks are replaced", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"count":1`)
				So(deps.replaced, ShouldHaveLength, 1)
				So(deps.replaced[0].SceneryID, ShouldEqual, 16)
			})
		})

		Convey("When an entry omits active", func() {
			w := do(mux, http.MethodPost, "/api/admin/set-tracks",
				`{"entries":[{"title":"A","track_id":5,"laps":1}]}`, map[string]string{"x-admin-key": "sekret"})

			Convey("Then it is stored as active", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.replaced, ShouldHaveLength, 1)
				So(deps.replaced[0].Active, ShouldBeTrue)
			})
		})

		Convey("When the store is down", func() {
			deps.replErr = repository.ErrUnavailable
			w := do(mux, http.MethodPost, "/api/admin/set-tracks", payload, map[string]string{"x-admin-key": "sekret"})

			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
			So(decodeError(w)["code"], ShouldEqual, "roster_unavailable")
		})
	})

	Convey("Given a server without an admin key", t, func() {
		mux := http.NewServeMux()
		api.NewServer(&mockDependencies{}).Register(context.Background(), mux)

		w := do(mux, http.MethodPost, "/api/admin/set-tracks", `{"entries":[]}`, map[string]string{"x-admin-key": ""})

		So(w.Code, ShouldEqual, http.StatusUnauthorized)
	})
}

func TestHealthAndMetrics(t *testing.T) {
	Convey("Given the API server", t, func() {
		mux := newMux(&mockDependencies{})

		Convey("When health is requested", func() {
			w := do(mux, http.MethodGet, "/api/health", "", nil)

			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"ok":true`)
			So(w.Body.String(), ShouldContainSubstring, `"breaker":"closed"`)
		})

		Convey("When metrics are scraped after a request", func() {
			_ = do(mux, http.MethodGet, "/api/health", "", nil)
			w := do(mux, http.MethodGet, "/metrics", "", nil)

			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "lapboard_leaderboard_http_requests_total")
		})
	})
}

func TestRequestIDMiddleware(t *testing.T) {
	Convey("Given a handler behind the request id middleware", t, func() {
		var seen string
		h := api.RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = logger.RequestID(r.Context())
		}))

		Convey("When the caller sends an id", func() {
			w := do(h, http.MethodGet, "/", "", map[string]string{api.RequestIDHeader: "abc-123"})

			So(seen, ShouldEqual, "abc-123")
			So(w.Header().Get(api.RequestIDHeader), ShouldEqual, "abc-123")
		})

		Convey("When the caller sends none", func() {
			w := do(h, http.MethodGet, "/", "", nil)

			So(seen, ShouldHaveLength, 36)
			So(w.Header().Get(api.RequestIDHeader), ShouldEqual, seen)
		})
	})
}
