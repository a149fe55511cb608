// Package types contains the read shapes returned by the service.
package types

import (
	"time"

	"github.com/fpvleague/lapboard/internal/domain/model"
)

// Board is a ranked leaderboard for one track and lap mode.
type Board struct {
	TrackID   *int64               `json:"track_id,omitempty"`
	OnlineID  string               `json:"online_id,omitempty"`
	Laps      int                  `json:"laps"`
	RaceMode  int                  `json:"race_mode"`
	Stale     bool                 `json:"stale"`
	FetchedAt time.Time            `json:"fetched_at"`
	Results   []model.RankedResult `json:"results"`
}

// NewBoard builds the Board header from a TrackRef.
func NewBoard(ref model.TrackRef) Board {
	b := Board{Laps: ref.Laps, RaceMode: ref.RaceMode(), Results: []model.RankedResult{}}
	if ref.Mode == model.ModeUnofficial {
		b.OnlineID = ref.OnlineID
	} else {
		id := ref.TrackID
		b.TrackID = &id
	}
	return b
}

// Diagnosis reports how provider rows overlap with the active roster.
type Diagnosis struct {
	TrackID          *int64  `json:"track_id,omitempty"`
	OnlineID         string  `json:"online_id,omitempty"`
	Laps             int     `json:"laps"`
	RaceMode         int     `json:"race_mode"`
	UpstreamCount    int     `json:"velo_count"`
	UpstreamUnique   int     `json:"velo_unique_users"`
	PilotsActive     int     `json:"pilots_active"`
	OverlapCount     int     `json:"overlap_count"`
	OverlapUserIDs   []int64 `json:"overlap_user_ids"`
	UnparseableCount int     `json:"unparseable_count"`
}

// Health summarizes dependency state for GET /api/health.
type Health struct {
	OK            bool   `json:"ok"`
	UpstreamToken bool   `json:"upstream_token"`
	Roster        string `json:"roster"`
	CacheEntries  int    `json:"cache_entries"`
	Breaker       string `json:"breaker"`
}
