// Package model contains domain models passed between layers.
package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/fpvleague/lapboard/internal/domain/laptime"
)

// Mode selects how a track is addressed upstream.
type Mode string

// Track addressing modes.
const (
	ModeOfficial   Mode = "official"
	ModeUnofficial Mode = "unofficial"
)

// Race mode codes understood by the provider.
const (
	raceModeSingleLap = 3
	raceModeThreeLaps = 6
)

// Validation errors for TrackRef.
var (
	ErrInvalidLaps  = errors.New("laps must be 1 or 3")
	ErrInvalidTrack = errors.New("exactly one of track_id or online_id is required")
)

// TrackRef identifies one provider leaderboard.
type TrackRef struct {
	Mode     Mode
	TrackID  int64  // set iff Mode == ModeOfficial
	OnlineID string // set iff Mode == ModeUnofficial
	Laps     int
}

// Official builds a TrackRef for a numeric provider track id.
func Official(trackID int64, laps int) TrackRef {
	return TrackRef{Mode: ModeOfficial, TrackID: trackID, Laps: laps}
}

// Unofficial builds a TrackRef for an online (user-published) track id.
func Unofficial(onlineID string, laps int) TrackRef {
	return TrackRef{Mode: ModeUnofficial, OnlineID: strings.TrimSpace(onlineID), Laps: laps}
}

// Validate checks the laps domain and the exactly-one identity invariant.
func (t TrackRef) Validate() error {
	if t.Laps != 1 && t.Laps != 3 {
		return ErrInvalidLaps
	}
	switch t.Mode {
	case ModeOfficial:
		if t.TrackID <= 0 || t.OnlineID != "" {
			return ErrInvalidTrack
		}
	case ModeUnofficial:
		if t.OnlineID == "" || t.TrackID != 0 {
			return ErrInvalidTrack
		}
	default:
		return ErrInvalidTrack
	}
	return nil
}

// RaceMode maps the lap count to the provider race_mode code (1 -> 3, 3 -> 6).
func (t TrackRef) RaceMode() int {
	if t.Laps == 3 {
		return raceModeThreeLaps
	}
	return raceModeSingleLap
}

// Identity returns the provider track identity as text.
func (t TrackRef) Identity() string {
	if t.Mode == ModeUnofficial {
		return "online:" + t.OnlineID
	}
	return strconv.FormatInt(t.TrackID, 10)
}

// Key returns the cache key for this leaderboard.
func (t TrackRef) Key() CacheKey {
	return CacheKey{Track: t.Identity(), RaceMode: t.RaceMode()}
}

func (t TrackRef) String() string {
	return fmt.Sprintf("%s/%d laps", t.Identity(), t.Laps)
}

// CacheKey identifies a cached provider result set.
type CacheKey struct {
	Track    string
	RaceMode int
}

func (k CacheKey) String() string {
	return k.Track + "_" + strconv.Itoa(k.RaceMode)
}

// RawRecord is one provider leaderboard row as decoded from JSON.
type RawRecord map[string]any

// NormalizedResult is the canonical per-record shape.
type NormalizedResult struct {
	UserID      int64          `json:"user_id"`
	HasUserID   bool           `json:"-"`
	DisplayName string         `json:"playername"`
	Country     string         `json:"country"`
	DeviceModel string         `json:"model_name"`
	SimVersion  string         `json:"sim_version"`
	DeviceType  string         `json:"device_type"`
	LapTimeText string         `json:"lap_time"`
	LapTimeMs   laptime.Millis `json:"lap_time_ms"`
}

// RankedResult is a NormalizedResult with its 1-based position.
type RankedResult struct {
	Position int `json:"position"`
	NormalizedResult
}

// Pilot is a registered roster member.
type Pilot struct {
	UserID  int64  `json:"user_id"`
	Name    string `json:"name"`
	Country string `json:"country"`
	Active  bool   `json:"active"`
}

// TrackConfig is an admin-managed leaderboard selection.
type TrackConfig struct {
	ID        int64     `json:"id,omitempty"`
	Title     string    `json:"title"`
	SceneryID int64     `json:"scenery_id"`
	TrackID   int64     `json:"track_id"`
	OnlineID  string    `json:"online_id,omitempty"`
	Laps      int       `json:"laps"`
	Active    bool      `json:"active"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Ref converts the configuration into a TrackRef. Online ids win when set.
func (c TrackConfig) Ref() TrackRef {
	if strings.TrimSpace(c.OnlineID) != "" {
		return Unofficial(c.OnlineID, c.Laps)
	}
	return Official(c.TrackID, c.Laps)
}

// UnmarshalJSON decodes an admin entry. An omitted active field means active.
func (c *TrackConfig) UnmarshalJSON(b []byte) error {
	type plain TrackConfig
	p := plain{Active: true}
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*c = TrackConfig(p)
	return nil
}

// Validate checks an admin-supplied entry.
func (c TrackConfig) Validate() error {
	return c.Ref().Validate()
}

// Notification is an outbound operator message.
type Notification struct {
	Subject   string
	Message   string
	CreatedAt time.Time
}
