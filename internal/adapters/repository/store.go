// Package repository persists the pilot roster and the admin track selection.
package repository

import (
	"context"

	"github.com/fpvleague/lapboard/internal/domain/model"
)

// Store provides read/write access to the roster.
type Store interface {
	// ActiveTracks returns active track selections ordered by laps, then id.
	ActiveTracks(ctx context.Context) ([]model.TrackConfig, error)
	// ActivePilots returns every roster member flagged active.
	ActivePilots(ctx context.Context) ([]model.Pilot, error)

	// UpsertTrack inserts or updates a selection keyed by track identity and laps.
	UpsertTrack(ctx context.Context, t model.TrackConfig) error
	// DeactivateAllTracks clears the active flag on every selection.
	DeactivateAllTracks(ctx context.Context) error
	// ReplaceTracks deactivates everything and upserts entries in one transaction.
	ReplaceTracks(ctx context.Context, entries []model.TrackConfig) error

	// Ping checks connectivity.
	Ping(ctx context.Context) error
	// Close releases the underlying connections.
	Close() error
}

// trackKey is the persisted identity column shared by both drivers.
func trackKey(t model.TrackConfig) string {
	return t.Ref().Identity()
}
