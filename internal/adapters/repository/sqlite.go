package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver

	"github.com/fpvleague/lapboard/internal/domain/model"
	"github.com/fpvleague/lapboard/pkg/logger"
	"github.com/fpvleague/lapboard/pkg/metrics"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS tracks (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	title      TEXT NOT NULL DEFAULT '',
	scenery_id INTEGER NOT NULL DEFAULT 0,
	track_id   INTEGER NOT NULL DEFAULT 0,
	online_id  TEXT NOT NULL DEFAULT '',
	track_key  TEXT NOT NULL,
	laps       INTEGER NOT NULL,
	active     INTEGER NOT NULL DEFAULT 1,
	updated_at DATETIME NOT NULL,
	UNIQUE (track_key, laps)
);
CREATE TABLE IF NOT EXISTS pilots (
	user_id INTEGER PRIMARY KEY,
	name    TEXT NOT NULL DEFAULT '',
	country TEXT NOT NULL DEFAULT '',
	active  INTEGER NOT NULL DEFAULT 1
);`

const (
	sqliteActiveTracks = `SELECT id, title, scenery_id, track_id, online_id, laps, active, updated_at
FROM tracks WHERE active = 1 ORDER BY laps, id`
	sqliteActivePilots = `SELECT user_id, name, country, active FROM pilots WHERE active = 1 ORDER BY user_id`
	sqliteUpsertTrack  = `INSERT INTO tracks (title, scenery_id, track_id, online_id, track_key, laps, active, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (track_key, laps) DO UPDATE SET
	title = excluded.title,
	scenery_id = excluded.scenery_id,
	track_id = excluded.track_id,
	online_id = excluded.online_id,
	active = excluded.active,
	updated_at = excluded.updated_at`
	sqliteDeactivateAll = `UPDATE tracks SET active = 0, updated_at = ? WHERE active = 1`
	sqliteUpsertPilot   = `INSERT INTO pilots (user_id, name, country, active) VALUES (?, ?, ?, ?)
ON CONFLICT (user_id) DO UPDATE SET name = excluded.name, country = excluded.country, active = excluded.active`
)

// SQLiteStore is a Store backed by a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
	settings
}

// OpenSQLite opens (and creates) the database at path. Use ":memory:" for tests.
func OpenSQLite(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite: %w", ErrUnavailable, err)
	}
	// One connection keeps an in-memory database alive and serializes writers.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, settings: newSettings(opts)}
	if s.migrate {
		if err := s.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return s, nil
}

// Migrate creates the tables when missing.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return s.fail(ctx, "migrate", err)
	}
	return nil
}

// ActiveTracks implements Store.
func (s *SQLiteStore) ActiveTracks(ctx context.Context) ([]model.TrackConfig, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, sqliteActiveTracks)
	if err != nil {
		return nil, s.fail(ctx, "active_tracks", err)
	}
	defer func() { _ = rows.Close() }()

	out := []model.TrackConfig{}
	for rows.Next() {
		var t model.TrackConfig
		if err := rows.Scan(&t.ID, &t.Title, &t.SceneryID, &t.TrackID, &t.OnlineID, &t.Laps, &t.Active, &t.UpdatedAt); err != nil {
			return nil, s.fail(ctx, "active_tracks", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail(ctx, "active_tracks", err)
	}
	return out, nil
}

// ActivePilots implements Store.
func (s *SQLiteStore) ActivePilots(ctx context.Context) ([]model.Pilot, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, sqliteActivePilots)
	if err != nil {
		return nil, s.fail(ctx, "active_pilots", err)
	}
	defer func() { _ = rows.Close() }()

	out := []model.Pilot{}
	for rows.Next() {
		var p model.Pilot
		if err := rows.Scan(&p.UserID, &p.Name, &p.Country, &p.Active); err != nil {
			return nil, s.fail(ctx, "active_pilots", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail(ctx, "active_pilots", err)
	}
	metrics.UpdateRosterPilots(len(out))
	return out, nil
}

// UpsertPilot inserts or updates a roster member. Roster management itself lives
// outside this service; the method exists for seeding local databases.
func (s *SQLiteStore) UpsertPilot(ctx context.Context, p model.Pilot) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, sqliteUpsertPilot, p.UserID, p.Name, p.Country, p.Active); err != nil {
		return s.fail(ctx, "upsert_pilot", err)
	}
	return nil
}

// UpsertTrack implements Store.
func (s *SQLiteStore) UpsertTrack(ctx context.Context, t model.TrackConfig) error {
	if err := t.Validate(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.upsert(ctx, s.db, t, s.now()); err != nil {
		return s.fail(ctx, "upsert_track", err)
	}
	return nil
}

// DeactivateAllTracks implements Store.
func (s *SQLiteStore) DeactivateAllTracks(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, sqliteDeactivateAll, s.now()); err != nil {
		return s.fail(ctx, "deactivate_tracks", err)
	}
	return nil
}

// ReplaceTracks implements Store.
func (s *SQLiteStore) ReplaceTracks(ctx context.Context, entries []model.TrackConfig) error {
	for _, t := range entries {
		if err := t.Validate(); err != nil {
			return err
		}
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.fail(ctx, "replace_tracks", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now()
	if _, err := tx.ExecContext(ctx, sqliteDeactivateAll, now); err != nil {
		return s.fail(ctx, "replace_tracks", err)
	}
	for _, t := range entries {
		if err := s.upsert(ctx, tx, t, now); err != nil {
			return s.fail(ctx, "replace_tracks", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return s.fail(ctx, "replace_tracks", err)
	}
	return nil
}

// Ping implements Store.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStore) upsert(ctx context.Context, db sqlExecer, t model.TrackConfig, now time.Time) error {
	_, err := db.ExecContext(ctx, sqliteUpsertTrack,
		t.Title, t.SceneryID, t.TrackID, t.OnlineID, trackKey(t), t.Laps, t.Active, now)
	return err
}

func (s *SQLiteStore) now() time.Time {
	return s.clock().UTC()
}

func (s *SQLiteStore) fail(ctx context.Context, op string, err error) error {
	metrics.RecordRosterError(op)
	s.logger.Error(ctx, "roster store call failed",
		logger.String("driver", "sqlite"),
		logger.String("op", op),
		logger.Error(err),
	)
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}
