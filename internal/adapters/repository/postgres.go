package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fpvleague/lapboard/internal/domain/model"
	"github.com/fpvleague/lapboard/pkg/logger"
	"github.com/fpvleague/lapboard/pkg/metrics"
)

// Pool is the subset of *pgxpool.Pool the store uses. pgxmock pools satisfy it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

const pgSchema = `
CREATE TABLE IF NOT EXISTS tracks (
	id         BIGSERIAL PRIMARY KEY,
	title      TEXT NOT NULL DEFAULT '',
	scenery_id BIGINT NOT NULL DEFAULT 0,
	track_id   BIGINT NOT NULL DEFAULT 0,
	online_id  TEXT NOT NULL DEFAULT '',
	track_key  TEXT NOT NULL,
	laps       INT NOT NULL,
	active     BOOLEAN NOT NULL DEFAULT TRUE,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (track_key, laps)
);
CREATE TABLE IF NOT EXISTS pilots (
	user_id BIGINT PRIMARY KEY,
	name    TEXT NOT NULL DEFAULT '',
	country TEXT NOT NULL DEFAULT '',
	active  BOOLEAN NOT NULL DEFAULT TRUE
);`

const (
	pgActiveTracks = `SELECT id, title, scenery_id, track_id, online_id, laps, active, updated_at
FROM tracks WHERE active = TRUE ORDER BY laps, id`
	pgActivePilots = `SELECT user_id, name, country, active FROM pilots WHERE active = TRUE ORDER BY user_id`
	pgUpsertTrack  = `INSERT INTO tracks (title, scenery_id, track_id, online_id, track_key, laps, active, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (track_key, laps) DO UPDATE SET
	title = EXCLUDED.title,
	scenery_id = EXCLUDED.scenery_id,
	track_id = EXCLUDED.track_id,
	online_id = EXCLUDED.online_id,
	active = EXCLUDED.active,
	updated_at = EXCLUDED.updated_at`
	pgDeactivateAll = `UPDATE tracks SET active = FALSE, updated_at = $1 WHERE active = TRUE`
)

// PostgresStore is a Store backed by PostgreSQL.
type PostgresStore struct {
	db Pool
	settings
}

// OpenPostgres connects a pool to dsn and returns a store over it.
func OpenPostgres(ctx context.Context, dsn string, opts ...Option) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open postgres: %w", ErrUnavailable, err)
	}
	s := NewPostgresStore(pool, opts...)
	if s.migrate {
		if err := s.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return s, nil
}

// NewPostgresStore wraps an existing pool.
func NewPostgresStore(db Pool, opts ...Option) *PostgresStore {
	return &PostgresStore{db: db, settings: newSettings(opts)}
}

// Migrate creates the tables when missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.db.Exec(ctx, pgSchema); err != nil {
		return s.fail(ctx, "migrate", err)
	}
	return nil
}

// ActiveTracks implements Store.
func (s *PostgresStore) ActiveTracks(ctx context.Context) ([]model.TrackConfig, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.db.Query(ctx, pgActiveTracks)
	if err != nil {
		return nil, s.fail(ctx, "active_tracks", err)
	}
	defer rows.Close()

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
func (s *PostgresStore) ActivePilots(ctx context.Context) ([]model.Pilot, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.db.Query(ctx, pgActivePilots)
	if err != nil {
		return nil, s.fail(ctx, "active_pilots", err)
	}
	defer rows.Close()

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

// UpsertTrack implements Store.
func (s *PostgresStore) UpsertTrack(ctx context.Context, t model.TrackConfig) error {
	if err := t.Validate(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.upsert(ctx, s.db, t); err != nil {
		return s.fail(ctx, "upsert_track", err)
	}
	return nil
}

// DeactivateAllTracks implements Store.
func (s *PostgresStore) DeactivateAllTracks(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.db.Exec(ctx, pgDeactivateAll, s.clock()); err != nil {
		return s.fail(ctx, "deactivate_tracks", err)
	}
	return nil
}

// ReplaceTracks implements Store.
func (s *PostgresStore) ReplaceTracks(ctx context.Context, entries []model.TrackConfig) error {
	for _, t := range entries {
		if err := t.Validate(); err != nil {
			return err
		}
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return s.fail(ctx, "replace_tracks", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, pgDeactivateAll, s.clock()); err != nil {
		return s.fail(ctx, "replace_tracks", err)
	}
	for _, t := range entries {
		if err := s.upsert(ctx, tx, t); err != nil {
			return s.fail(ctx, "replace_tracks", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return s.fail(ctx, "replace_tracks", err)
	}
	return nil
}

// Ping implements Store.
func (s *PostgresStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (s *PostgresStore) upsert(ctx context.Context, db execer, t model.TrackConfig) error {
	_, err := db.Exec(ctx, pgUpsertTrack,
		t.Title, t.SceneryID, t.TrackID, t.OnlineID, trackKey(t), t.Laps, t.Active, s.clock())
	return err
}

func (s *PostgresStore) fail(ctx context.Context, op string, err error) error {
	metrics.RecordRosterError(op)
	s.logger.Error(ctx, "roster store call failed",
		logger.String("driver", "postgres"),
		logger.String("op", op),
		logger.Error(err),
	)
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}
