package repository_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/fpvleague/lapboard/internal/adapters/repository"
	"github.com/fpvleague/lapboard/internal/domain/model"
)

func TestSQLiteStore(t *testing.T) {
	Convey("Given a fresh sqlite roster", t, func() {
		ctx := context.Background()
		store, err := repository.OpenSQLite(ctx, filepath.Join(t.TempDir(), "roster.db"),
			repository.WithClock(func() time.Time { return fixedNow }))
		So(err, ShouldBeNil)
		defer func() { _ = store.Close() }()

		So(store.Ping(ctx), ShouldBeNil)

		Convey("When pilots are seeded", func() {
			So(store.UpsertPilot(ctx, model.Pilot{UserID: 1, Name: "A", Active: true}), ShouldBeNil)
			So(store.UpsertPilot(ctx, model.Pilot{UserID: 2, Name: "B", Active: false}), ShouldBeNil)

			pilots, err := store.ActivePilots(ctx)

			Convey("Then only active pilots are listed", func() {
				So(err, ShouldBeNil)
				So(pilots, ShouldHaveLength, 1)
				So(pilots[0].UserID, ShouldEqual, 1)
			})
		})

		Convey("When tracks are replaced twice", func() {
			So(store.ReplaceTracks(ctx, []model.TrackConfig{
				{Title: "Three", TrackID: 42, Laps: 3, Active: true},
				{Title: "One", TrackID: 42, Laps: 1, Active: true},
			}), ShouldBeNil)
			So(store.ReplaceTracks(ctx, []model.TrackConfig{
				{Title: "Renamed", TrackID: 42, Laps: 3, Active: true},
			}), ShouldBeNil)

			tracks, err := store.ActiveTracks(ctx)

			Convey("Then only the latest selection is active and updated in place", func() {
				So(err, ShouldBeNil)
				So(tracks, ShouldHaveLength, 1)
				So(tracks[0].Title, ShouldEqual, "Renamed")
				So(tracks[0].Laps, ShouldEqual, 3)
				So(tracks[0].ID, ShouldEqual, 1)
				So(tracks[0].UpdatedAt.Equal(fixedNow), ShouldBeTrue)
			})
		})

		Convey("When tracks are upserted individually", func() {
			So(store.UpsertTrack(ctx, model.TrackConfig{Title: "Three", TrackID: 7, Laps: 3, Active: true}), ShouldBeNil)
			So(store.UpsertTrack(ctx, model.TrackConfig{Title: "One", OnlineID: "xyz", Laps: 1, Active: true}), ShouldBeNil)

			tracks, err := store.ActiveTracks(ctx)

			Convey("Then they are ordered by laps", func() {
				So(err, ShouldBeNil)
				So(tracks, ShouldHaveLength, 2)
				So(tracks[0].OnlineID, ShouldEqual, "xyz")
				So(tracks[1].TrackID, ShouldEqual, 7)
			})

			Convey("Then deactivation empties the active list", func() {
				So(store.DeactivateAllTracks(ctx), ShouldBeNil)
				tracks, err := store.ActiveTracks(ctx)
				So(err, ShouldBeNil)
				So(tracks, ShouldBeEmpty)
			})
		})

		Convey("When the store is closed", func() {
			_ = store.Close()
			_, err := store.ActiveTracks(ctx)

			Convey("Then calls fail as unavailable", func() {
				So(errors.Is(err, repository.ErrUnavailable), ShouldBeTrue)
			})
		})
	})
}

func TestOpen(t *testing.T) {
	Convey("Given an unknown driver", t, func() {
		_, err := repository.Open(context.Background(), "mysql", "")

		Convey("Then Open fails", func() {
			So(errors.Is(err, repository.ErrUnknownDriver), ShouldBeTrue)
		})
	})
}
