package ranking_test

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/fpvleague/lapboard/internal/domain/laptime"
	"github.com/fpvleague/lapboard/internal/domain/model"
	"github.com/fpvleague/lapboard/internal/domain/normalize"
	"github.com/fpvleague/lapboard/internal/domain/ranking"
	. "github.com/smartystreets/goconvey/convey"
)

func row(id int64, ms laptime.Millis, name string) model.NormalizedResult {
	return model.NormalizedResult{UserID: id, HasUserID: true, LapTimeMs: ms, DisplayName: name}
}

func roster(ids ...int64) ranking.Roster {
	pilots := make([]model.Pilot, 0, len(ids))
	for _, id := range ids {
		pilots = append(pilots, model.Pilot{UserID: id, Active: true})
	}
	return ranking.NewRoster(pilots)
}

func TestRank_WorkedExample(t *testing.T) {
	Convey("Given duplicate provider rows and a roster of {1,2}", t, func() {
		raw := []model.RawRecord{
			{"user_id": 1.0, "lap_time": "1:00.000"},
			{"user_id": 1.0, "lap_time": "0:59.000"},
			{"user_id": 2.0, "lap_time": "1:10.000"},
		}
		ranked := ranking.New().Rank(normalize.Records(raw), roster(1, 2), ranking.Request{})

		Convey("Then user 1 leads with its best lap and user 2 follows", func() {
			So(len(ranked), ShouldEqual, 2)
			So(ranked[0].Position, ShouldEqual, 1)
			So(ranked[0].UserID, ShouldEqual, 1)
			So(ranked[0].LapTimeMs, ShouldResemble, laptime.Of(59000))
			So(ranked[1].Position, ShouldEqual, 2)
			So(ranked[1].UserID, ShouldEqual, 2)
			So(ranked[1].LapTimeMs, ShouldResemble, laptime.Of(70000))
		})
	})
}

func TestRank_RosterFiltering(t *testing.T) {
	Convey("Given rows from registered and unregistered pilots", t, func() {
		rows := []model.NormalizedResult{
			row(1, laptime.Of(5000), "reg"),
			row(9, laptime.Of(1000), "stranger"),
			{DisplayName: "anon", LapTimeMs: laptime.Of(500)},
		}

		Convey("When the roster is non-empty", func() {
			ranked := ranking.New().Rank(rows, roster(1), ranking.Request{})

			Convey("Then no unregistered identity appears", func() {
				So(len(ranked), ShouldEqual, 1)
				So(ranked[0].DisplayName, ShouldEqual, "reg")
			})
		})

		Convey("When filtering is bypassed", func() {
			ranked := ranking.New().Rank(rows, roster(1), ranking.Request{BypassFilter: true})

			Convey("Then every row is ranked", func() {
				So(len(ranked), ShouldEqual, 3)
				So(ranked[0].DisplayName, ShouldEqual, "anon")
				So(ranked[1].DisplayName, ShouldEqual, "stranger")
			})
		})

		Convey("When the roster is empty under the default policy", func() {
			ranked := ranking.New().Rank(rows, roster(), ranking.Request{})
			So(ranked, ShouldBeEmpty)
		})

		Convey("When the roster is empty under the expose-all policy", func() {
			r := ranking.New(ranking.WithEmptyRosterPolicy(ranking.EmptyRosterAll))
			So(len(r.Rank(rows, roster(), ranking.Request{})), ShouldEqual, 3)
		})

		Convey("When inactive pilots are in the roster source", func() {
			rs := ranking.NewRoster([]model.Pilot{{UserID: 1, Active: true}, {UserID: 9, Active: false}})
			ranked := ranking.New().Rank(rows, rs, ranking.Request{})
			So(len(ranked), ShouldEqual, 1)
		})
	})

	Convey("Given random rows and a random roster", t, func() {
		rng := rand.New(rand.NewSource(7))
		rows := make([]model.NormalizedResult, 0, 300)
		for i := 0; i < 300; i++ {
			rows = append(rows, row(int64(rng.Intn(40)), laptime.Of(int64(rng.Intn(100000))), ""))
		}
		ids := []int64{}
		for i := int64(0); i < 40; i += 3 {
			ids = append(ids, i)
		}
		rs := roster(ids...)
		ranked := ranking.New().Rank(rows, rs, ranking.Request{})

		Convey("Then every ranked identity is registered and unique with its minimum time", func() {
			best := map[int64]int64{}
			for _, r := range rows {
				if cur, ok := best[r.UserID]; !ok || r.LapTimeMs.Value < cur {
					best[r.UserID] = r.LapTimeMs.Value
				}
			}
			seen := map[int64]bool{}
			for i, r := range ranked {
				So(rs.Has(r.UserID), ShouldBeTrue)
				So(seen[r.UserID], ShouldBeFalse)
				seen[r.UserID] = true
				So(r.LapTimeMs.Value, ShouldEqual, best[r.UserID])
				So(r.Position, ShouldEqual, i+1)
				if i > 0 {
					So(ranked[i-1].LapTimeMs.Value, ShouldBeLessThanOrEqualTo, r.LapTimeMs.Value)
				}
			}
		})
	})
}

func TestSort_Stability(t *testing.T) {
	Convey("Given interleaved parseable and unparseable rows", t, func() {
		rows := []model.NormalizedResult{
			row(1, laptime.Unparseable(), "u1"),
			row(2, laptime.Of(300), "p300a"),
			row(3, laptime.Unparseable(), "u2"),
			row(4, laptime.Of(100), "p100"),
			row(5, laptime.Of(300), "p300b"),
			row(6, laptime.Unparseable(), "u3"),
		}
		ranking.Sort(rows)

		Convey("Then parseable rows come first and input order holds among ties", func() {
			names := make([]string, len(rows))
			for i, r := range rows {
				names[i] = r.DisplayName
			}
			So(names, ShouldResemble, []string{"p100", "p300a", "p300b", "u1", "u2", "u3"})
		})
	})
}

func TestRank_UnparsedPreview(t *testing.T) {
	Convey("Given more unparseable rows than the preview limit", t, func() {
		rows := make([]model.NormalizedResult, 0, 80)
		for i := 0; i < 80; i++ {
			rows = append(rows, row(int64(i), laptime.Unparseable(), fmt.Sprintf("p%d", i)))
		}
		rs := ranking.Roster{}
		for i := 0; i < 80; i++ {
			rs[int64(i)] = struct{}{}
		}

		Convey("When unparsed rows are not requested", func() {
			ranked := ranking.New().Rank(rows, rs, ranking.Request{})

			Convey("Then the list is truncated to the preview size", func() {
				So(len(ranked), ShouldEqual, 50)
				So(ranked[0].DisplayName, ShouldEqual, "p0")
				So(ranked[49].Position, ShouldEqual, 50)
			})
		})

		Convey("When a custom preview limit is configured", func() {
			ranked := ranking.New(ranking.WithPreviewLimit(10)).Rank(rows, rs, ranking.Request{})
			So(len(ranked), ShouldEqual, 10)
		})

		Convey("When unparsed rows are requested explicitly", func() {
			ranked := ranking.New().Rank(rows, rs, ranking.Request{IncludeUnparsed: true})
			So(len(ranked), ShouldEqual, 80)
		})

		Convey("When at least one row parses", func() {
			rows[40].LapTimeMs = laptime.Of(1)
			ranked := ranking.New().Rank(rows, rs, ranking.Request{})
			So(len(ranked), ShouldEqual, 80)
			So(ranked[0].DisplayName, ShouldEqual, "p40")
		})
	})
}

func TestRank_DedupeToggle(t *testing.T) {
	Convey("Given duplicate rows with dedupe disabled", t, func() {
		rows := []model.NormalizedResult{row(1, laptime.Of(2), "slow"), row(1, laptime.Of(1), "fast")}
		ranked := ranking.New(ranking.WithDedupeByPilot(false)).Rank(rows, roster(1), ranking.Request{})

		So(len(ranked), ShouldEqual, 2)
		So(ranked[0].DisplayName, ShouldEqual, "fast")
	})
}

func TestParsePolicy(t *testing.T) {
	Convey("Given policy strings", t, func() {
		So(ranking.ParsePolicy("all"), ShouldEqual, ranking.EmptyRosterAll)
		So(ranking.ParsePolicy("none"), ShouldEqual, ranking.EmptyRosterNone)
		So(ranking.ParsePolicy("bogus"), ShouldEqual, ranking.EmptyRosterNone)
	})
}
