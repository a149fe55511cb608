// Package dedupe collapses provider rows to one best lap per pilot.
package dedupe

import (
	"github.com/fpvleague/lapboard/internal/domain/model"
)

// Deduper keeps a single row per identity.
type Deduper interface {
	// Dedupe returns one row per identity, in first-seen order.
	// The surviving row holds the lowest parseable lap time for its identity;
	// an unparseable row survives only as a placeholder when no parseable row
	// exists for that identity, and never displaces a parseable one.
	Dedupe(in []model.NormalizedResult) []model.NormalizedResult
}

// bestLapDeduper implements Deduper with a single pass over the input.
type bestLapDeduper struct {
	keepAnonymous bool // pass rows without identity through instead of dropping them
}

// New creates a best-lap deduper with configuration options.
func New(opts ...Option) Deduper {
	d := &bestLapDeduper{}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *bestLapDeduper) Dedupe(in []model.NormalizedResult) []model.NormalizedResult {
	out := make([]model.NormalizedResult, 0, len(in))
	slot := make(map[int64]int, len(in))

	for _, r := range in {
		if !r.HasUserID {
			if d.keepAnonymous {
				out = append(out, r)
			}
			continue
		}
		i, seen := slot[r.UserID]
		if !seen {
			slot[r.UserID] = len(out)
			out = append(out, r)
			continue
		}
		// Strictly faster only; ties keep the earlier row.
		if r.LapTimeMs.Less(out[i].LapTimeMs) {
			out[i] = r
		}
	}
	return out
}

// passthrough is used when per-pilot deduplication is disabled.
type passthrough struct{}

// Passthrough returns a Deduper that returns its input unchanged.
func Passthrough() Deduper { return passthrough{} }

func (passthrough) Dedupe(in []model.NormalizedResult) []model.NormalizedResult { return in }
