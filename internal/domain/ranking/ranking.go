// Package ranking turns normalized provider rows into a ranked leaderboard.
package ranking

import (
	"sort"

	"github.com/fpvleague/lapboard/internal/domain/dedupe"
	"github.com/fpvleague/lapboard/internal/domain/model"
)

// Default ranking configuration constants.
const (
	defaultPreviewLimit = 50
)

// EmptyRosterPolicy decides what an empty active roster exposes.
type EmptyRosterPolicy string

// Empty roster policies.
const (
	// EmptyRosterNone returns no rows when nobody is registered.
	EmptyRosterNone EmptyRosterPolicy = "none"
	// EmptyRosterAll returns every provider row when nobody is registered.
	EmptyRosterAll EmptyRosterPolicy = "all"
)

// ParsePolicy maps a config value to a policy, defaulting to EmptyRosterNone.
func ParsePolicy(s string) EmptyRosterPolicy {
	if EmptyRosterPolicy(s) == EmptyRosterAll {
		return EmptyRosterAll
	}
	return EmptyRosterNone
}

// Roster is the set of active pilot identities.
type Roster map[int64]struct{}

// NewRoster builds a Roster from active pilots.
func NewRoster(pilots []model.Pilot) Roster {
	r := make(Roster, len(pilots))
	for _, p := range pilots {
		if p.Active {
			r[p.UserID] = struct{}{}
		}
	}
	return r
}

// Has reports whether id is registered.
func (r Roster) Has(id int64) bool {
	_, ok := r[id]
	return ok
}

// Request carries the per-call toggles.
type Request struct {
	// BypassFilter skips roster filtering entirely (diagnostic filter=all).
	BypassFilter bool
	// IncludeUnparsed disables the preview truncation when nothing parsed.
	IncludeUnparsed bool
}

// Ranker filters, deduplicates, sorts and positions rows.
type Ranker struct {
	policy       EmptyRosterPolicy
	dedupeByUser bool
	previewLimit int
}

// Option applies a configuration option to the Ranker.
type Option func(*Ranker)

// WithEmptyRosterPolicy sets what an empty roster exposes.
func WithEmptyRosterPolicy(p EmptyRosterPolicy) Option {
	return func(r *Ranker) {
		if p == EmptyRosterAll || p == EmptyRosterNone {
			r.policy = p
		}
	}
}

// WithDedupeByPilot toggles best-lap-per-pilot deduplication.
func WithDedupeByPilot(enabled bool) Option {
	return func(r *Ranker) {
		r.dedupeByUser = enabled
	}
}

// WithPreviewLimit bounds the unparsed fallback list.
func WithPreviewLimit(n int) Option {
	return func(r *Ranker) {
		if n > 0 {
			r.previewLimit = n
		}
	}
}

// New creates a Ranker with configuration options.
func New(opts ...Option) *Ranker {
	r := &Ranker{
		policy:       EmptyRosterNone,
		dedupeByUser: true,
		previewLimit: defaultPreviewLimit,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rank runs filter, dedupe, stable sort, positioning and preview truncation.
func (r *Ranker) Rank(rows []model.NormalizedResult, roster Roster, req Request) []model.RankedResult {
	filtered, anonymous := r.filter(rows, roster, req)

	var d dedupe.Deduper
	if r.dedupeByUser {
		d = dedupe.New(dedupe.WithKeepAnonymous(anonymous))
	} else {
		d = dedupe.Passthrough()
	}
	best := d.Dedupe(filtered)

	Sort(best)
	ranked := Position(best)

	if !req.IncludeUnparsed && !AnyParsed(ranked) && len(ranked) > r.previewLimit {
		ranked = ranked[:r.previewLimit]
	}
	return ranked
}

// filter applies the roster. The second result reports whether rows without
// identity may pass through.
func (r *Ranker) filter(rows []model.NormalizedResult, roster Roster, req Request) ([]model.NormalizedResult, bool) {
	if req.BypassFilter || (len(roster) == 0 && r.policy == EmptyRosterAll) {
		return rows, true
	}
	if len(roster) == 0 {
		return nil, false
	}
	out := make([]model.NormalizedResult, 0, len(rows))
	for _, row := range rows {
		if row.HasUserID && roster.Has(row.UserID) {
			out = append(out, row)
		}
	}
	return out, false
}

// Sort orders rows ascending by lap time with unparseable rows last. The
// sort is stable so ties keep their input order.
func Sort(rows []model.NormalizedResult) {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].LapTimeMs.Less(rows[j].LapTimeMs)
	})
}

// Position assigns contiguous 1-based positions in slice order.
func Position(rows []model.NormalizedResult) []model.RankedResult {
	out := make([]model.RankedResult, len(rows))
	for i, row := range rows {
		out[i] = model.RankedResult{Position: i + 1, NormalizedResult: row}
	}
	return out
}

// AnyParsed reports whether at least one row has a parseable lap time.
func AnyParsed(rows []model.RankedResult) bool {
	for _, row := range rows {
		if row.LapTimeMs.Valid {
			return true
		}
	}
	return false
}
