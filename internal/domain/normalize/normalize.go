// Package normalize maps loosely typed provider rows onto model.NormalizedResult.
//
// Provider rows have drifted over time: the same value may live under several
// field names. Each field is resolved from an ordered alias list; the first key
// that is present with a non-null value wins, even when that value is empty.
package normalize

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/fpvleague/lapboard/internal/domain/laptime"
	"github.com/fpvleague/lapboard/internal/domain/model"
)

// Alias lists in priority order.
var (
	UserIDAliases     = []string{"user_id", "userid", "userId"}
	TimeAliases       = []string{"lap_time", "best_time", "time", "laptime", "best_lap", "bestlap"}
	NameAliases       = []string{"playername", "name", "username"}
	CountryAliases    = []string{"country", "flag"}
	ModelAliases      = []string{"model_name", "model"}
	SimVersionAliases = []string{"sim_version", "simversion"}
	DeviceTypeAliases = []string{"device_type", "device"}
)

// Lookup returns the first present, non-null value among aliases.
func Lookup(r model.RawRecord, aliases []string) (any, bool) {
	for _, k := range aliases {
		if v, ok := r[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// Record converts one raw row. It never fails: a missing or malformed time
// yields an unparseable LapTimeMs, and an identity that does not coerce to an
// integer leaves HasUserID false.
func Record(r model.RawRecord) model.NormalizedResult {
	out := model.NormalizedResult{
		DisplayName: text(r, NameAliases),
		Country:     text(r, CountryAliases),
		DeviceModel: text(r, ModelAliases),
		SimVersion:  text(r, SimVersionAliases),
		DeviceType:  text(r, DeviceTypeAliases),
	}
	if v, ok := Lookup(r, UserIDAliases); ok {
		out.UserID, out.HasUserID = Identity(v)
	}
	if v, ok := Lookup(r, TimeAliases); ok {
		out.LapTimeText = strings.TrimSpace(stringify(v))
		out.LapTimeMs = laptime.ParseAny(v)
	}
	return out
}

// Records converts a batch, preserving order.
func Records(raw []model.RawRecord) []model.NormalizedResult {
	out := make([]model.NormalizedResult, 0, len(raw))
	for _, r := range raw {
		out = append(out, Record(r))
	}
	return out
}

// Identity coerces a provider user id to an integer. Strings are trimmed;
// floats are accepted only when integral and finite.
func Identity(v any) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int64:
		return t, true
	case float64:
		return floatIdentity(t)
	case string:
		return stringIdentity(t)
	case fmt.Stringer:
		return stringIdentity(t.String())
	default:
		return 0, false
	}
}

func stringIdentity(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		return id, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return floatIdentity(f)
}

func floatIdentity(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f >= 0x1p63 || f < -0x1p63 {
		return 0, false
	}
	return int64(f), true
}

func text(r model.RawRecord, aliases []string) string {
	v, ok := Lookup(r, aliases)
	if !ok {
		return ""
	}
	return stringify(v)
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}
