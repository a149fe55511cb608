// Package laptime converts provider lap-time strings into comparable millisecond values.
package laptime

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Time conversion constants.
const (
	msPerSecond    = 1000
	secondsPerMin  = 60
	minutesPerHour = 60
	msPerMinute    = msPerSecond * secondsPerMin
	msPerHour      = msPerMinute * minutesPerHour

	// maxSegments is the H:MM:SS shape.
	maxSegments = 3
)

// Millis is a lap time in milliseconds with an explicit unparseable state.
// The zero value is unparseable.
type Millis struct {
	Value int64
	Valid bool
}

// Of returns a parseable Millis.
func Of(ms int64) Millis { return Millis{Value: ms, Valid: true} }

// Unparseable returns the unparseable sentinel.
func Unparseable() Millis { return Millis{} }

// Less orders parseable values ascending and puts unparseable values last.
// Two unparseable values are equal.
func (m Millis) Less(o Millis) bool {
	switch {
	case m.Valid && o.Valid:
		return m.Value < o.Value
	case m.Valid:
		return true
	default:
		return false
	}
}

// String renders the canonical display form, or "-" when unparseable.
func (m Millis) String() string {
	if !m.Valid {
		return "-"
	}
	return Format(m.Value)
}

// MarshalJSON renders unparseable values as null.
func (m Millis) MarshalJSON() ([]byte, error) {
	if !m.Valid {
		return []byte("null"), nil
	}
	return strconv.AppendInt(nil, m.Value, 10), nil
}

// UnmarshalJSON accepts null or an integer.
func (m *Millis) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*m = Millis{}
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("laptime: invalid millis %q: %w", s, err)
	}
	*m = Of(v)
	return nil
}

// Parse converts H:MM:SS.fff, MM:SS.fff or SS.fff into milliseconds.
// Any malformed input yields the unparseable value; Parse never panics.
// The fractional part is read as a millisecond count exactly as written.
func Parse(text string) Millis {
	s := strings.TrimSpace(text)
	if s == "" {
		return Unparseable()
	}
	parts := strings.Split(s, ":")
	if len(parts) > maxSegments {
		return Unparseable()
	}

	var hours, minutes int64
	var ok bool
	switch len(parts) {
	case 3:
		if hours, ok = segment(parts[0]); !ok {
			return Unparseable()
		}
		if minutes, ok = segment(parts[1]); !ok {
			return Unparseable()
		}
	case 2:
		if minutes, ok = segment(parts[0]); !ok {
			return Unparseable()
		}
	}

	seconds, ms, ok := secondsAndFraction(parts[len(parts)-1])
	if !ok {
		return Unparseable()
	}
	total, ok := mulAdd(hours, minutesPerHour, minutes)
	if ok {
		total, ok = mulAdd(total, secondsPerMin, seconds)
	}
	if ok {
		total, ok = mulAdd(total, msPerSecond, ms)
	}
	if !ok {
		return Unparseable()
	}
	return Of(total)
}

// mulAdd returns a*m+b for non-negative operands, or false when it exceeds int64.
func mulAdd(a, m, b int64) (int64, bool) {
	if a > (math.MaxInt64-b)/m {
		return 0, false
	}
	return a*m + b, true
}

// ParseAny parses a loosely typed upstream value. Nil is unparseable; numbers
// and fmt.Stringer values (json.Number) are parsed through their text form.
func ParseAny(v any) Millis {
	switch t := v.(type) {
	case nil:
		return Unparseable()
	case string:
		return Parse(t)
	case float64:
		return Parse(strconv.FormatFloat(t, 'f', -1, 64))
	case int:
		return Parse(strconv.Itoa(t))
	case int64:
		return Parse(strconv.FormatInt(t, 10))
	case fmt.Stringer:
		return Parse(t.String())
	default:
		return Unparseable()
	}
}

// Format renders ms in the shortest shape Parse accepts: SS.fff, M:SS.fff or
// H:MM:SS.fff. Negative values render as "-".
func Format(ms int64) string {
	if ms < 0 {
		return "-"
	}
	h := ms / msPerHour
	m := (ms % msPerHour) / msPerMinute
	s := (ms % msPerMinute) / msPerSecond
	f := ms % msPerSecond
	switch {
	case h > 0:
		return fmt.Sprintf("%d:%02d:%02d.%03d", h, m, s, f)
	case m > 0:
		return fmt.Sprintf("%d:%02d.%03d", m, s, f)
	default:
		return fmt.Sprintf("%02d.%03d", s, f)
	}
}

func secondsAndFraction(seg string) (int64, int64, bool) {
	whole, frac, hasFrac := strings.Cut(seg, ".")
	seconds, ok := segment(whole)
	if !ok {
		return 0, 0, false
	}
	if !hasFrac || frac == "" {
		return seconds, 0, true
	}
	ms, ok := segment(frac)
	if !ok {
		return 0, 0, false
	}
	return seconds, ms, true
}

// segment parses a non-empty run of ASCII digits.
func segment(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
