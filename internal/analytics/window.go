package analytics

import (
	"strings"
	"time"

	pkgerrors "github.com/foodbridge/foodbridge-backend/pkg/errors"
)

const (
	defaultPreset = "30d"
	// longest window a donor may scan in one request
	maxSpan = 366 * 24 * time.Hour
)

var presets = map[string]time.Duration{
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
	"90d": 90 * 24 * time.Hour,
	"1y":  365 * 24 * time.Hour,
}

// WindowQuery is the raw window a caller asked for. Either From and To are
// both set or a Preset ending now is used.
type WindowQuery struct {
	Preset string
	From   string
	To     string
}

// Window is a resolved, closed time range in UTC.
type Window struct {
	Start time.Time
	End   time.Time
}

// Resolve turns q into a concrete window. Bounds accept RFC 3339 timestamps or
// plain dates; a plain To date covers that whole day. An End past now is
// pulled back to now.
func (q WindowQuery) Resolve(now time.Time) (Window, error) {
	now = now.UTC()
	from, to := strings.TrimSpace(q.From), strings.TrimSpace(q.To)

	if from == "" && to == "" {
		preset := strings.ToLower(strings.TrimSpace(q.Preset))
		if preset == "" {
			preset = defaultPreset
		}
		span, ok := presets[preset]
		if !ok {
			return Window{}, pkgerrors.Validation("preset", "preset must be one of 7d, 30d, 90d, 1y")
		}
		return Window{Start: now.Add(-span), End: now}, nil
	}
	if from == "" || to == "" {
		return Window{}, pkgerrors.Validation("from", "from and to must be provided together")
	}

	start, _, err := parseBound(from)
	if err != nil {
		return Window{}, pkgerrors.Validation("from", "from must be a date or RFC 3339 timestamp")
	}
	end, dateOnly, err := parseBound(to)
	if err != nil {
		return Window{}, pkgerrors.Validation("to", "to must be a date or RFC 3339 timestamp")
	}
	if dateOnly {
		end = end.Add(24*time.Hour - time.Nanosecond)
	}

	switch {
	case !end.After(start):
		return Window{}, pkgerrors.Validation("to", "to must be after from")
	case end.Sub(start) > maxSpan:
		return Window{}, pkgerrors.Validation("from", "window may span at most one year")
	case !start.Before(now):
		return Window{}, pkgerrors.Validation("from", "from must be in the past")
	}
	if end.After(now) {
		end = now
	}
	return Window{Start: start, End: end}, nil
}

func parseBound(v string) (time.Time, bool, error) {
	if t, err := time.Parse(time.DateOnly, v); err == nil {
		return t.UTC(), true, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	return t.UTC(), false, err
}
