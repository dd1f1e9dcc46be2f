package analytics

import (
	"testing"
	"time"

	pkgerrors "github.com/foodbridge/foodbridge-backend/pkg/errors"
)

func TestWindowQueryResolve(t *testing.T) {
	now := time.Date(2026, 3, 15, 9, 30, 0, 0, time.UTC)
	day := 24 * time.Hour

	cases := []struct {
		name      string
		query     WindowQuery
		wantStart time.Time
		wantEnd   time.Time
		wantField string
	}{
		{name: "default preset", wantStart: now.Add(-30 * day), wantEnd: now},
		{name: "year preset", query: WindowQuery{Preset: "1Y"}, wantStart: now.Add(-365 * day), wantEnd: now},
		{name: "unknown preset", query: WindowQuery{Preset: "2w"}, wantField: "preset"},
		{
			name:      "dates cover the last day",
			query:     WindowQuery{From: "2026-01-01", To: "2026-01-31"},
			wantStart: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2026, 1, 31, 23, 59, 59, 999999999, time.UTC),
		},
		{
			name:      "timestamps",
			query:     WindowQuery{From: "2026-01-01T10:00:00+02:00", To: "2026-01-02T00:00:00Z"},
			wantStart: time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "end clamped to now",
			query:     WindowQuery{From: "2026-03-01", To: "2026-03-31"},
			wantStart: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:   now,
		},
		{name: "missing to", query: WindowQuery{From: "2026-01-01"}, wantField: "from"},
		{name: "bad to", query: WindowQuery{From: "2026-01-01", To: "yesterday"}, wantField: "to"},
		{name: "inverted", query: WindowQuery{From: "2026-02-01", To: "2026-01-01"}, wantField: "to"},
		{name: "too long", query: WindowQuery{From: "2024-01-01", To: "2026-01-01"}, wantField: "from"},
		{name: "starts in future", query: WindowQuery{From: "2026-04-01", To: "2026-04-05"}, wantField: "from"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.query.Resolve(now)
			if tc.wantField != "" {
				typed := pkgerrors.As(err)
				if typed == nil || typed.Code() != pkgerrors.CodeValidation {
					t.Fatalf("expected validation error, got %v", err)
				}
				details, _ := typed.Details().(map[string]any)
				if details["field"] != tc.wantField {
					t.Fatalf("expected field %q, got %v", tc.wantField, typed.Details())
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Start.Equal(tc.wantStart) || !got.End.Equal(tc.wantEnd) {
				t.Fatalf("window = [%s, %s], want [%s, %s]", got.Start, got.End, tc.wantStart, tc.wantEnd)
			}
		})
	}
}
