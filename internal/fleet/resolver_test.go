package fleet

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Gerzer/Shuttle-Tracker-Server/internal/geo"
	"github.com/Gerzer/Shuttle-Tracker-Server/internal/model"
)

var testHorizons = Horizons{
	System:  10 * time.Second,
	Network: 5 * time.Second,
	User:    30 * time.Second,
}

func reportAt(ts time.Time, source model.ReportSource, lat, lng float64) model.LocationReport {
	return model.LocationReport{
		ID:         uuid.New(),
		Timestamp:  ts,
		Coordinate: geo.Coordinate{Latitude: lat, Longitude: lng},
		Source:     source,
	}
}

func TestResolvePicksNewestFreshReport(t *testing.T) {
	now := time.Date(2026, 8, 17, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		reports    []model.LocationReport
		wantSource model.ReportSource
		wantNil    bool
	}{
		{
			name:    "empty history resolves to nothing",
			reports: nil,
			wantNil: true,
		},
		{
			name: "single fresh report wins",
			reports: []model.LocationReport{
				reportAt(now.Add(-5*time.Second), model.SourceUser, 42.7250, -73.6800),
			},
			wantSource: model.SourceUser,
		},
		{
			name: "newer report beats higher priority",
			reports: []model.LocationReport{
				reportAt(now.Add(-8*time.Second), model.SourceSystem, 42.7250, -73.6800),
				reportAt(now.Add(-2*time.Second), model.SourceUser, 42.7260, -73.6800),
			},
			wantSource: model.SourceUser,
		},
		{
			name: "source priority breaks timestamp ties",
			reports: []model.LocationReport{
				reportAt(now.Add(-3*time.Second), model.SourceUser, 42.7250, -73.6800),
				reportAt(now.Add(-3*time.Second), model.SourceSystem, 42.7260, -73.6800),
				reportAt(now.Add(-3*time.Second), model.SourceNetwork, 42.7270, -73.6800),
			},
			wantSource: model.SourceSystem,
		},
		{
			// The newest report is a network estimate past its short
			// horizon; resolution falls back to an older but still
			// fresh user report.
			name: "newest report stale under its own horizon loses",
			reports: []model.LocationReport{
				reportAt(now.Add(-6*time.Second), model.SourceNetwork, 42.7250, -73.6800),
				reportAt(now.Add(-20*time.Second), model.SourceUser, 42.7260, -73.6800),
			},
			wantSource: model.SourceUser,
		},
		{
			name: "every source past its horizon resolves to nothing",
			reports: []model.LocationReport{
				reportAt(now.Add(-11*time.Second), model.SourceSystem, 42.7250, -73.6800),
				reportAt(now.Add(-6*time.Second), model.SourceNetwork, 42.7260, -73.6800),
				reportAt(now.Add(-31*time.Second), model.SourceUser, 42.7270, -73.6800),
			},
			wantNil: true,
		},
		{
			name: "report slightly ahead of the clock still counts",
			reports: []model.LocationReport{
				reportAt(now.Add(2*time.Second), model.SourceSystem, 42.7250, -73.6800),
			},
			wantSource: model.SourceSystem,
		},
		{
			name: "report far ahead of the clock is ignored",
			reports: []model.LocationReport{
				reportAt(now.Add(10*time.Second), model.SourceSystem, 42.7250, -73.6800),
			},
			wantNil: true,
		},
		{
			name: "unknown source never resolves",
			reports: []model.LocationReport{
				reportAt(now.Add(-time.Second), "telegraph", 42.7250, -73.6800),
			},
			wantNil: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Resolve(tc.reports, now, testHorizons)
			if tc.wantNil {
				if got != nil {
					t.Fatalf("Resolve() = %+v, want nil", got)
				}
				return
			}
			if got == nil {
				t.Fatal("Resolve() = nil, want a location")
			}
			if got.Source != tc.wantSource {
				t.Errorf("resolved source = %q, want %q", got.Source, tc.wantSource)
			}
		})
	}
}

// TestResolveIsIdempotent pins the property that resolution is a pure
// function: the same history at the same instant resolves identically no
// matter how many times it runs.
func TestResolveIsIdempotent(t *testing.T) {
	now := time.Date(2026, 8, 17, 12, 0, 0, 0, time.UTC)
	history := []model.LocationReport{
		reportAt(now.Add(-25*time.Second), model.SourceUser, 42.7250, -73.6800),
		reportAt(now.Add(-8*time.Second), model.SourceSystem, 42.7260, -73.6800),
		reportAt(now.Add(-3*time.Second), model.SourceNetwork, 42.7270, -73.6800),
		reportAt(now.Add(-40*time.Second), model.SourceUser, 42.7200, -73.6800),
	}

	first := Resolve(history, now, testHorizons)
	if first == nil {
		t.Fatal("Resolve() = nil, want a location")
	}

	for i := 0; i < 10; i++ {
		again := Resolve(history, now, testHorizons)
		if again == nil {
			t.Fatalf("pass %d: Resolve() = nil", i)
		}
		if *again != *first {
			t.Fatalf("pass %d: Resolve() = %+v, want %+v", i, again, first)
		}
	}
}

// TestResolveTimestampTiesAreTotal guards the degenerate case of two reports
// from the same source at the same instant: the report ID breaks the tie so
// resolution never depends on history order.
func TestResolveTimestampTiesAreTotal(t *testing.T) {
	now := time.Date(2026, 8, 17, 12, 0, 0, 0, time.UTC)
	a := reportAt(now.Add(-time.Second), model.SourceUser, 42.7250, -73.6800)
	b := reportAt(now.Add(-time.Second), model.SourceUser, 42.7260, -73.6800)

	forward := Resolve([]model.LocationReport{a, b}, now, testHorizons)
	reversed := Resolve([]model.LocationReport{b, a}, now, testHorizons)

	if forward == nil || reversed == nil {
		t.Fatal("Resolve() = nil, want a location")
	}
	if *forward != *reversed {
		t.Errorf("order changed resolution: %+v vs %+v", forward, reversed)
	}
}

func TestHorizonsFor(t *testing.T) {
	if got := testHorizons.For(model.SourceSystem); got != 10*time.Second {
		t.Errorf("system horizon = %v", got)
	}
	if got := testHorizons.For(model.SourceNetwork); got != 5*time.Second {
		t.Errorf("network horizon = %v", got)
	}
	if got := testHorizons.For(model.SourceUser); got != 30*time.Second {
		t.Errorf("user horizon = %v", got)
	}
	if got := testHorizons.For("telegraph"); got != 0 {
		t.Errorf("unknown source horizon = %v, want 0", got)
	}
}
