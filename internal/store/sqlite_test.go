package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Gerzer/Shuttle-Tracker-Server/internal/geo"
	"github.com/Gerzer/Shuttle-Tracker-Server/internal/metrics"
	"github.com/Gerzer/Shuttle-Tracker-Server/internal/model"
	"github.com/Gerzer/Shuttle-Tracker-Server/internal/route"
)

func newTestStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "tracker.db"))
	if err != nil {
		t.Fatalf("OpenSQLite returned error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema returned error: %v", err)
	}
	return s
}

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

// TestSQLiteVehicleRoundTrip persists a fully populated record and checks
// that every field survives the JSON column encoding.
func TestSQLiteVehicleRoundTrip(t *testing.T) {
	s := newTestStore(t)
	updated := time.Date(2026, time.August, 17, 12, 0, 0, 0, time.UTC)

	vehicle := &model.Vehicle{
		ID:      7,
		RouteID: strPtr("north"),
		Reports: []model.LocationReport{
			{
				ID:         uuid.New(),
				Timestamp:  updated.Add(-10 * time.Second),
				Coordinate: geo.Coordinate{Latitude: 42.7300, Longitude: -73.6800},
				Source:     model.SourceSystem,
			},
			{
				ID:         uuid.New(),
				Timestamp:  updated.Add(-5 * time.Second),
				Coordinate: geo.Coordinate{Latitude: 42.7310, Longitude: -73.6800},
				Source:     model.SourceUser,
			},
		},
		DistanceMeters: 412.5,
		Trail: []model.TrailEntry{
			{Coordinate: geo.Coordinate{Latitude: 42.7310, Longitude: -73.6800}, Timestamp: updated.Add(-5 * time.Second)},
		},
		Congestion: intPtr(12),
		UpdatedAt:  updated,
	}

	if err := s.PutVehicle(context.Background(), vehicle); err != nil {
		t.Fatalf("PutVehicle returned error: %v", err)
	}

	got, err := s.GetVehicle(context.Background(), 7)
	if err != nil {
		t.Fatalf("GetVehicle returned error: %v", err)
	}

	if got.ID != 7 {
		t.Fatalf("id = %d, want 7", got.ID)
	}
	if got.RouteID == nil || *got.RouteID != "north" {
		t.Fatalf("route = %v, want north", got.RouteID)
	}
	if got.DistanceMeters != 412.5 {
		t.Fatalf("distance = %v, want 412.5", got.DistanceMeters)
	}
	if got.Congestion == nil || *got.Congestion != 12 {
		t.Fatalf("congestion = %v, want 12", got.Congestion)
	}
	if !got.UpdatedAt.Equal(updated) {
		t.Fatalf("updated_at = %v, want %v", got.UpdatedAt, updated)
	}
	if len(got.Reports) != 2 {
		t.Fatalf("got %d reports, want 2", len(got.Reports))
	}
	for i, want := range vehicle.Reports {
		gotReport := got.Reports[i]
		if gotReport.ID != want.ID {
			t.Fatalf("report %d id = %v, want %v", i, gotReport.ID, want.ID)
		}
		if !gotReport.Timestamp.Equal(want.Timestamp) {
			t.Fatalf("report %d timestamp = %v, want %v", i, gotReport.Timestamp, want.Timestamp)
		}
		if gotReport.Coordinate != want.Coordinate {
			t.Fatalf("report %d coordinate = %v, want %v", i, gotReport.Coordinate, want.Coordinate)
		}
		if gotReport.Source != want.Source {
			t.Fatalf("report %d source = %q, want %q", i, gotReport.Source, want.Source)
		}
	}
	if len(got.Trail) != 1 {
		t.Fatalf("got %d trail entries, want 1", len(got.Trail))
	}
	if got.Trail[0].Coordinate != vehicle.Trail[0].Coordinate {
		t.Fatalf("trail coordinate = %v, want %v", got.Trail[0].Coordinate, vehicle.Trail[0].Coordinate)
	}
}

func TestSQLiteGetVehicleNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetVehicle(context.Background(), 99)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

// TestSQLitePutVehicleReplacesWholeRecord checks the upsert overwrites
// every column, including clearing optional fields back to NULL.
func TestSQLitePutVehicleReplacesWholeRecord(t *testing.T) {
	s := newTestStore(t)
	updated := time.Date(2026, time.August, 17, 12, 0, 0, 0, time.UTC)

	first := &model.Vehicle{
		ID:             3,
		RouteID:        strPtr("west"),
		DistanceMeters: 900,
		Congestion:     intPtr(4),
		UpdatedAt:      updated,
	}
	if err := s.PutVehicle(context.Background(), first); err != nil {
		t.Fatalf("PutVehicle returned error: %v", err)
	}

	second := &model.Vehicle{ID: 3, UpdatedAt: updated.Add(time.Minute)}
	if err := s.PutVehicle(context.Background(), second); err != nil {
		t.Fatalf("PutVehicle (upsert) returned error: %v", err)
	}

	got, err := s.GetVehicle(context.Background(), 3)
	if err != nil {
		t.Fatalf("GetVehicle returned error: %v", err)
	}
	if got.RouteID != nil {
		t.Fatalf("route = %q, want nil after unassignment", *got.RouteID)
	}
	if got.DistanceMeters != 0 {
		t.Fatalf("distance = %v, want 0", got.DistanceMeters)
	}
	if got.Congestion != nil {
		t.Fatalf("congestion = %d, want nil", *got.Congestion)
	}
	if len(got.Reports) != 0 || len(got.Trail) != 0 {
		t.Fatalf("reports/trail not cleared: %d reports, %d trail entries", len(got.Reports), len(got.Trail))
	}
}

func TestSQLiteListVehiclesOrdersByID(t *testing.T) {
	s := newTestStore(t)
	updated := time.Date(2026, time.August, 17, 12, 0, 0, 0, time.UTC)

	for _, id := range []int64{7, -100, 3} {
		if err := s.PutVehicle(context.Background(), &model.Vehicle{ID: id, UpdatedAt: updated}); err != nil {
			t.Fatalf("PutVehicle(%d) returned error: %v", id, err)
		}
	}

	vehicles, err := s.ListVehicles(context.Background())
	if err != nil {
		t.Fatalf("ListVehicles returned error: %v", err)
	}
	if len(vehicles) != 3 {
		t.Fatalf("got %d vehicles, want 3", len(vehicles))
	}
	for i, want := range []int64{-100, 3, 7} {
		if vehicles[i].ID != want {
			t.Fatalf("vehicle %d has id %d, want %d", i, vehicles[i].ID, want)
		}
	}
}

// TestSQLiteRouteRoundTrip persists a scheduled route and checks the
// schedule and path survive the JSON columns.
func TestSQLiteRouteRoundTrip(t *testing.T) {
	s := newTestStore(t)

	r := &route.Route{
		ID:              "north",
		Name:            "North Loop",
		Color:           "#CC0000",
		ThresholdMeters: 25,
		Schedule: route.Schedule{
			Timezone: "America/New_York",
			Windows: []route.Window{
				{Days: []time.Weekday{time.Monday, time.Friday}, Start: 7 * 60, End: 19 * 60},
			},
		},
		Path: geo.Path{
			{Latitude: 42.7200, Longitude: -73.6800},
			{Latitude: 42.7400, Longitude: -73.6800},
		},
	}

	if err := s.PutRoute(context.Background(), r); err != nil {
		t.Fatalf("PutRoute returned error: %v", err)
	}

	routes, err := s.ListRoutes(context.Background())
	if err != nil {
		t.Fatalf("ListRoutes returned error: %v", err)
	}
	if len(routes) != 1 {
		t.Fatalf("got %d routes, want 1", len(routes))
	}

	got := routes[0]
	if got.ID != "north" || got.Name != "North Loop" || got.Color != "#CC0000" {
		t.Fatalf("identity fields lost: %+v", got)
	}
	if got.ThresholdMeters != 25 {
		t.Fatalf("threshold = %v, want 25", got.ThresholdMeters)
	}
	if got.Schedule.Timezone != "America/New_York" {
		t.Fatalf("timezone = %q, want America/New_York", got.Schedule.Timezone)
	}
	if len(got.Schedule.Windows) != 1 {
		t.Fatalf("got %d windows, want 1", len(got.Schedule.Windows))
	}
	w := got.Schedule.Windows[0]
	if w.Start != 7*60 || w.End != 19*60 {
		t.Fatalf("window = %d-%d, want %d-%d", w.Start, w.End, 7*60, 19*60)
	}
	if len(w.Days) != 2 || w.Days[0] != time.Monday || w.Days[1] != time.Friday {
		t.Fatalf("days = %v, want [Monday Friday]", w.Days)
	}
	if len(got.Path) != 2 || got.Path[0] != r.Path[0] || got.Path[1] != r.Path[1] {
		t.Fatalf("path = %v, want %v", got.Path, r.Path)
	}
}

func TestSQLitePutRouteUpserts(t *testing.T) {
	s := newTestStore(t)

	r := &route.Route{ID: "north", Name: "North Loop", ThresholdMeters: 30, Path: geo.Path{{Latitude: 42.72, Longitude: -73.68}, {Latitude: 42.74, Longitude: -73.68}}}
	if err := s.PutRoute(context.Background(), r); err != nil {
		t.Fatalf("PutRoute returned error: %v", err)
	}

	r.Name = "North Express"
	r.ThresholdMeters = 40
	if err := s.PutRoute(context.Background(), r); err != nil {
		t.Fatalf("PutRoute (upsert) returned error: %v", err)
	}

	routes, err := s.ListRoutes(context.Background())
	if err != nil {
		t.Fatalf("ListRoutes returned error: %v", err)
	}
	if len(routes) != 1 {
		t.Fatalf("got %d routes, want 1", len(routes))
	}
	if routes[0].Name != "North Express" || routes[0].ThresholdMeters != 40 {
		t.Fatalf("upsert did not replace fields: %+v", routes[0])
	}
}

// TestSQLiteBaselineRoundTrip checks the (nil, nil) miss contract and the
// upsert path the learner depends on.
func TestSQLiteBaselineRoundTrip(t *testing.T) {
	s := newTestStore(t)

	got, err := s.GetBaseline(context.Background(), model.SourceSystem, 9, 1)
	if err != nil {
		t.Fatalf("GetBaseline returned error: %v", err)
	}
	if got != nil {
		t.Fatalf("missing baseline = %+v, want nil", got)
	}

	b := &metrics.Baseline{
		Source:      model.SourceSystem,
		HourOfDay:   9,
		DayOfWeek:   1,
		CountMean:   20,
		CountStdDev: 3,
		SampleCount: 10,
	}
	if err := s.PutBaseline(context.Background(), b); err != nil {
		t.Fatalf("PutBaseline returned error: %v", err)
	}

	got, err = s.GetBaseline(context.Background(), b.Source, b.HourOfDay, b.DayOfWeek)
	if err != nil {
		t.Fatalf("GetBaseline returned error: %v", err)
	}
	if got == nil {
		t.Fatal("baseline missing after put")
	}
	if got.CountMean != b.CountMean || got.CountStdDev != b.CountStdDev || got.SampleCount != b.SampleCount {
		t.Fatalf("baseline = %+v, want %+v", got, b)
	}

	b.CountMean = 25
	b.SampleCount = 11
	if err := s.PutBaseline(context.Background(), b); err != nil {
		t.Fatalf("PutBaseline (upsert) returned error: %v", err)
	}
	got, err = s.GetBaseline(context.Background(), b.Source, b.HourOfDay, b.DayOfWeek)
	if err != nil {
		t.Fatalf("GetBaseline returned error: %v", err)
	}
	if got.CountMean != 25 || got.SampleCount != 11 {
		t.Fatalf("upsert did not replace fields: %+v", got)
	}
}

func TestOpenDefaultsToSQLite(t *testing.T) {
	s, err := Open(context.Background(), "", filepath.Join(t.TempDir(), "tracker.db"))
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	defer s.Close()

	if _, ok := s.(*SQLite); !ok {
		t.Fatalf("Open with no DATABASE_URL returned %T, want *SQLite", s)
	}
}
