package model

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Gerzer/Shuttle-Tracker-Server/internal/geo"
)

// TestVehicleCloneIsDeep exists because the engine's crash-safety story
// depends on it: updates mutate a clone and swap it in only after the store
// accepts it. A shallow copy would leak partial mutations to readers.
func TestVehicleCloneIsDeep(t *testing.T) {
	routeID := "north"
	congestion := 3
	original := &Vehicle{
		ID: 7,
		Reports: []LocationReport{
			{
				ID:         uuid.New(),
				Timestamp:  time.Now(),
				Coordinate: geo.Coordinate{Latitude: 42.73, Longitude: -73.68},
				Source:     SourceSystem,
			},
		},
		RouteID:        &routeID,
		DistanceMeters: 120.5,
		Trail: []TrailEntry{
			{Coordinate: geo.Coordinate{Latitude: 42.73, Longitude: -73.68}, Timestamp: time.Now()},
		},
		Congestion: &congestion,
	}

	clone := original.Clone()

	clone.Reports = append(clone.Reports, LocationReport{ID: uuid.New(), Source: SourceUser})
	clone.Trail[0].Coordinate.Latitude = 0
	*clone.RouteID = "west"
	*clone.Congestion = 99
	clone.DistanceMeters = 0

	if len(original.Reports) != 1 {
		t.Errorf("clone append leaked into original reports: len = %d, want 1", len(original.Reports))
	}
	if original.Trail[0].Coordinate.Latitude != 42.73 {
		t.Errorf("clone trail mutation leaked into original: lat = %v", original.Trail[0].Coordinate.Latitude)
	}
	if *original.RouteID != "north" {
		t.Errorf("clone route mutation leaked into original: %q", *original.RouteID)
	}
	if *original.Congestion != 3 {
		t.Errorf("clone congestion mutation leaked into original: %d", *original.Congestion)
	}
	if original.DistanceMeters != 120.5 {
		t.Errorf("clone distance mutation leaked into original: %v", original.DistanceMeters)
	}
}

func TestReportSourcePriority(t *testing.T) {
	// Hardware feed must outrank the network estimate, which must outrank
	// rider phones, so same-timestamp conflicts resolve deterministically.
	if SourceSystem.Priority() <= SourceNetwork.Priority() {
		t.Error("system priority must exceed network priority")
	}
	if SourceNetwork.Priority() <= SourceUser.Priority() {
		t.Error("network priority must exceed user priority")
	}
	if ReportSource("carrier-pigeon").Priority() != -1 {
		t.Error("unknown sources must rank below all known sources")
	}
}

func TestLocationReportValidate(t *testing.T) {
	valid := LocationReport{
		ID:         uuid.New(),
		Timestamp:  time.Now(),
		Coordinate: geo.Coordinate{Latitude: 42.73, Longitude: -73.68},
		Source:     SourceUser,
	}

	tests := []struct {
		name    string
		mutate  func(r *LocationReport)
		wantErr bool
	}{
		{"valid report", func(r *LocationReport) {}, false},
		{"missing id", func(r *LocationReport) { r.ID = uuid.Nil }, true},
		{"missing timestamp", func(r *LocationReport) { r.Timestamp = time.Time{} }, true},
		{"latitude out of range", func(r *LocationReport) { r.Coordinate.Latitude = 91 }, true},
		{"longitude out of range", func(r *LocationReport) { r.Coordinate.Longitude = -181 }, true},
		{"unknown source", func(r *LocationReport) { r.Source = "telegraph" }, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			report := valid
			tc.mutate(&report)
			err := report.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestVehicleAnonymous(t *testing.T) {
	if !(&Vehicle{ID: -42}).Anonymous() {
		t.Error("negative IDs are anonymous client records")
	}
	if (&Vehicle{ID: 42}).Anonymous() {
		t.Error("positive IDs are fleet vehicles")
	}
}
