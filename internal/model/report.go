package model

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Gerzer/Shuttle-Tracker-Server/internal/geo"
)

// ReportSource identifies where a location report came from.
// The set is closed; resolution logic switches over it exhaustively.
type ReportSource string

const (
	// SourceSystem is the onboard hardware feed polled from the vendor.
	SourceSystem ReportSource = "system"
	// SourceUser is a rider's phone reporting from aboard a shuttle.
	SourceUser ReportSource = "user"
	// SourceNetwork is an estimate derived from network infrastructure.
	SourceNetwork ReportSource = "network"
)

const (
	// UserReportTTL is how long a user-sourced report stays usable.
	// Riders leave shuttles without telling anyone, so their reports
	// go stale fast.
	UserReportTTL = 30 * time.Second

	// ClockTolerance bounds how far in the future a report timestamp may
	// sit before the report is rejected outright.
	ClockTolerance = 5 * time.Second
)

// Valid reports whether s is one of the known sources.
func (s ReportSource) Valid() bool {
	switch s {
	case SourceSystem, SourceUser, SourceNetwork:
		return true
	}
	return false
}

// Priority orders sources for resolution tie-breaks. Higher wins.
// Hardware beats infrastructure estimates, which beat rider phones.
func (s ReportSource) Priority() int {
	switch s {
	case SourceSystem:
		return 2
	case SourceNetwork:
		return 1
	case SourceUser:
		return 0
	}
	return -1
}

// LocationReport is a single dated position observation for a vehicle.
// Reports are immutable once created.
type LocationReport struct {
	ID         uuid.UUID      `db:"id" json:"id"`
	Timestamp  time.Time      `db:"timestamp" json:"timestamp"`
	Coordinate geo.Coordinate `db:"coordinate" json:"coordinate"`
	Source     ReportSource   `db:"source" json:"source"`
}

// Validate checks if the LocationReport has usable data.
// Returns error if any validation fails.
func (r *LocationReport) Validate() error {
	if r.ID == uuid.Nil {
		return errors.New("report id is required")
	}

	if r.Timestamp.IsZero() {
		return errors.New("timestamp is required")
	}

	if !r.Coordinate.Valid() {
		return errors.New("coordinate out of range")
	}

	if !r.Source.Valid() {
		return errors.New("unknown report source")
	}

	return nil
}

// ResolvedLocation is the single fused position chosen from a vehicle's
// report history.
type ResolvedLocation struct {
	Coordinate geo.Coordinate `json:"coordinate"`
	Timestamp  time.Time      `json:"timestamp"`
	Source     ReportSource   `json:"source"`
}
