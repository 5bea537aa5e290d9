package model

import (
	"time"

	"github.com/Gerzer/Shuttle-Tracker-Server/internal/geo"
)

// TrailEntry is one retained resolution in a vehicle's trailing window.
// The newest entry anchors the next distance-accrual delta.
type TrailEntry struct {
	Coordinate geo.Coordinate `json:"coordinate"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Vehicle is the full persisted record for one shuttle.
// The engine mutates clones and swaps them in only after a successful
// persist, so a Vehicle value reachable by readers never changes.
type Vehicle struct {
	// Primary identifier. Fleet vehicles carry positive IDs assigned by
	// the operator; negative IDs belong to anonymous clients that were
	// never matched to a fleet vehicle.
	ID int64 `db:"id" json:"id"`

	// Report history, newest appended last. The sweep prunes it.
	Reports []LocationReport `db:"reports" json:"-"`

	// Route attachment (nil while unassigned)
	RouteID        *string `db:"route_id" json:"routeId"`
	DistanceMeters float64 `db:"distance_meters" json:"distanceMeters"`

	// Trailing window of recent resolutions used for distance accrual
	Trail []TrailEntry `db:"trail" json:"-"`

	// Congestion is the onboard rider count. Nil means nobody has
	// reported boarding or leaving yet.
	Congestion *int `db:"congestion" json:"congestion"`

	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Anonymous reports whether the record belongs to an unmatched client.
func (v *Vehicle) Anonymous() bool {
	return v.ID < 0
}

// Clone returns a deep copy safe to mutate without affecting v.
func (v *Vehicle) Clone() *Vehicle {
	c := *v

	if v.Reports != nil {
		c.Reports = make([]LocationReport, len(v.Reports))
		copy(c.Reports, v.Reports)
	}

	if v.Trail != nil {
		c.Trail = make([]TrailEntry, len(v.Trail))
		copy(c.Trail, v.Trail)
	}

	if v.RouteID != nil {
		routeID := *v.RouteID
		c.RouteID = &routeID
	}

	if v.Congestion != nil {
		congestion := *v.Congestion
		c.Congestion = &congestion
	}

	return &c
}

// ResolvedState is the fused view of a vehicle returned to callers.
type ResolvedState struct {
	VehicleID      int64             `json:"vehicleId"`
	Location       *ResolvedLocation `json:"location"`
	RouteID        *string           `json:"routeId"`
	DistanceMeters float64           `json:"distanceMeters"`
	Congestion     *int              `json:"congestion"`
}
