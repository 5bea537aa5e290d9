package fleet

import (
	"math"
	"time"

	"github.com/Gerzer/Shuttle-Tracker-Server/internal/geo"
	"github.com/Gerzer/Shuttle-Tracker-Server/internal/model"
	"github.com/Gerzer/Shuttle-Tracker-Server/internal/route"
)

const (
	// trailDepth caps the trailing window of retained resolutions.
	trailDepth = 4

	// trailMaxAge evicts trail entries older than this. The newest entry
	// is exempt while a resolution exists so the next accrual delta keeps
	// its anchor.
	trailMaxAge = 2500 * time.Millisecond
)

// advance runs one route-detection and distance-accrual pass over a vehicle
// clone. Report merges and sweep ticks both funnel through here, so the
// accrual delta is always measured against the newest retained trail entry
// and a position is never counted twice.
func advance(v *model.Vehicle, now time.Time, actives []*route.Route, h Horizons, recency time.Duration) {
	resolved := Resolve(v.Reports, now, h)

	if resolved == nil || now.Sub(resolved.Timestamp) > recency {
		// Nothing recent enough to keep the vehicle on a route.
		v.RouteID = nil
		v.DistanceMeters = 0
		v.Trail = evictTrail(v.Trail, now, false)
		return
	}

	current := pickRoute(resolved.Coordinate, now, actives)
	switch {
	case current == nil:
		v.RouteID = nil
		v.DistanceMeters = 0
	case v.RouteID == nil || *v.RouteID != current.ID:
		// Entering a route resets accrual.
		id := current.ID
		v.RouteID = &id
		v.DistanceMeters = 0
	case len(v.Trail) > 0:
		previous := v.Trail[len(v.Trail)-1]
		v.DistanceMeters += current.DistanceAlong(previous.Coordinate, resolved.Coordinate)
	}

	entry := model.TrailEntry{Coordinate: resolved.Coordinate, Timestamp: resolved.Timestamp}
	if n := len(v.Trail); n == 0 || !sameEntry(v.Trail[n-1], entry) {
		v.Trail = append(v.Trail, entry)
	}
	v.Trail = evictTrail(v.Trail, now, true)
}

func sameEntry(a, b model.TrailEntry) bool {
	return a.Timestamp.Equal(b.Timestamp) && a.Coordinate == b.Coordinate
}

// pickRoute chooses the admissible route with the smallest offset to c.
// Equal offsets fall to the lexically smaller route ID.
func pickRoute(c geo.Coordinate, now time.Time, actives []*route.Route) *route.Route {
	var best *route.Route
	bestOffset := math.MaxFloat64

	for _, rt := range actives {
		offset, ok := rt.Membership(c, now)
		if !ok {
			continue
		}
		if offset < bestOffset || (offset == bestOffset && best != nil && rt.ID < best.ID) {
			bestOffset = offset
			best = rt
		}
	}
	return best
}

// onAnyRoute reports whether c belongs to at least one of the given routes.
func onAnyRoute(c geo.Coordinate, now time.Time, actives []*route.Route) bool {
	for _, rt := range actives {
		if rt.Contains(c, now) {
			return true
		}
	}
	return false
}

// evictTrail drops entries older than trailMaxAge and caps the depth.
func evictTrail(trail []model.TrailEntry, now time.Time, keepNewest bool) []model.TrailEntry {
	cutoff := now.Add(-trailMaxAge)

	kept := make([]model.TrailEntry, 0, len(trail))
	for i, e := range trail {
		newest := i == len(trail)-1
		if e.Timestamp.Before(cutoff) && !(newest && keepNewest) {
			continue
		}
		kept = append(kept, e)
	}

	if len(kept) > trailDepth {
		kept = kept[len(kept)-trailDepth:]
	}
	return kept
}
