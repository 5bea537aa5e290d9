package route

import (
	"time"

	"github.com/Gerzer/Shuttle-Tracker-Server/internal/geo"
)

// DefaultThresholdMeters is the membership threshold applied when a route
// file does not set one. Wide enough for GPS jitter on a campus street,
// narrow enough to separate parallel roads.
const DefaultThresholdMeters = 30

// Window is one span of the weekly service schedule, in minutes after
// midnight. A window whose End is not after its Start wraps past midnight;
// the day list names the day the window starts. An empty day list matches
// every day.
type Window struct {
	Days  []time.Weekday `json:"days"`
	Start int            `json:"start"`
	End   int            `json:"end"`
}

// Schedule is the weekly service calendar for a route. An empty schedule
// means the route is always active.
type Schedule struct {
	Timezone string   `json:"timezone"`
	Windows  []Window `json:"windows"`
}

// Route is a named service path with a membership threshold and a weekly
// schedule.
type Route struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Color           string   `json:"color"`
	ThresholdMeters float64  `json:"thresholdMeters"`
	Schedule        Schedule `json:"schedule"`
	Path            geo.Path `json:"path"`
}

// IsActiveAt reports whether the schedule has a window covering t.
func (s Schedule) IsActiveAt(t time.Time) bool {
	if len(s.Windows) == 0 {
		return true
	}

	if s.Timezone != "" {
		if loc, err := time.LoadLocation(s.Timezone); err == nil {
			t = t.In(loc)
		}
	}

	for _, w := range s.Windows {
		if w.activeAt(t) {
			return true
		}
	}
	return false
}

func (w Window) activeAt(t time.Time) bool {
	minute := t.Hour()*60 + t.Minute()

	if w.End > w.Start {
		return w.containsDay(t.Weekday()) && minute >= w.Start && minute < w.End
	}

	// Wrapped window: active from Start until midnight on a listed day,
	// then from midnight until End on the following day.
	if w.containsDay(t.Weekday()) && minute >= w.Start {
		return true
	}
	previousDay := (t.Weekday() + 6) % 7
	return w.containsDay(previousDay) && minute < w.End
}

func (w Window) containsDay(day time.Weekday) bool {
	if len(w.Days) == 0 {
		return true
	}
	for _, d := range w.Days {
		if d == day {
			return true
		}
	}
	return false
}

// Active reports whether the route is in scheduled service at t.
func (r *Route) Active(t time.Time) bool {
	return r.Schedule.IsActiveAt(t)
}

// Membership returns the distance in meters from c to the route's path when
// c lies within the membership threshold of a schedule-active route.
func (r *Route) Membership(c geo.Coordinate, t time.Time) (float64, bool) {
	if !r.Active(t) {
		return 0, false
	}
	offset, ok := r.Path.DistanceTo(c)
	if !ok || offset > r.ThresholdMeters {
		return 0, false
	}
	return offset, true
}

// Contains reports whether c belongs to the route at t.
func (r *Route) Contains(c geo.Coordinate, t time.Time) bool {
	_, ok := r.Membership(c, t)
	return ok
}

// DistanceAlong returns the forward progress in meters along the route's
// path between two coordinates. Never negative.
func (r *Route) DistanceAlong(from, to geo.Coordinate) float64 {
	return r.Path.ProgressBetween(from, to)
}
