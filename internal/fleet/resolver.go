package fleet

import (
	"time"

	"github.com/Gerzer/Shuttle-Tracker-Server/internal/model"
)

// Horizons gives each report source its freshness window. A report older
// than its source's horizon no longer contributes to resolution.
type Horizons struct {
	System  time.Duration
	Network time.Duration
	User    time.Duration
}

// For returns the freshness window for a source.
func (h Horizons) For(source model.ReportSource) time.Duration {
	switch source {
	case model.SourceSystem:
		return h.System
	case model.SourceNetwork:
		return h.Network
	case model.SourceUser:
		return h.User
	}
	return 0
}

// fresh reports whether r still contributes to resolution at now.
func fresh(r *model.LocationReport, now time.Time, h Horizons) bool {
	if !r.Source.Valid() {
		return false
	}
	if r.Timestamp.After(now.Add(model.ClockTolerance)) {
		return false
	}
	return now.Sub(r.Timestamp) <= h.For(r.Source)
}

// Resolve picks the single location a report history supports at now, or nil
// when nothing is fresh enough. The newest fresh report wins; timestamp ties
// fall to source priority, then report ID, so resolution is total and
// deterministic. Pure function of its arguments.
func Resolve(reports []model.LocationReport, now time.Time, h Horizons) *model.ResolvedLocation {
	var best *model.LocationReport
	for i := range reports {
		r := &reports[i]
		if !fresh(r, now, h) {
			continue
		}
		if best == nil || newerThan(r, best) {
			best = r
		}
	}
	if best == nil {
		return nil
	}
	return &model.ResolvedLocation{
		Coordinate: best.Coordinate,
		Timestamp:  best.Timestamp,
		Source:     best.Source,
	}
}

func newerThan(a, b *model.LocationReport) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.After(b.Timestamp)
	}
	if a.Source.Priority() != b.Source.Priority() {
		return a.Source.Priority() > b.Source.Priority()
	}
	return a.ID.String() > b.ID.String()
}
