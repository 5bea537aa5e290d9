package geo

import "math"

// metersPerDegree approximates one degree of latitude at the Earth's surface.
const metersPerDegree = 111320.0

// Path is an ordered polyline of coordinates.
type Path []Coordinate

// Length returns the total great-circle length of the path in meters.
func (p Path) Length() float64 {
	var total float64
	for i := 1; i < len(p); i++ {
		total += Distance(p[i-1], p[i])
	}
	return total
}

// Projection locates the closest point of a path to a coordinate.
type Projection struct {
	// AlongMeters is the distance from the path start to the projected point.
	AlongMeters float64
	// OffsetMeters is the distance from the coordinate to the projected point.
	OffsetMeters float64
}

// Project finds the closest point on the path to c, scanning every segment.
// It reports false when the path has fewer than two points.
func (p Path) Project(c Coordinate) (Projection, bool) {
	if len(p) < 2 {
		return Projection{}, false
	}

	minOffset := math.MaxFloat64
	bestSeg := 0
	bestT := 0.0

	for i := 0; i < len(p)-1; i++ {
		t, offset := projectOntoSegment(p[i], p[i+1], c)
		if offset < minOffset {
			minOffset = offset
			bestSeg = i
			bestT = t
		}
	}

	along := 0.0
	for j := 0; j < bestSeg; j++ {
		along += Distance(p[j], p[j+1])
	}
	along += bestT * Distance(p[bestSeg], p[bestSeg+1])

	return Projection{AlongMeters: along, OffsetMeters: minOffset}, true
}

// DistanceTo returns the distance in meters from c to the closest point on
// the path. It reports false when the path cannot be projected onto.
func (p Path) DistanceTo(c Coordinate) (float64, bool) {
	proj, ok := p.Project(c)
	if !ok {
		return 0, false
	}
	return proj.OffsetMeters, true
}

// ProgressBetween returns the forward distance in meters along the path from
// the projection of from to the projection of to. Backward motion and
// unprojectable endpoints yield zero.
func (p Path) ProgressBetween(from, to Coordinate) float64 {
	a, ok := p.Project(from)
	if !ok {
		return 0
	}
	b, ok := p.Project(to)
	if !ok {
		return 0
	}
	progress := b.AlongMeters - a.AlongMeters
	if progress < 0 {
		return 0
	}
	return progress
}

// projectOntoSegment projects c onto the segment from a to b in a local plane
// anchored at a, with longitude scaled by the cosine of the latitude.
// Planar math is fine at shuttle-route scale (segments of tens of meters).
// Returns the clamped segment fraction and the offset distance in meters.
func projectOntoSegment(a, b, c Coordinate) (float64, float64) {
	scale := math.Cos(a.Latitude * math.Pi / 180)

	vx := (b.Longitude - a.Longitude) * metersPerDegree * scale
	vy := (b.Latitude - a.Latitude) * metersPerDegree
	wx := (c.Longitude - a.Longitude) * metersPerDegree * scale
	wy := (c.Latitude - a.Latitude) * metersPerDegree

	denom := vx*vx + vy*vy
	t := 0.0
	if denom > 0 {
		t = (wx*vx + wy*vy) / denom
		if t < 0 {
			t = 0
		} else if t > 1 {
			t = 1
		}
	}

	dx := wx - t*vx
	dy := wy - t*vy
	return t, math.Sqrt(dx*dx + dy*dy)
}
