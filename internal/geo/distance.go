package geo

import "github.com/golang/geo/s2"

// EarthRadiusMeters is Earth's mean radius in meters.
const EarthRadiusMeters = 6371000.0

// Coordinate is a WGS84 point in degrees.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether the coordinate lies within WGS84 bounds.
// This catches (0,0)-adjacent garbage only insofar as it is out of range;
// callers that know their service area should also check route membership.
func (c Coordinate) Valid() bool {
	return c.Latitude >= -90 && c.Latitude <= 90 &&
		c.Longitude >= -180 && c.Longitude <= 180
}

// Distance returns the great-circle distance between two coordinates in meters.
func Distance(a, b Coordinate) float64 {
	p1 := s2.LatLngFromDegrees(a.Latitude, a.Longitude)
	p2 := s2.LatLngFromDegrees(b.Latitude, b.Longitude)
	return p1.Distance(p2).Radians() * EarthRadiusMeters
}
