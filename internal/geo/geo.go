// Package geo provides great-circle distance helpers for WGS 84 coordinates.
package geo

import (
	"fmt"
	"math"
)

const earthRadiusMeters = 6371000

// Coordinate is a point in decimal degrees.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether the coordinate is finite and inside the degree range.
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Latitude) || math.IsNaN(c.Longitude) ||
		math.IsInf(c.Latitude, 0) || math.IsInf(c.Longitude, 0) {
		return false
	}
	return c.Latitude >= -90 && c.Latitude <= 90 &&
		c.Longitude >= -180 && c.Longitude <= 180
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%.6f,%.6f", c.Latitude, c.Longitude)
}

// Distance returns the Haversine distance between a and b in meters.
func Distance(a, b Coordinate) float64 {
	dLat := toRad(b.Latitude - a.Latitude)
	dLon := toRad(b.Longitude - a.Longitude)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Latitude))*math.Cos(toRad(b.Latitude))*math.Sin(dLon/2)*math.Sin(dLon/2)
	// Rounding can push h a hair past 1 for antipodal points.
	h = math.Min(1, math.Max(0, h))
	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// FormatDistance renders meters the way list views show them: whole meters
// below one kilometer, one decimal of kilometers above.
func FormatDistance(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("%dm", int(math.Round(meters)))
	}
	return fmt.Sprintf("%.1fkm", meters/1000)
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
