// internal/domain/geo/geo.go

package geo

import "math"

// earthRadiusKm is the mean radius of the Earth in kilometers.
const earthRadiusKm = 6371.0

// Location is a point on the Earth's surface in decimal degrees.
type Location struct {
	Latitude  float64
	Longitude float64
}

// Distance calculates the great-circle distance between two locations in
// kilometers using the haversine formula. It is symmetric in its arguments
// and returns 0 for identical coordinates.
func Distance(a, b Location) float64 {
	// Convert latitude and longitude from degrees to radians
	lat1 := a.Latitude * math.Pi / 180.0
	lon1 := a.Longitude * math.Pi / 180.0
	lat2 := b.Latitude * math.Pi / 180.0
	lon2 := b.Longitude * math.Pi / 180.0

	dLat := lat2 - lat1
	dLon := lon2 - lon1

	hSin := math.Sin(dLat / 2)
	hSin *= hSin

	vSin := math.Sin(dLon / 2)
	vSin *= vSin

	h := hSin + math.Cos(lat1)*math.Cos(lat2)*vSin
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

// WithinRadius reports whether p lies strictly within radiusKm kilometers
// of center.
func WithinRadius(center, p Location, radiusKm float64) bool {
	return Distance(center, p) < radiusKm
}
