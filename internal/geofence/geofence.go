// Package geofence decides whether a coordinate falls inside any of a set of
// circular work locations.
package geofence

import (
	"math"

	"shiftclock/internal/models"
)

// DefaultRadiusMeters applies when a work location has no radius configured.
const DefaultRadiusMeters = 100.0

// earthRadiusKm is the mean Earth radius used by the haversine formula.
const earthRadiusKm = 6371.0

// Result reports the outcome of a geofence check.
type Result struct {
	Within bool
	// Location is the matched work location, nil when Within is false or
	// no locations were configured.
	Location *models.WorkLocation
	// DistanceMeters is the distance to the nearest location. Zero when no
	// locations were configured.
	DistanceMeters float64
}

// DistanceMeters returns the haversine great-circle distance between two
// coordinates in meters.
func DistanceMeters(lat1, lng1, lat2, lng2 float64) float64 {
	const degToRad = math.Pi / 180

	dLat := (lat2 - lat1) * degToRad
	dLng := (lng2 - lng1) * degToRad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*degToRad)*math.Cos(lat2*degToRad)*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c * 1000
}

// Check evaluates a coordinate against the given locations. A user with no
// assigned locations passes unconditionally: an empty fence is no fence.
func Check(lat, lng float64, locations []models.WorkLocation) Result {
	if len(locations) == 0 {
		return Result{Within: true}
	}

	result := Result{DistanceMeters: math.MaxFloat64}
	for i := range locations {
		loc := &locations[i]
		radius := loc.RadiusMeters
		if radius <= 0 {
			radius = DefaultRadiusMeters
		}
		d := DistanceMeters(lat, lng, loc.Latitude, loc.Longitude)
		if d < result.DistanceMeters {
			result.DistanceMeters = d
		}
		if d <= radius {
			result.Within = true
			result.Location = loc
			return result
		}
	}
	return result
}
