// Package geo provides pure geospatial math for the tracking engine:
// great-circle distance, ETA estimation and arrival detection.
// All functions are stateless and side-effect free.
package geo

import (
	"math"

	"glamtrack/internal/domain"
)

const (
	// earthRadiusKm is the mean Earth radius used by the haversine formula.
	earthRadiusKm = 6371.0

	// DefaultSpeedKmh is the assumed travel speed when no live speed
	// sample is available.
	DefaultSpeedKmh = 30.0

	// DefaultArrivalRadiusKm is the distance below which the professional
	// is considered to have arrived (50 meters).
	DefaultArrivalRadiusKm = 0.05
)

// DistanceKm returns the great-circle distance between two points in
// kilometers, computed with the haversine formula.
func DistanceKm(a, b domain.GeoPoint) float64 {
	lat1 := toRadians(a.Latitude)
	lat2 := toRadians(b.Latitude)
	deltaLat := toRadians(b.Latitude - a.Latitude)
	deltaLng := toRadians(b.Longitude - a.Longitude)

	h := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*
			math.Sin(deltaLng/2)*math.Sin(deltaLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

// ETAMinutes estimates the minutes to cover distanceKm at speedKmh,
// rounded to the nearest minute. The second return value is false when
// the distance is zero (already arrived) or the speed is not positive;
// callers must not derive an ETA in that case.
func ETAMinutes(distanceKm, speedKmh float64) (int, bool) {
	if distanceKm <= 0 || speedKmh <= 0 {
		return 0, false
	}
	return int(math.Round(distanceKm / speedKmh * 60)), true
}

// WithinArrivalRadius reports whether distanceKm is inside the default
// arrival threshold.
func WithinArrivalRadius(distanceKm float64) bool {
	return WithinRadius(distanceKm, DefaultArrivalRadiusKm)
}

// WithinRadius reports whether distanceKm is inside thresholdKm.
func WithinRadius(distanceKm, thresholdKm float64) bool {
	return distanceKm < thresholdKm
}

func toRadians(degrees float64) float64 {
	return degrees * math.Pi / 180
}
