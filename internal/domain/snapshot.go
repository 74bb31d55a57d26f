package domain

import "time"

// ProximitySnapshot is the derived distance/ETA between the two subjects.
// It is recomputed from the latest known pair of GeoPoints whenever either
// side updates and is never persisted.
type ProximitySnapshot struct {
	DistanceKm float64
	ETAMinutes int
	HasETA     bool // false when already arrived (zero distance)
	ComputedAt time.Time
}
