package domain

import (
	"errors"
	"time"
)

// Subject identifies whose position a GeoPoint belongs to.
type Subject string

const (
	SubjectCustomer     Subject = "CUSTOMER"
	SubjectProfessional Subject = "PROFESSIONAL"
)

// Other returns the opposite subject of the pair being tracked.
func (s Subject) Other() Subject {
	if s == SubjectCustomer {
		return SubjectProfessional
	}
	return SubjectCustomer
}

// ErrInvalidCoordinates is returned when a point is outside the valid
// latitude/longitude ranges.
var ErrInvalidCoordinates = errors.New("invalid coordinates")

// GeoPoint represents a single position sample.
type GeoPoint struct {
	Latitude       float64
	Longitude      float64
	HeadingDegrees *float64 // Optional: course over ground
	SpeedMS        *float64 // Optional: meters per second
	Timestamp      time.Time
}

// Validate checks that the point lies within valid coordinate ranges.
func (p GeoPoint) Validate() error {
	if !IsValidLatitude(p.Latitude) || !IsValidLongitude(p.Longitude) {
		return ErrInvalidCoordinates
	}
	return nil
}

// SpeedKmh returns the sample speed converted to km/h.
// The second return value is false when no speed was reported.
func (p GeoPoint) SpeedKmh() (float64, bool) {
	if p.SpeedMS == nil {
		return 0, false
	}
	return *p.SpeedMS * 3.6, true
}

// IsValidLatitude reports whether lat is within [-90, 90].
func IsValidLatitude(lat float64) bool {
	return lat >= -90 && lat <= 90
}

// IsValidLongitude reports whether lng is within [-180, 180].
func IsValidLongitude(lng float64) bool {
	return lng >= -180 && lng <= 180
}
