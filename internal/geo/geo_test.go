package geo

import (
	"math"
	"testing"

	"glamtrack/internal/domain"
)

func point(lat, lng float64) domain.GeoPoint {
	return domain.GeoPoint{Latitude: lat, Longitude: lng}
}

func TestDistanceKm_Symmetry(t *testing.T) {
	t.Parallel()

	a := point(28.6139, 77.2090)
	b := point(28.7041, 77.1025)

	ab := DistanceKm(a, b)
	ba := DistanceKm(b, a)

	if ab != ba {
		t.Errorf("expected symmetric distance, got %f and %f", ab, ba)
	}
}

func TestDistanceKm_SamePointIsZero(t *testing.T) {
	t.Parallel()

	p := point(30.9010, 75.8573)
	if d := DistanceKm(p, p); d != 0 {
		t.Errorf("expected zero distance for identical points, got %f", d)
	}
}

func TestDistanceKm_KnownLandmarkPair(t *testing.T) {
	t.Parallel()

	// Connaught Place to Delhi University, roughly 14.4 km apart.
	a := point(28.6139, 77.2090)
	b := point(28.7041, 77.1025)

	got := DistanceKm(a, b)
	want := 14.44

	if math.Abs(got-want) > 0.5 {
		t.Errorf("expected distance ~%0.2f km, got %f", want, got)
	}
}

func TestDistanceKm_AntimeridianNeighbors(t *testing.T) {
	t.Parallel()

	// Points straddling the antimeridian are still close.
	a := point(0, 179.9)
	b := point(0, -179.9)

	got := DistanceKm(a, b)
	if got > 25 {
		t.Errorf("expected short distance across the antimeridian, got %f km", got)
	}
}

func TestETAMinutes(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		distanceKm float64
		speedKmh   float64
		wantMin    int
		wantOK     bool
	}{
		{"half hour at default speed", 15, 30, 30, true},
		{"rounds to nearest minute", 1.033, 30, 2, true},
		{"zero distance means arrived", 0, 30, 0, false},
		{"negative distance rejected", -1, 30, 0, false},
		{"zero speed rejected", 5, 0, 0, false},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, ok := ETAMinutes(tc.distanceKm, tc.speedKmh)
			if ok != tc.wantOK {
				t.Fatalf("expected ok=%v, got %v", tc.wantOK, ok)
			}
			if got != tc.wantMin {
				t.Errorf("expected %d minutes, got %d", tc.wantMin, got)
			}
		})
	}
}

func TestWithinArrivalRadius(t *testing.T) {
	t.Parallel()

	if !WithinArrivalRadius(0.04) {
		t.Error("expected 40m to be within the arrival radius")
	}
	if WithinArrivalRadius(0.06) {
		t.Error("expected 60m to be outside the arrival radius")
	}
}

func TestWithinRadius_CustomThreshold(t *testing.T) {
	t.Parallel()

	if !WithinRadius(0.09, 0.1) {
		t.Error("expected 90m to be within a 100m radius")
	}
	if WithinRadius(0.1, 0.1) {
		t.Error("expected the threshold itself to be outside")
	}
}
