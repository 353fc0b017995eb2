// Package testutil provides shared test utilities and fixtures.
//
// This package centralises common test helpers to reduce code
// duplication across test files.
package testutil

import (
	"math"
	"testing"

	"github.com/ridelog-data/ridelog/internal/motion"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// AssertInDelta fails the test if got is not within delta of want.
func AssertInDelta(t *testing.T, got, want, delta float64) {
	t.Helper()
	if math.Abs(got-want) > delta {
		t.Errorf("got %v, want %v ± %v", got, want, delta)
	}
}

// Point returns a 3-axis sample fixture.
func Point(timestampMs int64, x, y, z float32) motion.Point3D {
	return motion.Point3D{TimestampMs: timestampMs, X: x, Y: y, Z: z}
}

// Fix returns a clean location fixture at the given coordinate.
func Fix(timestampMs int64, lat, lon float64) motion.GeoLocation {
	return motion.GeoLocation{
		TimestampMs:        timestampMs,
		Latitude:           lat,
		Longitude:          lon,
		Altitude:           math.NaN(),
		Speed:              10.0,
		HorizontalAccuracy: 5.0,
		VerticalAccuracy:   math.NaN(),
	}
}
