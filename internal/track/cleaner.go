// Package track filters the captured location stream and accumulates
// trip distance. It sits between the capture layer and persistence:
// every captured fix is persisted raw, but only fixes passing the
// cleaning strategy contribute to the measurement distance.
package track

import (
	"math"

	"github.com/ridelog-data/ridelog/internal/motion"
)

// LocationCleaningStrategy decides whether a fix is precise and
// plausible enough for distance accumulation. Implementations must be
// pure: same input, same answer, no side effects.
type LocationCleaningStrategy interface {
	IsClean(loc motion.GeoLocation) bool
}

// Accuracy and speed bounds for the default cleaner. The accuracy
// bound is exclusive on the clean side: exactly 20 m is rejected.
// Both speed bounds are exclusive: 1.0 m/s and 100.0 m/s are rejected.
const (
	// CleanAccuracyBound rejects fixes at or above this horizontal
	// accuracy in metres.
	CleanAccuracyBound = 20.0
	// CleanSpeedLowerBound rejects stationary GPS jitter.
	CleanSpeedLowerBound = 1.0
	// CleanSpeedUpperBound rejects implausible spikes (~360 km/h).
	CleanSpeedUpperBound = 100.0
)

// DefaultLocationCleaner is the stock accuracy + speed filter.
type DefaultLocationCleaner struct{}

// IsClean reports whether the fix passes both the accuracy and the
// speed filter.
func (DefaultLocationCleaner) IsClean(loc motion.GeoLocation) bool {
	return BoundedLocationCleaner{
		AccuracyBound:   CleanAccuracyBound,
		SpeedLowerBound: CleanSpeedLowerBound,
		SpeedUpperBound: CleanSpeedUpperBound,
	}.IsClean(loc)
}

// BoundedLocationCleaner is the default filter with tunable bounds.
// All bounds keep the exclusive semantics of the defaults.
type BoundedLocationCleaner struct {
	AccuracyBound   float64
	SpeedLowerBound float64
	SpeedUpperBound float64
}

// IsClean reports whether the fix passes both the accuracy and the
// speed filter. The negated accuracy comparison rejects NaN accuracy
// along with out-of-bound values.
func (c BoundedLocationCleaner) IsClean(loc motion.GeoLocation) bool {
	if !(loc.HorizontalAccuracy < c.AccuracyBound) {
		return false
	}
	speed := math.Abs(loc.Speed)
	return speed > c.SpeedLowerBound && speed < c.SpeedUpperBound
}
