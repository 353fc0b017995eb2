package track

import (
	"fmt"
	"sync"

	"github.com/ridelog-data/ridelog/internal/motion"
)

// DistanceUpdater is the narrow persistence capability the accumulator
// needs: overwrite the stored total distance for the active
// measurement.
type DistanceUpdater interface {
	UpdateDistance(totalMeters float64) error
}

// Accumulator maintains the running trip distance for one capture
// session. It remembers the last clean fix and, for every further
// clean fix, adds the pairwise distance to the total and pushes the
// new total to the updater.
//
// The accumulator is scoped to a single measurement: create a fresh
// one (or Reset) when a new measurement starts. Cached fixes are
// filtered upstream by the capture layer and must never reach Observe.
type Accumulator struct {
	cleaner LocationCleaningStrategy
	calc    DistanceCalculationStrategy
	updater DistanceUpdater

	mu        sync.Mutex
	lastClean *motion.GeoLocation
	total     float64
}

// NewAccumulator creates an Accumulator with the given strategies.
// A nil cleaner or calc falls back to the defaults.
func NewAccumulator(cleaner LocationCleaningStrategy, calc DistanceCalculationStrategy, updater DistanceUpdater) *Accumulator {
	if cleaner == nil {
		cleaner = DefaultLocationCleaner{}
	}
	if calc == nil {
		calc = HaversineDistance{}
	}
	return &Accumulator{cleaner: cleaner, calc: calc, updater: updater}
}

// Observe feeds one captured fix into the accumulator. Fixes failing
// the cleaning strategy are ignored for distance purposes but do not
// reset the last clean fix.
func (a *Accumulator) Observe(loc motion.GeoLocation) error {
	if !a.cleaner.IsClean(loc) {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.lastClean == nil {
		a.lastClean = &loc
		return nil
	}

	a.total += a.calc.Distance(*a.lastClean, loc)
	a.lastClean = &loc

	if a.updater != nil {
		if err := a.updater.UpdateDistance(a.total); err != nil {
			return fmt.Errorf("update distance: %w", err)
		}
	}
	return nil
}

// Total returns the accumulated distance in metres.
func (a *Accumulator) Total() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.total
}

// Reset clears the accumulated state for a new measurement.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastClean = nil
	a.total = 0
}
