// Package persistence owns the measurement lifecycle and is the sole
// writer of binary point files and measurement metadata for the active
// capture session.
package persistence

import (
	"errors"

	"github.com/ridelog-data/ridelog/internal/motion"
)

var (
	// ErrNoActiveMeasurement is returned when no measurement is in
	// the Open or Paused state.
	ErrNoActiveMeasurement = errors.New("no active measurement")

	// ErrContractViolation marks a lifecycle request whose
	// precondition does not hold, or an inconsistent store state such
	// as two simultaneously active measurements. These are
	// programming errors and are never silently coerced.
	ErrContractViolation = errors.New("measurement lifecycle contract violation")
)

// MeasurementStore is the metadata store the persistence layer writes
// through. Implementations must apply each call atomically.
type MeasurementStore interface {
	// InsertMeasurement stores a new measurement and assigns its ID.
	InsertMeasurement(m *motion.Measurement) error

	// Measurement loads one measurement by ID.
	Measurement(id int64) (*motion.Measurement, error)

	// SetStatus overwrites the lifecycle status.
	SetStatus(id int64, status motion.MeasurementStatus) error

	// SetDistance overwrites the accumulated distance in metres.
	SetDistance(id int64, meters float64) error

	// InsertLocation appends one raw location row.
	InsertLocation(measurementID int64, loc motion.GeoLocation) error

	// InsertPressure appends one downsampled pressure row.
	InsertPressure(measurementID int64, timestampMs int64, pressure float64) error

	// Locations returns the persisted location rows of a measurement
	// in insertion order.
	Locations(measurementID int64) ([]motion.GeoLocation, error)

	// MeasurementsByStatus lists measurements currently in the given
	// status.
	MeasurementsByStatus(status motion.MeasurementStatus) ([]*motion.Measurement, error)
}
