package motion

import "fmt"

// FileFormatVersion is the current on-disk format version written into
// measurement metadata and point file headers.
const FileFormatVersion uint16 = 3

// MeasurementStatus is the lifecycle state of a measurement.
type MeasurementStatus string

const (
	// StatusOpen marks the measurement currently being captured.
	StatusOpen MeasurementStatus = "OPEN"
	// StatusPaused marks a capture that is interrupted but resumable.
	StatusPaused MeasurementStatus = "PAUSED"
	// StatusFinished marks a completed capture ready for export.
	StatusFinished MeasurementStatus = "FINISHED"
	// StatusCorrupted marks a measurement quarantined by startup
	// recovery because its on-disk point data was not parseable.
	StatusCorrupted MeasurementStatus = "CORRUPTED"
)

// ParseMeasurementStatus converts a stored status string back into a
// MeasurementStatus.
func ParseMeasurementStatus(s string) (MeasurementStatus, error) {
	switch MeasurementStatus(s) {
	case StatusOpen, StatusPaused, StatusFinished, StatusCorrupted:
		return MeasurementStatus(s), nil
	}
	return "", fmt.Errorf("unknown measurement status %q", s)
}

// Active reports whether the status counts against the single active
// measurement invariant.
func (s MeasurementStatus) Active() bool {
	return s == StatusOpen || s == StatusPaused
}

// CanTransitionTo reports whether the lifecycle allows moving from s
// to next. Corrupted is reachable from Open only (startup recovery)
// and is terminal, as is Finished.
func (s MeasurementStatus) CanTransitionTo(next MeasurementStatus) bool {
	switch s {
	case StatusOpen:
		return next == StatusPaused || next == StatusFinished || next == StatusCorrupted
	case StatusPaused:
		return next == StatusOpen || next == StatusFinished
	}
	return false
}

// Measurement is one bounded capture session.
type Measurement struct {
	ID     int64
	Status MeasurementStatus
	// DistanceMeters is monotonically non-decreasing while the
	// measurement is open.
	DistanceMeters    float64
	FileFormatVersion uint16
	// CreatedAtMs is the wall-clock creation time.
	CreatedAtMs int64
}
