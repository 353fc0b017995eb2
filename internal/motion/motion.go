// Package motion owns the core data model for captured movement data:
// 3-axis sensor samples, geolocation fixes, bounded capture batches and
// the measurement lifecycle.
//
// All timestamps inside this package are Unix milliseconds. Sensor
// hardware delivers nanosecond timestamps; the capture layer converts
// them at the ingestion boundary, never later.
package motion

import (
	"fmt"
	"math"
)

// SensorKind identifies the source of a 3-axis sample.
type SensorKind uint8

const (
	// Accelerometer samples in m/s².
	Accelerometer SensorKind = iota
	// Gyroscope (rotation rate) samples in rad/s.
	Gyroscope
	// Magnetometer (direction) samples in µT.
	Magnetometer
	// Barometer pressure samples in hPa. Barometer data is downsampled
	// before persistence and never reaches a point file.
	Barometer
)

var sensorKindNames = map[SensorKind]string{
	Accelerometer: "accelerations",
	Gyroscope:     "rotations",
	Magnetometer:  "directions",
	Barometer:     "pressures",
}

// String returns the plural file/table name used for this kind.
func (k SensorKind) String() string {
	if name, ok := sensorKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("sensor_kind_%d", uint8(k))
}

// PointKinds lists the kinds that are persisted to binary point files.
// Barometer is excluded: pressure batches are averaged into a single
// metadata row instead.
var PointKinds = []SensorKind{Accelerometer, Gyroscope, Magnetometer}

// Point3D is one 3-axis sensor sample. Immutable once created.
type Point3D struct {
	TimestampMs int64
	X, Y, Z     float32
}

// PressureSample is one barometer reading in hPa.
type PressureSample struct {
	TimestampMs int64
	Value       float64
}

// GeoLocation is one location fix. Altitude and VerticalAccuracy are
// NaN when the positioning subsystem did not report them. Immutable
// once created.
type GeoLocation struct {
	TimestampMs        int64
	Latitude           float64
	Longitude          float64
	Altitude           float64
	Speed              float64
	HorizontalAccuracy float64
	VerticalAccuracy   float64
}

// HasAltitude reports whether the fix carries a usable altitude.
func (l GeoLocation) HasAltitude() bool {
	return !math.IsNaN(l.Altitude)
}

// CapturedData is one flushed batch of sensor samples. The four lists
// are independently optional; batch boundaries are decided purely by
// sample count, so a batch may carry only a subset of kinds.
type CapturedData struct {
	Accelerations []Point3D
	Rotations     []Point3D
	Directions    []Point3D
	Pressures     []PressureSample
}

// Points returns the sample list for a point-file kind. Barometer has
// no Point3D representation and returns nil.
func (c *CapturedData) Points(kind SensorKind) []Point3D {
	switch kind {
	case Accelerometer:
		return c.Accelerations
	case Gyroscope:
		return c.Rotations
	case Magnetometer:
		return c.Directions
	}
	return nil
}

// IsEmpty reports whether the batch carries no samples of any kind.
func (c *CapturedData) IsEmpty() bool {
	return len(c.Accelerations) == 0 && len(c.Rotations) == 0 &&
		len(c.Directions) == 0 && len(c.Pressures) == 0
}
