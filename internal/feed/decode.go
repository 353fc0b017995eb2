package feed

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/ridelog-data/ridelog/internal/motion"
)

// Wire schema of the three event topics. Producers publish compact
// JSON; optional location fields default to NaN when omitted.

type sensorEvent struct {
	Kind        string  `json:"kind"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Z           float64 `json:"z"`
	Pressure    float64 `json:"pressure,omitempty"`
	TimestampNs int64   `json:"ts_ns"`
}

type locationEvent struct {
	TimestampMs        int64    `json:"ts_ms"`
	Latitude           float64  `json:"lat"`
	Longitude          float64  `json:"lon"`
	Altitude           *float64 `json:"alt,omitempty"`
	Speed              *float64 `json:"speed,omitempty"`
	HorizontalAccuracy *float64 `json:"h_acc,omitempty"`
	VerticalAccuracy   *float64 `json:"v_acc,omitempty"`
}

type statusEvent struct {
	Event string `json:"event"`
}

type controlEvent struct {
	Command string `json:"command"`
}

const (
	statusFixAcquired = "fix_acquired"
	statusFixLost     = "fix_lost"

	commandStart  = "start"
	commandPause  = "pause"
	commandResume = "resume"
	commandFinish = "finish"
)

func parseSensorKind(s string) (motion.SensorKind, error) {
	switch s {
	case "accelerometer":
		return motion.Accelerometer, nil
	case "gyroscope":
		return motion.Gyroscope, nil
	case "magnetometer":
		return motion.Magnetometer, nil
	case "barometer":
		return motion.Barometer, nil
	}
	return 0, fmt.Errorf("unknown sensor kind %q", s)
}

// decodeSensorEvent parses one sensor payload. Barometer events carry
// the pressure in hPa; it travels in the x slot downstream.
func decodeSensorEvent(payload []byte) (kind motion.SensorKind, x, y, z float32, tsNs int64, err error) {
	var ev sensorEvent
	if err = json.Unmarshal(payload, &ev); err != nil {
		return 0, 0, 0, 0, 0, fmt.Errorf("parse sensor event: %w", err)
	}
	kind, err = parseSensorKind(ev.Kind)
	if err != nil {
		return 0, 0, 0, 0, 0, err
	}
	if kind == motion.Barometer {
		return kind, float32(ev.Pressure), 0, 0, ev.TimestampNs, nil
	}
	return kind, float32(ev.X), float32(ev.Y), float32(ev.Z), ev.TimestampNs, nil
}

func decodeLocationEvent(payload []byte) (motion.GeoLocation, error) {
	var ev locationEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return motion.GeoLocation{}, fmt.Errorf("parse location event: %w", err)
	}
	return motion.GeoLocation{
		TimestampMs:        ev.TimestampMs,
		Latitude:           ev.Latitude,
		Longitude:          ev.Longitude,
		Altitude:           floatOrNaN(ev.Altitude),
		Speed:              floatOrNaN(ev.Speed),
		HorizontalAccuracy: floatOrNaN(ev.HorizontalAccuracy),
		VerticalAccuracy:   floatOrNaN(ev.VerticalAccuracy),
	}, nil
}

func decodeStatusEvent(payload []byte) (string, error) {
	var ev statusEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return "", fmt.Errorf("parse status event: %w", err)
	}
	switch ev.Event {
	case statusFixAcquired, statusFixLost:
		return ev.Event, nil
	}
	return "", fmt.Errorf("unknown status event %q", ev.Event)
}

func decodeControlEvent(payload []byte) (string, error) {
	var ev controlEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return "", fmt.Errorf("parse control event: %w", err)
	}
	switch ev.Command {
	case commandStart, commandPause, commandResume, commandFinish:
		return ev.Command, nil
	}
	return "", fmt.Errorf("unknown control command %q", ev.Command)
}

func floatOrNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}
