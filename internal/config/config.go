// Package config loads the engine configuration. The schema uses
// pointer fields so partial JSON files are safe: anything omitted
// falls back to the built-in default through the Get* accessors.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical defaults file.
const DefaultConfigPath = "config/ridelog.defaults.json"

// Config is the root configuration for the capture engine.
type Config struct {
	// Storage params
	DataDir       *string `json:"data_dir,omitempty"`
	DatabaseFile  *string `json:"database_file,omitempty"`
	MigrationsDir *string `json:"migrations_dir,omitempty"`

	// Capture params
	BatchSize     *int    `json:"batch_size,omitempty"`
	ShutdownGrace *string `json:"shutdown_grace,omitempty"` // duration string like "1s"
	QueueDepth    *int    `json:"queue_depth,omitempty"`

	// Location cleaning params
	AccuracyBound   *float64 `json:"accuracy_bound,omitempty"`
	SpeedLowerBound *float64 `json:"speed_lower_bound,omitempty"`
	SpeedUpperBound *float64 `json:"speed_upper_bound,omitempty"`

	// Feed params
	MQTTBroker    *string `json:"mqtt_broker,omitempty"`
	MQTTClientID  *string `json:"mqtt_client_id,omitempty"`
	SensorTopic   *string `json:"sensor_topic,omitempty"`
	LocationTopic *string `json:"location_topic,omitempty"`
	StatusTopic   *string `json:"status_topic,omitempty"`
	ControlTopic  *string `json:"control_topic,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyConfig returns a Config with all fields set to nil.
func EmptyConfig() *Config {
	return &Config{}
}

// LoadConfig loads a Config from a JSON file. Fields omitted from the
// file keep their defaults, so partial configs are safe.
func LoadConfig(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are consistent.
func (c *Config) Validate() error {
	if c.BatchSize != nil && *c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", *c.BatchSize)
	}
	if c.QueueDepth != nil && *c.QueueDepth <= 0 {
		return fmt.Errorf("queue_depth must be positive, got %d", *c.QueueDepth)
	}
	if c.AccuracyBound != nil && *c.AccuracyBound <= 0 {
		return fmt.Errorf("accuracy_bound must be positive, got %f", *c.AccuracyBound)
	}
	if c.SpeedLowerBound != nil && c.SpeedUpperBound != nil &&
		*c.SpeedLowerBound >= *c.SpeedUpperBound {
		return fmt.Errorf("speed_lower_bound %f must be below speed_upper_bound %f",
			*c.SpeedLowerBound, *c.SpeedUpperBound)
	}
	if c.ShutdownGrace != nil && *c.ShutdownGrace != "" {
		if _, err := time.ParseDuration(*c.ShutdownGrace); err != nil {
			return fmt.Errorf("invalid shutdown_grace '%s': %w", *c.ShutdownGrace, err)
		}
	}
	return nil
}

// GetDataDir returns the data_dir value or the default.
func (c *Config) GetDataDir() string {
	if c.DataDir == nil || *c.DataDir == "" {
		return "data"
	}
	return *c.DataDir
}

// GetDatabasePath returns the metadata database path, placing the
// default file under the data directory.
func (c *Config) GetDatabasePath() string {
	if c.DatabaseFile == nil || *c.DatabaseFile == "" {
		return filepath.Join(c.GetDataDir(), "ridelog.db")
	}
	return *c.DatabaseFile
}

// GetMigrationsDir returns the migrations_dir value or the default.
func (c *Config) GetMigrationsDir() string {
	if c.MigrationsDir == nil || *c.MigrationsDir == "" {
		return "migrations"
	}
	return *c.MigrationsDir
}

// GetBatchSize returns the batch_size value or the default.
func (c *Config) GetBatchSize() int {
	if c.BatchSize == nil {
		return 800
	}
	return *c.BatchSize
}

// GetShutdownGrace parses and returns the ShutdownGrace as a time.Duration.
func (c *Config) GetShutdownGrace() time.Duration {
	if c.ShutdownGrace == nil || *c.ShutdownGrace == "" {
		return time.Second // default
	}
	d, err := time.ParseDuration(*c.ShutdownGrace)
	if err != nil {
		return time.Second // default on parse error
	}
	return d
}

// GetQueueDepth returns the queue_depth value or the default.
func (c *Config) GetQueueDepth() int {
	if c.QueueDepth == nil {
		return 256
	}
	return *c.QueueDepth
}

// GetAccuracyBound returns the accuracy_bound value or the default.
func (c *Config) GetAccuracyBound() float64 {
	if c.AccuracyBound == nil {
		return 20.0
	}
	return *c.AccuracyBound
}

// GetSpeedLowerBound returns the speed_lower_bound value or the default.
func (c *Config) GetSpeedLowerBound() float64 {
	if c.SpeedLowerBound == nil {
		return 1.0
	}
	return *c.SpeedLowerBound
}

// GetSpeedUpperBound returns the speed_upper_bound value or the default.
func (c *Config) GetSpeedUpperBound() float64 {
	if c.SpeedUpperBound == nil {
		return 100.0
	}
	return *c.SpeedUpperBound
}

// GetMQTTBroker returns the mqtt_broker value or the default.
func (c *Config) GetMQTTBroker() string {
	if c.MQTTBroker == nil || *c.MQTTBroker == "" {
		return "tcp://localhost:1883"
	}
	return *c.MQTTBroker
}

// GetMQTTClientID returns the mqtt_client_id value or the default.
func (c *Config) GetMQTTClientID() string {
	if c.MQTTClientID == nil || *c.MQTTClientID == "" {
		return "ridelogd"
	}
	return *c.MQTTClientID
}

// GetSensorTopic returns the sensor_topic value or the default.
func (c *Config) GetSensorTopic() string {
	if c.SensorTopic == nil || *c.SensorTopic == "" {
		return "ridelog/sensors"
	}
	return *c.SensorTopic
}

// GetLocationTopic returns the location_topic value or the default.
func (c *Config) GetLocationTopic() string {
	if c.LocationTopic == nil || *c.LocationTopic == "" {
		return "ridelog/locations"
	}
	return *c.LocationTopic
}

// GetStatusTopic returns the status_topic value or the default.
func (c *Config) GetStatusTopic() string {
	if c.StatusTopic == nil || *c.StatusTopic == "" {
		return "ridelog/status"
	}
	return *c.StatusTopic
}

// GetControlTopic returns the control_topic value or the default.
func (c *Config) GetControlTopic() string {
	if c.ControlTopic == nil || *c.ControlTopic == "" {
		return "ridelog/control"
	}
	return *c.ControlTopic
}
