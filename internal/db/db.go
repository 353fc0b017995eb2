// Package db is the SQLite-backed measurement metadata store.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/ridelog-data/ridelog/internal/motion"
)

type DB struct {
	*sql.DB
}

// NewDB opens (or creates) the database at path and bootstraps the
// schema. SQLite serialises writers internally, so a single connection
// is enough for the on-device workload.
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS measurements (
			measurement_id      INTEGER PRIMARY KEY AUTOINCREMENT,
			status              TEXT NOT NULL,
			distance_meters     DOUBLE NOT NULL DEFAULT 0,
			file_format_version INTEGER NOT NULL,
			created_at_ms       BIGINT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS locations (
			location_id         INTEGER PRIMARY KEY AUTOINCREMENT,
			measurement_id      BIGINT NOT NULL,
			timestamp_ms        BIGINT NOT NULL,
			latitude            DOUBLE NOT NULL,
			longitude           DOUBLE NOT NULL,
			altitude            DOUBLE,
			speed               DOUBLE,
			horizontal_accuracy DOUBLE,
			vertical_accuracy   DOUBLE,
			FOREIGN KEY(measurement_id) REFERENCES measurements(measurement_id)
		);
		CREATE TABLE IF NOT EXISTS pressures (
			pressure_id         INTEGER PRIMARY KEY AUTOINCREMENT,
			measurement_id      BIGINT NOT NULL,
			timestamp_ms        BIGINT NOT NULL,
			pressure            DOUBLE NOT NULL,
			FOREIGN KEY(measurement_id) REFERENCES measurements(measurement_id)
		);
		CREATE TABLE IF NOT EXISTS device (
			id                  INTEGER PRIMARY KEY CHECK (id = 1),
			device_uuid         TEXT NOT NULL
		);
	`)
	if err != nil {
		return nil, err
	}

	return &DB{db}, nil
}

// InsertMeasurement stores a new measurement and assigns its ID.
func (db *DB) InsertMeasurement(m *motion.Measurement) error {
	res, err := db.Exec(
		`INSERT INTO measurements (status, distance_meters, file_format_version, created_at_ms)
		 VALUES (?, ?, ?, ?)`,
		string(m.Status), m.DistanceMeters, m.FileFormatVersion, m.CreatedAtMs,
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("read inserted measurement id: %w", err)
	}
	m.ID = id
	return nil
}

// Measurement loads one measurement by ID.
func (db *DB) Measurement(id int64) (*motion.Measurement, error) {
	row := db.QueryRow(
		`SELECT measurement_id, status, distance_meters, file_format_version, created_at_ms
		 FROM measurements WHERE measurement_id = ?`, id)
	return scanMeasurement(row)
}

// SetStatus overwrites the lifecycle status.
func (db *DB) SetStatus(id int64, status motion.MeasurementStatus) error {
	return db.updateMeasurement(id, "status", string(status))
}

// SetDistance overwrites the accumulated distance in metres.
func (db *DB) SetDistance(id int64, meters float64) error {
	return db.updateMeasurement(id, "distance_meters", meters)
}

func (db *DB) updateMeasurement(id int64, column string, value any) error {
	res, err := db.Exec(
		fmt.Sprintf("UPDATE measurements SET %s = ? WHERE measurement_id = ?", column),
		value, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("measurement %d not found", id)
	}
	return nil
}

// InsertLocation appends one raw location row. NaN fields are stored
// as NULL; SQLite has no NaN representation.
func (db *DB) InsertLocation(measurementID int64, loc motion.GeoLocation) error {
	_, err := db.Exec(
		`INSERT INTO locations (
			measurement_id, timestamp_ms, latitude, longitude,
			altitude, speed, horizontal_accuracy, vertical_accuracy
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		measurementID, loc.TimestampMs, loc.Latitude, loc.Longitude,
		nullableFloat(loc.Altitude), nullableFloat(loc.Speed),
		nullableFloat(loc.HorizontalAccuracy), nullableFloat(loc.VerticalAccuracy),
	)
	return err
}

// InsertPressure appends one downsampled pressure row.
func (db *DB) InsertPressure(measurementID int64, timestampMs int64, pressure float64) error {
	_, err := db.Exec(
		`INSERT INTO pressures (measurement_id, timestamp_ms, pressure) VALUES (?, ?, ?)`,
		measurementID, timestampMs, pressure)
	return err
}

// Locations returns the persisted location rows of a measurement in
// insertion order.
func (db *DB) Locations(measurementID int64) ([]motion.GeoLocation, error) {
	rows, err := db.Query(
		`SELECT timestamp_ms, latitude, longitude, altitude, speed,
		        horizontal_accuracy, vertical_accuracy
		 FROM locations WHERE measurement_id = ? ORDER BY location_id`, measurementID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var locs []motion.GeoLocation
	for rows.Next() {
		var loc motion.GeoLocation
		var altitude, speed, hAcc, vAcc sql.NullFloat64
		if err := rows.Scan(&loc.TimestampMs, &loc.Latitude, &loc.Longitude,
			&altitude, &speed, &hAcc, &vAcc); err != nil {
			return nil, err
		}
		loc.Altitude = floatOrNaN(altitude)
		loc.Speed = floatOrNaN(speed)
		loc.HorizontalAccuracy = floatOrNaN(hAcc)
		loc.VerticalAccuracy = floatOrNaN(vAcc)
		locs = append(locs, loc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return locs, nil
}

// MeasurementsByStatus lists measurements currently in the given
// status, oldest first.
func (db *DB) MeasurementsByStatus(status motion.MeasurementStatus) ([]*motion.Measurement, error) {
	rows, err := db.Query(
		`SELECT measurement_id, status, distance_meters, file_format_version, created_at_ms
		 FROM measurements WHERE status = ? ORDER BY measurement_id`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*motion.Measurement
	for rows.Next() {
		m, err := scanMeasurement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// DeviceIdentifier returns the stable per-device UUID, generating and
// storing one on first call.
func (db *DB) DeviceIdentifier() (string, error) {
	var id string
	err := db.QueryRow(`SELECT device_uuid FROM device WHERE id = 1`).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("read device identifier: %w", err)
	}

	id = uuid.NewString()
	if _, err := db.Exec(`INSERT INTO device (id, device_uuid) VALUES (1, ?)`, id); err != nil {
		return "", fmt.Errorf("store device identifier: %w", err)
	}
	return id, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMeasurement(row rowScanner) (*motion.Measurement, error) {
	var m motion.Measurement
	var status string
	if err := row.Scan(&m.ID, &status, &m.DistanceMeters, &m.FileFormatVersion, &m.CreatedAtMs); err != nil {
		return nil, err
	}
	parsed, err := motion.ParseMeasurementStatus(status)
	if err != nil {
		return nil, fmt.Errorf("measurement %d: %w", m.ID, err)
	}
	m.Status = parsed
	return &m, nil
}

func nullableFloat(v float64) any {
	if math.IsNaN(v) {
		return nil
	}
	return v
}

func floatOrNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
