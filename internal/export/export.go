// Package export packages a finished measurement into a compressed
// bundle: one metadata JSON document plus the raw binary point files.
package export

import (
	"archive/tar"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/ridelog-data/ridelog/internal/fsutil"
	"github.com/ridelog-data/ridelog/internal/motion"
)

// MetadataSource is the read side of the measurement store the
// exporter needs.
type MetadataSource interface {
	Measurement(id int64) (*motion.Measurement, error)
	Locations(measurementID int64) ([]motion.GeoLocation, error)
}

// Exporter writes measurement bundles.
type Exporter struct {
	store MetadataSource
	fs    fsutil.FileSystem
}

// NewExporter creates an Exporter reading through fs. A nil fs
// defaults to the OS filesystem.
func NewExporter(store MetadataSource, fs fsutil.FileSystem) *Exporter {
	if fs == nil {
		fs = fsutil.OSFileSystem{}
	}
	return &Exporter{store: store, fs: fs}
}

// bundleMetadata is the metadata.json document inside a bundle.
type bundleMetadata struct {
	MeasurementID     int64            `json:"measurement_id"`
	Status            string           `json:"status"`
	DistanceMeters    float64          `json:"distance_meters"`
	FileFormatVersion uint16           `json:"file_format_version"`
	CreatedAtMs       int64            `json:"created_at_ms"`
	DeviceID          string           `json:"device_id,omitempty"`
	Locations         []locationRecord `json:"locations"`
}

type locationRecord struct {
	TimestampMs        int64    `json:"ts_ms"`
	Latitude           float64  `json:"lat"`
	Longitude          float64  `json:"lon"`
	Altitude           *float64 `json:"alt,omitempty"`
	Speed              *float64 `json:"speed,omitempty"`
	HorizontalAccuracy *float64 `json:"h_acc,omitempty"`
	VerticalAccuracy   *float64 `json:"v_acc,omitempty"`
}

// WriteBundle writes the tar.gz bundle for a finished measurement to
// w. measurementDir is the directory holding the measurement's binary
// files; a missing directory exports metadata only. Only finished
// measurements may be exported.
func (e *Exporter) WriteBundle(w io.Writer, measurementID int64, measurementDir, deviceID string) error {
	m, err := e.store.Measurement(measurementID)
	if err != nil {
		return fmt.Errorf("load measurement: %w", err)
	}
	if m.Status != motion.StatusFinished {
		return fmt.Errorf("measurement %d is %s, only finished measurements can be exported", m.ID, m.Status)
	}
	locs, err := e.store.Locations(measurementID)
	if err != nil {
		return fmt.Errorf("load locations: %w", err)
	}

	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	meta := bundleMetadata{
		MeasurementID:     m.ID,
		Status:            string(m.Status),
		DistanceMeters:    m.DistanceMeters,
		FileFormatVersion: m.FileFormatVersion,
		CreatedAtMs:       m.CreatedAtMs,
		DeviceID:          deviceID,
		Locations:         make([]locationRecord, 0, len(locs)),
	}
	for _, loc := range locs {
		meta.Locations = append(meta.Locations, locationRecord{
			TimestampMs:        loc.TimestampMs,
			Latitude:           loc.Latitude,
			Longitude:          loc.Longitude,
			Altitude:           omitNaN(loc.Altitude),
			Speed:              omitNaN(loc.Speed),
			HorizontalAccuracy: omitNaN(loc.HorizontalAccuracy),
			VerticalAccuracy:   omitNaN(loc.VerticalAccuracy),
		})
	}
	doc, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := writeEntry(tw, "metadata.json", doc, m.CreatedAtMs); err != nil {
		return err
	}

	if err := e.addBinaryFiles(tw, measurementDir, m.CreatedAtMs); err != nil {
		return err
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("finalise bundle: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("finalise bundle: %w", err)
	}
	return nil
}

func (e *Exporter) addBinaryFiles(tw *tar.Writer, dir string, createdAtMs int64) error {
	if !e.fs.Exists(dir) {
		return nil
	}
	names, err := e.fs.ListDir(dir)
	if err != nil {
		return fmt.Errorf("list measurement directory: %w", err)
	}
	for _, name := range names {
		if !strings.HasSuffix(name, ".bin") {
			continue
		}
		data, err := e.fs.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if err := writeEntry(tw, name, data, createdAtMs); err != nil {
			return err
		}
	}
	return nil
}

func writeEntry(tw *tar.Writer, name string, data []byte, createdAtMs int64) error {
	hdr := &tar.Header{
		Name:    name,
		Mode:    0o644,
		Size:    int64(len(data)),
		ModTime: time.UnixMilli(createdAtMs),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write %s header: %w", name, err)
	}
	if _, err := tw.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

func omitNaN(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}
