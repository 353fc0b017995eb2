package persistence

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/ridelog-data/ridelog/internal/fsutil"
	"github.com/ridelog-data/ridelog/internal/motion"
)

// On-disk layout: every point file starts with an 8-byte header
// (magic, format version, sensor kind) followed by fixed-size
// little-endian records. Appends are whole-record and flush-delimited:
// each Append serialises the full batch into one buffer and hands it
// to the kernel in a single write, so a reader never observes a
// half-record tail that parses as valid data.
var fileMagic = [4]byte{'R', 'L', 'P', 'F'}

const (
	headerSize = 8

	// point3DRecordSize is timestamp int64 + three float32 axes.
	point3DRecordSize = 8 + 3*4

	// locationRecordSize is timestamp int64 + five float64 fields
	// (lat, lon, altitude, speed, accuracy).
	locationRecordSize = 8 + 5*8

	// locationKindByte tags location files in the header in place of
	// a motion.SensorKind.
	locationKindByte = 0xFF
)

func encodeHeader(kind byte) []byte {
	buf := make([]byte, headerSize)
	copy(buf, fileMagic[:])
	binary.LittleEndian.PutUint16(buf[4:], motion.FileFormatVersion)
	buf[6] = kind
	buf[7] = 0
	return buf
}

// openAppendFile opens (or creates) an append-only point file and
// writes the header when the file is new.
func openAppendFile(path string, kind byte) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create measurement directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open point file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat point file: %w", err)
	}
	if info.Size() == 0 {
		if _, err := f.Write(encodeHeader(kind)); err != nil {
			f.Close()
			return nil, fmt.Errorf("write point file header: %w", err)
		}
	}
	return f, nil
}

// PointFile appends 3-axis samples of one sensor kind for one
// measurement. Exactly one PointFile instance may own a file at a
// time; the persistence service enforces this by dispatching all
// appends for a measurement onto a single background goroutine.
type PointFile struct {
	mu   sync.Mutex
	path string
	kind motion.SensorKind
	f    *os.File
}

// OpenPointFile lazily creates the file (and parent directories) under
// the measurement directory.
func OpenPointFile(measurementDir string, kind motion.SensorKind) (*PointFile, error) {
	path := filepath.Join(measurementDir, kind.String()+".bin")
	f, err := openAppendFile(path, byte(kind))
	if err != nil {
		return nil, err
	}
	return &PointFile{path: path, kind: kind, f: f}, nil
}

// Append serialises the samples and appends them in a single write.
func (w *PointFile) Append(points []motion.Point3D) error {
	if len(points) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return fmt.Errorf("%s writer is closed", w.kind)
	}

	var buf bytes.Buffer
	buf.Grow(len(points) * point3DRecordSize)
	scratch := make([]byte, point3DRecordSize)
	for _, p := range points {
		binary.LittleEndian.PutUint64(scratch[0:], uint64(p.TimestampMs))
		binary.LittleEndian.PutUint32(scratch[8:], math.Float32bits(p.X))
		binary.LittleEndian.PutUint32(scratch[12:], math.Float32bits(p.Y))
		binary.LittleEndian.PutUint32(scratch[16:], math.Float32bits(p.Z))
		buf.Write(scratch)
	}

	if _, err := w.f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("append %d %s points: %w", len(points), w.kind, err)
	}
	return nil
}

// Path returns the file path.
func (w *PointFile) Path() string { return w.path }

// Close releases the file handle. Further appends fail.
func (w *PointFile) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}

// LocationFile appends raw location fixes for one measurement.
type LocationFile struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// OpenLocationFile lazily creates the locations file under the
// measurement directory.
func OpenLocationFile(measurementDir string) (*LocationFile, error) {
	path := filepath.Join(measurementDir, "locations.bin")
	f, err := openAppendFile(path, locationKindByte)
	if err != nil {
		return nil, err
	}
	return &LocationFile{path: path, f: f}, nil
}

// Append serialises the fixes and appends them in a single write.
func (w *LocationFile) Append(locs []motion.GeoLocation) error {
	if len(locs) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return fmt.Errorf("location writer is closed")
	}

	var buf bytes.Buffer
	buf.Grow(len(locs) * locationRecordSize)
	scratch := make([]byte, locationRecordSize)
	for _, l := range locs {
		binary.LittleEndian.PutUint64(scratch[0:], uint64(l.TimestampMs))
		binary.LittleEndian.PutUint64(scratch[8:], math.Float64bits(l.Latitude))
		binary.LittleEndian.PutUint64(scratch[16:], math.Float64bits(l.Longitude))
		binary.LittleEndian.PutUint64(scratch[24:], math.Float64bits(l.Altitude))
		binary.LittleEndian.PutUint64(scratch[32:], math.Float64bits(l.Speed))
		binary.LittleEndian.PutUint64(scratch[40:], math.Float64bits(l.HorizontalAccuracy))
		buf.Write(scratch)
	}

	if _, err := w.f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("append %d locations: %w", len(locs), err)
	}
	return nil
}

// Path returns the file path.
func (w *LocationFile) Path() string { return w.path }

// Close releases the file handle. Further appends fail.
func (w *LocationFile) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}

// ReadPointFile parses a complete point file back into samples.
func ReadPointFile(fs fsutil.FileSystem, path string) ([]motion.Point3D, error) {
	data, err := fs.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := validateFileBytes(data, point3DRecordSize); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	body := data[headerSize:]
	points := make([]motion.Point3D, 0, len(body)/point3DRecordSize)
	for off := 0; off < len(body); off += point3DRecordSize {
		rec := body[off:]
		points = append(points, motion.Point3D{
			TimestampMs: int64(binary.LittleEndian.Uint64(rec[0:])),
			X:           math.Float32frombits(binary.LittleEndian.Uint32(rec[8:])),
			Y:           math.Float32frombits(binary.LittleEndian.Uint32(rec[12:])),
			Z:           math.Float32frombits(binary.LittleEndian.Uint32(rec[16:])),
		})
	}
	return points, nil
}

// ReadLocationFile parses a complete locations file back into fixes.
func ReadLocationFile(fs fsutil.FileSystem, path string) ([]motion.GeoLocation, error) {
	data, err := fs.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := validateFileBytes(data, locationRecordSize); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	body := data[headerSize:]
	locs := make([]motion.GeoLocation, 0, len(body)/locationRecordSize)
	for off := 0; off < len(body); off += locationRecordSize {
		rec := body[off:]
		locs = append(locs, motion.GeoLocation{
			TimestampMs:        int64(binary.LittleEndian.Uint64(rec[0:])),
			Latitude:           math.Float64frombits(binary.LittleEndian.Uint64(rec[8:])),
			Longitude:          math.Float64frombits(binary.LittleEndian.Uint64(rec[16:])),
			Altitude:           math.Float64frombits(binary.LittleEndian.Uint64(rec[24:])),
			Speed:              math.Float64frombits(binary.LittleEndian.Uint64(rec[32:])),
			HorizontalAccuracy: math.Float64frombits(binary.LittleEndian.Uint64(rec[40:])),
			VerticalAccuracy:   math.NaN(),
		})
	}
	return locs, nil
}

// ValidateFile checks that a point or location file carries a readable
// header and whole records. Startup recovery uses this to detect
// measurements whose writes were cut off mid-record.
func ValidateFile(fs fsutil.FileSystem, path string) error {
	data, err := fs.ReadFile(path)
	if err != nil {
		return err
	}
	if len(data) < headerSize {
		return fmt.Errorf("file shorter than header: %d bytes", len(data))
	}
	recordSize := point3DRecordSize
	if data[6] == locationKindByte {
		recordSize = locationRecordSize
	}
	return validateFileBytes(data, recordSize)
}

func validateFileBytes(data []byte, recordSize int) error {
	if len(data) < headerSize {
		return fmt.Errorf("file shorter than header: %d bytes", len(data))
	}
	if !bytes.Equal(data[:4], fileMagic[:]) {
		return fmt.Errorf("bad magic %q", data[:4])
	}
	version := binary.LittleEndian.Uint16(data[4:])
	if version == 0 || version > motion.FileFormatVersion {
		return fmt.Errorf("unsupported file format version %d", version)
	}
	if (len(data)-headerSize)%recordSize != 0 {
		return fmt.Errorf("truncated record: %d trailing bytes", (len(data)-headerSize)%recordSize)
	}
	return nil
}
