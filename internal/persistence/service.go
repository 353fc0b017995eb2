package persistence

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/ridelog-data/ridelog/internal/fsutil"
	"github.com/ridelog-data/ridelog/internal/monitoring"
	"github.com/ridelog-data/ridelog/internal/motion"
	"github.com/ridelog-data/ridelog/internal/timeutil"
)

const (
	// measurementsDirName holds one sub-directory per measurement ID.
	measurementsDirName = "measurements"
	// quarantineDirName receives measurement directories whose
	// on-disk data failed validation during startup recovery.
	quarantineDirName = "quarantine"

	// defaultShutdownGrace bounds how long Shutdown waits for
	// in-flight writes before abandoning them.
	defaultShutdownGrace = time.Second
)

// Config configures a persistence Service.
type Config struct {
	// DataDir is the root of the on-device store: the measurement
	// directories and the quarantine live below it.
	DataDir string
	// Store is the measurement metadata store.
	Store MeasurementStore
	// FS is used by startup recovery and validation. Defaults to the
	// OS filesystem.
	FS fsutil.FileSystem
	// Clock stamps measurement creation times. Defaults to the real
	// clock.
	Clock timeutil.Clock
	// QueueDepth bounds the background write queue.
	QueueDepth int
	// ShutdownGrace overrides the shutdown drain period.
	ShutdownGrace time.Duration
}

// Service orchestrates the measurement lifecycle and dispatches all
// file and metadata writes onto a single background executor. It
// exclusively owns the per-measurement file writers and the cached
// current-measurement ID; no other component may hold either beyond a
// single call.
type Service struct {
	dataDir string
	store   MeasurementStore
	fs      fsutil.FileSystem
	clock   timeutil.Clock
	grace   time.Duration
	exec    *executor

	// mu serialises lifecycle transitions, distance updates and the
	// shutdown flag. Write tasks never take it.
	mu        sync.Mutex
	currentID int64
	down      bool

	// wmu guards the lazily created file writers. The executor
	// goroutine takes it during writes; lifecycle code takes it after
	// mu (never the other way around).
	wmu        sync.Mutex
	writers    map[writerKey]*PointFile
	locWriters map[int64]*LocationFile
}

type writerKey struct {
	measurementID int64
	kind          motion.SensorKind
}

// NewService creates a Service rooted at cfg.DataDir.
func NewService(cfg Config) (*Service, error) {
	if cfg.DataDir == "" {
		return nil, errors.New("persistence: DataDir is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("persistence: Store is required")
	}
	fs := cfg.FS
	if fs == nil {
		fs = fsutil.OSFileSystem{}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	grace := cfg.ShutdownGrace
	if grace <= 0 {
		grace = defaultShutdownGrace
	}
	return &Service{
		dataDir:    cfg.DataDir,
		store:      cfg.Store,
		fs:         fs,
		clock:      clock,
		grace:      grace,
		exec:       newExecutor(cfg.QueueDepth),
		writers:    make(map[writerKey]*PointFile),
		locWriters: make(map[int64]*LocationFile),
	}, nil
}

// MeasurementDir returns the directory holding a measurement's binary
// files.
func (s *Service) MeasurementDir(id int64) string {
	return filepath.Join(s.dataDir, measurementsDirName, strconv.FormatInt(id, 10))
}

func (s *Service) quarantineDir(id int64) string {
	return filepath.Join(s.dataDir, quarantineDirName, strconv.FormatInt(id, 10))
}

// NewMeasurement creates a measurement in the Open state. At most one
// measurement may be Open or Paused system-wide; violating that
// precondition is a contract violation.
func (s *Service) NewMeasurement() (*motion.Measurement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.down {
		return nil, fmt.Errorf("persistence layer is shut down")
	}
	active, err := s.activeMeasurements()
	if err != nil {
		return nil, err
	}
	if len(active) > 0 {
		return nil, fmt.Errorf("%w: measurement %d is still %s",
			ErrContractViolation, active[0].ID, active[0].Status)
	}

	m := &motion.Measurement{
		Status:            motion.StatusOpen,
		FileFormatVersion: motion.FileFormatVersion,
		CreatedAtMs:       s.clock.Now().UnixMilli(),
	}
	if err := s.store.InsertMeasurement(m); err != nil {
		return nil, fmt.Errorf("insert measurement: %w", err)
	}
	s.currentID = m.ID
	monitoring.Logf("persistence: measurement %d opened", m.ID)
	return m, nil
}

// Pause transitions the current measurement from Open to Paused.
func (s *Service) Pause() error {
	return s.transition(motion.StatusOpen, motion.StatusPaused)
}

// Resume transitions the current measurement from Paused back to Open.
func (s *Service) Resume() error {
	return s.transition(motion.StatusPaused, motion.StatusOpen)
}

// Finish terminates the current measurement. The file writers are
// closed behind any writes already queued, so trailing batches still
// land in the files.
func (s *Service) Finish() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.down {
		return fmt.Errorf("persistence layer is shut down")
	}
	m, err := s.currentLocked()
	if err != nil {
		return err
	}
	if !m.Status.Active() {
		return fmt.Errorf("%w: finish requested but measurement %d is %s",
			ErrContractViolation, m.ID, m.Status)
	}
	if err := s.store.SetStatus(m.ID, motion.StatusFinished); err != nil {
		return fmt.Errorf("set status finished: %w", err)
	}
	s.currentID = 0

	id := m.ID
	s.exec.submit(func() error {
		s.closeWriters(id)
		return nil
	}, nil)
	monitoring.Logf("persistence: measurement %d finished", id)
	return nil
}

func (s *Service) transition(from, to motion.MeasurementStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.currentLocked()
	if err != nil {
		return err
	}
	if m.Status != from {
		return fmt.Errorf("%w: %s requested but measurement %d is %s",
			ErrContractViolation, to, m.ID, m.Status)
	}
	if err := s.store.SetStatus(m.ID, to); err != nil {
		return fmt.Errorf("set status %s: %w", to, err)
	}
	monitoring.Logf("persistence: measurement %d is now %s", m.ID, to)
	return nil
}

// CurrentMeasurement returns the measurement currently being captured.
// The cached ID is consulted first; otherwise the store is queried.
// Finding more than one active measurement indicates corrupted state
// and fails with ErrContractViolation rather than silently picking
// one.
func (s *Service) CurrentMeasurement() (*motion.Measurement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentLocked()
}

func (s *Service) currentLocked() (*motion.Measurement, error) {
	if s.currentID != 0 {
		m, err := s.store.Measurement(s.currentID)
		if err != nil {
			return nil, fmt.Errorf("load cached measurement %d: %w", s.currentID, err)
		}
		return m, nil
	}

	active, err := s.activeMeasurements()
	if err != nil {
		return nil, err
	}
	switch len(active) {
	case 0:
		return nil, ErrNoActiveMeasurement
	case 1:
		s.currentID = active[0].ID
		return active[0], nil
	}
	return nil, fmt.Errorf("%w: %d measurements are simultaneously active",
		ErrContractViolation, len(active))
}

func (s *Service) activeMeasurements() ([]*motion.Measurement, error) {
	open, err := s.store.MeasurementsByStatus(motion.StatusOpen)
	if err != nil {
		return nil, fmt.Errorf("query open measurements: %w", err)
	}
	paused, err := s.store.MeasurementsByStatus(motion.StatusPaused)
	if err != nil {
		return nil, fmt.Errorf("query paused measurements: %w", err)
	}
	return append(open, paused...), nil
}

// StoreData dispatches writing of each non-empty point list in the
// batch to the corresponding file writer on the background executor.
// Pressure samples are not written to a point file; each batch is
// downsampled to its mean value at the timestamp of the latest sample
// and stored as one metadata row.
//
// onComplete fires after all sub-writes finished, with the joined
// error of any that failed. Calls after Shutdown are silently dropped.
func (s *Service) StoreData(batch *motion.CapturedData, measurementID int64, onComplete func(error)) {
	if batch == nil || batch.IsEmpty() {
		if onComplete != nil {
			onComplete(nil)
		}
		return
	}

	s.mu.Lock()
	if s.down {
		s.mu.Unlock()
		return
	}
	s.exec.submit(func() error {
		return s.writeBatch(batch, measurementID)
	}, onComplete)
	s.mu.Unlock()
}

func (s *Service) writeBatch(batch *motion.CapturedData, measurementID int64) error {
	var errs []error
	for _, kind := range motion.PointKinds {
		points := batch.Points(kind)
		if len(points) == 0 {
			continue
		}
		w, err := s.pointWriter(measurementID, kind)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := w.Append(points); err != nil {
			errs = append(errs, err)
		}
	}

	if len(batch.Pressures) > 0 {
		values := make([]float64, len(batch.Pressures))
		latest := batch.Pressures[0].TimestampMs
		for i, p := range batch.Pressures {
			values[i] = p.Value
			if p.TimestampMs > latest {
				latest = p.TimestampMs
			}
		}
		mean := stat.Mean(values, nil)
		if err := s.store.InsertPressure(measurementID, latest, mean); err != nil {
			errs = append(errs, fmt.Errorf("insert pressure: %w", err))
		}
	}
	return errors.Join(errs...)
}

// StoreLocation persists one raw fix: a row in the metadata store and
// a record in the measurement's locations file. Calls after Shutdown
// are silently dropped; write failures are logged, not surfaced.
func (s *Service) StoreLocation(loc motion.GeoLocation, measurementID int64) {
	s.mu.Lock()
	if s.down {
		s.mu.Unlock()
		return
	}
	s.exec.submit(func() error {
		if err := s.store.InsertLocation(measurementID, loc); err != nil {
			return fmt.Errorf("insert location: %w", err)
		}
		w, err := s.locationWriter(measurementID)
		if err != nil {
			return err
		}
		return w.Append([]motion.GeoLocation{loc})
	}, func(err error) {
		if err != nil {
			monitoring.Logf("persistence: store location for measurement %d: %v", measurementID, err)
		}
	})
	s.mu.Unlock()
}

// UpdateDistance overwrites the stored distance of the currently open
// measurement. It shares the lifecycle lock, so a concurrent Finish
// cannot interleave: the last update accepted before the finish wins
// and updates arriving afterwards are dropped.
func (s *Service) UpdateDistance(totalMeters float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.down {
		return nil
	}
	m, err := s.currentLocked()
	if errors.Is(err, ErrNoActiveMeasurement) {
		return nil
	}
	if err != nil {
		return err
	}
	if m.Status != motion.StatusOpen {
		return nil
	}
	if err := s.store.SetDistance(m.ID, totalMeters); err != nil {
		return fmt.Errorf("set distance: %w", err)
	}
	return nil
}

// Shutdown drains in-flight writes for up to the configured grace
// period, abandons the rest and releases all file handles. Writes
// arriving afterwards are silently dropped. Shutdown is idempotent.
func (s *Service) Shutdown() {
	s.mu.Lock()
	if s.down {
		s.mu.Unlock()
		return
	}
	s.down = true
	s.mu.Unlock()

	s.exec.shutdown(s.grace)
	s.closeWriters(0)
	monitoring.Logf("persistence: shut down")
}

// pointWriter lazily opens the writer for one (measurement, kind)
// pair. Only the executor goroutine calls it during writes.
func (s *Service) pointWriter(measurementID int64, kind motion.SensorKind) (*PointFile, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	key := writerKey{measurementID: measurementID, kind: kind}
	if w, ok := s.writers[key]; ok {
		return w, nil
	}
	w, err := OpenPointFile(s.MeasurementDir(measurementID), kind)
	if err != nil {
		return nil, err
	}
	s.writers[key] = w
	return w, nil
}

func (s *Service) locationWriter(measurementID int64) (*LocationFile, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	if w, ok := s.locWriters[measurementID]; ok {
		return w, nil
	}
	w, err := OpenLocationFile(s.MeasurementDir(measurementID))
	if err != nil {
		return nil, err
	}
	s.locWriters[measurementID] = w
	return w, nil
}

// closeWriters releases the writers of one measurement, or of every
// measurement when id is zero.
func (s *Service) closeWriters(id int64) {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	for key, w := range s.writers {
		if id == 0 || key.measurementID == id {
			if err := w.Close(); err != nil {
				monitoring.Logf("persistence: close %s writer for measurement %d: %v", key.kind, key.measurementID, err)
			}
			delete(s.writers, key)
		}
	}
	for mid, w := range s.locWriters {
		if id == 0 || mid == id {
			if err := w.Close(); err != nil {
				monitoring.Logf("persistence: close location writer for measurement %d: %v", mid, err)
			}
			delete(s.locWriters, mid)
		}
	}
}
