package persistence

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ridelog-data/ridelog/internal/fsutil"
	"github.com/ridelog-data/ridelog/internal/motion"
	"github.com/ridelog-data/ridelog/internal/testutil"
	"github.com/ridelog-data/ridelog/internal/timeutil"
)

// fakeStore is an in-memory MeasurementStore.
type fakeStore struct {
	mu           sync.Mutex
	nextID       int64
	measurements map[int64]*motion.Measurement
	locations    map[int64][]motion.GeoLocation
	pressures    map[int64][]pressureRow
}

type pressureRow struct {
	timestampMs int64
	value       float64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		measurements: make(map[int64]*motion.Measurement),
		locations:    make(map[int64][]motion.GeoLocation),
		pressures:    make(map[int64][]pressureRow),
	}
}

func (s *fakeStore) InsertMeasurement(m *motion.Measurement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	m.ID = s.nextID
	cp := *m
	s.measurements[m.ID] = &cp
	return nil
}

func (s *fakeStore) Measurement(id int64) (*motion.Measurement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.measurements[id]
	if !ok {
		return nil, fmt.Errorf("measurement %d not found", id)
	}
	cp := *m
	return &cp, nil
}

func (s *fakeStore) SetStatus(id int64, status motion.MeasurementStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.measurements[id]
	if !ok {
		return fmt.Errorf("measurement %d not found", id)
	}
	m.Status = status
	return nil
}

func (s *fakeStore) SetDistance(id int64, meters float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.measurements[id]
	if !ok {
		return fmt.Errorf("measurement %d not found", id)
	}
	m.DistanceMeters = meters
	return nil
}

func (s *fakeStore) InsertLocation(measurementID int64, loc motion.GeoLocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locations[measurementID] = append(s.locations[measurementID], loc)
	return nil
}

func (s *fakeStore) InsertPressure(measurementID int64, timestampMs int64, pressure float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pressures[measurementID] = append(s.pressures[measurementID], pressureRow{timestampMs, pressure})
	return nil
}

func (s *fakeStore) Locations(measurementID int64) ([]motion.GeoLocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]motion.GeoLocation(nil), s.locations[measurementID]...), nil
}

func (s *fakeStore) MeasurementsByStatus(status motion.MeasurementStatus) ([]*motion.Measurement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*motion.Measurement
	for _, m := range s.measurements {
		if m.Status == status {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func newTestService(t *testing.T, store *fakeStore) *Service {
	t.Helper()
	svc, err := NewService(Config{
		DataDir: t.TempDir(),
		Store:   store,
		Clock:   timeutil.NewMockClock(time.UnixMilli(1_700_000_000_000)),
	})
	require.NoError(t, err)
	t.Cleanup(svc.Shutdown)
	return svc
}

func TestMeasurementLifecycle(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store)

	m, err := svc.NewMeasurement()
	require.NoError(t, err)
	require.Equal(t, motion.StatusOpen, m.Status)
	require.Equal(t, motion.FileFormatVersion, m.FileFormatVersion)
	require.EqualValues(t, 1_700_000_000_000, m.CreatedAtMs)

	require.NoError(t, svc.Pause())
	cur, err := svc.CurrentMeasurement()
	require.NoError(t, err)
	require.Equal(t, motion.StatusPaused, cur.Status)

	require.NoError(t, svc.Resume())
	require.NoError(t, svc.Finish())

	_, err = svc.CurrentMeasurement()
	require.ErrorIs(t, err, ErrNoActiveMeasurement)
}

func TestSecondActiveMeasurementIsContractViolation(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store)

	_, err := svc.NewMeasurement()
	require.NoError(t, err)

	_, err = svc.NewMeasurement()
	require.ErrorIs(t, err, ErrContractViolation)

	// Paused still counts as active.
	require.NoError(t, svc.Pause())
	_, err = svc.NewMeasurement()
	require.ErrorIs(t, err, ErrContractViolation)
}

func TestInvalidTransitionsAreContractViolations(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store)

	require.ErrorIs(t, svc.Pause(), ErrNoActiveMeasurement)

	_, err := svc.NewMeasurement()
	require.NoError(t, err)

	require.ErrorIs(t, svc.Resume(), ErrContractViolation)
	require.NoError(t, svc.Pause())
	require.ErrorIs(t, svc.Pause(), ErrContractViolation)
	require.NoError(t, svc.Finish())
	require.ErrorIs(t, svc.Finish(), ErrNoActiveMeasurement)
}

func TestCurrentMeasurementDetectsInconsistentStore(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store)

	// Two active rows can only exist if the store was corrupted
	// behind the service's back.
	require.NoError(t, store.InsertMeasurement(&motion.Measurement{Status: motion.StatusOpen}))
	require.NoError(t, store.InsertMeasurement(&motion.Measurement{Status: motion.StatusPaused}))

	_, err := svc.CurrentMeasurement()
	require.ErrorIs(t, err, ErrContractViolation)
}

func TestStoreDataWritesPointFiles(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store)

	m, err := svc.NewMeasurement()
	require.NoError(t, err)

	batch := &motion.CapturedData{
		Accelerations: []motion.Point3D{
			testutil.Point(1000, 0.1, 9.8, 0.2),
			testutil.Point(1010, 0.2, 9.7, 0.1),
		},
		Rotations: []motion.Point3D{
			testutil.Point(1000, 0.01, 0.02, 0.03),
		},
	}

	done := make(chan error, 1)
	svc.StoreData(batch, m.ID, func(err error) { done <- err })
	require.NoError(t, <-done)
	require.NoError(t, svc.Finish())
	svc.Shutdown()

	osFS := fsutil.OSFileSystem{}
	dir := svc.MeasurementDir(m.ID)
	accel, err := ReadPointFile(osFS, dir+"/accelerations.bin")
	require.NoError(t, err)
	require.Len(t, accel, 2)
	rot, err := ReadPointFile(osFS, dir+"/rotations.bin")
	require.NoError(t, err)
	require.Len(t, rot, 1)
}

func TestStoreDataDownsamplesPressures(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store)

	m, err := svc.NewMeasurement()
	require.NoError(t, err)

	batch := &motion.CapturedData{
		Pressures: []motion.PressureSample{
			{TimestampMs: 1000, Value: 1010},
			{TimestampMs: 1040, Value: 1020},
			{TimestampMs: 1020, Value: 1014.5},
		},
	}
	done := make(chan error, 1)
	svc.StoreData(batch, m.ID, func(err error) { done <- err })
	require.NoError(t, <-done)

	rows := store.pressures[m.ID]
	require.Len(t, rows, 1, "a batch must collapse to one pressure row")
	require.EqualValues(t, 1040, rows[0].timestampMs, "row must carry the latest sample timestamp")
	require.InDelta(t, (1010+1020+1014.5)/3, rows[0].value, 1e-9)
}

func TestStoreDataAfterShutdownIsNoOp(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store)

	m, err := svc.NewMeasurement()
	require.NoError(t, err)
	svc.Shutdown()

	called := false
	svc.StoreData(&motion.CapturedData{
		Accelerations: []motion.Point3D{testutil.Point(1, 0, 0, 0)},
	}, m.ID, func(error) { called = true })
	svc.StoreLocation(testutil.Fix(1, 51, 13), m.ID)

	require.False(t, called, "dropped writes must not fire callbacks")
	require.False(t, fsutil.OSFileSystem{}.Exists(svc.MeasurementDir(m.ID)),
		"no files may be created after shutdown")
	require.Empty(t, store.locations[m.ID])
}

func TestShutdownIsIdempotent(t *testing.T) {
	svc := newTestService(t, newFakeStore())
	svc.Shutdown()
	svc.Shutdown()
}

func TestStoreLocationPersistsRowAndRecord(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store)

	m, err := svc.NewMeasurement()
	require.NoError(t, err)

	first := testutil.Fix(2000, 51.05, 13.72)
	second := testutil.Fix(3000, 51.06, 13.73)
	svc.StoreLocation(first, m.ID)
	svc.StoreLocation(second, m.ID)
	svc.Shutdown()

	rows, err := store.Locations(m.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.EqualValues(t, 2000, rows[0].TimestampMs)

	recs, err := ReadLocationFile(fsutil.OSFileSystem{}, svc.MeasurementDir(m.ID)+"/locations.bin")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.EqualValues(t, 3000, recs[1].TimestampMs)
}

func TestUpdateDistance(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store)

	m, err := svc.NewMeasurement()
	require.NoError(t, err)

	require.NoError(t, svc.UpdateDistance(12.5))
	require.NoError(t, svc.UpdateDistance(48.2))
	cur, err := svc.CurrentMeasurement()
	require.NoError(t, err)
	require.InDelta(t, 48.2, cur.DistanceMeters, 1e-9)

	// Updates are dropped while paused and after the finish: the last
	// accepted value stands.
	require.NoError(t, svc.Pause())
	require.NoError(t, svc.UpdateDistance(99))
	require.NoError(t, svc.Resume())
	require.NoError(t, svc.Finish())
	require.NoError(t, svc.UpdateDistance(150))

	final, err := store.Measurement(m.ID)
	require.NoError(t, err)
	require.InDelta(t, 48.2, final.DistanceMeters, 1e-9)
}

func TestFinishClosesWritersBehindQueuedAppends(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store)

	m, err := svc.NewMeasurement()
	require.NoError(t, err)

	// The batch is queued before the finish, so the writer close must
	// land behind it and the samples must reach the file.
	done := make(chan error, 1)
	svc.StoreData(&motion.CapturedData{
		Accelerations: []motion.Point3D{testutil.Point(1, 0.1, 0.2, 0.3)},
	}, m.ID, func(err error) { done <- err })
	require.NoError(t, svc.Finish())
	require.NoError(t, <-done)
	svc.Shutdown()

	points, err := ReadPointFile(fsutil.OSFileSystem{}, svc.MeasurementDir(m.ID)+"/accelerations.bin")
	require.NoError(t, err)
	require.Len(t, points, 1)
}

func TestStoreDataJoinsPartialFailures(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store)

	m, err := svc.NewMeasurement()
	require.NoError(t, err)

	// Close the accelerations writer out from under the service; the
	// rotations append must still go through and the error surface in
	// the callback.
	w, err := svc.pointWriter(m.ID, motion.Accelerometer)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	done := make(chan error, 1)
	svc.StoreData(&motion.CapturedData{
		Accelerations: []motion.Point3D{testutil.Point(1, 0, 0, 0)},
		Rotations:     []motion.Point3D{testutil.Point(1, 0, 0, 0)},
	}, m.ID, func(err error) { done <- err })

	err = <-done
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrContractViolation))

	rot, err := ReadPointFile(fsutil.OSFileSystem{}, svc.MeasurementDir(m.ID)+"/rotations.bin")
	require.NoError(t, err)
	require.Len(t, rot, 1)
}
