package capture

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ridelog-data/ridelog/internal/motion"
	"github.com/ridelog-data/ridelog/internal/timeutil"
)

// startupMs anchors all fixture timestamps: fixes at or after this
// instant are fresh.
const startupMs = int64(1_700_000_000_000)

func newTestProcess(batchSize int) (*Process, *recordingListener) {
	clock := timeutil.NewMockClock(time.UnixMilli(startupMs))
	p := NewProcess(ProcessConfig{Clock: clock, BatchSize: batchSize})
	l := &recordingListener{}
	p.AddListener(l)
	return p, l
}

type recordingListener struct {
	mu        sync.Mutex
	fixes     int
	fixLosses int
	locations []motion.GeoLocation
	batches   []*motion.CapturedData
}

func (l *recordingListener) OnLocationFix() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fixes++
}

func (l *recordingListener) OnLocationFixLost() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fixLosses++
}

func (l *recordingListener) OnLocationCaptured(loc motion.GeoLocation) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.locations = append(l.locations, loc)
}

func (l *recordingListener) OnDataCaptured(batch *motion.CapturedData) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.batches = append(l.batches, batch)
}

func freshFix(offsetMs int64) motion.GeoLocation {
	return motion.GeoLocation{
		TimestampMs:        startupMs + offsetMs,
		Latitude:           51.05,
		Longitude:          13.72,
		Altitude:           math.NaN(),
		Speed:              10,
		HorizontalAccuracy: 5,
		VerticalAccuracy:   math.NaN(),
	}
}

func feedAccelerations(p *Process, n int, startOffsetMs int64) {
	for i := 0; i < n; i++ {
		tsNs := (startupMs + startOffsetMs + int64(i)) * int64(time.Millisecond)
		p.OnSensorChanged(motion.Accelerometer, 0.1, 9.8, 0.2, tsNs)
	}
}

func TestSizeTriggeredFlushCount(t *testing.T) {
	// 1247 samples with threshold 800 must produce exactly
	// ceil(1247/800) = 2 batches, with no samples lost.
	p, l := newTestProcess(800)

	feedAccelerations(p, 1247, 0)
	if got := len(l.batches); got != 1 {
		t.Fatalf("got %d size-triggered flushes, want 1", got)
	}

	p.FlushBuffered()
	if got := len(l.batches); got != 2 {
		t.Fatalf("got %d total flushes, want 2", got)
	}

	total := 0
	for _, b := range l.batches {
		total += len(b.Accelerations)
	}
	if total != 1247 {
		t.Errorf("received %d samples across flushes, want 1247", total)
	}
	if len(l.batches[0].Accelerations) != 800 {
		t.Errorf("first flush carries %d samples, want 800", len(l.batches[0].Accelerations))
	}
}

func TestFlushCarriesAllKinds(t *testing.T) {
	// Kinds below the threshold travel along when the dominant kind
	// triggers the flush.
	p, l := newTestProcess(10)

	for i := 0; i < 3; i++ {
		tsNs := (startupMs + int64(i)) * int64(time.Millisecond)
		p.OnSensorChanged(motion.Gyroscope, 0.01, 0.02, 0.03, tsNs)
	}
	p.OnSensorChanged(motion.Barometer, 1013.25, 0, 0, startupMs*int64(time.Millisecond))
	feedAccelerations(p, 10, 0)

	if len(l.batches) != 1 {
		t.Fatalf("got %d flushes, want 1", len(l.batches))
	}
	b := l.batches[0]
	if len(b.Accelerations) != 10 || len(b.Rotations) != 3 || len(b.Pressures) != 1 {
		t.Errorf("flush = %d/%d/%d (accel/rot/pressure), want 10/3/1",
			len(b.Accelerations), len(b.Rotations), len(b.Pressures))
	}

	// All pending lists are cleared by the flush.
	p.FlushBuffered()
	if len(l.batches) != 1 {
		t.Errorf("flush after clearing produced a batch, pending lists not cleared")
	}
}

func TestLocationGatingAndReportingTicks(t *testing.T) {
	// 400 sensor samples interleaved with 2 fixes after acquisition:
	// exactly 2 captured locations and 2 batches cut at the
	// 200-sample marks.
	p, l := newTestProcess(800)

	p.OnFixAcquired()
	if l.fixes != 1 {
		t.Fatalf("fix notifications = %d, want 1", l.fixes)
	}

	feedAccelerations(p, 200, 0)
	p.OnLocationChanged(freshFix(200))
	feedAccelerations(p, 200, 201)
	p.OnLocationChanged(freshFix(401))

	if len(l.locations) != 2 {
		t.Fatalf("captured locations = %d, want 2", len(l.locations))
	}
	if len(l.batches) != 2 {
		t.Fatalf("batches = %d, want 2", len(l.batches))
	}
	for i, b := range l.batches {
		if len(b.Accelerations) != 200 {
			t.Errorf("batch %d carries %d samples, want 200", i, len(b.Accelerations))
		}
	}
}

func TestAwaitingFirstFixSuppressesNotifications(t *testing.T) {
	p, l := newTestProcess(800)

	feedAccelerations(p, 50, 0)
	p.OnLocationChanged(freshFix(100))

	if len(l.locations) != 0 {
		t.Errorf("location captured before fix acquisition")
	}
	if len(l.batches) != 0 {
		t.Errorf("batch cut before fix acquisition")
	}

	// Once the fix arrives, the next location flushes everything
	// buffered so far.
	p.OnFixAcquired()
	p.OnLocationChanged(freshFix(200))

	if len(l.locations) != 1 {
		t.Fatalf("captured locations = %d, want 1", len(l.locations))
	}
	if len(l.batches) != 1 || len(l.batches[0].Accelerations) != 50 {
		t.Fatalf("expected one batch with the 50 buffered samples, got %+v", l.batches)
	}
}

func TestFixLossRetainsBufferedData(t *testing.T) {
	p, l := newTestProcess(800)

	p.OnFixAcquired()
	feedAccelerations(p, 30, 0)
	p.OnFixLost()

	if l.fixLosses != 1 {
		t.Fatalf("fix loss notifications = %d, want 1", l.fixLosses)
	}

	// A location without fix is ignored, data stays buffered.
	p.OnLocationChanged(freshFix(100))
	if len(l.batches) != 0 {
		t.Fatal("batch cut while fix was lost")
	}

	p.OnFixAcquired()
	p.OnLocationChanged(freshFix(200))
	if len(l.batches) != 1 || len(l.batches[0].Accelerations) != 30 {
		t.Fatalf("buffered samples lost across fix loss: %+v", l.batches)
	}
}

func TestCachedLocationsNeverNotify(t *testing.T) {
	p, l := newTestProcess(800)
	p.OnFixAcquired()

	cached := freshFix(0)
	cached.TimestampMs = startupMs - 500 // served from the OS cache
	rolledOver := freshFix(0)
	rolledOver.TimestampMs = startupMs - GPSWeekMs - 3_000

	p.OnLocationChanged(freshFix(100))
	p.OnLocationChanged(cached)
	p.OnLocationChanged(rolledOver)
	p.OnLocationChanged(freshFix(300))

	if len(l.locations) != 2 {
		t.Fatalf("captured locations = %d, want 2 (cached fixes must be dropped)", len(l.locations))
	}
	want := []int64{startupMs + 100, startupMs + 300}
	got := []int64{l.locations[0].TimestampMs, l.locations[1].TimestampMs}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("captured timestamps mismatch (-want +got):\n%s", diff)
	}
}

func TestSensorTimestampNormalisation(t *testing.T) {
	p, l := newTestProcess(1)

	tsNs := int64(1_700_000_000_123_456_789)
	p.OnSensorChanged(motion.Accelerometer, 1, 2, 3, tsNs)

	if len(l.batches) != 1 {
		t.Fatalf("batches = %d, want 1", len(l.batches))
	}
	got := l.batches[0].Accelerations[0].TimestampMs
	if got != 1_700_000_000_123 {
		t.Errorf("timestamp = %d ms, want 1700000000123", got)
	}
}

func TestMalformedSamplesSkipped(t *testing.T) {
	p, l := newTestProcess(2)

	nan := float32(math.NaN())
	p.OnSensorChanged(motion.Accelerometer, nan, 0, 0, startupMs*int64(time.Millisecond))
	p.OnSensorChanged(motion.Accelerometer, 1, 2, 3, startupMs*int64(time.Millisecond))

	p.FlushBuffered()
	if len(l.batches) != 1 {
		t.Fatalf("batches = %d, want 1", len(l.batches))
	}
	if got := len(l.batches[0].Accelerations); got != 1 {
		t.Errorf("batch carries %d samples, want 1 (NaN sample skipped)", got)
	}
}

func TestRemoveListener(t *testing.T) {
	p, l := newTestProcess(800)

	second := &recordingListener{}
	p.AddListener(second)
	p.RemoveListener(l)

	p.OnFixAcquired()
	if l.fixes != 0 {
		t.Error("removed listener still notified")
	}
	if second.fixes != 1 {
		t.Error("remaining listener not notified")
	}
}

func TestBatcherDefaults(t *testing.T) {
	b := NewBatcher(0)
	if b.threshold != MaxBatchSamples {
		t.Errorf("threshold = %d, want %d", b.threshold, MaxBatchSamples)
	}
	if b.Flush() != nil {
		t.Error("empty batcher must flush nil")
	}
}
