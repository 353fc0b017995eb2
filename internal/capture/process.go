package capture

import (
	"math"
	"sync"
	"time"

	"github.com/ridelog-data/ridelog/internal/monitoring"
	"github.com/ridelog-data/ridelog/internal/motion"
	"github.com/ridelog-data/ridelog/internal/timeutil"
)

// ProcessConfig configures a capture Process.
type ProcessConfig struct {
	// Clock supplies the startup timestamp used for cached-fix
	// detection. Defaults to the real clock.
	Clock timeutil.Clock
	// BatchSize overrides the flush threshold. Defaults to
	// MaxBatchSamples.
	BatchSize int
}

// Process is the fusion state machine. It merges an unbounded
// location-fix stream, up to three independently-rated sensor streams
// and device fix-status events into listener callbacks.
//
// All event methods are safe for concurrent use; callbacks are
// dispatched synchronously on the goroutine delivering the event.
type Process struct {
	clock     timeutil.Clock
	startedAt time.Time
	// startupTimeMs anchors the cached-fix filter.
	startupTimeMs int64

	mu        sync.Mutex
	listeners []Listener
	buf       *Batcher
	hasFix    bool
}

// NewProcess creates a Process and stamps its startup time.
func NewProcess(cfg ProcessConfig) *Process {
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	now := clock.Now()
	return &Process{
		clock:         clock,
		startedAt:     now,
		startupTimeMs: now.UnixMilli(),
		buf:           NewBatcher(cfg.BatchSize),
	}
}

// AddListener registers a listener. Listeners may be added and removed
// between capture sessions; the fusion logic itself never mutates the
// registry.
func (p *Process) AddListener(l Listener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, l)
}

// RemoveListener unregisters a previously added listener.
func (p *Process) RemoveListener(l Listener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, existing := range p.listeners {
		if existing == l {
			p.listeners = append(p.listeners[:i], p.listeners[i+1:]...)
			return
		}
	}
}

// StartupTimeMs returns the startup timestamp in Unix milliseconds.
func (p *Process) StartupTimeMs() int64 { return p.startupTimeMs }

// Elapsed returns the wall time since the process was created.
func (p *Process) Elapsed() time.Duration { return p.clock.Since(p.startedAt) }

// HasFix reports whether a location fix is currently acquired.
func (p *Process) HasFix() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasFix
}

// OnFixAcquired handles the device-status event signalling that a
// location fix was acquired.
func (p *Process) OnFixAcquired() {
	p.mu.Lock()
	p.hasFix = true
	listeners := p.snapshotLocked()
	p.mu.Unlock()

	for _, l := range listeners {
		l.OnLocationFix()
	}
}

// OnFixLost handles loss of the location fix. Already buffered sensor
// data is retained.
func (p *Process) OnFixLost() {
	p.mu.Lock()
	p.hasFix = false
	listeners := p.snapshotLocked()
	p.mu.Unlock()

	for _, l := range listeners {
		l.OnLocationFixLost()
	}
}

// OnSensorChanged handles one 3-axis sensor sample. The hardware
// timestamp arrives in nanoseconds and is normalised to milliseconds
// here, at the ingestion boundary. For Barometer events the pressure
// value in hPa travels in x; y and z are ignored.
//
// Malformed samples (non-finite values) are skipped silently so a
// single bad reading cannot abort the stream.
func (p *Process) OnSensorChanged(kind motion.SensorKind, x, y, z float32, timestampNs int64) {
	if !finite(x) || !finite(y) || !finite(z) {
		monitoring.Debugf("capture: skipping malformed %s sample", kind)
		return
	}
	timestampMs := timestampNs / int64(time.Millisecond)

	p.mu.Lock()
	if kind == motion.Barometer {
		p.buf.AddPressure(motion.PressureSample{TimestampMs: timestampMs, Value: float64(x)})
	} else {
		p.buf.Add(kind, motion.Point3D{TimestampMs: timestampMs, X: x, Y: y, Z: z})
	}

	var flushed *motion.CapturedData
	if p.buf.ThresholdReached() {
		flushed = p.buf.Flush()
	}
	listeners := p.snapshotLocked()
	p.mu.Unlock()

	if flushed != nil {
		for _, l := range listeners {
			l.OnDataCaptured(flushed)
		}
	}
}

// OnLocationChanged handles one raw location fix. Cached fixes are
// discarded silently. While no fix is acquired the event neither
// flushes the buffer nor notifies listeners; once a fix is acquired
// every accepted location cuts the current batch (reporting tick) and
// is announced to listeners.
func (p *Process) OnLocationChanged(loc motion.GeoLocation) {
	if IsCachedLocation(loc.TimestampMs, p.startupTimeMs) {
		monitoring.Debugf("capture: dropping cached fix ts=%d startup=%d", loc.TimestampMs, p.startupTimeMs)
		return
	}
	if math.IsNaN(loc.Latitude) || math.IsNaN(loc.Longitude) {
		monitoring.Debugf("capture: skipping malformed fix ts=%d", loc.TimestampMs)
		return
	}

	p.mu.Lock()
	if !p.hasFix {
		p.mu.Unlock()
		return
	}
	flushed := p.buf.Flush()
	listeners := p.snapshotLocked()
	p.mu.Unlock()

	if flushed != nil {
		for _, l := range listeners {
			l.OnDataCaptured(flushed)
		}
	}
	for _, l := range listeners {
		l.OnLocationCaptured(loc)
	}
}

// FlushBuffered cuts whatever is buffered below the threshold and
// announces it. Called at measurement end so no trailing samples are
// lost.
func (p *Process) FlushBuffered() {
	p.mu.Lock()
	flushed := p.buf.Flush()
	listeners := p.snapshotLocked()
	p.mu.Unlock()

	if flushed != nil {
		for _, l := range listeners {
			l.OnDataCaptured(flushed)
		}
	}
}

func (p *Process) snapshotLocked() []Listener {
	out := make([]Listener, len(p.listeners))
	copy(out, p.listeners)
	return out
}

func finite(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
