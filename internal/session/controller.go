// Package session owns one capture session end to end: it wires the
// capture process into the distance accumulator and the persistence
// layer and drives the measurement lifecycle.
package session

import (
	"fmt"
	"sync"

	"github.com/ridelog-data/ridelog/internal/capture"
	"github.com/ridelog-data/ridelog/internal/monitoring"
	"github.com/ridelog-data/ridelog/internal/motion"
	"github.com/ridelog-data/ridelog/internal/persistence"
	"github.com/ridelog-data/ridelog/internal/timeutil"
	"github.com/ridelog-data/ridelog/internal/track"
)

// Config configures a session Controller.
type Config struct {
	// Service is the persistence layer. Required.
	Service *persistence.Service
	// Clock feeds the capture process startup stamp. Defaults to the
	// real clock.
	Clock timeutil.Clock
	// BatchSize overrides the capture flush threshold.
	BatchSize int
	// Cleaner overrides the distance cleaning strategy.
	Cleaner track.LocationCleaningStrategy
	// Calculator overrides the pairwise distance strategy.
	Calculator track.DistanceCalculationStrategy
}

// Controller glues the pipeline together. It registers itself as the
// capture listener: captured batches go to the persistence service,
// captured locations go to both the service (raw) and the accumulator
// (cleaned, for distance).
type Controller struct {
	process *capture.Process
	svc     *persistence.Service
	acc     *track.Accumulator

	mu        sync.Mutex
	current   int64
	recording bool
}

// NewController builds the pipeline and subscribes it to the capture
// process.
func NewController(cfg Config) (*Controller, error) {
	if cfg.Service == nil {
		return nil, fmt.Errorf("session: Service is required")
	}

	c := &Controller{
		svc: cfg.Service,
		process: capture.NewProcess(capture.ProcessConfig{
			Clock:     cfg.Clock,
			BatchSize: cfg.BatchSize,
		}),
	}
	c.acc = track.NewAccumulator(cfg.Cleaner, cfg.Calculator, cfg.Service)
	c.process.AddListener(c)
	return c, nil
}

// Process exposes the capture process so the event feed can deliver
// sensor and location events into it.
func (c *Controller) Process() *capture.Process { return c.process }

// Distance returns the distance accumulated so far in metres.
func (c *Controller) Distance() float64 { return c.acc.Total() }

// Start opens a new measurement and arms the pipeline.
func (c *Controller) Start() (*motion.Measurement, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, err := c.svc.NewMeasurement()
	if err != nil {
		return nil, err
	}
	c.acc.Reset()
	c.current = m.ID
	c.recording = true
	return m, nil
}

// Pause suspends recording without ending the measurement. Events
// arriving while paused are discarded, not buffered.
func (c *Controller) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.svc.Pause(); err != nil {
		return err
	}
	c.recording = false
	return nil
}

// Resume re-arms a paused measurement.
func (c *Controller) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.svc.Resume(); err != nil {
		return err
	}
	c.recording = true
	return nil
}

// Stop flushes the trailing partial batch and finishes the
// measurement. The flush runs before the status flip, so the final
// samples are queued ahead of the writer close.
func (c *Controller) Stop() error {
	// Deliberately outside the lock: the flush calls back into
	// OnDataCaptured, which takes it.
	c.process.FlushBuffered()

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.svc.Finish(); err != nil {
		return err
	}
	c.current = 0
	c.recording = false
	return nil
}

// OnLocationFix implements capture.Listener.
func (c *Controller) OnLocationFix() {
	monitoring.Logf("session: location fix acquired")
}

// OnLocationFixLost implements capture.Listener.
func (c *Controller) OnLocationFixLost() {
	monitoring.Logf("session: location fix lost")
}

// OnLocationCaptured implements capture.Listener. Every accepted fix
// is persisted raw; the accumulator applies its own cleaning before
// it contributes to the distance.
func (c *Controller) OnLocationCaptured(loc motion.GeoLocation) {
	c.mu.Lock()
	id, recording := c.current, c.recording
	c.mu.Unlock()
	if !recording {
		return
	}

	c.svc.StoreLocation(loc, id)
	if err := c.acc.Observe(loc); err != nil {
		monitoring.Logf("session: distance update failed: %v", err)
	}
}

// OnDataCaptured implements capture.Listener.
func (c *Controller) OnDataCaptured(batch *motion.CapturedData) {
	c.mu.Lock()
	id, recording := c.current, c.recording
	c.mu.Unlock()
	if !recording {
		return
	}

	c.svc.StoreData(batch, id, func(err error) {
		if err != nil {
			monitoring.Logf("session: persisting batch for measurement %d failed: %v", id, err)
		}
	})
}
