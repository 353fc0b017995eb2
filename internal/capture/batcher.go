package capture

import "github.com/ridelog-data/ridelog/internal/motion"

// MaxBatchSamples bounds how many samples of a single kind may
// accumulate before a flush is forced. The bound keeps any one flushed
// batch below cross-process message payload limits regardless of the
// sensor sampling rate.
const MaxBatchSamples = 800

// Batcher accumulates raw samples per sensor kind and cuts bounded
// batches. A flush is triggered when the largest per-kind pending list
// reaches the threshold; the flushed batch carries all currently
// buffered samples of every kind, even kinds far below the threshold.
//
// Batcher is not safe for concurrent use; the capture process
// serialises access to it.
type Batcher struct {
	threshold int
	pending   motion.CapturedData
}

// NewBatcher creates a Batcher. A non-positive threshold falls back to
// MaxBatchSamples.
func NewBatcher(threshold int) *Batcher {
	if threshold <= 0 {
		threshold = MaxBatchSamples
	}
	return &Batcher{threshold: threshold}
}

// Add appends one 3-axis sample for a point-file kind.
func (b *Batcher) Add(kind motion.SensorKind, p motion.Point3D) {
	switch kind {
	case motion.Accelerometer:
		b.pending.Accelerations = append(b.pending.Accelerations, p)
	case motion.Gyroscope:
		b.pending.Rotations = append(b.pending.Rotations, p)
	case motion.Magnetometer:
		b.pending.Directions = append(b.pending.Directions, p)
	}
}

// AddPressure appends one barometer sample.
func (b *Batcher) AddPressure(s motion.PressureSample) {
	b.pending.Pressures = append(b.pending.Pressures, s)
}

// PendingMax returns the size of the largest per-kind pending list.
func (b *Batcher) PendingMax() int {
	max := len(b.pending.Accelerations)
	for _, n := range []int{len(b.pending.Rotations), len(b.pending.Directions), len(b.pending.Pressures)} {
		if n > max {
			max = n
		}
	}
	return max
}

// ThresholdReached reports whether the largest pending list has
// reached the flush threshold.
func (b *Batcher) ThresholdReached() bool {
	return b.PendingMax() >= b.threshold
}

// Flush cuts a batch containing every buffered sample of every kind
// and clears the pending lists. It returns nil when nothing is
// buffered.
func (b *Batcher) Flush() *motion.CapturedData {
	if b.pending.IsEmpty() {
		return nil
	}
	batch := b.pending
	b.pending = motion.CapturedData{}
	return &batch
}
