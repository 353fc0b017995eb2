// Package capture fuses asynchronous sensor-sample and location-fix
// streams into time-ordered, bounded-size batches.
//
// The fusion process is a two-state machine: it starts awaiting the
// first location fix and only notifies listeners about captured
// locations once the positioning subsystem has signalled fix
// acquisition. Sensor samples are buffered regardless of fix state and
// flushed either when a captured location arrives (reporting tick) or
// when the batch size bound is hit.
//
// Location fixes served from the OS location cache, including fixes
// shifted whole GPS weeks into the past by the GNSS week-rollover
// firmware bug, are discarded before they reach any listener.
package capture
