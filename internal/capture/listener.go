package capture

import "github.com/ridelog-data/ridelog/internal/motion"

// Listener receives capture events. Callbacks run synchronously on the
// goroutine that delivered the triggering sensor or location event, so
// implementations must not block; hand heavy work off to a background
// executor.
type Listener interface {
	// OnLocationFix is called when the positioning subsystem reports
	// fix acquisition.
	OnLocationFix()

	// OnLocationFixLost is called when the fix is lost. Buffered
	// sensor data is retained across fix loss.
	OnLocationFixLost()

	// OnLocationCaptured is called for every accepted location fix
	// once a fix has been acquired.
	OnLocationCaptured(loc motion.GeoLocation)

	// OnDataCaptured is called with each flushed batch of sensor
	// samples.
	OnDataCaptured(batch *motion.CapturedData)
}
