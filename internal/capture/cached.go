package capture

const (
	// GPSWeekMs is one GPS week in milliseconds. Some GNSS chipsets
	// suffering from the week-rollover bug serve cached fixes with
	// timestamps shifted back by exactly one or more GPS weeks.
	GPSWeekMs = 604_800_000

	// cachedFixToleranceMs bounds how far a fix may predate the
	// capture startup and still be recognised as served from the OS
	// location cache at listener registration time.
	cachedFixToleranceMs = 1_000
)

// IsCachedLocation reports whether a fix timestamp identifies a stale
// value served from the OS location cache rather than a fresh reading.
// Two patterns are recognised: fixes immediately predating the capture
// startup (handed out at listener registration), and fixes more than
// one GPS week old (week-rollover bug). Fixes at or after startup are
// always fresh.
func IsCachedLocation(locationTimeMs, startupTimeMs int64) bool {
	age := startupTimeMs - locationTimeMs
	if age <= 0 {
		return false
	}
	return age <= cachedFixToleranceMs || age > GPSWeekMs
}
