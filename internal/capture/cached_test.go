package capture

import "testing"

func TestIsCachedLocationBoundaries(t *testing.T) {
	const startup = int64(1_700_000_000_000)

	cases := []struct {
		name       string
		locationTs int64
		want       bool
	}{
		{"just after startup", startup + 1, false},
		{"exactly at startup", startup, false},
		{"just before startup", startup - 1, true},
		{"one ms inside the week", startup - GPSWeekMs + 1, false},
		{"one ms beyond the week", startup - GPSWeekMs - 1, true},
		{"exactly two weeks old", startup - 2*GPSWeekMs, true},
		{"far in the future", startup + GPSWeekMs, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := IsCachedLocation(c.locationTs, startup); got != c.want {
				t.Errorf("IsCachedLocation(%d, %d) = %v, want %v", c.locationTs, startup, got, c.want)
			}
		})
	}
}
