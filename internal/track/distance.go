package track

import (
	"math"

	"github.com/ridelog-data/ridelog/internal/motion"
)

// DistanceCalculationStrategy computes the distance in metres between
// two fixes. Implementations must be symmetric and non-negative and
// should be accurate to centimetre level for points a few metres
// apart.
type DistanceCalculationStrategy interface {
	Distance(a, b motion.GeoLocation) float64
}

// earthRadiusMeters is the mean earth radius used by the haversine
// formula.
const earthRadiusMeters = 6_371_000.0

// HaversineDistance is the default great-circle distance strategy.
type HaversineDistance struct{}

// Distance returns the great-circle distance between a and b in
// metres.
func (HaversineDistance) Distance(a, b motion.GeoLocation) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	s := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(s), math.Sqrt(1-s))
	return earthRadiusMeters * c
}
