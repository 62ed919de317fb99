package eta

import "math"

// DefaultSpeedKmh is the assumed average city speed when none is configured.
const DefaultSpeedKmh = 30.0

// Minutes estimates the time for a driver to cover distanceKm at avgSpeedKmh,
// rounded to the nearest whole minute.
func Minutes(distanceKm, avgSpeedKmh float64) int {
	if avgSpeedKmh <= 0 {
		avgSpeedKmh = DefaultSpeedKmh
	}
	if distanceKm <= 0 {
		return 0
	}
	return int(math.Round(distanceKm / avgSpeedKmh * 60))
}
