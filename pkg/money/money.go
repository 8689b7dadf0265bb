// Package money holds the rounding used for every rupee amount the service
// computes.
package money

import "math"

// Round2 rounds to two decimals, halves away from zero. A tiny epsilon
// absorbs binary representation error so 1.005 rounds to 1.01.
func Round2(v float64) float64 {
	if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	const eps = 1e-9
	if v > 0 {
		return math.Floor(v*100+0.5+eps) / 100
	}
	return -math.Floor(-v*100+0.5+eps) / 100
}

// Percent returns pct percent of v, rounded.
func Percent(v, pct float64) float64 {
	return Round2(v * pct / 100)
}
