// Package motion turns consecutive snapshots into smoothly interpolated
// vehicle positions for rendering between poll cycles.
package motion

import (
	"math"
	"time"
)

// Lerp interpolates linearly from a to b. Lerp(a, b, 0) == a and
// Lerp(a, b, 1) == b.
func Lerp(a, b, p float64) float64 {
	if p == 1 {
		return b
	}
	return a + (b-a)*p
}

// InterpolateBearing turns from toward to along the shorter arc. The result
// is in [0, 360).
func InterpolateBearing(from, to, p float64) float64 {
	delta := to - from
	if delta > 180 {
		delta -= 360
	}
	if delta < -180 {
		delta += 360
	}
	return NormalizeBearing(from + delta*p)
}

// NormalizeBearing maps any angle in degrees into [0, 360).
func NormalizeBearing(deg float64) float64 {
	if math.IsNaN(deg) || math.IsInf(deg, 0) {
		return 0
	}
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	if deg >= 360 {
		deg = 0
	}
	return deg
}

// Progress returns elapsed/window clamped to [0, 1]. A non-positive window
// yields 1.
func Progress(elapsed, window time.Duration) float64 {
	if window <= 0 {
		return 1
	}
	p := float64(elapsed) / float64(window)
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}
