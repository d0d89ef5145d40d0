// Package dice provides the randomness abstraction shared by every
// probabilistic draw in the upgrade game.
package dice

import "math"

// PercentScale is the number of discrete steps in one percentage point.
// Percent draws have a resolution of 1/PercentScale of a point.
const PercentScale = 10000

// percentSpan is the exclusive upper bound of a raw percent draw.
const percentSpan = 100 * PercentScale

// Source is the randomness provider for every draw.
//
// Implementations MUST be safe for concurrent use.
type Source interface {
	// Intn returns a non-negative random int in [0, n).
	//
	// Precondition: n > 0.
	Intn(n int) int
}

// Percent draws a uniform value in [0, 100).
//
// Precondition: src must be non-nil.
// Postcondition: 0 <= result < 100.
func Percent(src Source) float64 {
	return float64(src.Intn(percentSpan)) / PercentScale
}

// Chance reports whether a percent draw lands below pct.
// pct <= 0 never fires and pct >= 100 always fires.
//
// Precondition: src must be non-nil.
func Chance(src Source, pct float64) bool {
	return Percent(src) < pct
}

// RawPercent converts a percent value into the raw Intn result that Percent
// maps back to it. Scripted sources use it to steer percent draws.
//
// Precondition: 0 <= pct < 100.
// Postcondition: Percent over a source returning the result yields pct
// rounded to the draw resolution.
func RawPercent(pct float64) int {
	raw := int(math.Round(pct * PercentScale))
	if raw >= percentSpan {
		raw = percentSpan - 1
	}
	return raw
}
