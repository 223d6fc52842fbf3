package common

import "math"

// Epsilon is the small constant added to denominators that may legitimately
// be zero, e.g. the beat interval spread in 1/(std+Epsilon).
const Epsilon = 1e-6

// zeroDenominator is the magnitude below which SafeDivide treats a
// denominator as zero.
const zeroDenominator = 1e-12

// SafeDivide returns num/den, or 0 when den is (numerically) zero or the
// quotient is not finite.
func SafeDivide(num, den float64) float64 {
	if math.Abs(den) < zeroDenominator {
		return 0
	}
	return Finite(num / den)
}

// InverseWithEpsilon returns 1/(x+Epsilon), 0 if that is not finite.
func InverseWithEpsilon(x float64) float64 {
	return Finite(1.0 / (x + Epsilon))
}

// Finite maps NaN and ±Inf to 0.
func Finite(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return x
}
