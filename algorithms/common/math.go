package common

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Basic statistical functions used across algorithms using gonum for robustness

// Mean calculates the arithmetic mean of a slice using gonum
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return stat.Mean(data, nil)
}

// PopStdDev calculates the population standard deviation (divides by N)
func PopStdDev(data []float64) float64 {
	if len(data) < 2 {
		return 0.0
	}
	_, std := stat.PopMeanStdDev(data, nil)
	return std
}

// StandardDeviation calculates the sample standard deviation
func StandardDeviation(data []float64) float64 {
	if len(data) < 2 {
		return 0.0
	}
	return stat.StdDev(data, nil)
}

// Median returns the median without modifying data
func Median(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)
	return medianOfSorted(sorted)
}

func medianOfSorted(sorted []float64) float64 {
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2.0
	}
	return sorted[mid]
}

// Sum returns the sum of data
func Sum(data []float64) float64 {
	return floats.Sum(data)
}

// Max returns the largest value, 0 for empty input
func Max(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return floats.Max(data)
}

// MedianFilter applies median filtering with given window size.
// The window shrinks at the edges instead of padding.
func MedianFilter(data []float64, windowSize int) []float64 {
	if len(data) == 0 || windowSize <= 0 {
		return data
	}

	result := make([]float64, len(data))
	MedianFilterInto(result, data, windowSize, nil)
	return result
}

// MedianFilterInto writes the median filtered data to dst, reusing scratch
// when it has enough capacity. dst must be at least len(data) long.
func MedianFilterInto(dst, data []float64, windowSize int, scratch []float64) []float64 {
	if windowSize > len(data) {
		windowSize = len(data)
	}
	if cap(scratch) < windowSize {
		scratch = make([]float64, windowSize)
	}

	halfWindow := windowSize / 2
	for i := range data {
		start := max(i-halfWindow, 0)
		end := min(i+halfWindow+1, len(data))

		window := scratch[:end-start]
		copy(window, data[start:end])
		sort.Float64s(window)
		dst[i] = medianOfSorted(window)
	}

	return scratch
}

// ParabolicPeak refines the position of a peak at index i using its
// neighbours. The returned offset lies in [-0.5, 0.5].
func ParabolicPeak(data []float64, i int) float64 {
	if i <= 0 || i >= len(data)-1 {
		return 0
	}
	a, b, c := data[i-1], data[i], data[i+1]
	denom := a - 2*b + c
	if math.Abs(denom) < 1e-12 {
		return 0
	}
	return Clamp(0.5*(a-c)/denom, -0.5, 0.5)
}

// Clamp constrains a value to a range
func Clamp(value, lo, hi float64) float64 {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}

// NextPowerOfTwo finds the next power of 2 >= n
func NextPowerOfTwo(n int) int {
	if n <= 0 {
		return 1
	}

	power := 1
	for power < n {
		power <<= 1
	}
	return power
}
