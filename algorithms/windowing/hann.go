package windowing

import (
	"fmt"
	"math"
)

// Hann is a raised cosine window with cached coefficients.
// The periodic form (symmetric=false) is the one used for spectral analysis.
type Hann struct {
	symmetric    bool
	coefficients []float64
}

// NewHann creates a new Hann window
func NewHann(size int, symmetric bool) *Hann {
	h := &Hann{symmetric: symmetric}
	h.coefficients = make([]float64, size)

	denominator := float64(size)
	if symmetric && size > 1 {
		denominator = float64(size - 1)
	}
	for i := range size {
		h.coefficients[i] = 0.5 * (1.0 - math.Cos(2*math.Pi*float64(i)/denominator))
	}
	return h
}

// NewPeriodicHann creates the periodic Hann window of the given size
func NewPeriodicHann(size int) *Hann {
	return NewHann(size, false)
}

// ApplyInPlace applies the window to a frame in-place
func (h *Hann) ApplyInPlace(frame []float64) error {
	if len(frame) != len(h.coefficients) {
		return fmt.Errorf("frame length (%d) doesn't match window size (%d)", len(frame), len(h.coefficients))
	}

	for i, c := range h.coefficients {
		frame[i] *= c
	}
	return nil
}

// ApplyTo writes the windowed samples of src into dst, zero-padding when src
// is shorter than the window. dst must have the window's length.
func (h *Hann) ApplyTo(dst, src []float64) error {
	if len(dst) != len(h.coefficients) {
		return fmt.Errorf("destination length (%d) doesn't match window size (%d)", len(dst), len(h.coefficients))
	}

	n := copy(dst, src)
	clear(dst[n:])
	return h.ApplyInPlace(dst)
}

// Coefficients returns a copy of the window coefficients
func (h *Hann) Coefficients() []float64 {
	coeffs := make([]float64, len(h.coefficients))
	copy(coeffs, h.coefficients)
	return coeffs
}

// Size returns the window size
func (h *Hann) Size() int {
	return len(h.coefficients)
}
