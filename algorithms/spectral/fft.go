package spectral

import (
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// FFT wraps go-dsp's real-input transform
type FFT struct{}

// NewFFT creates a new FFT calculator
func NewFFT() *FFT {
	return &FFT{}
}

// Compute computes the Fast Fourier Transform of a real signal.
// go-dsp handles all sizes, including non-power-of-2.
func (f *FFT) Compute(x []float64) []complex128 {
	if len(x) == 0 {
		return []complex128{}
	}
	return fft.FFTReal(x)
}

// MagnitudeInto writes |X_k| for the first len(dst) bins of x's spectrum
func (f *FFT) MagnitudeInto(dst []float64, x []float64) {
	spectrum := f.Compute(x)
	for k := range dst {
		if k < len(spectrum) {
			dst[k] = cmplx.Abs(spectrum[k])
		} else {
			dst[k] = 0
		}
	}
}
