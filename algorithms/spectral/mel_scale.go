package spectral

import (
	"fmt"
	"math"
)

// HzToMel converts frequency in Hz to mel scale
func HzToMel(hz float64) float64 {
	return 2595.0 * math.Log10(1.0+hz/700.0)
}

// MelToHz converts mel scale to frequency in Hz
func MelToHz(mel float64) float64 {
	return 700.0 * (math.Pow(10.0, mel/2595.0) - 1.0)
}

// MelFilterBank is a bank of triangular filters equally spaced on the mel
// scale, built once for a given FFT size and applied to power spectra
type MelFilterBank struct {
	filters [][]float64
	numBins int
}

// NewMelFilterBank creates numFilters triangular filters between lowFreq and
// highFreq for spectra of fftSize/2+1 bins
func NewMelFilterBank(numFilters, fftSize, sampleRate int, lowFreq, highFreq float64) (*MelFilterBank, error) {
	if numFilters <= 0 || fftSize <= 0 || sampleRate <= 0 {
		return nil, fmt.Errorf("invalid mel filter bank parameters: filters=%d fft=%d rate=%d",
			numFilters, fftSize, sampleRate)
	}
	if highFreq <= 0 || highFreq > float64(sampleRate)/2 {
		highFreq = float64(sampleRate) / 2
	}
	if lowFreq < 0 || lowFreq >= highFreq {
		lowFreq = 0
	}

	numBins := fftSize/2 + 1

	lowMel := HzToMel(lowFreq)
	melStep := (HzToMel(highFreq) - lowMel) / float64(numFilters+1)

	binPoints := make([]int, numFilters+2)
	for i := range binPoints {
		hz := MelToHz(lowMel + float64(i)*melStep)
		bin := int(math.Floor((float64(fftSize)+1.0)*hz/float64(sampleRate) + 0.5))
		binPoints[i] = min(bin, fftSize/2)
	}

	filters := make([][]float64, numFilters)
	for m := range filters {
		filter := make([]float64, numBins)
		left, center, right := binPoints[m], binPoints[m+1], binPoints[m+2]

		for k := left; k < center; k++ {
			filter[k] = float64(k-left) / float64(center-left)
		}
		for k := center; k < right; k++ {
			filter[k] = float64(right-k) / float64(right-center)
		}
		filters[m] = filter
	}

	return &MelFilterBank{filters: filters, numBins: numBins}, nil
}

// NumFilters returns the number of mel bands
func (fb *MelFilterBank) NumFilters() int {
	return len(fb.filters)
}

// Apply returns the mel band energies of a power spectrum
func (fb *MelFilterBank) Apply(power []float64) []float64 {
	mel := make([]float64, len(fb.filters))
	for i, filter := range fb.filters {
		sum := 0.0
		for k := 0; k < len(filter) && k < len(power); k++ {
			sum += power[k] * filter[k]
		}
		mel[i] = sum
	}
	return mel
}

// ApplyMagnitudeFrames converts every magnitude frame to power and applies the bank
func (fb *MelFilterBank) ApplyMagnitudeFrames(spectrogram [][]float64) [][]float64 {
	out := make([][]float64, len(spectrogram))
	power := make([]float64, fb.numBins)
	for t, frame := range spectrogram {
		PowerInto(power, frame)
		out[t] = fb.Apply(power)
	}
	return out
}
