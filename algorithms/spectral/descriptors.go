package spectral

import (
	"math"

	"github.com/RyanBlaney/beatwizard/algorithms/common"
)

// DefaultRolloffThreshold is the share of frame energy below the rolloff frequency
const DefaultRolloffThreshold = 0.85

// SpectralDescriptors computes the frame-wise shape descriptors of a
// magnitude spectrogram: centroid, rolloff and bandwidth.
type SpectralDescriptors struct {
	freqs            []float64
	rolloffThreshold float64
}

// DescriptorFrames holds one value per STFT frame for every descriptor
type DescriptorFrames struct {
	Centroid  []float64
	Rolloff   []float64
	Bandwidth []float64
}

// NewSpectralDescriptors creates a calculator for spectrograms shaped like stft
func NewSpectralDescriptors(stft *STFTResult) *SpectralDescriptors {
	return &SpectralDescriptors{
		freqs:            stft.Frequencies(),
		rolloffThreshold: DefaultRolloffThreshold,
	}
}

// WithRolloffThreshold overrides the rolloff energy share (0, 1]
func (sd *SpectralDescriptors) WithRolloffThreshold(threshold float64) *SpectralDescriptors {
	if threshold > 0 && threshold <= 1 {
		sd.rolloffThreshold = threshold
	}
	return sd
}

// Centroid returns the magnitude-weighted mean frequency of a frame, 0 for silence
func (sd *SpectralDescriptors) Centroid(spectrum []float64) float64 {
	numerator := 0.0
	denominator := 0.0
	for i, mag := range spectrum {
		numerator += sd.freqs[i] * mag
		denominator += mag
	}
	return common.SafeDivide(numerator, denominator)
}

// Rolloff returns the frequency below which the threshold share of the
// frame's power lies, 0 for silence
func (sd *SpectralDescriptors) Rolloff(spectrum []float64) float64 {
	total := 0.0
	for _, mag := range spectrum {
		total += mag * mag
	}
	if total == 0 {
		return 0
	}

	target := sd.rolloffThreshold * total
	cumulative := 0.0
	for i, mag := range spectrum {
		cumulative += mag * mag
		if cumulative >= target {
			return sd.freqs[i]
		}
	}
	return sd.freqs[len(spectrum)-1]
}

// Bandwidth returns the magnitude-weighted standard deviation of frequency
// around centroid, 0 for silence
func (sd *SpectralDescriptors) Bandwidth(spectrum []float64, centroid float64) float64 {
	numerator := 0.0
	denominator := 0.0
	for i, mag := range spectrum {
		diff := sd.freqs[i] - centroid
		numerator += diff * diff * mag
		denominator += mag
	}
	return math.Sqrt(math.Max(common.SafeDivide(numerator, denominator), 0))
}

// ComputeFrames evaluates all descriptors for every frame
func (sd *SpectralDescriptors) ComputeFrames(spectrogram [][]float64) DescriptorFrames {
	out := DescriptorFrames{
		Centroid:  make([]float64, len(spectrogram)),
		Rolloff:   make([]float64, len(spectrogram)),
		Bandwidth: make([]float64, len(spectrogram)),
	}

	for t, spectrum := range spectrogram {
		centroid := sd.Centroid(spectrum)
		out.Centroid[t] = centroid
		out.Rolloff[t] = sd.Rolloff(spectrum)
		out.Bandwidth[t] = sd.Bandwidth(spectrum, centroid)
	}

	return out
}
