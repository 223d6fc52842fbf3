package temporal

import (
	"math"

	"github.com/RyanBlaney/beatwizard/algorithms/spectral"
)

// Envelope provides amplitude envelope extraction
type Envelope struct{}

// NewEnvelope creates a new envelope extractor
func NewEnvelope() *Envelope {
	return &Envelope{}
}

// ComputeRMS computes the RMS of every frame. Frames are laid out like the
// STFT: a signal shorter than one frame gives a single zero-padded frame.
func (e *Envelope) ComputeRMS(signal []float64, frameSize, hopSize int) []float64 {
	if len(signal) == 0 || frameSize <= 0 || hopSize <= 0 {
		return []float64{}
	}

	numFrames := spectral.FrameCount(len(signal), frameSize, hopSize)
	envelope := make([]float64, numFrames)

	for i := range numFrames {
		start := i * hopSize
		end := min(start+frameSize, len(signal))

		sumSquares := 0.0
		for _, x := range signal[start:end] {
			sumSquares += x * x
		}
		envelope[i] = math.Sqrt(sumSquares / float64(frameSize))
	}

	return envelope
}

// ComputeGaussianSmoothed convolves the envelope with a normalized Gaussian
// of standard deviation sigma frames, truncated at ±3 sigma
func (e *Envelope) ComputeGaussianSmoothed(envelope []float64, sigma float64) []float64 {
	if len(envelope) == 0 || sigma <= 0 {
		return envelope
	}

	half := int(math.Ceil(3 * sigma))
	kernel := make([]float64, 2*half+1)
	kernelSum := 0.0
	for i := range kernel {
		x := float64(i-half) / sigma
		kernel[i] = math.Exp(-0.5 * x * x)
		kernelSum += kernel[i]
	}

	smoothed := make([]float64, len(envelope))
	for i := range envelope {
		sum := 0.0
		for k, w := range kernel {
			j := i + k - half
			if j >= 0 && j < len(envelope) {
				sum += w * envelope[j]
			}
		}
		smoothed[i] = sum / kernelSum
	}

	return smoothed
}
