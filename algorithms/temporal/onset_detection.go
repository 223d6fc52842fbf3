package temporal

import (
	"fmt"

	"github.com/RyanBlaney/beatwizard/algorithms/common"
	"github.com/RyanBlaney/beatwizard/algorithms/spectral"
	"github.com/RyanBlaney/beatwizard/algorithms/windowing"
)

const (
	// DefaultOnsetMelBands is the number of mel bands of the onset spectrogram
	DefaultOnsetMelBands = 40
	onsetTopDB           = 80.0
	onsetAmin            = 1e-10
)

// OnsetEnvelope is an onset strength curve sampled once per hop
type OnsetEnvelope struct {
	Values     []float64
	HopSize    int
	SampleRate int
}

// FrameRate returns envelope frames per second
func (e *OnsetEnvelope) FrameRate() float64 {
	return float64(e.SampleRate) / float64(e.HopSize)
}

// FrameToSeconds converts a (fractional) frame index to seconds
func (e *OnsetEnvelope) FrameToSeconds(frame float64) float64 {
	return frame * float64(e.HopSize) / float64(e.SampleRate)
}

// IsZero reports whether the envelope carries no onset energy at all
func (e *OnsetEnvelope) IsZero() bool {
	for _, v := range e.Values {
		if v > 0 {
			return false
		}
	}
	return true
}

// OnsetDetection computes onset strength envelopes and picks onsets from them
type OnsetDetection struct {
	windowSize   int
	hopSize      int
	numBands     int
	stft         *spectral.STFT
	spectralFlux *spectral.SpectralFlux
}

// NewOnsetDetection creates an onset detector with its own framing
func NewOnsetDetection(windowSize, hopSize int) *OnsetDetection {
	return &OnsetDetection{
		windowSize:   windowSize,
		hopSize:      hopSize,
		numBands:     DefaultOnsetMelBands,
		stft:         spectral.NewSTFT(),
		spectralFlux: spectral.NewSpectralFlux(),
	}
}

// ComputeEnvelope returns the onset strength of signal: the half-wave
// rectified first difference of a log-power mel spectrogram (dB, floored
// 80 dB below its maximum), averaged over mel bands. A gain change shifts
// every dB value equally, so the envelope does not depend on level.
func (od *OnsetDetection) ComputeEnvelope(signal []float64, sampleRate int) (*OnsetEnvelope, error) {
	if len(signal) == 0 {
		return &OnsetEnvelope{HopSize: od.hopSize, SampleRate: sampleRate}, nil
	}

	stftResult, err := od.stft.Compute(signal, od.windowSize, od.hopSize, sampleRate, windowing.NewPeriodicHann(od.windowSize))
	if err != nil {
		return nil, fmt.Errorf("onset stft: %w", err)
	}

	melBank, err := spectral.NewMelFilterBank(od.numBands, od.windowSize, sampleRate, 0, float64(sampleRate)/2)
	if err != nil {
		return nil, fmt.Errorf("onset mel bank: %w", err)
	}

	melPower := melBank.ApplyMagnitudeFrames(stftResult.Magnitude)
	melDB := spectral.PowerToDB(melPower, onsetAmin, onsetTopDB)

	return &OnsetEnvelope{
		Values:     od.spectralFlux.ComputeRectifiedMean(melDB),
		HopSize:    od.hopSize,
		SampleRate: sampleRate,
	}, nil
}

// DetectOnsets picks local maxima of the envelope that reach the adaptive
// threshold and are at least minInterval seconds apart
func (od *OnsetDetection) DetectOnsets(env *OnsetEnvelope, minInterval float64) []int {
	threshold := AdaptiveThreshold(env.Values)
	if threshold <= 0 {
		return []int{}
	}
	minFrames := int(minInterval * env.FrameRate())
	return findFluxPeaks(env.Values, threshold, minFrames)
}

// findFluxPeaks finds peaks in flux/energy difference signals
func findFluxPeaks(flux []float64, threshold float64, minIntervalFrames int) []int {
	peaks := []int{}
	if len(flux) < 3 {
		return peaks
	}

	lastPeakFrame := -minIntervalFrames - 1
	for i := 1; i < len(flux)-1; i++ {
		if flux[i] > flux[i-1] &&
			flux[i] >= flux[i+1] &&
			flux[i] >= threshold &&
			i-lastPeakFrame > minIntervalFrames {
			peaks = append(peaks, i)
			lastPeakFrame = i
		}
	}

	return peaks
}

// AdaptiveThreshold returns mean + 2 standard deviations of values
func AdaptiveThreshold(values []float64) float64 {
	if len(values) == 0 {
		return 0.0
	}
	return common.Mean(values) + 2.0*common.PopStdDev(values)
}
