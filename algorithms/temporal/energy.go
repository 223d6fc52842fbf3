package temporal

import (
	"github.com/RyanBlaney/beatwizard/algorithms/common"
)

// Energy summarizes the short-time RMS energy of a signal
type Energy struct {
	frameSize int
	hopSize   int
	envelope  *Envelope
}

// EnergyStats holds the frame RMS values and their distribution
type EnergyStats struct {
	Frames []float64
	Mean   float64
	Std    float64 // population standard deviation
}

// NewEnergy creates a new energy analyzer
func NewEnergy(frameSize, hopSize int) *Energy {
	return &Energy{
		frameSize: frameSize,
		hopSize:   hopSize,
		envelope:  NewEnvelope(),
	}
}

// Compute returns the mean and population standard deviation of the frame
// RMS values. Both scale linearly with the signal amplitude.
func (e *Energy) Compute(signal []float64) EnergyStats {
	frames := e.envelope.ComputeRMS(signal, e.frameSize, e.hopSize)
	return EnergyStats{
		Frames: frames,
		Mean:   common.Mean(frames),
		Std:    common.PopStdDev(frames),
	}
}

// IsSilent reports whether every frame is below threshold
func (s EnergyStats) IsSilent(threshold float64) bool {
	for _, v := range s.Frames {
		if v > threshold {
			return false
		}
	}
	return true
}
