package features

import (
	"fmt"
	"math"

	"github.com/RyanBlaney/beatwizard/algorithms/common"
	"github.com/RyanBlaney/beatwizard/algorithms/harmonic"
)

// Config holds extraction configuration
type Config struct {
	SampleRate int `json:"sample_rate"`
	// WindowSize and HopSize default to values derived from the sample rate
	// when 0
	WindowSize       int     `json:"window_size"`
	HopSize          int     `json:"hop_size"`
	Parallel         bool    `json:"parallel"`
	HPSSKernelSize   int     `json:"hpss_kernel_size"`
	NumMFCC          int     `json:"num_mfcc"`
	RolloffThreshold float64 `json:"rolloff_threshold"`
	ContrastBands    int     `json:"contrast_bands"`
	SilenceThreshold float64 `json:"silence_threshold"` // frame RMS below which a signal counts as silent
	EstimateKey      bool    `json:"estimate_key"`
}

// DefaultConfig returns the default extraction configuration
func DefaultConfig() Config {
	return Config{
		SampleRate:       22050,
		Parallel:         true,
		HPSSKernelSize:   harmonic.DefaultKernelSize,
		NumMFCC:          13,
		RolloffThreshold: 0.85,
		ContrastBands:    6,
		SilenceThreshold: 1e-4,
		EstimateKey:      true,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive: %d", c.SampleRate)
	}
	if c.WindowSize < 0 || c.HopSize < 0 {
		return fmt.Errorf("window and hop sizes must not be negative: %d/%d", c.WindowSize, c.HopSize)
	}
	if c.HopSize > 0 && c.WindowSize > 0 && c.HopSize > c.WindowSize {
		return fmt.Errorf("hop size %d exceeds window size %d", c.HopSize, c.WindowSize)
	}
	if c.NumMFCC != 0 && c.NumMFCC < 5 {
		return fmt.Errorf("at least 5 MFCCs are required, got %d", c.NumMFCC)
	}
	if c.RolloffThreshold < 0 || c.RolloffThreshold > 1 {
		return fmt.Errorf("rolloff threshold must be in [0, 1]: %v", c.RolloffThreshold)
	}
	return nil
}

// FrameSizes returns the STFT window and hop. The defaults scale 2048/512
// at 22050 Hz to the configured rate, rounded to a power of two.
func (c Config) FrameSizes() (int, int) {
	window := c.WindowSize
	if window <= 0 {
		window = common.NextPowerOfTwo(int(math.Round(float64(c.SampleRate) * 2048 / 22050)))
	}
	hop := c.HopSize
	if hop <= 0 {
		hop = window / 4
	}
	return window, hop
}
