package transcode

import (
	"fmt"
	"time"

	"github.com/RyanBlaney/beatwizard/algorithms/common"
)

// Waveform is decoded audio ready for analysis. Samples is the mono view;
// Left and Right are kept only for stereo sources. A waveform is never
// mutated after construction.
type Waveform struct {
	Samples    []float64 `json:"-"`
	Left       []float64 `json:"-"`
	Right      []float64 `json:"-"`
	SampleRate int       `json:"sample_rate"`
	Channels   int       `json:"channels"`
}

// WaveformInfo summarizes a waveform for serialization
type WaveformInfo struct {
	SampleRate      int     `json:"sample_rate"`
	Channels        int     `json:"channels"`
	Samples         int     `json:"samples"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// NewWaveform creates a mono waveform. Samples are clamped to [-1, 1].
func NewWaveform(samples []float64, sampleRate int) (*Waveform, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %d", sampleRate)
	}
	return &Waveform{
		Samples:    clampAll(samples),
		SampleRate: sampleRate,
		Channels:   1,
	}, nil
}

// NewStereoWaveform creates a stereo waveform whose mono view is the
// per-sample mean of both channels
func NewStereoWaveform(left, right []float64, sampleRate int) (*Waveform, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %d", sampleRate)
	}
	if len(left) != len(right) {
		return nil, fmt.Errorf("channel length mismatch: left=%d right=%d", len(left), len(right))
	}

	left = clampAll(left)
	right = clampAll(right)
	mono := make([]float64, len(left))
	for i := range mono {
		mono[i] = (left[i] + right[i]) / 2
	}

	return &Waveform{
		Samples:    mono,
		Left:       left,
		Right:      right,
		SampleRate: sampleRate,
		Channels:   2,
	}, nil
}

// IsStereo reports whether both channels are available
func (w *Waveform) IsStereo() bool {
	return w.Channels == 2 && w.Left != nil && w.Right != nil
}

// Duration returns the length of the waveform in seconds
func (w *Waveform) Duration() float64 {
	if w.SampleRate <= 0 {
		return 0
	}
	return float64(len(w.Samples)) / float64(w.SampleRate)
}

// Info returns the serializable summary of the waveform
func (w *Waveform) Info() WaveformInfo {
	return WaveformInfo{
		SampleRate:      w.SampleRate,
		Channels:        w.Channels,
		Samples:         len(w.Samples),
		DurationSeconds: w.Duration(),
	}
}

// TimeDuration returns Duration as a time.Duration
func (w *Waveform) TimeDuration() time.Duration {
	return time.Duration(w.Duration() * float64(time.Second))
}

// Resample returns a copy of the waveform at targetRate. The input is
// returned unchanged when the rates already match.
func Resample(w *Waveform, targetRate int) (*Waveform, error) {
	if w == nil {
		return nil, fmt.Errorf("nil waveform")
	}
	if targetRate <= 0 {
		return nil, fmt.Errorf("invalid target sample rate: %d", targetRate)
	}
	if w.SampleRate == targetRate {
		return w, nil
	}

	interp := common.NewInterpolator(common.Linear)
	out := &Waveform{
		Samples:    interp.ResampleSignal(w.Samples, w.SampleRate, targetRate),
		SampleRate: targetRate,
		Channels:   w.Channels,
	}
	if w.IsStereo() {
		out.Left = interp.ResampleSignal(w.Left, w.SampleRate, targetRate)
		out.Right = interp.ResampleSignal(w.Right, w.SampleRate, targetRate)
	}
	return out, nil
}

func clampAll(samples []float64) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = common.Clamp(s, -1, 1)
	}
	return out
}
