package temporal

import (
	"math"

	"github.com/RyanBlaney/beatwizard/algorithms/common"
)

// TempoEstimation estimates the dominant tempo of an onset envelope from
// its autocorrelation, weighted by a log-normal prior over BPM
type TempoEstimation struct {
	MinBPM       float64
	MaxBPM       float64
	PriorBPM     float64
	PriorOctaves float64 // standard deviation of the prior in octaves
}

// TempoResult holds the estimated tempo. A zero BPM means no periodicity
// was found.
type TempoResult struct {
	BPM             float64
	PeriodFrames    float64   // beat period in envelope frames
	Autocorrelation []float64 // normalized so that lag 0 is 1
}

// NewTempoEstimation creates a tempo estimator searching 40-240 BPM with
// a prior centered on 120 BPM
func NewTempoEstimation() *TempoEstimation {
	return &TempoEstimation{
		MinBPM:       40,
		MaxBPM:       240,
		PriorBPM:     120,
		PriorOctaves: 1,
	}
}

// Estimate returns the tempo of env
func (te *TempoEstimation) Estimate(env *OnsetEnvelope) TempoResult {
	if env == nil || len(env.Values) < 3 || env.IsZero() {
		return TempoResult{}
	}

	frameRate := env.FrameRate()
	minLag := max(int(math.Floor(60*frameRate/te.MaxBPM)), 1)
	maxLag := min(int(math.Ceil(60*frameRate/te.MinBPM)), len(env.Values)-2)
	if maxLag < minLag {
		return TempoResult{}
	}

	autocorr := calculateAutocorrelation(env.Values, maxLag+2)
	if autocorr == nil {
		return TempoResult{}
	}

	bestLag := 0
	bestScore := 0.0
	for lag := minLag; lag <= maxLag; lag++ {
		if autocorr[lag] <= 0 {
			continue
		}
		score := autocorr[lag] * te.prior(60*frameRate/float64(lag))
		if score > bestScore {
			bestScore = score
			bestLag = lag
		}
	}

	if bestLag == 0 {
		return TempoResult{Autocorrelation: autocorr}
	}

	period := float64(bestLag) + common.ParabolicPeak(autocorr, bestLag)
	return TempoResult{
		BPM:             60 * frameRate / period,
		PeriodFrames:    period,
		Autocorrelation: autocorr,
	}
}

func (te *TempoEstimation) prior(bpm float64) float64 {
	x := math.Log2(bpm/te.PriorBPM) / te.PriorOctaves
	return math.Exp(-0.5 * x * x)
}

// calculateAutocorrelation returns the autocorrelation of the mean-removed
// signal for lags [0, maxLag), normalized by lag 0. It returns nil for a
// constant signal.
func calculateAutocorrelation(signal []float64, maxLag int) []float64 {
	maxLag = min(maxLag, len(signal))
	mean := common.Mean(signal)

	centered := make([]float64, len(signal))
	for i, v := range signal {
		centered[i] = v - mean
	}

	autocorr := make([]float64, maxLag)
	for lag := range maxLag {
		sum := 0.0
		for i := 0; i < len(centered)-lag; i++ {
			sum += centered[i] * centered[i+lag]
		}
		autocorr[lag] = sum
	}

	if autocorr[0] <= 0 {
		return nil
	}
	norm := autocorr[0]
	for i := range autocorr {
		autocorr[i] /= norm
	}
	return autocorr
}

// ClassifyTempoCategory returns a coarse tempo label
func ClassifyTempoCategory(tempo float64) string {
	switch {
	case tempo <= 0:
		return "none"
	case tempo < 70:
		return "slow"
	case tempo < 110:
		return "moderate"
	case tempo < 140:
		return "fast"
	default:
		return "very_fast"
	}
}
