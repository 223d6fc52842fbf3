package temporal

import (
	"fmt"
	"math"

	"github.com/RyanBlaney/beatwizard/algorithms/common"
)

// RhythmConfig controls the rhythm descriptors
type RhythmConfig struct {
	WindowSize             int     `json:"window_size"`              // onset framing window in samples
	HopSize                int     `json:"hop_size"`                 // onset framing hop in samples
	BeatsPerBar            int     `json:"beats_per_bar"`            // bar length for section changes
	FallbackBarSeconds     float64 `json:"fallback_bar_seconds"`     // bar length when no tempo is found
	SyncopationTolerance   float64 `json:"syncopation_tolerance"`    // on-beat distance as a share of the period
	SectionChangeThreshold float64 `json:"section_change_threshold"` // bar-to-bar change as a share of the mean envelope
	MinOnsetInterval       float64 `json:"min_onset_interval"`       // seconds between picked onsets
}

// DefaultRhythmConfig returns the rhythm configuration for the given onset framing
func DefaultRhythmConfig(windowSize, hopSize int) RhythmConfig {
	return RhythmConfig{
		WindowSize:             windowSize,
		HopSize:                hopSize,
		BeatsPerBar:            4,
		FallbackBarSeconds:     2.0,
		SyncopationTolerance:   0.15,
		SectionChangeThreshold: 0.5,
		MinOnsetInterval:       0.05,
	}
}

// RhythmFeatures holds the rhythm descriptors of a signal
type RhythmFeatures struct {
	Tempo               float64   `json:"tempo"`
	RhythmDensity       float64   `json:"rhythm_density"`
	BeatConsistency     float64   `json:"beat_consistency"`
	SyncopationScore    float64   `json:"syncopation_score"`
	GrooveStrength      float64   `json:"groove_strength"`
	AverageBeatStrength float64   `json:"average_beat_strength"`
	RhythmicRegularity  float64   `json:"rhythmic_regularity"`
	SectionChanges      float64   `json:"section_changes"`
	BeatTimes           []float64 `json:"beat_times"`
}

// RhythmAnalyzer derives tempo, beats and rhythm descriptors from the onset
// strength envelope. Every descriptor depends on the envelope only, so all
// of them are independent of the signal level.
type RhythmAnalyzer struct {
	config  RhythmConfig
	onsets  *OnsetDetection
	tempo   *TempoEstimation
	tracker *BeatTracker
}

// NewRhythmAnalyzer creates a rhythm analyzer
func NewRhythmAnalyzer(config RhythmConfig) *RhythmAnalyzer {
	return &RhythmAnalyzer{
		config:  config,
		onsets:  NewOnsetDetection(config.WindowSize, config.HopSize),
		tempo:   NewTempoEstimation(),
		tracker: NewBeatTracker(),
	}
}

// Analyze computes the rhythm descriptors of a mono signal
func (ra *RhythmAnalyzer) Analyze(signal []float64, sampleRate int) (*RhythmFeatures, error) {
	if ra.config.WindowSize <= 0 || ra.config.HopSize <= 0 {
		return nil, fmt.Errorf("invalid onset framing: window=%d hop=%d", ra.config.WindowSize, ra.config.HopSize)
	}

	env, err := ra.onsets.ComputeEnvelope(signal, sampleRate)
	if err != nil {
		return nil, fmt.Errorf("onset envelope: %w", err)
	}

	features := &RhythmFeatures{
		RhythmDensity: common.Mean(env.Values),
		BeatTimes:     []float64{},
	}
	if env.IsZero() {
		return features, nil
	}

	tempo := ra.tempo.Estimate(env)
	features.Tempo = tempo.BPM

	beats := ra.tracker.Track(env, tempo.PeriodFrames)
	for _, b := range beats {
		features.BeatTimes = append(features.BeatTimes, env.FrameToSeconds(float64(b)))
	}

	intervals := beatIntervals(features.BeatTimes)
	if len(intervals) > 0 {
		features.BeatConsistency = common.InverseWithEpsilon(common.PopStdDev(intervals))
		cv := common.SafeDivide(common.PopStdDev(intervals), common.Mean(intervals))
		features.RhythmicRegularity = 1.0 / (1.0 + cv)
	}

	features.AverageBeatStrength = averageAt(env.Values, beats)
	features.SyncopationScore = ra.syncopation(env, beats, tempo.PeriodFrames)
	features.GrooveStrength = groove(tempo)
	features.SectionChanges = float64(ra.sectionChanges(env, tempo.PeriodFrames))

	return features, nil
}

// syncopation returns the share of picked onset strength that lies farther
// than the tolerance from every beat
func (ra *RhythmAnalyzer) syncopation(env *OnsetEnvelope, beats []int, period float64) float64 {
	if len(beats) == 0 || period <= 0 {
		return 0
	}

	tolerance := ra.config.SyncopationTolerance * period
	total, offBeat := 0.0, 0.0
	for _, onset := range ra.onsets.DetectOnsets(env, ra.config.MinOnsetInterval) {
		strength := env.Values[onset]
		total += strength

		nearest := math.Inf(1)
		for _, b := range beats {
			nearest = math.Min(nearest, math.Abs(float64(onset-b)))
		}
		if nearest > tolerance {
			offBeat += strength
		}
	}

	return common.Clamp(common.SafeDivide(offBeat, total), 0, 1)
}

// groove is the normalized envelope autocorrelation at the beat period
func groove(tempo TempoResult) float64 {
	if tempo.PeriodFrames <= 0 || len(tempo.Autocorrelation) == 0 {
		return 0
	}
	lag := min(int(math.Round(tempo.PeriodFrames)), len(tempo.Autocorrelation)-1)
	return common.Clamp(tempo.Autocorrelation[lag], 0, 1)
}

// sectionChanges averages the envelope per bar and counts consecutive bars
// whose means differ by more than the threshold share of the overall mean.
// A trailing partial bar counts only if it covers at least half a bar.
func (ra *RhythmAnalyzer) sectionChanges(env *OnsetEnvelope, period float64) int {
	barFrames := float64(ra.config.BeatsPerBar) * period
	if period <= 0 || ra.config.BeatsPerBar <= 0 {
		barFrames = ra.config.FallbackBarSeconds * env.FrameRate()
	}
	if barFrames < 1 {
		return 0
	}

	var barMeans []float64
	for start := 0.0; start < float64(len(env.Values)); start += barFrames {
		lo := int(math.Round(start))
		hi := min(int(math.Round(start+barFrames)), len(env.Values))
		if lo >= hi || float64(hi-lo) < barFrames/2 {
			break
		}
		barMeans = append(barMeans, common.Mean(env.Values[lo:hi]))
	}
	if len(barMeans) < 2 {
		return 0
	}

	threshold := ra.config.SectionChangeThreshold * common.Mean(env.Values)
	changes := 0
	for i := 1; i < len(barMeans); i++ {
		if math.Abs(barMeans[i]-barMeans[i-1]) > threshold {
			changes++
		}
	}
	return changes
}

func beatIntervals(times []float64) []float64 {
	if len(times) < 2 {
		return nil
	}
	intervals := make([]float64, len(times)-1)
	for i := 1; i < len(times); i++ {
		intervals[i-1] = times[i] - times[i-1]
	}
	return intervals
}

func averageAt(values []float64, frames []int) float64 {
	if len(frames) == 0 {
		return 0
	}
	sum := 0.0
	for _, f := range frames {
		sum += values[f]
	}
	return sum / float64(len(frames))
}
