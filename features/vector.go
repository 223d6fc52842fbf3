package features

import (
	"fmt"
	"math"
	"strings"

	"github.com/RyanBlaney/beatwizard/algorithms/common"
)

// FeatureVector is the flat set of named descriptors extracted from one
// waveform. Every field is finite; degenerate input yields 0. Database
// columns carry the same names as the JSON keys.
type FeatureVector struct {
	Tempo               float64 `json:"tempo"`
	RhythmDensity       float64 `json:"rhythm_density"`
	BeatConsistency     float64 `json:"beat_consistency"`
	SyncopationScore    float64 `json:"syncopation_score"`
	GrooveStrength      float64 `json:"groove_strength"`
	AverageBeatStrength float64 `json:"average_beat_strength"`

	EnergyMean float64 `json:"energy_mean"`
	EnergyStd  float64 `json:"energy_std"`

	SubBassEnergy    float64 `json:"sub_bass_energy"`
	BassEnergy       float64 `json:"bass_energy"`
	BassToTotalRatio float64 `json:"bass_to_total_ratio"`

	SpectralCentroid  float64 `json:"spectral_centroid"`
	SpectralRolloff   float64 `json:"spectral_rolloff"`
	SpectralBandwidth float64 `json:"spectral_bandwidth"`
	SpectralContrast  float64 `json:"spectral_contrast"`

	PercussiveEnergy        float64 `json:"percussive_energy"`
	HarmonicEnergy          float64 `json:"harmonic_energy"`
	PercussionHarmonicRatio float64 `json:"percussion_harmonic_ratio"`

	MFCC1 float64 `json:"mfcc_1" gorm:"column:mfcc_1"`
	MFCC2 float64 `json:"mfcc_2" gorm:"column:mfcc_2"`
	MFCC3 float64 `json:"mfcc_3" gorm:"column:mfcc_3"`
	MFCC4 float64 `json:"mfcc_4" gorm:"column:mfcc_4"`
	MFCC5 float64 `json:"mfcc_5" gorm:"column:mfcc_5"`

	KickEnergy         float64 `json:"kick_energy"`
	SnareEnergy        float64 `json:"snare_energy"`
	HihatEnergy        float64 `json:"hihat_energy"`
	RhythmicRegularity float64 `json:"rhythmic_regularity"`
	SectionChanges     float64 `json:"section_changes"`
	StereoWidth        float64 `json:"stereo_width"`
	KickToSnareRatio   float64 `json:"kick_to_snare_ratio"`
	HihatToKickRatio   float64 `json:"hihat_to_kick_ratio"`
	Duration           float64 `json:"duration"`
}

var featureKeys = []string{
	"tempo", "rhythm_density", "beat_consistency", "syncopation_score",
	"groove_strength", "average_beat_strength", "energy_mean", "energy_std",
	"sub_bass_energy", "bass_energy", "bass_to_total_ratio",
	"spectral_centroid", "spectral_rolloff", "spectral_bandwidth",
	"spectral_contrast", "percussive_energy", "harmonic_energy",
	"percussion_harmonic_ratio", "mfcc_1", "mfcc_2", "mfcc_3", "mfcc_4",
	"mfcc_5", "kick_energy", "snare_energy", "hihat_energy",
	"rhythmic_regularity", "section_changes", "stereo_width",
	"kick_to_snare_ratio", "hihat_to_kick_ratio", "duration",
}

// Keys returns the feature names in canonical order
func Keys() []string {
	keys := make([]string, len(featureKeys))
	copy(keys, featureKeys)
	return keys
}

// fields returns pointers to every field, aligned with featureKeys
func (fv *FeatureVector) fields() []*float64 {
	return []*float64{
		&fv.Tempo, &fv.RhythmDensity, &fv.BeatConsistency, &fv.SyncopationScore,
		&fv.GrooveStrength, &fv.AverageBeatStrength, &fv.EnergyMean, &fv.EnergyStd,
		&fv.SubBassEnergy, &fv.BassEnergy, &fv.BassToTotalRatio,
		&fv.SpectralCentroid, &fv.SpectralRolloff, &fv.SpectralBandwidth,
		&fv.SpectralContrast, &fv.PercussiveEnergy, &fv.HarmonicEnergy,
		&fv.PercussionHarmonicRatio, &fv.MFCC1, &fv.MFCC2, &fv.MFCC3, &fv.MFCC4,
		&fv.MFCC5, &fv.KickEnergy, &fv.SnareEnergy, &fv.HihatEnergy,
		&fv.RhythmicRegularity, &fv.SectionChanges, &fv.StereoWidth,
		&fv.KickToSnareRatio, &fv.HihatToKickRatio, &fv.Duration,
	}
}

// Keys returns the feature names in canonical order
func (fv *FeatureVector) Keys() []string {
	return Keys()
}

// Values returns the field values in canonical key order
func (fv *FeatureVector) Values() []float64 {
	ptrs := fv.fields()
	values := make([]float64, len(ptrs))
	for i, p := range ptrs {
		values[i] = *p
	}
	return values
}

// Map returns the flat name to value mapping
func (fv *FeatureVector) Map() map[string]float64 {
	m := make(map[string]float64, len(featureKeys))
	for i, p := range fv.fields() {
		m[featureKeys[i]] = *p
	}
	return m
}

// FromMap builds a vector from a flat mapping. Missing keys stay 0;
// unknown keys are an error.
func FromMap(m map[string]float64) (*FeatureVector, error) {
	fv := &FeatureVector{}
	index := make(map[string]*float64, len(featureKeys))
	for i, p := range fv.fields() {
		index[featureKeys[i]] = p
	}

	for key, value := range m {
		p, ok := index[key]
		if !ok {
			return nil, fmt.Errorf("unknown feature %q", key)
		}
		*p = value
	}
	return fv, nil
}

// Validate reports every non-finite field
func (fv *FeatureVector) Validate() error {
	var bad []string
	for i, p := range fv.fields() {
		if math.IsNaN(*p) || math.IsInf(*p, 0) {
			bad = append(bad, featureKeys[i])
		}
	}
	if len(bad) > 0 {
		return fmt.Errorf("non-finite features: %s", strings.Join(bad, ", "))
	}
	return nil
}

// sanitize replaces NaN and infinities with 0
func (fv *FeatureVector) sanitize() {
	for _, p := range fv.fields() {
		*p = common.Finite(*p)
	}
}
