package tonal

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/RyanBlaney/beatwizard/algorithms/common"
	"github.com/RyanBlaney/beatwizard/algorithms/spectral"
	"github.com/RyanBlaney/beatwizard/algorithms/windowing"
)

// DefaultKey is reported when the signal carries no pitched energy
const DefaultKey = "C"

// KeyMode represents major or minor mode
type KeyMode int

const (
	KeyModeMajor KeyMode = iota
	KeyModeMinor
)

func (m KeyMode) String() string {
	if m == KeyModeMinor {
		return "minor"
	}
	return "major"
}

var pitchClassNames = []string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// Krumhansl-Kessler probe tone ratings, rooted at index 0
var (
	majorProfile = []float64{6.35, 2.23, 3.48, 2.33, 4.38, 4.09, 2.52, 5.19, 2.39, 3.66, 2.29, 2.88}
	minorProfile = []float64{6.33, 2.68, 3.52, 5.38, 2.60, 3.53, 2.54, 4.75, 3.98, 2.69, 3.34, 3.17}
)

// KeyResult is the best matching key
type KeyResult struct {
	Tonic      int       `json:"tonic"` // pitch class, 0 = C
	Mode       KeyMode   `json:"mode"`
	Name       string    `json:"name"`       // e.g. "A minor"
	Confidence float64   `json:"confidence"` // Pearson correlation with the profile
	Chroma     []float64 `json:"chroma"`
}

// KeyEstimator correlates the mean chroma of a signal with the 24 rotated
// major and minor key profiles. It runs its own long-window STFT since key
// needs finer frequency resolution than the timbre descriptors.
type KeyEstimator struct {
	sampleRate int
	windowSize int
	hopSize    int
	tuningFreq float64
	minFreq    float64
	maxFreq    float64
	stft       *spectral.STFT
}

// NewKeyEstimator creates a key estimator with A4 = 440 Hz
func NewKeyEstimator(sampleRate int) *KeyEstimator {
	windowSize := common.NextPowerOfTwo(int(math.Round(float64(sampleRate) * 8192 / 22050)))
	return &KeyEstimator{
		sampleRate: sampleRate,
		windowSize: windowSize,
		hopSize:    windowSize / 4,
		tuningFreq: 440.0,
		minFreq:    65.0,
		maxFreq:    2100.0,
		stft:       spectral.NewSTFT(),
	}
}

// Estimate returns the key of a mono signal
func (ke *KeyEstimator) Estimate(signal []float64) (KeyResult, error) {
	if ke.sampleRate <= 0 {
		return KeyResult{}, fmt.Errorf("invalid sample rate: %d", ke.sampleRate)
	}

	stft, err := ke.stft.Compute(signal, ke.windowSize, ke.hopSize, ke.sampleRate, windowing.NewPeriodicHann(ke.windowSize))
	if err != nil {
		return KeyResult{}, fmt.Errorf("key stft: %w", err)
	}

	return ke.EstimateFromChroma(ke.Chroma(stft)), nil
}

// Chroma folds the power spectrum into 12 pitch classes, normalizes every
// frame to unit sum and averages over frames
func (ke *KeyEstimator) Chroma(stft *spectral.STFTResult) []float64 {
	mean := make([]float64, 12)
	if stft == nil || stft.TimeFrames == 0 {
		return mean
	}

	mapping := ke.chromaMapping(stft)
	frame := make([]float64, 12)
	for _, spectrum := range stft.Magnitude {
		clear(frame)
		for k, mag := range spectrum {
			if pc := mapping[k]; pc >= 0 {
				frame[pc] += mag * mag
			}
		}

		total := common.Sum(frame)
		if total <= 1e-10 {
			continue
		}
		for pc, energy := range frame {
			mean[pc] += energy / total
		}
	}

	for pc := range mean {
		mean[pc] /= float64(stft.TimeFrames)
	}
	return mean
}

// EstimateFromChroma picks the key profile rotation with the highest
// correlation. An all-zero chroma yields DefaultKey.
func (ke *KeyEstimator) EstimateFromChroma(chroma []float64) KeyResult {
	result := KeyResult{Name: DefaultKey, Chroma: chroma}
	if len(chroma) != 12 || common.Sum(chroma) <= 0 || common.StandardDeviation(chroma) == 0 {
		return result
	}

	best := math.Inf(-1)
	rotated := make([]float64, 12)
	for _, mode := range []KeyMode{KeyModeMajor, KeyModeMinor} {
		profile := majorProfile
		if mode == KeyModeMinor {
			profile = minorProfile
		}

		for tonic := range 12 {
			for pc := range 12 {
				rotated[pc] = profile[(pc-tonic+12)%12]
			}
			corr := stat.Correlation(chroma, rotated, nil)
			if corr > best {
				best = corr
				result.Tonic = tonic
				result.Mode = mode
			}
		}
	}

	result.Confidence = common.Finite(best)
	result.Name = pitchClassNames[result.Tonic] + " " + result.Mode.String()
	return result
}

func (ke *KeyEstimator) chromaMapping(stft *spectral.STFTResult) []int {
	mapping := make([]int, stft.FreqBins)
	for k := range mapping {
		freq := stft.FrequencyAt(k)
		if freq < ke.minFreq || freq > ke.maxFreq {
			mapping[k] = -1
			continue
		}
		midi := 69.0 + 12.0*math.Log2(freq/ke.tuningFreq)
		mapping[k] = ((int(math.Round(midi)) % 12) + 12) % 12
	}
	return mapping
}
