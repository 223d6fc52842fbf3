package spectral

import (
	"math"
	"sort"
)

const (
	// DefaultContrastBands is the number of log-spaced sub-bands
	DefaultContrastBands = 6
	contrastMinFreq      = 200.0
	contrastQuantile     = 0.2
	contrastPowerFloor   = 1e-10
)

// SpectralContrast measures the difference between spectral peaks and
// valleys in log-spaced sub-bands starting at 200 Hz
type SpectralContrast struct {
	numBands  int
	bandEdges []int
}

// NewSpectralContrast creates a contrast calculator for spectrograms shaped like stft
func NewSpectralContrast(stft *STFTResult, numBands int) *SpectralContrast {
	if numBands <= 0 {
		numBands = DefaultContrastBands
	}
	sc := &SpectralContrast{numBands: numBands}
	sc.initializeBands(stft.FreqBins, float64(stft.SampleRate)/2.0)
	return sc
}

// Compute returns the contrast in dB of every sub-band of a magnitude spectrum.
// Silent bands yield 0.
func (sc *SpectralContrast) Compute(spectrum []float64, scratch []float64) []float64 {
	contrast := make([]float64, sc.numBands)

	for band := range sc.numBands {
		start := sc.bandEdges[band]
		end := min(sc.bandEdges[band+1], len(spectrum))
		if start >= end {
			continue
		}

		power := scratch[:0]
		for _, mag := range spectrum[start:end] {
			power = append(power, mag*mag)
		}
		contrast[band] = bandContrast(power)
	}

	return contrast
}

// ComputeMean averages the contrast over sub-bands and then over frames
func (sc *SpectralContrast) ComputeMean(spectrogram [][]float64) float64 {
	if len(spectrogram) == 0 {
		return 0.0
	}

	var scratch []float64
	total := 0.0
	for _, spectrum := range spectrogram {
		if cap(scratch) < len(spectrum) {
			scratch = make([]float64, 0, len(spectrum))
		}
		bands := sc.Compute(spectrum, scratch)
		frameSum := 0.0
		for _, c := range bands {
			frameSum += c
		}
		total += frameSum / float64(len(bands))
	}

	return total / float64(len(spectrogram))
}

// bandContrast sorts power in place and returns 10*log10(peak/valley),
// where peak and valley are the means of the top and bottom 20%.
func bandContrast(power []float64) float64 {
	sort.Float64s(power)

	count := max(int(contrastQuantile*float64(len(power))), 1)

	valley := 0.0
	for _, p := range power[:count] {
		valley += p
	}
	valley /= float64(count)

	peak := 0.0
	for _, p := range power[len(power)-count:] {
		peak += p
	}
	peak /= float64(count)

	if peak <= 0 {
		return 0.0
	}
	valley = math.Max(valley, contrastPowerFloor)

	return 10.0 * math.Log10(peak/valley)
}

// initializeBands creates logarithmically spaced band boundaries in bins
func (sc *SpectralContrast) initializeBands(numBins int, nyquist float64) {
	sc.bandEdges = make([]int, sc.numBands+1)

	maxFreq := nyquist
	if maxFreq <= contrastMinFreq {
		maxFreq = contrastMinFreq * 2
	}

	logMin := math.Log10(contrastMinFreq)
	logStep := (math.Log10(maxFreq) - logMin) / float64(sc.numBands)

	for i := 0; i <= sc.numBands; i++ {
		freq := math.Pow(10.0, logMin+float64(i)*logStep)
		binIdx := int(freq * float64(numBins-1) / nyquist)
		sc.bandEdges[i] = min(max(binIdx, 0), numBins-1)
	}

	// the last band includes the Nyquist bin
	sc.bandEdges[sc.numBands] = numBins

	for i := 1; i <= sc.numBands; i++ {
		if sc.bandEdges[i] <= sc.bandEdges[i-1] {
			sc.bandEdges[i] = sc.bandEdges[i-1] + 1
		}
	}
}
