package harmonic

import (
	"math"
	"runtime"
	"sync"

	"github.com/RyanBlaney/beatwizard/algorithms/common"
	"github.com/RyanBlaney/beatwizard/algorithms/spectral"
)

// DefaultKernelSize is the median filter length, in frames for the
// harmonic estimate and in bins for the percussive estimate
const DefaultKernelSize = 17

// HPSS separates a magnitude spectrogram into harmonic and percussive parts
// by median filtering: sustained tones are smooth across time, transients
// are smooth across frequency
type HPSS struct {
	harmonicKernel   int
	percussiveKernel int
	power            float64
	workers          int
}

// HPSSResult holds the masked component spectrograms, shaped like the input
// (time x frequency)
type HPSSResult struct {
	Harmonic   [][]float64
	Percussive [][]float64
}

// HPSSEnergy holds the mean frame RMS of both components
type HPSSEnergy struct {
	Harmonic   float64
	Percussive float64
	Ratio      float64 // percussive / harmonic, 0 when harmonic is 0
}

// NewHPSS creates a separator with the given median kernel sizes
func NewHPSS(harmonicKernel, percussiveKernel int) *HPSS {
	if harmonicKernel <= 0 {
		harmonicKernel = DefaultKernelSize
	}
	if percussiveKernel <= 0 {
		percussiveKernel = DefaultKernelSize
	}
	return &HPSS{
		harmonicKernel:   harmonicKernel,
		percussiveKernel: percussiveKernel,
		power:            2.0,
		workers:          max(runtime.NumCPU(), 1),
	}
}

// Separate applies soft Wiener masks built from the two median-filtered
// estimates. Rows are filtered in parallel; every goroutine writes only its
// own rows so the result is deterministic.
func (h *HPSS) Separate(magnitude [][]float64) *HPSSResult {
	numFrames := len(magnitude)
	if numFrames == 0 {
		return &HPSSResult{Harmonic: [][]float64{}, Percussive: [][]float64{}}
	}
	numBins := len(magnitude[0])

	// harmonic estimate: median across time, stored bin-major
	harmonicByBin := make([][]float64, numBins)
	h.parallel(numBins, func(bin int, scratch []float64) []float64 {
		series := make([]float64, numFrames)
		for t := range magnitude {
			series[t] = magnitude[t][bin]
		}
		filtered := make([]float64, numFrames)
		scratch = common.MedianFilterInto(filtered, series, h.harmonicKernel, scratch)
		harmonicByBin[bin] = filtered
		return scratch
	})

	// percussive estimate: median across frequency
	percussive := make([][]float64, numFrames)
	h.parallel(numFrames, func(t int, scratch []float64) []float64 {
		filtered := make([]float64, numBins)
		scratch = common.MedianFilterInto(filtered, magnitude[t], h.percussiveKernel, scratch)
		percussive[t] = filtered
		return scratch
	})

	result := &HPSSResult{
		Harmonic:   make([][]float64, numFrames),
		Percussive: make([][]float64, numFrames),
	}
	h.parallel(numFrames, func(t int, scratch []float64) []float64 {
		harm := make([]float64, numBins)
		perc := make([]float64, numBins)
		for k, mag := range magnitude[t] {
			maskH, maskP := softMasks(harmonicByBin[k][t], percussive[t][k], h.power)
			harm[k] = maskH * mag
			perc[k] = maskP * mag
		}
		result.Harmonic[t] = harm
		result.Percussive[t] = perc
		return scratch
	})

	return result
}

// Energy separates the STFT and returns the mean frame RMS of each
// component, recovered from its spectrum by Parseval's theorem
func (h *HPSS) Energy(stft *spectral.STFTResult) HPSSEnergy {
	if stft == nil || stft.TimeFrames == 0 {
		return HPSSEnergy{}
	}

	parts := h.Separate(stft.Magnitude)
	harmonic := common.Mean(spectral.FrameRMSFromSpectrogram(parts.Harmonic, stft.WindowSize))
	percussive := common.Mean(spectral.FrameRMSFromSpectrogram(parts.Percussive, stft.WindowSize))

	return HPSSEnergy{
		Harmonic:   harmonic,
		Percussive: percussive,
		Ratio:      common.SafeDivide(percussive, harmonic),
	}
}

// softMasks returns the Wiener masks of two estimates. When both are zero
// the bin is split evenly.
func softMasks(harmonic, percussive, power float64) (float64, float64) {
	ref := max(harmonic, percussive)
	if ref <= 0 {
		return 0.5, 0.5
	}

	h := math.Pow(harmonic/ref, power)
	p := math.Pow(percussive/ref, power)
	total := h + p
	return h / total, p / total
}

// parallel runs fn for indices [0, n) on the worker pool. Each worker keeps
// a scratch buffer that fn may grow and return.
func (h *HPSS) parallel(n int, fn func(i int, scratch []float64) []float64) {
	workers := min(h.workers, n)
	jobs := make(chan int, n)
	for i := range n {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var scratch []float64
			for i := range jobs {
				scratch = fn(i, scratch)
			}
		}()
	}
	wg.Wait()
}
