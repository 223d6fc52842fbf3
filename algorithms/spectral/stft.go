package spectral

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/RyanBlaney/beatwizard/logging"
)

// STFT provides Short-Time Fourier Transform functionality
type STFT struct {
	fft    *FFT
	logger logging.Logger
}

// STFTResult holds the magnitude spectrogram of a signal
type STFTResult struct {
	Magnitude      [][]float64 `json:"magnitude"`       // Time x Frequency magnitude matrix
	TimeFrames     int         `json:"time_frames"`     // Number of time frames
	FreqBins       int         `json:"freq_bins"`       // Number of frequency bins
	SampleRate     int         `json:"sample_rate"`     // Sample rate
	WindowSize     int         `json:"window_size"`     // FFT window size
	HopSize        int         `json:"hop_size"`        // Hop size between frames
	FreqResolution float64     `json:"freq_resolution"` // Frequency resolution (Hz/bin)
	TimeResolution float64     `json:"time_resolution"` // Time resolution (seconds/frame)
}

// FrequencyAt returns the center frequency of bin in Hz
func (r *STFTResult) FrequencyAt(bin int) float64 {
	return float64(bin) * r.FreqResolution
}

// Frequencies returns the frequency of every bin in Hz
func (r *STFTResult) Frequencies() []float64 {
	freqs := make([]float64, r.FreqBins)
	for i := range freqs {
		freqs[i] = r.FrequencyAt(i)
	}
	return freqs
}

// TimeAt returns the start time of frame in seconds
func (r *STFTResult) TimeAt(frame int) float64 {
	return float64(frame) * r.TimeResolution
}

// Window windows a frame, zero-padding src up to the window length
type Window interface {
	ApplyTo(dst, src []float64) error
}

// NewSTFT creates a new STFT calculator
func NewSTFT() *STFT {
	return &STFT{
		fft:    NewFFT(),
		logger: logging.WithFields(logging.Fields{"component": "stft"}),
	}
}

// FrameCount returns the number of analysis frames for a signal of n
// samples. Frames start at sample 0; a trailing partial frame is dropped,
// except that a signal shorter than one window gets a single padded frame.
func FrameCount(n, windowSize, hopSize int) int {
	if n <= windowSize {
		return 1
	}
	return (n-windowSize)/hopSize + 1
}

// Compute computes the magnitude STFT with parallel processing.
// Each worker writes only its own frame rows, so the result does not depend
// on scheduling.
func (s *STFT) Compute(signal []float64, windowSize int, hopSize int, sampleRate int, window Window) (*STFTResult, error) {
	if len(signal) == 0 {
		return nil, fmt.Errorf("empty signal")
	}
	if windowSize <= 0 {
		return nil, fmt.Errorf("window size must be positive")
	}
	if hopSize <= 0 {
		return nil, fmt.Errorf("hop size must be positive")
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive")
	}

	numFrames := FrameCount(len(signal), windowSize, hopSize)
	freqBins := windowSize/2 + 1

	magnitude := make([][]float64, numFrames)
	for i := range numFrames {
		magnitude[i] = make([]float64, freqBins)
	}

	numWorkers := s.getOptimalWorkerCount(numFrames)
	jobs := make(chan int, numFrames)
	errs := make(chan error, numWorkers)

	var wg sync.WaitGroup
	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			frameBuffer := make([]float64, windowSize)
			for frameIdx := range jobs {
				start := frameIdx * hopSize
				end := min(start+windowSize, len(signal))
				src := signal[start:end]

				if window != nil {
					if err := window.ApplyTo(frameBuffer, src); err != nil {
						errs <- fmt.Errorf("frame %d: %w", frameIdx, err)
						return
					}
				} else {
					n := copy(frameBuffer, src)
					clear(frameBuffer[n:])
				}

				s.fft.MagnitudeInto(magnitude[frameIdx], frameBuffer)
			}
		}()
	}

	for frameIdx := range numFrames {
		jobs <- frameIdx
	}
	close(jobs)
	wg.Wait()
	close(errs)

	if err := <-errs; err != nil {
		return nil, err
	}

	s.logger.Debug("computed stft", logging.Fields{
		"frames":      numFrames,
		"window_size": windowSize,
		"hop_size":    hopSize,
		"workers":     numWorkers,
	})

	return &STFTResult{
		Magnitude:      magnitude,
		TimeFrames:     numFrames,
		FreqBins:       freqBins,
		SampleRate:     sampleRate,
		WindowSize:     windowSize,
		HopSize:        hopSize,
		FreqResolution: float64(sampleRate) / float64(windowSize),
		TimeResolution: float64(hopSize) / float64(sampleRate),
	}, nil
}

// getOptimalWorkerCount determines the number of workers based on workload.
// Always at least one.
func (s *STFT) getOptimalWorkerCount(numFrames int) int {
	numCPU := runtime.NumCPU()

	var workers int
	switch {
	case numFrames < 100:
		workers = min(numCPU/2, numFrames)
	case numFrames < 1000:
		workers = min(numCPU, 8)
	default:
		workers = numCPU
	}
	return max(workers, 1)
}
