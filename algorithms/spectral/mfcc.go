package spectral

import (
	"fmt"
	"math"
)

// MFCC computes Mel-Frequency Cepstral Coefficients
type MFCC struct {
	params     MFCCParams
	sampleRate int

	filterBank *MelFilterBank
	dctMatrix  [][]float64
	fftSize    int
}

// MFCCParams contains parameters for MFCC computation
type MFCCParams struct {
	NumCoefficients int     `json:"num_coefficients"` // Number of MFCC coefficients (default: 13)
	NumMelFilters   int     `json:"num_mel_filters"`  // Number of mel filter bank filters (default: 26)
	LowFreq         float64 `json:"low_freq"`         // Low frequency bound (default: 0)
	HighFreq        float64 `json:"high_freq"`        // High frequency bound (default: sampleRate/2)
	UseLiftering    bool    `json:"use_liftering"`    // Apply sinusoidal liftering (default: false)
	LifterCoeff     float64 `json:"lifter_coeff"`     // Liftering coefficient (default: 22)
	LogFloor        float64 `json:"log_floor"`        // Floor applied before the logarithm (default: 1e-10)
}

// DefaultMFCCParams returns 13 coefficients over 26 mel filters without liftering
func DefaultMFCCParams() MFCCParams {
	return MFCCParams{
		NumCoefficients: 13,
		NumMelFilters:   26,
		LifterCoeff:     22.0,
		LogFloor:        1e-10,
	}
}

// NewMFCC creates a new MFCC computer with default parameters
func NewMFCC(sampleRate int) *MFCC {
	return NewMFCCWithParams(sampleRate, DefaultMFCCParams())
}

// NewMFCCWithParams creates a new MFCC computer with custom parameters
func NewMFCCWithParams(sampleRate int, params MFCCParams) *MFCC {
	defaults := DefaultMFCCParams()
	if params.NumCoefficients <= 0 {
		params.NumCoefficients = defaults.NumCoefficients
	}
	if params.NumMelFilters <= 0 {
		params.NumMelFilters = defaults.NumMelFilters
	}
	if params.HighFreq <= 0 {
		params.HighFreq = float64(sampleRate) / 2.0
	}
	if params.LifterCoeff <= 0 {
		params.LifterCoeff = defaults.LifterCoeff
	}
	if params.LogFloor <= 0 {
		params.LogFloor = defaults.LogFloor
	}

	return &MFCC{
		params:     params,
		sampleRate: sampleRate,
	}
}

// Initialize prepares the MFCC computer for the given FFT size
func (m *MFCC) Initialize(fftSize int) error {
	bank, err := NewMelFilterBank(m.params.NumMelFilters, fftSize, m.sampleRate, m.params.LowFreq, m.params.HighFreq)
	if err != nil {
		return fmt.Errorf("failed to create mel filter bank: %w", err)
	}

	m.filterBank = bank
	m.fftSize = fftSize
	m.createDCTMatrix()
	return nil
}

// Compute returns the cepstral coefficients of one magnitude spectrum:
// power spectrum, mel bank, natural log with a floor, orthonormal DCT-II.
// Silent frames yield zero coefficients.
func (m *MFCC) Compute(magnitudeSpectrum []float64) ([]float64, error) {
	if len(magnitudeSpectrum) == 0 {
		return nil, fmt.Errorf("empty magnitude spectrum")
	}

	fftSize := (len(magnitudeSpectrum) - 1) * 2
	if m.filterBank == nil || m.fftSize != fftSize {
		if err := m.Initialize(fftSize); err != nil {
			return nil, fmt.Errorf("failed to initialize MFCC: %w", err)
		}
	}

	power := make([]float64, len(magnitudeSpectrum))
	PowerInto(power, magnitudeSpectrum)
	melSpectrum := m.filterBank.Apply(power)

	// a frame with no mel energy above the floor is silent and has
	// all-zero coefficients rather than a constant log-floor cepstrum
	silent := true
	logMel := make([]float64, len(melSpectrum))
	for i, mel := range melSpectrum {
		if mel > m.params.LogFloor {
			silent = false
		}
		logMel[i] = math.Log(math.Max(mel, m.params.LogFloor))
	}
	if silent {
		return make([]float64, m.params.NumCoefficients), nil
	}

	coeffs := m.applyDCT(logMel)
	if m.params.UseLiftering {
		m.applyLiftering(coeffs)
	}
	return coeffs, nil
}

// ComputeFrames processes multiple frames of magnitude spectra
func (m *MFCC) ComputeFrames(spectrogram [][]float64) ([][]float64, error) {
	frames := make([][]float64, len(spectrogram))
	for t, spectrum := range spectrogram {
		coeffs, err := m.Compute(spectrum)
		if err != nil {
			return nil, fmt.Errorf("failed to compute MFCC for frame %d: %w", t, err)
		}
		frames[t] = coeffs
	}
	return frames, nil
}

// ComputeMeans returns the mean of every coefficient across frames
func (m *MFCC) ComputeMeans(spectrogram [][]float64) ([]float64, error) {
	means := make([]float64, m.params.NumCoefficients)
	if len(spectrogram) == 0 {
		return means, nil
	}

	frames, err := m.ComputeFrames(spectrogram)
	if err != nil {
		return nil, err
	}
	for _, coeffs := range frames {
		for k, c := range coeffs {
			means[k] += c
		}
	}
	for k := range means {
		means[k] /= float64(len(frames))
	}
	return means, nil
}

// createDCTMatrix creates the orthonormal DCT-II matrix
func (m *MFCC) createDCTMatrix() {
	numFilters := m.params.NumMelFilters
	m.dctMatrix = make([][]float64, m.params.NumCoefficients)

	for k := range m.dctMatrix {
		scale := math.Sqrt(2.0 / float64(numFilters))
		if k == 0 {
			scale = math.Sqrt(1.0 / float64(numFilters))
		}

		row := make([]float64, numFilters)
		for n := range row {
			row[n] = scale * math.Cos(math.Pi*float64(k)*(float64(n)+0.5)/float64(numFilters))
		}
		m.dctMatrix[k] = row
	}
}

func (m *MFCC) applyDCT(logMel []float64) []float64 {
	coeffs := make([]float64, len(m.dctMatrix))
	for k, row := range m.dctMatrix {
		sum := 0.0
		for n := 0; n < len(logMel) && n < len(row); n++ {
			sum += logMel[n] * row[n]
		}
		coeffs[k] = sum
	}
	return coeffs
}

// applyLiftering applies sinusoidal liftering to every coefficient but C0
func (m *MFCC) applyLiftering(coeffs []float64) {
	for i := 1; i < len(coeffs); i++ {
		coeffs[i] *= 1.0 + (m.params.LifterCoeff/2.0)*math.Sin(math.Pi*float64(i)/m.params.LifterCoeff)
	}
}

// Params returns the current MFCC parameters
func (m *MFCC) Params() MFCCParams {
	return m.params
}
