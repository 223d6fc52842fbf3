package harmonic

import (
	"math"
	"testing"

	"github.com/RyanBlaney/beatwizard/algorithms/spectral"
	"github.com/RyanBlaney/beatwizard/algorithms/windowing"
)

func computeSTFT(t *testing.T, signal []float64) *spectral.STFTResult {
	t.Helper()
	stft, err := spectral.NewSTFT().Compute(signal, 2048, 512, 22050, windowing.NewPeriodicHann(2048))
	if err != nil {
		t.Fatalf("stft: %v", err)
	}
	return stft
}

func TestHPSSSineIsHarmonic(t *testing.T) {
	signal := make([]float64, 44100)
	for i := range signal {
		signal[i] = 0.5 * math.Sin(2*math.Pi*1000*float64(i)/22050)
	}

	energy := NewHPSS(0, 0).Energy(computeSTFT(t, signal))
	if energy.Harmonic <= 10*energy.Percussive {
		t.Errorf("harmonic %v should dominate percussive %v", energy.Harmonic, energy.Percussive)
	}
	if energy.Ratio >= 0.1 {
		t.Errorf("ratio = %v, want < 0.1", energy.Ratio)
	}
}

func TestHPSSClicksArePercussive(t *testing.T) {
	signal := make([]float64, 44100)
	for i := 0; i < len(signal); i += 5512 {
		signal[i] = 1
	}

	energy := NewHPSS(0, 0).Energy(computeSTFT(t, signal))
	if energy.Percussive <= 10*energy.Harmonic {
		t.Errorf("percussive %v should dominate harmonic %v", energy.Percussive, energy.Harmonic)
	}
}

func TestHPSSSilence(t *testing.T) {
	energy := NewHPSS(0, 0).Energy(computeSTFT(t, make([]float64, 10000)))
	if energy.Harmonic != 0 || energy.Percussive != 0 || energy.Ratio != 0 {
		t.Errorf("silence energy = %+v", energy)
	}
}

func TestHPSSMasksSumToMagnitude(t *testing.T) {
	magnitude := [][]float64{
		{1, 2, 3, 4},
		{4, 3, 2, 1},
		{0, 0, 5, 0},
	}

	parts := NewHPSS(3, 3).Separate(magnitude)
	for t0, row := range magnitude {
		for k, mag := range row {
			sum := parts.Harmonic[t0][k] + parts.Percussive[t0][k]
			if math.Abs(sum-mag) > 1e-12 {
				t.Fatalf("frame %d bin %d: components sum to %v, want %v", t0, k, sum, mag)
			}
		}
	}
}
