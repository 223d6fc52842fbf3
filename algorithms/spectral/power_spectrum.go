package spectral

import (
	"math"
)

// PowerInto writes |X_k|^2 of a magnitude spectrum into dst
func PowerInto(dst, magnitude []float64) {
	for i := range dst {
		if i < len(magnitude) {
			dst[i] = magnitude[i] * magnitude[i]
		} else {
			dst[i] = 0
		}
	}
}

// RMSFromSpectrum recovers the RMS of the windowed frame that produced a
// one-sided magnitude spectrum of an windowSize-point FFT (Parseval).
func RMSFromSpectrum(magnitude []float64, windowSize int) float64 {
	if len(magnitude) == 0 || windowSize <= 0 {
		return 0
	}

	sum := 0.0
	last := len(magnitude) - 1
	for k, mag := range magnitude {
		p := mag * mag
		// DC and Nyquist appear once in the full spectrum
		if k == 0 || (k == last && windowSize%2 == 0) {
			p *= 0.5
		}
		sum += p
	}

	n := float64(windowSize)
	return math.Sqrt(2 * sum / (n * n))
}

// FrameRMSFromSpectrogram applies RMSFromSpectrum to every frame
func FrameRMSFromSpectrogram(spectrogram [][]float64, windowSize int) []float64 {
	rms := make([]float64, len(spectrogram))
	for t, frame := range spectrogram {
		rms[t] = RMSFromSpectrum(frame, windowSize)
	}
	return rms
}

// PowerToDB returns 10*log10(max(p, amin)) for every cell of a power
// matrix, floored at topDB below the global maximum.
// A non-positive topDB disables the floor.
func PowerToDB(power [][]float64, amin, topDB float64) [][]float64 {
	out := make([][]float64, len(power))
	peak := math.Inf(-1)

	for t, frame := range power {
		out[t] = make([]float64, len(frame))
		for i, p := range frame {
			db := 10.0 * math.Log10(math.Max(p, amin))
			out[t][i] = db
			peak = math.Max(peak, db)
		}
	}

	if topDB > 0 && !math.IsInf(peak, -1) {
		floor := peak - topDB
		for _, frame := range out {
			for i, db := range frame {
				if db < floor {
					frame[i] = floor
				}
			}
		}
	}

	return out
}
