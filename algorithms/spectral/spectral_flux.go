package spectral

// SpectralFlux measures frame-to-frame spectral change
type SpectralFlux struct{}

// NewSpectralFlux creates a new spectral flux calculator
func NewSpectralFlux() *SpectralFlux {
	return &SpectralFlux{}
}

// ComputeRectifiedMean returns, for each frame, the mean over bands of the
// positive increase from the previous frame. The first frame has no
// predecessor and gets 0, so the output has one value per input frame.
func (sf *SpectralFlux) ComputeRectifiedMean(frames [][]float64) []float64 {
	flux := make([]float64, len(frames))

	for t := 1; t < len(frames); t++ {
		cur, prev := frames[t], frames[t-1]
		if len(cur) == 0 {
			continue
		}

		sum := 0.0
		for f := range cur {
			if diff := cur[f] - prev[f]; diff > 0 {
				sum += diff
			}
		}
		flux[t] = sum / float64(len(cur))
	}

	return flux
}
