package spectral

// Band names used by the feature vector
const (
	BandSubBass = "sub_bass"
	BandBass    = "bass"
	BandKick    = "kick"
	BandSnare   = "snare"
	BandHiHat   = "hihat"
)

// FrequencyBand is a closed frequency range in Hz. When ExcludeLow is set
// the lower edge is open, so adjacent bands do not share a bin.
type FrequencyBand struct {
	Name       string
	LowHz      float64
	HighHz     float64
	ExcludeLow bool
}

// Contains reports whether freq falls inside the band
func (b FrequencyBand) Contains(freq float64) bool {
	if freq > b.HighHz {
		return false
	}
	if b.ExcludeLow {
		return freq > b.LowHz
	}
	return freq >= b.LowHz
}

// DefaultBands returns the bands of the feature vector. Kick overlaps the
// sub-bass and bass ranges.
func DefaultBands() []FrequencyBand {
	return []FrequencyBand{
		{Name: BandSubBass, LowHz: 0, HighHz: 60},
		{Name: BandBass, LowHz: 60, HighHz: 250, ExcludeLow: true},
		{Name: BandKick, LowHz: 50, HighHz: 100},
		{Name: BandSnare, LowHz: 200, HighHz: 400},
		{Name: BandHiHat, LowHz: 10000, HighHz: 15000},
	}
}

// BandEnergyResult holds the mean per-frame magnitude sum of every band and
// of the full spectrum
type BandEnergyResult struct {
	Energies map[string]float64
	Total    float64
}

// Energy returns the energy of the named band, 0 if unknown
func (r BandEnergyResult) Energy(name string) float64 {
	return r.Energies[name]
}

// BandEnergy sums spectrogram magnitudes inside frequency bands
type BandEnergy struct {
	bands []FrequencyBand
}

// NewBandEnergy creates a band analyzer; with no bands it uses DefaultBands
func NewBandEnergy(bands ...FrequencyBand) *BandEnergy {
	if len(bands) == 0 {
		bands = DefaultBands()
	}
	return &BandEnergy{bands: bands}
}

// Compute returns, for every band, the mean over frames of the sum of
// magnitudes of the bins the band contains. Bands above the Nyquist
// frequency are empty and yield 0.
func (be *BandEnergy) Compute(stft *STFTResult) BandEnergyResult {
	result := BandEnergyResult{Energies: make(map[string]float64, len(be.bands))}
	for _, band := range be.bands {
		result.Energies[band.Name] = 0
	}
	if stft == nil || stft.TimeFrames == 0 {
		return result
	}

	freqs := stft.Frequencies()
	ranges := make([][2]int, len(be.bands))
	for i, band := range be.bands {
		ranges[i] = binRange(freqs, band)
	}

	sums := make([]float64, len(be.bands))
	total := 0.0
	for _, frame := range stft.Magnitude {
		for _, mag := range frame {
			total += mag
		}
		for i, r := range ranges {
			for k := r[0]; k < r[1]; k++ {
				sums[i] += frame[k]
			}
		}
	}

	n := float64(len(stft.Magnitude))
	for i, band := range be.bands {
		result.Energies[band.Name] = sums[i] / n
	}
	result.Total = total / n
	return result
}

// binRange returns the half-open range of bins inside band. Bin
// frequencies increase monotonically so the range is contiguous.
func binRange(freqs []float64, band FrequencyBand) [2]int {
	start := len(freqs)
	for k, f := range freqs {
		if band.Contains(f) {
			start = k
			break
		}
	}
	end := start
	for end < len(freqs) && band.Contains(freqs[end]) {
		end++
	}
	return [2]int{start, end}
}
