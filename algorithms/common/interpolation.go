package common

import "math"

// InterpolationType defines interpolation method
type InterpolationType int

const (
	Linear InterpolationType = iota
	Cubic
)

// Interpolator resamples signals at fractional indices
type Interpolator struct {
	method InterpolationType
}

// NewInterpolator creates a new interpolator
func NewInterpolator(method InterpolationType) *Interpolator {
	return &Interpolator{
		method: method,
	}
}

// Interpolate returns the value of data at a fractional index. Indices
// outside the signal are clamped to the first and last samples.
func (interp *Interpolator) Interpolate(data []float64, index float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	if index <= 0 {
		return data[0]
	}
	if index >= float64(len(data)-1) {
		return data[len(data)-1]
	}

	if interp.method == Cubic && len(data) >= 4 {
		return catmullRom(data, index)
	}

	i := int(index)
	frac := index - float64(i)
	return data[i] + frac*(data[i+1]-data[i])
}

func catmullRom(data []float64, index float64) float64 {
	i := int(index)
	frac := index - float64(i)

	at := func(k int) float64 {
		return data[min(max(k, 0), len(data)-1)]
	}
	y0, y1, y2, y3 := at(i-1), at(i), at(i+1), at(i+2)

	a0 := -0.5*y0 + 1.5*y1 - 1.5*y2 + 0.5*y3
	a1 := y0 - 2.5*y1 + 2*y2 - 0.5*y3
	a2 := -0.5*y0 + 0.5*y2

	return ((a0*frac+a1)*frac+a2)*frac + y1
}

// ResampleSignal resamples a signal from originalRate to targetRate.
// Output sample i is read at source index i*originalRate/targetRate.
// When downsampling, the signal is first band-limited by a
// Blackman-windowed sinc low-pass just under the target Nyquist
// frequency, so content above it is attenuated instead of folding back
// and impulses survive whatever their phase against the decimation grid.
// A non-empty signal never resamples to zero samples.
func (interp *Interpolator) ResampleSignal(signal []float64, originalRate, targetRate int) []float64 {
	if len(signal) == 0 || originalRate <= 0 || targetRate <= 0 {
		return signal
	}
	if originalRate == targetRate {
		out := make([]float64, len(signal))
		copy(out, signal)
		return out
	}

	ratio := float64(originalRate) / float64(targetRate)
	newLength := max(int(float64(len(signal))/ratio), 1)
	resampled := make([]float64, newLength)

	if targetRate > originalRate {
		for i := range resampled {
			resampled[i] = interp.Interpolate(signal, float64(i)*ratio)
		}
		return resampled
	}

	lp := newLowPass(ratio)
	for i := range resampled {
		pos := float64(i) * ratio
		j := int(pos)
		frac := pos - float64(j)
		y := lp.at(signal, j)
		if frac > 0 {
			y += frac * (lp.at(signal, j+1) - y)
		}
		resampled[i] = y
	}

	return resampled
}

// antiAliasCutoff is the low-pass cutoff as a fraction of the target
// Nyquist frequency.
const antiAliasCutoff = 0.95

// lowPass is a linear-phase FIR evaluated on demand at source indices.
type lowPass struct {
	taps []float64
	half int
}

// newLowPass designs the anti-aliasing filter for a downsampling ratio
// (source rate / target rate, > 1). Taps are normalized to unit DC gain.
func newLowPass(ratio float64) *lowPass {
	half := int(math.Ceil(32 * ratio))
	fc := antiAliasCutoff * 0.5 / ratio // cycles per source sample
	n := 2*half + 1

	taps := make([]float64, n)
	sum := 0.0
	for k := range n {
		m := float64(k - half)
		x := 2 * fc * m
		sinc := 1.0
		if x != 0 {
			sinc = math.Sin(math.Pi*x) / (math.Pi * x)
		}
		phase := 2 * math.Pi * float64(k) / float64(n-1)
		blackman := 0.42 - 0.5*math.Cos(phase) + 0.08*math.Cos(2*phase)
		taps[k] = 2 * fc * sinc * blackman
		sum += taps[k]
	}
	for k := range taps {
		taps[k] /= sum
	}

	return &lowPass{taps: taps, half: half}
}

// at returns the filtered value at source index j. Samples beyond either
// end repeat the edge sample, which keeps a constant signal constant.
func (lp *lowPass) at(signal []float64, j int) float64 {
	last := len(signal) - 1
	acc := 0.0
	for k, h := range lp.taps {
		idx := min(max(j+k-lp.half, 0), last)
		acc += h * signal[idx]
	}
	return acc
}
