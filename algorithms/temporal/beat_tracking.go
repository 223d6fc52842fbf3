package temporal

import (
	"math"

	"github.com/RyanBlaney/beatwizard/algorithms/common"
)

// BeatTracker places beats on an onset envelope by dynamic programming:
// every frame's cumulative score is its onset strength plus the best score
// one beat period earlier, penalized by how far the interval deviates from
// the period on a log scale
type BeatTracker struct {
	Tightness float64
	envelope  *Envelope
}

// NewBeatTracker creates a beat tracker with tightness 100
func NewBeatTracker() *BeatTracker {
	return &BeatTracker{
		Tightness: 100,
		envelope:  NewEnvelope(),
	}
}

// Track returns beat frame indices in increasing order. periodFrames is the
// beat period in envelope frames; a non-positive period or an empty
// envelope yields no beats.
func (bt *BeatTracker) Track(env *OnsetEnvelope, periodFrames float64) []int {
	if env == nil || periodFrames <= 0 || env.IsZero() {
		return []int{}
	}

	local := bt.localScore(env.Values, periodFrames)
	cumulative, backlink := bt.cumulativeScore(local, periodFrames)

	last := lastBeat(cumulative)
	if last < 0 {
		return []int{}
	}

	beats := []int{}
	for b := last; b >= 0; b = backlink[b] {
		beats = append(beats, b)
	}
	for i, j := 0, len(beats)-1; i < j; i, j = i+1, j-1 {
		beats[i], beats[j] = beats[j], beats[i]
	}

	return trimBeats(local, beats)
}

// localScore normalizes the envelope by its standard deviation and smooths
// it with a Gaussian a fraction of a period wide
func (bt *BeatTracker) localScore(values []float64, period float64) []float64 {
	std := common.StandardDeviation(values)
	normalized := make([]float64, len(values))
	for i, v := range values {
		normalized[i] = common.SafeDivide(v, std)
	}
	return bt.envelope.ComputeGaussianSmoothed(normalized, period/32)
}

func (bt *BeatTracker) cumulativeScore(local []float64, period float64) ([]float64, []int) {
	cumulative := make([]float64, len(local))
	backlink := make([]int, len(local))

	windowStart := int(math.Round(2 * period))
	windowEnd := max(int(math.Round(period/2)), 1)

	for t := range local {
		backlink[t] = -1
		cumulative[t] = local[t]

		lo := max(t-windowStart, 0)
		hi := t - windowEnd
		if hi < lo {
			continue
		}

		best := math.Inf(-1)
		bestPrev := -1
		for prev := lo; prev <= hi; prev++ {
			penalty := math.Log(float64(t-prev) / period)
			score := cumulative[prev] - bt.Tightness*penalty*penalty
			if score > best {
				best = score
				bestPrev = prev
			}
		}

		cumulative[t] = local[t] + best
		backlink[t] = bestPrev
	}

	return cumulative, backlink
}

// lastBeat returns the last local maximum of the cumulative score that
// exceeds half the median of all local maxima
func lastBeat(cumulative []float64) int {
	var peaks []int
	for t := range cumulative {
		left := t == 0 || cumulative[t] > cumulative[t-1]
		right := t == len(cumulative)-1 || cumulative[t] >= cumulative[t+1]
		if left && right {
			peaks = append(peaks, t)
		}
	}
	if len(peaks) == 0 {
		return -1
	}

	values := make([]float64, len(peaks))
	for i, p := range peaks {
		values[i] = cumulative[p]
	}
	threshold := 0.5 * common.Median(values)

	for i := len(peaks) - 1; i >= 0; i-- {
		if cumulative[peaks[i]] > threshold {
			return peaks[i]
		}
	}
	return peaks[len(peaks)-1]
}

// trimBeats drops leading and trailing beats whose local score is at most
// half the RMS local score of all beats
func trimBeats(local []float64, beats []int) []int {
	if len(beats) == 0 {
		return beats
	}

	sumSquares := 0.0
	for _, b := range beats {
		sumSquares += local[b] * local[b]
	}
	threshold := 0.5 * math.Sqrt(sumSquares/float64(len(beats)))

	start, end := 0, len(beats)
	for start < end && local[beats[start]] <= threshold {
		start++
	}
	for end > start && local[beats[end-1]] <= threshold {
		end--
	}
	return beats[start:end]
}
