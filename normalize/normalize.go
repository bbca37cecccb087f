// Package normalize aligns a raw pitch prediction onto a ground-truth time grid.
//
// Every output frame takes its voicing from the prediction frame nearest in
// time, ties going to the earlier frame. Voiced output frames are linearly
// interpolated between the closest voiced prediction frames on either side of
// the grid point, or copied from the only side that has one. Grid points past
// either end of the prediction clamp to the nearest endpoint under the same rule.
package normalize

import (
	"sort"

	"github.com/maastricht-university/pitchbench/pitch"
)

// Normalize returns a series with exactly the timestamps in times.
//
// An empty prediction against a non-empty grid yields an all-unvoiced series
// together with an error matching pitch.ErrEmptyPrediction, so batch callers
// can keep the zero series and report the file.
func Normalize(times []float64, pred pitch.Series) (pitch.Series, error) {
	if err := pitch.ValidateTimes(times); err != nil {
		return nil, err
	}
	if err := pred.Validate(); err != nil {
		return nil, err
	}

	out := make(pitch.Series, len(times))
	for i, t := range times {
		out[i].Time = t
	}
	if len(times) == 0 {
		return out, nil
	}
	if len(pred) == 0 {
		return out, &pitch.MalformedSeriesError{Index: -1, Reason: "no prediction frames", Err: pitch.ErrEmptyPrediction}
	}

	prev, next := voicedNeighbours(pred)
	for i, t := range times {
		out[i].Frequency = frequencyAt(pred, prev, next, t)
	}
	return out, nil
}

// To aligns pred onto the timestamps of gt.
func To(gt, pred pitch.Series) (pitch.Series, error) {
	return Normalize(gt.Times(), pred)
}

// voicedNeighbours indexes, for every frame, the last voiced frame at or before
// it and the first voiced frame at or after it (-1 when there is none).
func voicedNeighbours(s pitch.Series) (prev, next []int) {
	prev = make([]int, len(s))
	next = make([]int, len(s))
	last := -1
	for i, f := range s {
		if f.Voiced() {
			last = i
		}
		prev[i] = last
	}
	last = -1
	for i := len(s) - 1; i >= 0; i-- {
		if s[i].Voiced() {
			last = i
		}
		next[i] = last
	}
	return prev, next
}

func frequencyAt(pred pitch.Series, prev, next []int, t float64) float64 {
	// j is the first frame at or after t.
	j := sort.Search(len(pred), func(k int) bool { return pred[k].Time >= t })

	near := nearest(pred, j, t)
	if !pred[near].Voiced() {
		return 0
	}
	if j < len(pred) && pred[j].Time == t {
		return pred[j].Frequency
	}

	lo, hi := -1, -1
	if j > 0 {
		lo = prev[j-1]
	}
	if j < len(pred) {
		hi = next[j]
	}
	switch {
	case lo >= 0 && hi >= 0:
		return lerp(pred[lo], pred[hi], t)
	case lo >= 0:
		return pred[lo].Frequency
	case hi >= 0:
		return pred[hi].Frequency
	}
	return 0
}

func nearest(pred pitch.Series, j int, t float64) int {
	switch {
	case j == 0:
		return 0
	case j == len(pred):
		return len(pred) - 1
	}
	if pred[j].Time-t < t-pred[j-1].Time {
		return j
	}
	return j - 1
}

func lerp(a, b pitch.Frame, t float64) float64 {
	frac := (t - a.Time) / (b.Time - a.Time)
	return a.Frequency + frac*(b.Frequency-a.Frequency)
}
