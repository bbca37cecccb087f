package pitch

import (
	"fmt"
	"math"
)

// Frame is one point of a pitch track. A zero frequency marks the frame unvoiced.
type Frame struct {
	Time      float64 // sec
	Frequency float64 // Hz, 0 = unvoiced
}

func (f Frame) Voiced() bool { return f.Frequency > 0 }

// Series is a pitch track with strictly increasing timestamps.
type Series []Frame

func (s Series) Times() []float64 {
	out := make([]float64, len(s))
	for i, f := range s {
		out[i] = f.Time
	}
	return out
}

func (s Series) Frequencies() []float64 {
	out := make([]float64, len(s))
	for i, f := range s {
		out[i] = f.Frequency
	}
	return out
}

func (s Series) VoicedCount() int {
	n := 0
	for _, f := range s {
		if f.Voiced() {
			n++
		}
	}
	return n
}

// Validate reports the first frame that breaks ordering or carries a negative or
// non-finite value.
func (s Series) Validate() error {
	for i, f := range s {
		if reason := checkValue("time", f.Time); reason != "" {
			return &MalformedSeriesError{Index: i, Reason: reason}
		}
		if reason := checkValue("frequency", f.Frequency); reason != "" {
			return &MalformedSeriesError{Index: i, Reason: reason}
		}
		if i > 0 && f.Time <= s[i-1].Time {
			return &MalformedSeriesError{Index: i, Reason: fmt.Sprintf("time %v does not follow %v", f.Time, s[i-1].Time)}
		}
	}
	return nil
}

// ValidateTimes applies the timestamp rules of Validate to a bare time grid.
func ValidateTimes(times []float64) error {
	for i, t := range times {
		if reason := checkValue("time", t); reason != "" {
			return &MalformedSeriesError{Index: i, Reason: reason}
		}
		if i > 0 && t <= times[i-1] {
			return &MalformedSeriesError{Index: i, Reason: fmt.Sprintf("time %v does not follow %v", t, times[i-1])}
		}
	}
	return nil
}

func checkValue(name string, v float64) string {
	switch {
	case math.IsNaN(v) || math.IsInf(v, 0):
		return fmt.Sprintf("non-finite %s %v", name, v)
	case v < 0:
		return fmt.Sprintf("negative %s %v", name, v)
	}
	return ""
}
