// Package metrics scores an aligned pitch prediction against its ground truth
// with the standard melody-extraction measures: overall accuracy (OA), raw pitch
// accuracy (RPA), raw chroma accuracy (RCA) and voicing recall (VR).
package metrics

import (
	"math"

	"github.com/maastricht-university/pitchbench/pitch"
)

const (
	// DefaultTolerance is a quarter tone, in cents.
	DefaultTolerance = 50.0

	// Timestamps closer than this are the same grid point.
	timeTolerance = 1e-9

	// Slack on the cents comparison so that a shift of exactly the
	// tolerance survives log2 rounding.
	centsSlack = 1e-9
)

const (
	OA  = "OA"
	RPA = "RPA"
	RCA = "RCA"
	VR  = "VR"
)

// Names lists the metrics in metrics CSV column order.
var Names = []string{OA, RPA, RCA, VR}

// Undefined marks a ratio whose denominator is zero. RPA, RCA and VR are
// undefined for a file without voiced ground-truth frames.
var Undefined = math.NaN()

func IsUndefined(v float64) bool { return math.IsNaN(v) }

// Scores holds the four metrics for one file along with the frame counts
// they were computed from.
type Scores struct {
	OA, RPA, RCA, VR float64
	Frames           int
	VoicedFrames     int // voiced ground-truth frames
}

// Defined is false when RPA, RCA and VR carry the Undefined sentinel.
func (s Scores) Defined() bool { return s.VoicedFrames > 0 }

// Get returns the metric called name, or Undefined for an unknown name.
func (s Scores) Get(name string) float64 {
	switch name {
	case OA:
		return s.OA
	case RPA:
		return s.RPA
	case RCA:
		return s.RCA
	case VR:
		return s.VR
	}
	return Undefined
}

// Record is the result for one (model, condition, file).
type Record struct {
	Filename  string
	Model     string
	Condition pitch.Condition
	Scores
}

type Evaluator struct {
	tolerance float64 // cents
}

// NewEvaluator builds an evaluator with the given pitch tolerance in cents.
// A non-positive tolerance selects DefaultTolerance.
func NewEvaluator(toleranceCents float64) *Evaluator {
	if toleranceCents <= 0 {
		toleranceCents = DefaultTolerance
	}
	return &Evaluator{tolerance: toleranceCents}
}

func (e *Evaluator) Tolerance() float64 { return e.tolerance }

// Evaluate scores pred against gt. The two series must share their timestamps
// frame for frame; any difference is an *pitch.AlignmentError.
func (e *Evaluator) Evaluate(gt, pred pitch.Series) (Scores, error) {
	if len(gt) == 0 {
		return Scores{}, &pitch.MalformedSeriesError{Index: -1, Reason: "empty ground truth"}
	}
	if err := gt.Validate(); err != nil {
		return Scores{}, err
	}
	if err := pred.Validate(); err != nil {
		return Scores{}, err
	}
	if err := checkAligned(gt, pred); err != nil {
		return Scores{}, err
	}

	var overall, voiced, recalled, rawPitch, rawChroma int
	for i, g := range gt {
		p := pred[i]
		switch {
		case !g.Voiced() && !p.Voiced():
			overall++
		case g.Voiced():
			voiced++
			if !p.Voiced() {
				continue
			}
			recalled++
			c := Cents(p.Frequency, g.Frequency)
			if math.Abs(c) <= e.tolerance+centsSlack {
				rawPitch++
				overall++
			}
			if math.Abs(Chroma(c)) <= e.tolerance+centsSlack {
				rawChroma++
			}
		}
	}

	return Scores{
		OA:           ratio(overall, len(gt)),
		RPA:          ratio(rawPitch, voiced),
		RCA:          ratio(rawChroma, voiced),
		VR:           ratio(recalled, voiced),
		Frames:       len(gt),
		VoicedFrames: voiced,
	}, nil
}

func checkAligned(gt, pred pitch.Series) error {
	if len(gt) != len(pred) {
		return &pitch.AlignmentError{Index: -1, WantLen: len(gt), Len: len(pred)}
	}
	for i := range gt {
		if math.Abs(gt[i].Time-pred[i].Time) > timeTolerance {
			return &pitch.AlignmentError{Index: i, Want: gt[i].Time, Got: pred[i].Time, WantLen: len(gt), Len: len(pred)}
		}
	}
	return nil
}

// Cents is the signed distance from ref to f; 1200 cents make an octave.
func Cents(f, ref float64) float64 {
	return 1200 * math.Log2(f/ref)
}

// Chroma folds a cents distance into [-600, 600], discarding whole octaves.
func Chroma(cents float64) float64 {
	return math.Remainder(cents, 1200)
}

func ratio(n, d int) float64 {
	if d == 0 {
		return Undefined
	}
	return float64(n) / float64(d)
}
