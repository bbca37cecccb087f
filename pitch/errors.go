package pitch

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMalformedSeries = errors.New("malformed pitch series")
	// ErrEmptyPrediction accompanies the all-unvoiced series returned when a
	// prediction has no frames to align.
	ErrEmptyPrediction = errors.New("empty prediction series")
	ErrAlignment       = errors.New("series not aligned")
)

// MalformedSeriesError locates a series that breaks the ordering, range or
// schema rules. It matches ErrMalformedSeries and, through Err, any cause.
type MalformedSeriesError struct {
	Path   string
	Line   int // 1-based, 0 when the series did not come from a file
	Index  int // frame index, -1 when not tied to a frame
	Reason string
	Err    error
}

func (e *MalformedSeriesError) Error() string {
	var b strings.Builder
	b.WriteString(ErrMalformedSeries.Error())
	if e.Path != "" {
		b.WriteString(": ")
		b.WriteString(e.Path)
		if e.Line > 0 {
			fmt.Fprintf(&b, ":%d", e.Line)
		} else if e.Index >= 0 {
			fmt.Fprintf(&b, ": frame %d", e.Index)
		}
	} else if e.Index >= 0 {
		fmt.Fprintf(&b, ": frame %d", e.Index)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *MalformedSeriesError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrMalformedSeries}
	}
	return []error{ErrMalformedSeries, e.Err}
}

// AlignmentError reports a prediction whose grid differs from the ground truth.
type AlignmentError struct {
	Index   int // first mismatching frame, -1 on a length mismatch
	Want    float64
	Got     float64
	WantLen int
	Len     int
}

func (e *AlignmentError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%v: %d ground-truth frames, %d predicted", ErrAlignment, e.WantLen, e.Len)
	}
	return fmt.Sprintf("%v: frame %d at %vs, prediction at %vs", ErrAlignment, e.Index, e.Want, e.Got)
}

func (e *AlignmentError) Unwrap() error { return ErrAlignment }

// AtPath stamps a file path onto a MalformedSeriesError that lacks one.
// Other errors are returned unchanged.
func AtPath(err error, path string) error {
	var me *MalformedSeriesError
	if errors.As(err, &me) && me.Path == "" {
		cp := *me
		cp.Path = path
		return &cp
	}
	return err
}
