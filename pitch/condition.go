package pitch

import (
	"fmt"
	"strings"
)

// Condition tags the recording degradation a prediction was made under.
type Condition string

const (
	Clean             Condition = "clean"
	Distortion        Condition = "distortion"
	Noise5dB          Condition = "noise_5db"
	Noise15dB         Condition = "noise_15db"
	PitchShift25Cents Condition = "pitch_shift_25cents"
	PitchShift50Cents Condition = "pitch_shift_50cents"
)

var Conditions = []Condition{Clean, Distortion, Noise5dB, Noise15dB, PitchShift25Cents, PitchShift50Cents}

var layouts = map[Condition]string{
	Clean:             "clean",
	Distortion:        "distortion",
	Noise5dB:          "noise/5db",
	Noise15dB:         "noise/15db",
	PitchShift25Cents: "pitch_shift/25cents",
	PitchShift50Cents: "pitch_shift/50cents",
}

func ParseCondition(s string) (Condition, error) {
	c := Condition(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := layouts[c]; !ok {
		return "", fmt.Errorf("unknown condition %q", s)
	}
	return c, nil
}

// Layout is the directory, relative to a model's prediction root, that holds
// predictions for c.
func (c Condition) Layout() string { return layouts[c] }

func (c Condition) String() string { return string(c) }
