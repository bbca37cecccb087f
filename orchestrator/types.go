package orchestrator

import (
	"time"

	"github.com/maastricht-university/pitchbench/pitch"
)

// Selection narrows a run. Empty slices mean every configured model or condition.
type Selection struct {
	Models        []string
	Conditions    []pitch.Condition
	SkipNormalize bool
}

// Job is one (model, condition) pair with its directories resolved.
type Job struct {
	Model          string
	Condition      pitch.Condition
	RawDir         string
	NormalizedDir  string
	GroundTruthDir string
	MetricsPath    string
}

const (
	StageNormalize = "normalize"
	StageEvaluate  = "evaluate"
)

// Failure is a file that was logged and skipped.
type Failure struct {
	Model     string          `json:"model"`
	Condition pitch.Condition `json:"condition"`
	Stage     string          `json:"stage"`
	File      string          `json:"file"`
	Reason    string          `json:"reason"`
}

type JobReport struct {
	Model       string          `json:"model"`
	Condition   pitch.Condition `json:"condition"`
	Skipped     string          `json:"skipped,omitempty"`
	Normalized  int             `json:"normalized"`
	EmptyPreds  []string        `json:"empty_predictions,omitempty"`
	Evaluated   int             `json:"evaluated"`
	Failed      int             `json:"failed"`
	Undefined   []string        `json:"undefined_metrics,omitempty"`
	MetricsPath string          `json:"metrics_path,omitempty"`
}

// RunReport is persisted as run.json in the session directory.
type RunReport struct {
	SessionID   string      `json:"session_id"`
	GeneratedAt time.Time   `json:"generated_at"`
	Tolerance   float64     `json:"pitch_tolerance_cents"`
	Jobs        []JobReport `json:"jobs"`
	Failures    []Failure   `json:"failures"`
	BundlePath  string      `json:"-"`
}

func (r *RunReport) Evaluated() int {
	n := 0
	for _, j := range r.Jobs {
		n += j.Evaluated
	}
	return n
}
