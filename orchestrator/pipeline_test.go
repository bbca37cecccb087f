package orchestrator

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maastricht-university/pitchbench/config"
	"github.com/maastricht-university/pitchbench/metrics"
	"github.com/maastricht-university/pitchbench/pitch"
)

const voicedGT = "0.0,0.0\n0.5,100.0\n1.0,100.0\n"

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

// fixture lays out one model "m" with a clean condition and an empty
// noise_5db condition under a temporary root.
func fixture(t *testing.T) *config.Root {
	t.Helper()
	root := t.TempDir()
	c := config.Default()
	c.Models = []string{"m"}
	c.Conditions = []config.Condition{
		{Name: "clean", Layout: "clean", GroundTruth: filepath.Join(root, "gt")},
		{Name: "noise_5db", Layout: "noise/5db", GroundTruth: filepath.Join(root, "gt")},
	}
	c.Paths.Predictions = filepath.Join(root, "predictions")
	c.Paths.Metrics = filepath.Join(root, "metrics")
	c.Evaluation.Workers = 2
	c.Evaluation.AverageRow = true
	require.NoError(t, c.Validate())

	gt := filepath.Join(root, "gt")
	writeFile(t, filepath.Join(gt, "a.csv"), voicedGT)
	writeFile(t, filepath.Join(gt, "b.csv"), voicedGT)
	writeFile(t, filepath.Join(gt, "c.csv"), "0.0,0.0\n0.5,0.0\n")
	writeFile(t, filepath.Join(gt, "d.csv"), voicedGT)

	raw := filepath.Join(c.Paths.Predictions, "m", "clean")
	writeFile(t, filepath.Join(raw, "a.wav.csv"), "0.0,0.0\n0.5,100.0\n1.0,100.0\n")
	writeFile(t, filepath.Join(raw, "b.csv"), "")
	writeFile(t, filepath.Join(raw, "c.csv"), "0.0,0.0\n0.5,0.0\n")
	writeFile(t, filepath.Join(raw, "d.csv"), "time,frequency\n0.0,0.0\n")
	writeFile(t, filepath.Join(raw, "e.csv"), "0.0,0.0\n")
	return c
}

func newTestPipeline(c *config.Root) (*Pipeline, *test.Hook) {
	log, hook := test.NewNullLogger()
	p := NewPipeline(c, log)
	p.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	return p, hook
}

func TestRun(t *testing.T) {
	c := fixture(t)
	p, hook := newTestPipeline(c)

	report, err := p.Run(context.Background(), Selection{})
	require.NoError(t, err)
	require.Len(t, report.Jobs, 2)

	clean := report.Jobs[0]
	assert.Equal(t, pitch.Clean, clean.Condition)
	assert.Empty(t, clean.Skipped)
	assert.Equal(t, 3, clean.Normalized)
	assert.Equal(t, []string{"b.csv"}, clean.EmptyPreds)
	assert.Equal(t, 3, clean.Evaluated)
	assert.Equal(t, 2, clean.Failed)
	assert.Equal(t, []string{"c.csv"}, clean.Undefined)

	noise := report.Jobs[1]
	assert.Equal(t, pitch.Noise5dB, noise.Condition)
	assert.NotEmpty(t, noise.Skipped)
	assert.Empty(t, noise.MetricsPath)
	assert.NoFileExists(t, MetricsPath(c.Paths.Metrics, "m", pitch.Noise5dB))

	require.Len(t, report.Failures, 2)
	assert.Equal(t, "d.csv", report.Failures[0].File)
	assert.Equal(t, "e.csv", report.Failures[1].File)
	for _, f := range report.Failures {
		assert.Equal(t, StageNormalize, f.Stage)
	}
	assert.Equal(t, 3, report.Evaluated())

	normalized, err := pitch.ReadSeriesFile(filepath.Join(c.Paths.Predictions, "m_normalized", "clean", "b.csv"))
	require.NoError(t, err)
	assert.Equal(t, pitch.Series{{Time: 0, Frequency: 0}, {Time: 0.5, Frequency: 0}, {Time: 1, Frequency: 0}}, normalized)

	recs, err := metrics.ReadCSVFile(clean.MetricsPath, "m", pitch.Clean)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "a.wav.csv", recs[0].Filename)
	assert.Equal(t, 1.0, recs[0].OA)
	assert.Equal(t, 1.0, recs[0].RPA)
	assert.Equal(t, "b.csv", recs[1].Filename)
	assert.InDelta(t, 1.0/3, recs[1].OA, 1e-12)
	assert.Equal(t, 0.0, recs[1].VR)
	assert.Equal(t, "c.csv", recs[2].Filename)
	assert.Equal(t, 1.0, recs[2].OA)
	assert.True(t, math.IsNaN(recs[2].RPA))

	body, err := os.ReadFile(clean.MetricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(body), "\nAVERAGE,")

	assert.Equal(t, "session_20240102-030405", report.SessionID)
	assert.Equal(t, filepath.Join(c.Paths.Metrics, "runs", report.SessionID, "run.json"), report.BundlePath)
	raw, err := os.ReadFile(report.BundlePath)
	require.NoError(t, err)
	var back RunReport
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, report.SessionID, back.SessionID)
	assert.Len(t, back.Failures, 2)
	assert.Equal(t, metrics.DefaultTolerance, back.Tolerance)

	var errs int
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel {
			errs++
			assert.Equal(t, "m", e.Data["model"])
			assert.Equal(t, pitch.Clean, e.Data["condition"])
		}
	}
	assert.Equal(t, 2, errs)
}

func TestRunSkipNormalize(t *testing.T) {
	c := fixture(t)
	p, _ := newTestPipeline(c)

	// Without a prior normalization pass there is nothing to evaluate.
	report, err := p.Run(context.Background(), Selection{SkipNormalize: true})
	require.NoError(t, err)
	for _, j := range report.Jobs {
		assert.NotEmpty(t, j.Skipped)
		assert.Zero(t, j.Normalized)
	}

	_, err = p.Run(context.Background(), Selection{Conditions: []pitch.Condition{pitch.Clean}})
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(filepath.Join(c.Paths.Predictions, "m")))

	report, err = p.Run(context.Background(), Selection{Conditions: []pitch.Condition{pitch.Clean}, SkipNormalize: true})
	require.NoError(t, err)
	require.Len(t, report.Jobs, 1)
	assert.Equal(t, 3, report.Jobs[0].Evaluated)
	assert.Zero(t, report.Jobs[0].Failed)
}

func TestRunMissingRawEvaluatesNormalized(t *testing.T) {
	c := fixture(t)
	p, hook := newTestPipeline(c)
	sel := Selection{Conditions: []pitch.Condition{pitch.Clean}}

	_, err := p.Run(context.Background(), sel)
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(filepath.Join(c.Paths.Predictions, "m", "clean")))
	hook.Reset()

	report, err := p.Run(context.Background(), sel)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Jobs[0].Evaluated)
	assert.Zero(t, report.Jobs[0].Normalized)

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Data["dir"] != nil {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestRerunDropsStaleOutput(t *testing.T) {
	c := fixture(t)
	p, _ := newTestPipeline(c)
	staleNoise := MetricsPath(c.Paths.Metrics, "m", pitch.Noise5dB)
	writeFile(t, staleNoise, "filename,OA,RPA,RCA,VR\nold.csv,1,1,1,1\n")

	_, err := p.Run(context.Background(), Selection{})
	require.NoError(t, err)
	assert.NoFileExists(t, staleNoise)
	normalized := filepath.Join(c.Paths.Predictions, "m_normalized", "clean", "a.wav.csv")
	require.FileExists(t, normalized)

	// a.wav.csv now goes backwards in time
	writeFile(t, filepath.Join(c.Paths.Predictions, "m", "clean", "a.wav.csv"), "0.5,100.0\n0.0,100.0\n")
	report, err := p.Run(context.Background(), Selection{})
	require.NoError(t, err)

	clean := report.Jobs[0]
	assert.Equal(t, 2, clean.Normalized)
	assert.Equal(t, 2, clean.Evaluated)
	assert.NoFileExists(t, normalized)

	var failed []string
	for _, f := range report.Failures {
		failed = append(failed, f.File)
	}
	assert.Equal(t, []string{"a.wav.csv", "d.csv", "e.csv"}, failed)

	recs, err := metrics.ReadCSVFile(clean.MetricsPath, "m", pitch.Clean)
	require.NoError(t, err)
	var names []string
	for _, r := range recs {
		names = append(names, r.Filename)
	}
	assert.Equal(t, []string{"b.csv", "c.csv"}, names)
}

func TestRunWithoutRawIgnoresOrphans(t *testing.T) {
	c := fixture(t)
	p, _ := newTestPipeline(c)
	orphan := filepath.Join(c.Paths.Predictions, "m_normalized", "clean", "gone.csv")
	writeFile(t, orphan, "0.0,0.0\n")

	report, err := p.Run(context.Background(), Selection{Conditions: []pitch.Condition{pitch.Clean}})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Jobs[0].Evaluated)
	assert.Len(t, report.Failures, 2)
}

func TestRunCancelled(t *testing.T) {
	c := fixture(t)
	p, _ := newTestPipeline(c)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Run(ctx, Selection{})
	require.ErrorIs(t, err, context.Canceled)
	assert.NoDirExists(t, filepath.Join(c.Paths.Metrics, "runs"))
}

func TestJobs(t *testing.T) {
	c := fixture(t)
	p, _ := newTestPipeline(c)

	jobs, err := p.Jobs(Selection{})
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, filepath.Join(c.Paths.Predictions, "m", "noise/5db"), jobs[1].RawDir)
	assert.Equal(t, filepath.Join(c.Paths.Predictions, "m_normalized", "noise/5db"), jobs[1].NormalizedDir)
	assert.Equal(t, filepath.Join(c.Paths.Metrics, "m_noise_5db.csv"), jobs[1].MetricsPath)

	jobs, err = p.Jobs(Selection{Models: []string{"m"}, Conditions: []pitch.Condition{pitch.Noise5dB}})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, pitch.Noise5dB, jobs[0].Condition)

	_, err = p.Jobs(Selection{Models: []string{"crepe"}})
	assert.ErrorContains(t, err, `model "crepe"`)
	_, err = p.Jobs(Selection{Conditions: []pitch.Condition{pitch.Distortion}})
	assert.ErrorContains(t, err, `condition "distortion"`)
}

func TestCheck(t *testing.T) {
	c := fixture(t)
	p, _ := newTestPipeline(c)

	st, err := p.Check(Selection{})
	require.NoError(t, err)
	// one shared ground-truth dir, then raw and normalized per job
	require.Len(t, st, 5)
	assert.Equal(t, "ground_truth", st[0].Role)
	assert.True(t, st[0].Exists)
	assert.Equal(t, 4, st[0].CSVFiles)
	assert.Equal(t, "raw", st[1].Role)
	assert.Equal(t, 5, st[1].CSVFiles)
	assert.Equal(t, "normalized", st[2].Role)
	assert.False(t, st[2].Exists)
	assert.False(t, st[3].Exists)
}
