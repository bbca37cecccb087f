package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	cfg "github.com/maastricht-university/pitchbench/config"
	"github.com/maastricht-university/pitchbench/metrics"
	"github.com/maastricht-university/pitchbench/normalize"
	"github.com/maastricht-university/pitchbench/pitch"
)

type Pipeline struct {
	cfg      *cfg.Root
	log      logrus.FieldLogger
	eval     *metrics.Evaluator
	progress io.Writer // nil disables progress bars
	now      func() time.Time
}

func NewPipeline(c *cfg.Root, log logrus.FieldLogger) *Pipeline {
	p := &Pipeline{
		cfg:  c,
		log:  log,
		eval: metrics.NewEvaluator(c.Evaluation.ToleranceCents),
		now:  time.Now,
	}
	return p
}

// WithProgress draws a progress bar per stage on w.
func (p *Pipeline) WithProgress(w io.Writer) *Pipeline {
	p.progress = w
	return p
}

// Jobs expands the selection into (model, condition) pairs in configuration order.
func (p *Pipeline) Jobs(sel Selection) ([]Job, error) {
	for _, m := range sel.Models {
		if !slices.Contains(p.cfg.Models, m) {
			return nil, fmt.Errorf("model %q is not configured", m)
		}
	}
	for _, c := range sel.Conditions {
		if _, ok := p.cfg.Condition(c); !ok {
			return nil, fmt.Errorf("condition %q is not configured", c)
		}
	}
	var jobs []Job
	for _, m := range p.cfg.Models {
		if len(sel.Models) > 0 && !slices.Contains(sel.Models, m) {
			continue
		}
		for _, c := range p.cfg.Conditions {
			if len(sel.Conditions) > 0 && !slices.Contains(sel.Conditions, c.Tag()) {
				continue
			}
			jobs = append(jobs, resolveJob(p.cfg, m, c))
		}
	}
	return jobs, nil
}

// Run normalizes and evaluates every selected job, writes one metrics CSV per
// job and a run bundle. Failing files are logged and skipped; only output
// write errors and interruption end the run early.
func (p *Pipeline) Run(ctx context.Context, sel Selection) (*RunReport, error) {
	jobs, err := p.Jobs(sel)
	if err != nil {
		return nil, err
	}
	report := &RunReport{
		GeneratedAt: p.now(),
		Tolerance:   p.eval.Tolerance(),
		Failures:    []Failure{},
	}
	for _, job := range jobs {
		jr, failures, err := p.RunJob(ctx, job, sel.SkipNormalize)
		report.Jobs = append(report.Jobs, jr)
		report.Failures = append(report.Failures, failures...)
		if err != nil {
			return report, err
		}
	}

	path, err := persist(p.cfg.Paths.Metrics, report)
	if err != nil {
		return report, fmt.Errorf("persist run: %w", err)
	}
	report.BundlePath = path
	p.log.WithFields(logrus.Fields{
		"session":   report.SessionID,
		"jobs":      len(report.Jobs),
		"evaluated": report.Evaluated(),
		"failures":  len(report.Failures),
	}).Info("run complete")
	return report, nil
}

// RunJob handles one (model, condition). When raw predictions exist only the
// files normalized by this call are evaluated, so a file that now fails never
// reuses an earlier run's output. A job left with nothing to evaluate drops
// its previous metrics table.
func (p *Pipeline) RunJob(ctx context.Context, job Job, skipNormalize bool) (JobReport, []Failure, error) {
	log := p.log.WithFields(logrus.Fields{"model": job.Model, "condition": job.Condition})
	jr := JobReport{Model: job.Model, Condition: job.Condition}
	var (
		failures []Failure
		files    []string
		fresh    bool
	)

	if !skipNormalize {
		written, empty, fails, err := p.normalizeStage(ctx, job, log)
		jr.Normalized, jr.EmptyPreds = len(written), empty
		failures = append(failures, fails...)
		if err != nil {
			jr.Failed = len(failures)
			return jr, failures, err
		}
		files, fresh = written, written != nil
	}

	if !fresh {
		var err error
		files, err = listCSV(job.NormalizedDir)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return jr, failures, err
		}
	}
	if len(files) == 0 {
		jr.Skipped = "no normalized predictions in " + job.NormalizedDir
		jr.Failed = len(failures)
		log.Warn("skipping: " + jr.Skipped)
		if err := removeStale(job.MetricsPath); err != nil {
			return jr, failures, fmt.Errorf("remove stale metrics: %w", err)
		}
		return jr, failures, nil
	}

	records, undefined, fails, err := p.evaluateStage(ctx, job, files, log)
	failures = append(failures, fails...)
	jr.Failed = len(failures)
	jr.Undefined = undefined
	if err != nil {
		return jr, failures, err
	}
	if err := metrics.WriteCSVFile(job.MetricsPath, records, p.cfg.Evaluation.AverageRow); err != nil {
		return jr, failures, fmt.Errorf("write metrics: %w", err)
	}
	jr.Evaluated = len(records)
	jr.MetricsPath = job.MetricsPath
	log.WithFields(logrus.Fields{"files": len(records), "failed": jr.Failed, "output": job.MetricsPath}).Info("evaluated")
	return jr, failures, nil
}

// removeStale deletes an output left by an earlier run, if any.
func removeStale(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

type normalizeResult struct {
	out   string
	empty bool
	err   error
}

// normalizeStage returns the normalized files it wrote, in raw file order. It
// returns nil without failures when there are no raw predictions at all.
func (p *Pipeline) normalizeStage(ctx context.Context, job Job, log logrus.FieldLogger) ([]string, []string, []Failure, error) {
	files, err := listCSV(job.RawDir)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && len(files) == 0) {
		log.WithField("dir", job.RawDir).Warn("no raw predictions, evaluating existing normalized output")
		return nil, nil, nil, nil
	}
	if err != nil {
		return nil, nil, nil, err
	}

	results := make([]normalizeResult, len(files))
	bar := newProgress(p.progress, fmt.Sprintf("normalize %s/%s", job.Model, job.Condition), len(files))
	err = forEach(ctx, p.cfg.Evaluation.Workers, len(files), bar, func(i int) {
		r := &results[i]
		r.out = filepath.Join(job.NormalizedDir, filepath.Base(files[i]))
		r.empty, r.err = p.normalizeFile(job, files[i], r.out)
	})
	bar.Wait()
	if err != nil {
		return nil, nil, nil, err
	}

	var (
		written  = []string{}
		empty    []string
		failures []Failure
	)
	for i, r := range results {
		name := filepath.Base(files[i])
		if r.err != nil {
			log.WithField("file", name).WithError(r.err).Error("normalization failed, skipping file")
			failures = append(failures, Failure{
				Model: job.Model, Condition: job.Condition, Stage: StageNormalize, File: name, Reason: r.err.Error(),
			})
			if err := removeStale(r.out); err != nil {
				return nil, nil, failures, err
			}
			continue
		}
		if r.empty {
			log.WithField("file", name).Warn("prediction has no frames, wrote an all-unvoiced series")
			empty = append(empty, name)
		}
		written = append(written, r.out)
	}
	return written, empty, failures, nil
}

// normalizeFile aligns one raw prediction onto its ground truth and writes it
// to outPath. empty reports a prediction without frames.
func (p *Pipeline) normalizeFile(job Job, predPath, outPath string) (empty bool, err error) {
	gtPath := groundTruthPath(job.GroundTruthDir, TrackID(predPath))
	gt, err := pitch.ReadSeriesFile(gtPath)
	if err != nil {
		return false, fmt.Errorf("ground truth: %w", err)
	}
	pred, err := pitch.ReadSeriesFile(predPath)
	if err != nil {
		return false, err
	}
	out, err := normalize.To(gt, pred)
	switch {
	case errors.Is(err, pitch.ErrEmptyPrediction):
		empty = true
	case err != nil:
		return false, pitch.AtPath(err, predPath)
	}
	return empty, pitch.WriteSeriesFile(outPath, out)
}

type evaluateResult struct {
	rec metrics.Record
	err error
}

func (p *Pipeline) evaluateStage(ctx context.Context, job Job, files []string, log logrus.FieldLogger) ([]metrics.Record, []string, []Failure, error) {
	results := make([]evaluateResult, len(files))
	bar := newProgress(p.progress, fmt.Sprintf("evaluate %s/%s", job.Model, job.Condition), len(files))
	err := forEach(ctx, p.cfg.Evaluation.Workers, len(files), bar, func(i int) {
		results[i] = p.evaluateFile(job, files[i])
	})
	bar.Wait()
	if err != nil {
		return nil, nil, nil, err
	}

	var (
		records   []metrics.Record
		undefined []string
		failures  []Failure
	)
	for i, r := range results {
		name := filepath.Base(files[i])
		if r.err != nil {
			log.WithField("file", name).WithError(r.err).Error("evaluation failed, skipping file")
			failures = append(failures, Failure{
				Model: job.Model, Condition: job.Condition, Stage: StageEvaluate, File: name, Reason: r.err.Error(),
			})
			continue
		}
		if !r.rec.Defined() {
			log.WithField("file", name).Warn("no voiced ground-truth frames, RPA, RCA and VR are undefined")
			undefined = append(undefined, name)
		}
		records = append(records, r.rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Filename < records[j].Filename })
	return records, undefined, failures, nil
}

func (p *Pipeline) evaluateFile(job Job, predPath string) evaluateResult {
	gtPath := groundTruthPath(job.GroundTruthDir, TrackID(predPath))
	gt, err := pitch.ReadSeriesFile(gtPath)
	if err != nil {
		return evaluateResult{err: fmt.Errorf("ground truth: %w", err)}
	}
	pred, err := pitch.ReadSeriesFile(predPath)
	if err != nil {
		return evaluateResult{err: err}
	}
	scores, err := p.eval.Evaluate(gt, pred)
	if err != nil {
		return evaluateResult{err: pitch.AtPath(err, predPath)}
	}
	return evaluateResult{rec: metrics.Record{
		Filename:  filepath.Base(predPath),
		Model:     job.Model,
		Condition: job.Condition,
		Scores:    scores,
	}}
}
