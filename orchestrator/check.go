package orchestrator

import (
	"errors"
	"io/fs"

	"github.com/maastricht-university/pitchbench/pitch"
)

// DirStatus describes one directory the pipeline expects.
type DirStatus struct {
	Role      string // "ground_truth", "raw" or "normalized"
	Model     string
	Condition pitch.Condition
	Path      string
	Exists    bool
	CSVFiles  int
}

// Check reports which inputs of the selected jobs are present on disk.
// Ground-truth directories shared by several jobs are listed once.
func (p *Pipeline) Check(sel Selection) ([]DirStatus, error) {
	jobs, err := p.Jobs(sel)
	if err != nil {
		return nil, err
	}
	var out []DirStatus
	seenGT := map[string]bool{}
	for _, j := range jobs {
		if !seenGT[j.GroundTruthDir] {
			seenGT[j.GroundTruthDir] = true
			st, err := stat("ground_truth", "", j.Condition, j.GroundTruthDir)
			if err != nil {
				return nil, err
			}
			out = append(out, st)
		}
		for _, d := range []struct{ role, path string }{
			{"raw", j.RawDir},
			{"normalized", j.NormalizedDir},
		} {
			st, err := stat(d.role, j.Model, j.Condition, d.path)
			if err != nil {
				return nil, err
			}
			out = append(out, st)
		}
	}
	return out, nil
}

func stat(role, model string, c pitch.Condition, dir string) (DirStatus, error) {
	st := DirStatus{Role: role, Model: model, Condition: c, Path: dir}
	files, err := listCSV(dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return st, nil
	case err != nil:
		return st, err
	}
	st.Exists = true
	st.CSVFiles = len(files)
	return st, nil
}
