package orchestrator

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/maastricht-university/pitchbench/config"
	"github.com/maastricht-university/pitchbench/pitch"
)

// listCSV returns the sorted *.csv files directly under dir. A missing
// directory is reported through the os error.
func listCSV(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// TrackID strips the directory and the .csv/.wav extensions a file name may
// carry ("MusicDelta_Rock_STEM_02.wav.csv" -> "MusicDelta_Rock_STEM_02").
func TrackID(path string) string {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, ".csv")
	name = strings.TrimSuffix(name, ".wav")
	return name
}

func groundTruthPath(dir, track string) string {
	return filepath.Join(dir, track+".csv")
}

func resolveJob(cfg *config.Root, model string, c config.Condition) Job {
	return Job{
		Model:          model,
		Condition:      c.Tag(),
		RawDir:         filepath.Join(cfg.Paths.Predictions, model, c.Layout),
		NormalizedDir:  filepath.Join(cfg.Paths.Predictions, model+"_normalized", c.Layout),
		GroundTruthDir: c.GroundTruth,
		MetricsPath:    MetricsPath(cfg.Paths.Metrics, model, c.Tag()),
	}
}

// MetricsPath is where the metrics table for (model, condition) lives.
func MetricsPath(root, model string, c pitch.Condition) string {
	return filepath.Join(root, model+"_"+string(c)+".csv")
}
