package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/maastricht-university/pitchbench/metrics"
	"github.com/maastricht-university/pitchbench/pitch"
)

type Pipeline struct {
	Name      string `yaml:"name"`
	Version   string `yaml:"version"`
	LogLvl    string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

type Evaluation struct {
	ToleranceCents float64 `yaml:"pitch_tolerance_cents"`
	Workers        int     `yaml:"workers"`
	AverageRow     bool    `yaml:"average_row"`
	Progress       bool    `yaml:"progress"`
}

// Condition places one experiment on disk. Layout is relative to each model's
// prediction directory; GroundTruth holds the reference CSVs.
type Condition struct {
	Name        string `yaml:"name"`
	Layout      string `yaml:"layout"`
	GroundTruth string `yaml:"ground_truth"`
}

func (c Condition) Tag() pitch.Condition { return pitch.Condition(c.Name) }

type Paths struct {
	Predictions string `yaml:"predictions"`
	Metrics     string `yaml:"metrics"`
	Summary     string `yaml:"summary"`
	Manifests   string `yaml:"manifests"`
}

type Root struct {
	Pipeline   Pipeline    `yaml:"pipeline"`
	Evaluation Evaluation  `yaml:"evaluation"`
	Models     []string    `yaml:"models"`
	Conditions []Condition `yaml:"conditions"`
	Paths      Paths       `yaml:"paths"`
}

// Load looks for config/<CONFIG_ENV>/config.yaml (CONFIG_ENV defaults to dev),
// then pitchbench.yaml in the working directory. The returned error matches
// fs.ErrNotExist when neither file exists.
func Load() (*Root, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	guess := []string{
		filepath.Join("config", env, "config.yaml"),
		"pitchbench.yaml",
	}
	var err error
	for _, p := range guess {
		var cfg *Root
		if cfg, err = LoadFile(p); err == nil {
			return cfg, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return nil, err
}

func LoadFile(path string) (*Root, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	cfg, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Decode reads YAML, rejecting unknown keys, and fills defaults.
func Decode(r io.Reader) (*Root, error) {
	var cfg Root
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Default is the configuration used when no file is found: the three
// benchmarked models over the MedleyDB-Pitch layout.
func Default() *Root {
	var cfg Root
	cfg.applyDefaults()
	return &cfg
}

func (r *Root) applyDefaults() {
	if r.Pipeline.Name == "" {
		r.Pipeline.Name = "pitchbench"
	}
	if r.Pipeline.LogLvl == "" {
		r.Pipeline.LogLvl = "info"
	}
	if r.Pipeline.LogFormat == "" {
		r.Pipeline.LogFormat = "text"
	}
	if r.Evaluation.ToleranceCents == 0 {
		r.Evaluation.ToleranceCents = metrics.DefaultTolerance
	}
	if r.Evaluation.Workers == 0 {
		r.Evaluation.Workers = runtime.NumCPU()
	}
	if len(r.Models) == 0 {
		r.Models = []string{"librosa", "crepe", "basic_pitch"}
	}
	if len(r.Conditions) == 0 {
		for _, c := range pitch.Conditions {
			gt := "MedleyDB-Pitch-Experiments/pitch"
			if c == pitch.Clean {
				gt = "MedleyDB-Pitch/pitch"
			}
			r.Conditions = append(r.Conditions, Condition{Name: string(c), GroundTruth: gt})
		}
	}
	for i := range r.Conditions {
		if r.Conditions[i].Layout == "" {
			r.Conditions[i].Layout = pitch.Condition(r.Conditions[i].Name).Layout()
		}
	}
	if r.Paths.Predictions == "" {
		r.Paths.Predictions = "results/predictions"
	}
	if r.Paths.Metrics == "" {
		r.Paths.Metrics = "results/metrics"
	}
	if r.Paths.Summary == "" {
		r.Paths.Summary = "results/summary"
	}
	if r.Paths.Manifests == "" {
		r.Paths.Manifests = "MedleyDB-Pitch-Experiments/manifests"
	}
}

func (r *Root) Validate() error {
	if r.Evaluation.ToleranceCents <= 0 {
		return fmt.Errorf("evaluation.pitch_tolerance_cents must be positive, got %v", r.Evaluation.ToleranceCents)
	}
	if r.Evaluation.Workers < 1 {
		return fmt.Errorf("evaluation.workers must be at least 1, got %d", r.Evaluation.Workers)
	}
	if len(r.Models) == 0 {
		return errors.New("no models configured")
	}
	seen := map[string]bool{}
	for _, c := range r.Conditions {
		tag, err := pitch.ParseCondition(c.Name)
		if err != nil {
			return err
		}
		if string(tag) != c.Name {
			return fmt.Errorf("condition %q must be written as %q", c.Name, tag)
		}
		if seen[c.Name] {
			return fmt.Errorf("condition %q configured twice", c.Name)
		}
		seen[c.Name] = true
		if c.GroundTruth == "" {
			return fmt.Errorf("condition %q has no ground_truth directory", c.Name)
		}
	}
	return nil
}

// Condition returns the configuration for tag.
func (r *Root) Condition(tag pitch.Condition) (Condition, bool) {
	for _, c := range r.Conditions {
		if c.Tag() == tag {
			return c, true
		}
	}
	return Condition{}, false
}
