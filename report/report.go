// Package report aggregates per-file metrics tables into per-model,
// per-condition summaries and writes them as CSV and as an Excel workbook.
package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	cfg "github.com/maastricht-university/pitchbench/config"
	"github.com/maastricht-university/pitchbench/metrics"
	"github.com/maastricht-university/pitchbench/orchestrator"
	"github.com/maastricht-university/pitchbench/pitch"
)

// Tag values recognised in the manifests, in report order.
var (
	DistortionLevels = []string{"light", "medium", "heavy"}
	NoiseTypes       = []string{"room", "street", "people"}
	Classes          = []string{"instrument", "vocal"}
)

// Breakdown names.
const (
	ByNoiseType = "noise_type"
	ByClass     = "class"
)

// Stat summarizes one metric over the files of a (model, condition) group.
// Files counts every row; Defined counts rows where the metric is not NaN.
type Stat struct {
	Model     string
	Condition string
	Metric    string
	Files     int
	Defined   int
	Mean      float64
	Median    float64
}

// Breakdown pools files across conditions by a manifest tag. Stat.Condition
// holds the group.
type Breakdown struct {
	Name   string
	Groups []string
	Stats  []Stat
}

func (b *Breakdown) Lookup(model, group, metric string) (Stat, bool) {
	return find(b.Stats, model, group, metric)
}

type Summary struct {
	Models     []string
	Conditions []string // distortion expanded into distortion_<level> when a manifest exists
	Stats      []Stat
	Breakdowns []Breakdown
}

// Lookup returns the stat for (model, condition, metric).
func (s *Summary) Lookup(model, condition, metric string) (Stat, bool) {
	return find(s.Stats, model, condition, metric)
}

// Breakdown returns the breakdown called name, or nil.
func (s *Summary) Breakdown(name string) *Breakdown {
	for i := range s.Breakdowns {
		if s.Breakdowns[i].Name == name {
			return &s.Breakdowns[i]
		}
	}
	return nil
}

func find(stats []Stat, model, condition, metric string) (Stat, bool) {
	for _, st := range stats {
		if st.Model == model && st.Condition == condition && st.Metric == metric {
			return st, true
		}
	}
	return Stat{}, false
}

// breakdownDef pools conditions whose source manifest carries column.
type breakdownDef struct {
	name   string
	column string
	groups []string
	source func(pitch.Condition) *Manifest
}

type manifests struct {
	dist, noise, tuning *Manifest
}

func loadManifests(dir string, log logrus.FieldLogger) (manifests, error) {
	var (
		ms  manifests
		err error
	)
	load := func(name string, required ...string) (*Manifest, error) {
		m, err := ReadManifestFile(filepath.Join(dir, name), required...)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return m, err
	}
	if ms.dist, err = load(DistortionManifest, LevelColumn); err != nil {
		return ms, err
	}
	if ms.dist == nil {
		log.WithField("dir", dir).Warn("no distortion manifest, distortion is reported as one condition")
	}
	if ms.noise, err = load(NoiseManifest, NoiseColumn); err != nil {
		return ms, err
	}
	if ms.tuning, err = load(TuningManifest, ClassColumn); err != nil {
		return ms, err
	}
	return ms, nil
}

func (ms manifests) defs() []breakdownDef {
	return []breakdownDef{
		{
			name:   ByNoiseType,
			column: NoiseColumn,
			groups: NoiseTypes,
			source: func(c pitch.Condition) *Manifest {
				if c == pitch.Noise5dB || c == pitch.Noise15dB {
					return ms.noise
				}
				return nil
			},
		},
		{
			name:   ByClass,
			column: ClassColumn,
			groups: Classes,
			source: func(c pitch.Condition) *Manifest {
				switch c {
				case pitch.Distortion:
					return ms.dist
				case pitch.Noise5dB, pitch.Noise15dB:
					return ms.noise
				case pitch.PitchShift25Cents, pitch.PitchShift50Cents:
					return ms.tuning
				}
				return nil
			},
		},
	}
}

// Build reads every configured metrics table. Missing tables are skipped with
// a warning; a malformed table or manifest fails the build.
func Build(c *cfg.Root, log logrus.FieldLogger) (*Summary, error) {
	ms, err := loadManifests(c.Paths.Manifests, log)
	if err != nil {
		return nil, err
	}
	split := ms.dist != nil

	s := &Summary{Models: c.Models}
	for _, cond := range c.Conditions {
		if cond.Tag() == pitch.Distortion && split {
			for _, lv := range DistortionLevels {
				s.Conditions = append(s.Conditions, distortionGroup(lv))
			}
			continue
		}
		s.Conditions = append(s.Conditions, cond.Name)
	}

	tables := map[string]map[pitch.Condition][]metrics.Record{}
	for _, model := range c.Models {
		tables[model] = map[pitch.Condition][]metrics.Record{}
		for _, cond := range c.Conditions {
			path := orchestrator.MetricsPath(c.Paths.Metrics, model, cond.Tag())
			recs, err := metrics.ReadCSVFile(path, model, cond.Tag())
			if errors.Is(err, fs.ErrNotExist) {
				log.WithFields(logrus.Fields{"model": model, "condition": cond.Name}).Warn(path + " not found, skipping")
				continue
			}
			if err != nil {
				return nil, err
			}
			tables[model][cond.Tag()] = recs

			groups := map[string][]metrics.Record{cond.Name: recs}
			if cond.Tag() == pitch.Distortion && split {
				byLevel, unmatched, unknown := groupBy(recs, ms.dist, LevelColumn, DistortionLevels)
				warnLeftOut(log.WithFields(logrus.Fields{"model": model, "condition": cond.Name}), LevelColumn, unmatched, unknown)
				groups = map[string][]metrics.Record{}
				for lv, g := range byLevel {
					groups[distortionGroup(lv)] = g
				}
			}
			for _, name := range s.Conditions {
				if g := groups[name]; len(g) > 0 {
					s.Stats = append(s.Stats, summarizeAll(model, name, g)...)
				}
			}
		}
	}

	for _, def := range ms.defs() {
		if b, ok := buildBreakdown(def, c, tables, log); ok {
			s.Breakdowns = append(s.Breakdowns, b)
		}
	}
	return s, nil
}

// buildBreakdown reports false when no configured condition has a manifest
// carrying its column.
func buildBreakdown(def breakdownDef, c *cfg.Root, tables map[string]map[pitch.Condition][]metrics.Record, log logrus.FieldLogger) (Breakdown, bool) {
	used := false
	for _, cond := range c.Conditions {
		if def.source(cond.Tag()).Has(def.column) {
			used = true
		}
	}
	if !used {
		return Breakdown{}, false
	}

	b := Breakdown{Name: def.name, Groups: def.groups}
	for _, model := range c.Models {
		pooled := map[string][]metrics.Record{}
		var unmatched, unknown int
		for _, cond := range c.Conditions {
			m := def.source(cond.Tag())
			if !m.Has(def.column) {
				continue
			}
			groups, um, uk := groupBy(tables[model][cond.Tag()], m, def.column, def.groups)
			unmatched += um
			unknown += uk
			for g, recs := range groups {
				pooled[g] = append(pooled[g], recs...)
			}
		}
		warnLeftOut(log.WithFields(logrus.Fields{"model": model, "breakdown": def.name}), def.column, unmatched, unknown)
		for _, g := range def.groups {
			if recs := pooled[g]; len(recs) > 0 {
				b.Stats = append(b.Stats, summarizeAll(model, g, recs)...)
			}
		}
	}
	return b, true
}

func distortionGroup(level string) string {
	return string(pitch.Distortion) + "_" + level
}

// groupBy splits recs by the value of column for each record's track. Tracks
// absent from the manifest and tags outside groups are counted, not grouped.
func groupBy(recs []metrics.Record, m *Manifest, column string, groups []string) (out map[string][]metrics.Record, unmatched, unknown int) {
	out = map[string][]metrics.Record{}
	for _, r := range recs {
		tag, ok := m.Tag(orchestrator.TrackID(r.Filename), column)
		switch {
		case !ok:
			unmatched++
		case !slices.Contains(groups, tag):
			unknown++
		default:
			out[tag] = append(out[tag], r)
		}
	}
	return out, unmatched, unknown
}

func warnLeftOut(log logrus.FieldLogger, column string, unmatched, unknown int) {
	if unmatched > 0 {
		log.WithFields(logrus.Fields{"files": unmatched, "column": column}).Warn("predictions missing from the manifest were left out")
	}
	if unknown > 0 {
		log.WithFields(logrus.Fields{"files": unknown, "column": column}).Warn("predictions with an unrecognised " + column + " were left out")
	}
}

func summarizeAll(model, group string, recs []metrics.Record) []Stat {
	out := make([]Stat, 0, len(metrics.Names))
	for _, m := range metrics.Names {
		out = append(out, summarize(model, group, m, recs))
	}
	return out
}

func summarize(model, condition, metric string, recs []metrics.Record) Stat {
	vals := metrics.Column(recs, metric)
	st := Stat{
		Model:     model,
		Condition: condition,
		Metric:    metric,
		Files:     len(recs),
		Defined:   len(vals),
		Mean:      metrics.Undefined,
		Median:    metrics.Undefined,
	}
	if len(vals) > 0 {
		st.Mean = stat.Mean(vals, nil)
		st.Median = median(vals)
	}
	return st
}

// median averages the two middle values of an even-length sample.
func median(vals []float64) float64 {
	x := append([]float64(nil), vals...)
	sort.Float64s(x)
	n := len(x)
	if n%2 == 1 {
		return x[n/2]
	}
	return (x[n/2-1] + x[n/2]) / 2
}

var (
	Header          = []string{"model", "condition", "metric", "files", "defined", "mean", "median"}
	BreakdownHeader = []string{"model", "breakdown", "group", "metric", "files", "defined", "mean", "median"}
)

func statFields(st Stat) []string {
	return []string{
		st.Metric,
		strconv.Itoa(st.Files),
		strconv.Itoa(st.Defined),
		metrics.FormatValue(st.Mean),
		metrics.FormatValue(st.Median),
	}
}

func WriteCSV(w io.Writer, s *Summary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, st := range s.Stats {
		if err := cw.Write(append([]string{st.Model, st.Condition}, statFields(st)...)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteBreakdownsCSV writes every breakdown group, one row per metric.
func WriteBreakdownsCSV(w io.Writer, s *Summary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(BreakdownHeader); err != nil {
		return err
	}
	for _, b := range s.Breakdowns {
		for _, st := range b.Stats {
			if err := cw.Write(append([]string{st.Model, b.Name, st.Condition}, statFields(st)...)); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func WriteCSVFile(path string, s *Summary) error {
	return writeFile(path, s, WriteCSV)
}

func WriteBreakdownsCSVFile(path string, s *Summary) error {
	return writeFile(path, s, WriteBreakdownsCSV)
}

func writeFile(path string, s *Summary, write func(io.Writer, *Summary) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f, s); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	return f.Close()
}
