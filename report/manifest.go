package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// Manifest files under the manifests directory.
const (
	DistortionManifest = "manifest_dist.csv"
	NoiseManifest      = "manifest_noise.csv"
	TuningManifest     = "manifest_tuning.csv"
)

// Manifest columns.
const (
	TrackColumn = "track_id"
	LevelColumn = "level_tag"
	NoiseColumn = "noise_tag"
	ClassColumn = "class_tag"
)

// Manifest holds per-track tags read from a manifest CSV. Tag values are
// trimmed and lowercased. A nil *Manifest has no columns and no tracks.
type Manifest struct {
	columns []string
	tags    map[string]map[string]string
}

// ReadManifest parses a CSV whose header names a track_id column and every
// column in required. Other columns are kept as well.
func ReadManifest(r io.Reader, required ...string) (*Manifest, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("manifest header: %w", err)
	}
	m := &Manifest{tags: map[string]map[string]string{}}
	idCol := -1
	for i, h := range header {
		h = strings.TrimSpace(h)
		header[i] = h
		if h == TrackColumn {
			idCol = i
		}
	}
	m.columns = header
	for _, col := range append([]string{TrackColumn}, required...) {
		if !m.Has(col) {
			return nil, fmt.Errorf("manifest header %q lacks %s", strings.Join(header, ","), col)
		}
	}

	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return m, nil
		}
		if err != nil {
			return nil, err
		}
		if len(rec) != len(header) {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("manifest line %d: %d columns, header has %d", line, len(rec), len(header))
		}
		row := make(map[string]string, len(header))
		for i, v := range rec {
			if i != idCol {
				row[header[i]] = strings.ToLower(strings.TrimSpace(v))
			}
		}
		m.tags[strings.TrimSpace(rec[idCol])] = row
	}
}

func ReadManifestFile(path string, required ...string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	m, err := ReadManifest(f, required...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

func (m *Manifest) Has(col string) bool {
	if m == nil {
		return false
	}
	for _, c := range m.columns {
		if c == col {
			return true
		}
	}
	return false
}

// Tag returns the value of col for track. An empty cell counts as missing.
func (m *Manifest) Tag(track, col string) (string, bool) {
	if m == nil {
		return "", false
	}
	v := m.tags[track][col]
	return v, v != ""
}

func (m *Manifest) Len() int {
	if m == nil {
		return 0
	}
	return len(m.tags)
}
