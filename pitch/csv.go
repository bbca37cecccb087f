package pitch

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ReadSeries parses headerless `time_seconds,frequency_hz` lines. Every line must
// hold exactly two finite, non-negative numbers and time must strictly increase.
func ReadSeries(r io.Reader) (Series, error) {
	return readSeries(r, "")
}

func ReadSeriesFile(path string) (Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readSeries(f, path)
}

func readSeries(r io.Reader, path string) (Series, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // column count is checked per line
	cr.ReuseRecord = true

	var s Series
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return s, nil
		}
		if err != nil {
			line := 0
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				line = pe.Line
			}
			return nil, &MalformedSeriesError{Path: path, Line: line, Index: len(s), Err: err}
		}
		line, _ := cr.FieldPos(0)
		bad := func(reason string, cause error) error {
			return &MalformedSeriesError{Path: path, Line: line, Index: len(s), Reason: reason, Err: cause}
		}
		if len(rec) != 2 {
			return nil, bad(fmt.Sprintf("expected 2 columns, got %d", len(rec)), nil)
		}
		t, err := parseValue(rec[0])
		if err != nil {
			return nil, bad("time", err)
		}
		hz, err := parseValue(rec[1])
		if err != nil {
			return nil, bad("frequency", err)
		}
		if n := len(s); n > 0 && t <= s[n-1].Time {
			return nil, bad(fmt.Sprintf("time %v does not follow %v", t, s[n-1].Time), nil)
		}
		s = append(s, Frame{Time: t, Frequency: hz})
	}
}

func parseValue(field string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite value %q", field)
	}
	if v < 0 {
		return 0, fmt.Errorf("negative value %q", field)
	}
	return v, nil
}

func WriteSeries(w io.Writer, s Series) error {
	cw := csv.NewWriter(w)
	for _, f := range s {
		if err := cw.Write([]string{FormatFloat(f.Time), FormatFloat(f.Frequency)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteSeriesFile writes s to path, creating parent directories.
func WriteSeriesFile(path string, s Series) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteSeries(f, s); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// FormatFloat renders the shortest decimal that parses back to v, always with a
// fractional part ("440.0", "0.01"). NaN is written as "NaN".
func FormatFloat(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
