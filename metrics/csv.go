package metrics

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/maastricht-university/pitchbench/pitch"
)

// AverageRow is the filename of the optional summary row at the end of a
// metrics CSV. Readers drop it.
const AverageRow = "AVERAGE"

var Header = []string{"filename", OA, RPA, RCA, VR}

// WriteCSV writes the metrics table in the order given. With average set, a
// final AVERAGE row carries the mean of every column over defined values.
func WriteCSV(w io.Writer, recs []Record, average bool) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, r := range recs {
		if err := cw.Write(row(r.Filename, r.Scores)); err != nil {
			return err
		}
	}
	if average {
		if err := cw.Write(row(AverageRow, Mean(recs))); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func WriteCSVFile(path string, recs []Record, average bool) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteCSV(f, recs, average); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func row(name string, s Scores) []string {
	out := []string{name}
	for _, m := range Names {
		out = append(out, FormatValue(s.Get(m)))
	}
	return out
}

// FormatValue renders a metric value; Undefined becomes "NaN".
func FormatValue(v float64) string {
	if IsUndefined(v) {
		return "NaN"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ReadCSV parses a metrics table written by WriteCSV. Model and condition are
// not part of the file and are left for the caller to fill in.
func ReadCSV(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("metrics header: %w", err)
	}
	if strings.Join(header, ",") != strings.Join(Header, ",") {
		return nil, fmt.Errorf("metrics header %q doesn't match %q", strings.Join(header, ","), strings.Join(Header, ","))
	}
	var out []Record
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		if rec[0] == AverageRow {
			continue
		}
		var vals [4]float64
		for i := range vals {
			if vals[i], err = strconv.ParseFloat(strings.TrimSpace(rec[i+1]), 64); err != nil {
				line, _ := cr.FieldPos(i + 1)
				return nil, fmt.Errorf("metrics line %d, %s: %w", line, Header[i+1], err)
			}
		}
		out = append(out, Record{
			Filename: rec[0],
			Scores:   Scores{OA: vals[0], RPA: vals[1], RCA: vals[2], VR: vals[3]},
		})
	}
}

// ReadCSVFile reads path and tags every record with model and condition.
func ReadCSVFile(path, model string, cond pitch.Condition) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	recs, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for i := range recs {
		recs[i].Model = model
		recs[i].Condition = cond
	}
	return recs, nil
}

// Mean averages every metric over the records where it is defined. A metric
// with no defined value stays Undefined.
func Mean(recs []Record) Scores {
	var out Scores
	for _, m := range Names {
		vals := Column(recs, m)
		v := Undefined
		if len(vals) > 0 {
			v = stat.Mean(vals, nil)
		}
		switch m {
		case OA:
			out.OA = v
		case RPA:
			out.RPA = v
		case RCA:
			out.RCA = v
		case VR:
			out.VR = v
		}
	}
	for _, r := range recs {
		out.Frames += r.Frames
		out.VoicedFrames += r.VoicedFrames
	}
	return out
}

// Column collects the defined values of one metric.
func Column(recs []Record, name string) []float64 {
	vals := make([]float64, 0, len(recs))
	for _, r := range recs {
		if v := r.Get(name); !IsUndefined(v) {
			vals = append(vals, v)
		}
	}
	return vals
}
