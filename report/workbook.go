package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/maastricht-university/pitchbench/metrics"
)

const defaultSheet = "Sheet1"

// WriteWorkbook saves one sheet per metric: conditions down, models across,
// each cell the mean over defined files. Undefined means are left blank.
// Each breakdown follows on its own sheet with a row per group and metric.
func WriteWorkbook(path string, s *Summary) error {
	f := excelize.NewFile()
	defer f.Close()

	bold, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Family: "Calibri", Size: 12},
	})
	if err != nil {
		return fmt.Errorf("workbook style: %w", err)
	}

	for i, m := range metrics.Names {
		if i == 0 {
			err = f.SetSheetName(defaultSheet, m)
		} else {
			_, err = f.NewSheet(m)
		}
		if err != nil {
			return fmt.Errorf("sheet %s: %w", m, err)
		}
		if err := writeSheet(f, m, s, bold); err != nil {
			return fmt.Errorf("sheet %s: %w", m, err)
		}
	}
	for _, b := range s.Breakdowns {
		if _, err := f.NewSheet(b.Name); err != nil {
			return fmt.Errorf("sheet %s: %w", b.Name, err)
		}
		if err := writeBreakdownSheet(f, &b, s.Models, bold); err != nil {
			return fmt.Errorf("sheet %s: %w", b.Name, err)
		}
	}
	f.SetActiveSheet(0)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return f.SaveAs(path)
}

func writeSheet(f *excelize.File, metric string, s *Summary, headerStyle int) error {
	set := func(col, row int, v any) error {
		cell, err := excelize.CoordinatesToCellName(col, row)
		if err != nil {
			return err
		}
		return f.SetCellValue(metric, cell, v)
	}

	if err := set(1, 1, "condition"); err != nil {
		return err
	}
	for j, model := range s.Models {
		if err := set(j+2, 1, model); err != nil {
			return err
		}
	}
	for i, cond := range s.Conditions {
		row := i + 2
		if err := set(1, row, cond); err != nil {
			return err
		}
		for j, model := range s.Models {
			st, ok := s.Lookup(model, cond, metric)
			if !ok || metrics.IsUndefined(st.Mean) {
				continue
			}
			if err := set(j+2, row, st.Mean); err != nil {
				return err
			}
		}
	}

	last, err := excelize.ColumnNumberToName(len(s.Models) + 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(metric, "A1", last+"1", headerStyle); err != nil {
		return err
	}
	if err := f.SetColWidth(metric, "A", "A", 22); err != nil {
		return err
	}
	return f.SetColWidth(metric, "B", last, 14)
}

func writeBreakdownSheet(f *excelize.File, b *Breakdown, models []string, headerStyle int) error {
	set := func(col, row int, v any) error {
		cell, err := excelize.CoordinatesToCellName(col, row)
		if err != nil {
			return err
		}
		return f.SetCellValue(b.Name, cell, v)
	}

	header := append([]string{"group", "metric"}, models...)
	for j, h := range header {
		if err := set(j+1, 1, h); err != nil {
			return err
		}
	}
	row := 2
	for _, g := range b.Groups {
		for _, metric := range metrics.Names {
			if err := set(1, row, g); err != nil {
				return err
			}
			if err := set(2, row, metric); err != nil {
				return err
			}
			for j, model := range models {
				st, ok := b.Lookup(model, g, metric)
				if !ok || metrics.IsUndefined(st.Mean) {
					continue
				}
				if err := set(j+3, row, st.Mean); err != nil {
					return err
				}
			}
			row++
		}
	}

	last, err := excelize.ColumnNumberToName(len(header))
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(b.Name, "A1", last+"1", headerStyle); err != nil {
		return err
	}
	return f.SetColWidth(b.Name, "A", "B", 14)
}
