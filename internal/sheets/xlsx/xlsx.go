// Package xlsx writes reports into an Excel workbook.
package xlsx

import (
	"context"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"optium/internal/core"
	ports "optium/internal/sheets"
)

// Download names of the generated workbooks.
const (
	SummaryFilename = "financial_report.xlsx"
	MonthlyFilename = "monthly_breakdown.xlsx"

	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

const defaultSheet = "Sheet1"

// Workbook is an in-memory workbook holding the sheets written so far.
type Workbook struct {
	f       *excelize.File
	written map[string]bool
	header  int
}

var _ ports.ReportWriter = (*Workbook)(nil)

func New() *Workbook {
	return &Workbook{f: excelize.NewFile(), written: map[string]bool{}}
}

// WriteSummary fills the Summary sheet, TOTAL row last.
func (w *Workbook) WriteSummary(_ context.Context, r core.SummaryReport) error {
	return w.writeTable(ports.SummarySheet, ports.SummaryTable(r))
}

// WriteMonthly fills the Monthly Breakdown sheet.
func (w *Workbook) WriteMonthly(_ context.Context, r core.MonthlyReport) error {
	return w.writeTable(ports.MonthlySheet, ports.MonthlyTable(r))
}

func (w *Workbook) writeTable(sheet string, t ports.Table) error {
	if err := w.ensureSheet(sheet); err != nil {
		return err
	}

	header := make([]any, len(t.Header))
	for i, h := range t.Header {
		header[i] = h
	}
	if err := w.f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write %s header: %w", sheet, err)
	}
	if style, err := w.headerStyle(); err == nil {
		_ = w.f.SetRowStyle(sheet, 1, 1, style)
	}

	for i, row := range t.Rows {
		cells := make([]any, len(row))
		for j, c := range row {
			// ids and months stay text.
			if d, ok := c.(decimal.Decimal); ok {
				cells[j] = amountCell(d)
			} else {
				cells[j] = c
			}
		}
		axis, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := w.f.SetSheetRow(sheet, axis, &cells); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}

	_ = w.f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
	return nil
}

// amountCell returns a numeric cell when d survives a float64 round trip and
// its exact decimal text otherwise.
func amountCell(d decimal.Decimal) any {
	f := d.InexactFloat64()
	if decimal.NewFromFloat(f).Equal(d) {
		return f
	}
	return d.String()
}

// ensureSheet returns an empty sheet named name. The default sheet of a new
// file is reused for the first table written.
func (w *Workbook) ensureSheet(name string) error {
	if w.written[name] {
		rows, err := w.f.GetRows(name)
		if err != nil {
			return err
		}
		for i := len(rows); i >= 1; i-- {
			if err := w.f.RemoveRow(name, i); err != nil {
				return err
			}
		}
		return nil
	}

	if len(w.written) == 0 {
		if err := w.f.SetSheetName(defaultSheet, name); err != nil {
			return fmt.Errorf("rename sheet: %w", err)
		}
	} else if _, err := w.f.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}
	w.written[name] = true
	return nil
}

func (w *Workbook) headerStyle() (int, error) {
	if w.header != 0 {
		return w.header, nil
	}
	id, err := w.f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return 0, err
	}
	w.header = id
	return id, nil
}

// Sheets lists the sheets written so far.
func (w *Workbook) Sheets() []string {
	var out []string
	for _, name := range w.f.GetSheetList() {
		if w.written[name] {
			out = append(out, name)
		}
	}
	return out
}

// Encode writes the workbook in xlsx format. The first written sheet is active.
func (w *Workbook) Encode(out io.Writer) error {
	if len(w.written) == 0 {
		return fmt.Errorf("workbook has no sheets")
	}
	w.f.SetActiveSheet(0)
	if err := w.f.Write(out); err != nil {
		return fmt.Errorf("encode workbook: %w", err)
	}
	return nil
}

func (w *Workbook) Close() error {
	return w.f.Close()
}
