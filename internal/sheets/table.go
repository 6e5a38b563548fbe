package sheets

import (
	"github.com/shopspring/decimal"

	"optium/internal/core"
)

// Table is a header row plus data rows. Cells are string or decimal.Decimal.
type Table struct {
	Header []string
	Rows   [][]any
}

// SummaryTable lays out a summary report, TOTAL row included, with the row
// key under the entity_id header.
func SummaryTable(r core.SummaryReport) Table {
	t := Table{Header: append([]string{core.ColEntityID}, core.MeasureColumns...)}
	for _, row := range r.Rows {
		t.Rows = append(t.Rows, withMeasures([]any{row.Key}, row.Measures))
	}
	return t
}

// MonthlyTable lays out a monthly breakdown, one row per entity and month.
func MonthlyTable(r core.MonthlyReport) Table {
	t := Table{Header: append([]string{core.ColEntityID, core.ColMonth}, core.MeasureColumns...)}
	for _, row := range r.Rows {
		t.Rows = append(t.Rows, withMeasures([]any{row.EntityID, row.Month}, row.Measures))
	}
	return t
}

func withMeasures(cells []any, m core.Measures) []any {
	for _, v := range m.Values() {
		cells = append(cells, v)
	}
	return cells
}

// Values renders the table as a matrix of strings, header first. Amounts keep
// the exact digits of the decimal.
func (t Table) Values() [][]any {
	out := make([][]any, 0, len(t.Rows)+1)
	header := make([]any, len(t.Header))
	for i, h := range t.Header {
		header[i] = h
	}
	out = append(out, header)
	for _, row := range t.Rows {
		cells := make([]any, len(row))
		for i, c := range row {
			if d, ok := c.(decimal.Decimal); ok {
				cells[i] = d.String()
			} else {
				cells[i] = c
			}
		}
		out = append(out, cells)
	}
	return out
}

// Width is the number of columns.
func (t Table) Width() int {
	return len(t.Header)
}
