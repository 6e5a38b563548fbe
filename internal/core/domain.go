package core

import (
	"github.com/shopspring/decimal"
)

// Column names of the transaction dataset.
const (
	ColEntityID        = "entity_id"
	ColMonth           = "month"
	ColVisaFees        = "visa fees"
	ColMastercardFees  = "mastercard fees"
	ColVisaSales       = "visa sales"
	ColMastercardSales = "mastercard sales"

	// TotalKey labels the grand total row of a summary report.
	TotalKey = "TOTAL"
)

// MeasureColumns lists the summed columns in report order.
var MeasureColumns = []string{ColVisaFees, ColMastercardFees, ColVisaSales, ColMastercardSales}

// RequiredColumns must be present for any aggregation.
var RequiredColumns = append([]string{ColEntityID}, MeasureColumns...)

type (
	// Measures holds the four summed amounts of a row.
	Measures struct {
		VisaFees        decimal.Decimal
		MastercardFees  decimal.Decimal
		VisaSales       decimal.Decimal
		MastercardSales decimal.Decimal
	}

	// Record is one transaction row. Month is empty when the dataset has no month column.
	Record struct {
		EntityID string
		Month    string
		Measures
	}

	SummaryRow struct {
		Key string
		Measures
	}

	// SummaryReport has one row per matched entity in first-seen order, then TOTAL.
	SummaryReport struct {
		Rows []SummaryRow
	}

	MonthlyRow struct {
		EntityID string
		Month    string
		Measures
	}

	// MonthlyReport is ordered by entity then month. It never carries a total row.
	MonthlyReport struct {
		Rows []MonthlyRow
	}
)

// Add returns the column-wise sum of m and o.
func (m Measures) Add(o Measures) Measures {
	return Measures{
		VisaFees:        m.VisaFees.Add(o.VisaFees),
		MastercardFees:  m.MastercardFees.Add(o.MastercardFees),
		VisaSales:       m.VisaSales.Add(o.VisaSales),
		MastercardSales: m.MastercardSales.Add(o.MastercardSales),
	}
}

// Equal compares every column by value, so 1.50 equals 1.5.
func (m Measures) Equal(o Measures) bool {
	return m.VisaFees.Equal(o.VisaFees) &&
		m.MastercardFees.Equal(o.MastercardFees) &&
		m.VisaSales.Equal(o.VisaSales) &&
		m.MastercardSales.Equal(o.MastercardSales)
}

// Values returns the amounts in MeasureColumns order.
func (m Measures) Values() []decimal.Decimal {
	return []decimal.Decimal{m.VisaFees, m.MastercardFees, m.VisaSales, m.MastercardSales}
}

// Set assigns the amount of the named measure column. Unknown names are ignored.
func (m *Measures) Set(column string, v decimal.Decimal) {
	switch column {
	case ColVisaFees:
		m.VisaFees = v
	case ColMastercardFees:
		m.MastercardFees = v
	case ColVisaSales:
		m.VisaSales = v
	case ColMastercardSales:
		m.MastercardSales = v
	}
}

// Total returns the TOTAL row. Every report built by GenerateSummary has one.
func (r SummaryReport) Total() Measures {
	if n := len(r.Rows); n > 0 && r.Rows[n-1].Key == TotalKey {
		return r.Rows[n-1].Measures
	}
	return Measures{}
}

// Entities returns the per-entity rows, without TOTAL.
func (r SummaryReport) Entities() []SummaryRow {
	if n := len(r.Rows); n > 0 && r.Rows[n-1].Key == TotalKey {
		return r.Rows[:n-1]
	}
	return r.Rows
}

// Row looks up the row for key.
func (r SummaryReport) Row(key string) (SummaryRow, bool) {
	for _, row := range r.Rows {
		if row.Key == key {
			return row, true
		}
	}
	return SummaryRow{}, false
}

func (r MonthlyReport) Empty() bool {
	return len(r.Rows) == 0
}
