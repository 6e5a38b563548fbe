package sheets

import (
	"context"

	"optium/internal/core"
)

// Sheet names of exported workbooks.
const (
	SummarySheet = "Summary"
	MonthlySheet = "Monthly Breakdown"
)

// Ports for outbound adapters.
type (
	// ReportWriter replaces the content of the summary and monthly sheets of
	// an export target.
	ReportWriter interface {
		WriteSummary(ctx context.Context, r core.SummaryReport) error
		WriteMonthly(ctx context.Context, r core.MonthlyReport) error
	}
)
