package worker

import (
	"context"
	"fmt"
	"time"

	"optium/internal/amqp"
	"optium/internal/core"
	applog "optium/internal/log"
	"optium/internal/services"
	"optium/internal/sheets"
)

// ReportGenerator builds reports for export requests.
type ReportGenerator interface {
	Generate(ctx context.Context, req services.ReportRequest) (services.ReportResponse, error)
}

// ExportWorker handles export requests from the queue by generating the
// report and writing it through a ReportWriter.
type ExportWorker struct {
	reports ReportGenerator
	writer  sheets.ReportWriter
	logger  *applog.Logger
}

func NewExportWorker(reports ReportGenerator, writer sheets.ReportWriter, logger *applog.Logger) *ExportWorker {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &ExportWorker{
		reports: reports,
		writer:  writer,
		logger:  logger.WithComponent(applog.ComponentWorker),
	}
}

// HandleExport processes a single export request message. The monthly sheet
// is written only when requested, supported by the dataset, and non-empty.
func (w *ExportWorker) HandleExport(ctx context.Context, msg *amqp.ExportRequestMessage) error {
	logger := w.logger.With(applog.FieldJobID, msg.JobID.String())
	ctx = applog.NewContext(ctx, logger)
	start := time.Now()

	logger.InfoContext(ctx, "Processing export request",
		applog.FieldOperation, applog.OpExport,
		applog.FieldEntityCount, len(msg.EntityIDs),
		applog.FieldIncludeMonthly, msg.IncludeMonthly,
		"queued_for_ms", time.Since(msg.Timestamp).Milliseconds())

	resp, err := w.reports.Generate(ctx, services.ReportRequest{
		EntityIDs:      msg.EntityIDs,
		IncludeMonthly: msg.IncludeMonthly,
	})
	if err != nil {
		permanent := core.IsSchemaError(err) || core.IsDataTypeError(err)
		logger.ErrorContext(ctx, "Export report failed",
			append(applog.NewFields().WithOperation(applog.OpExport).WithError(err).Args(), "permanent", permanent)...)
		if permanent {
			return fmt.Errorf("%w: generate report: %w", amqp.ErrDropMessage, err)
		}
		return fmt.Errorf("generate report: %w", err)
	}

	if err := w.writer.WriteSummary(ctx, resp.Summary); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}

	switch {
	case !msg.IncludeMonthly:
	case !resp.MonthlyAvailable:
		logger.WarnContext(ctx, "Dataset has no month column, skipping monthly sheet")
	case resp.Monthly.Empty():
		logger.InfoContext(ctx, "No monthly rows for request, skipping monthly sheet")
	default:
		if err := w.writer.WriteMonthly(ctx, resp.Monthly); err != nil {
			return fmt.Errorf("write monthly breakdown: %w", err)
		}
	}

	logger.InfoContext(ctx, "Export completed",
		append(applog.NewFields().
			WithOperation(applog.OpExport).
			WithReport(len(msg.EntityIDs), len(resp.Summary.Entities()), msg.IncludeMonthly).
			Args(),
			applog.FieldMonthlyRows, len(resp.Monthly.Rows),
			applog.FieldDuration, time.Since(start).Milliseconds())...)
	return nil
}
