package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"optium/internal/amqp"
	"optium/internal/core"
	applog "optium/internal/log"
)

// ErrExportsDisabled is returned when no export queue is configured.
var ErrExportsDisabled = errors.New("report exports are not configured")

// ExportPublisher enqueues export requests.
type ExportPublisher interface {
	PublishExport(ctx context.Context, msg *amqp.ExportRequestMessage) error
}

// ExportService turns report requests into queued Google Sheets exports.
type ExportService struct {
	publisher ExportPublisher
}

// NewExportService creates an export service. A nil publisher disables exports.
func NewExportService(publisher ExportPublisher) *ExportService {
	return &ExportService{publisher: publisher}
}

// Enabled reports whether export requests can be queued.
func (s *ExportService) Enabled() bool {
	return s != nil && s.publisher != nil
}

// RequestExport queues an export of the report described by req and returns
// the job id. The export itself runs in the worker.
func (s *ExportService) RequestExport(ctx context.Context, req ReportRequest) (uuid.UUID, error) {
	if !s.Enabled() {
		return uuid.Nil, ErrExportsDisabled
	}

	msg := amqp.NewExportRequestMessage(core.NormalizeEntityIDs(req.EntityIDs), req.IncludeMonthly)
	if err := s.publisher.PublishExport(ctx, msg); err != nil {
		return uuid.Nil, fmt.Errorf("queue export: %w", err)
	}

	applog.FromContext(ctx).InfoContext(ctx, "Export queued",
		applog.FieldJobID, msg.JobID.String(),
		applog.FieldEntityCount, len(msg.EntityIDs),
		applog.FieldIncludeMonthly, msg.IncludeMonthly)
	return msg.JobID, nil
}
