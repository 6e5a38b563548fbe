package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"optium/internal/cache"
	"optium/internal/core"
	applog "optium/internal/log"
)

// ErrDatasetUnavailable wraps failures to obtain the dataset.
var ErrDatasetUnavailable = errors.New("dataset unavailable")

// DatasetProvider hands out the shared read-only dataset.
type DatasetProvider interface {
	Get(ctx context.Context) (*core.Dataset, error)
}

// ReportRequest selects the entities of a report.
type ReportRequest struct {
	EntityIDs      []string
	IncludeMonthly bool
}

// ReportResponse is the result of a report request. Responses may be shared
// through the cache, so callers must treat them as read-only.
type ReportResponse struct {
	EntityIDs        []string
	Summary          core.SummaryReport
	Monthly          core.MonthlyReport
	MonthlyAvailable bool
	RowsLoaded       int
	GeneratedAt      time.Time
}

// ReportService builds summary and monthly reports over the loaded dataset.
type ReportService struct {
	datasets DatasetProvider
	cache    cache.Cache[ReportResponse]
	now      func() time.Time
}

// NewReportService creates a report service. A nil cache disables caching.
func NewReportService(datasets DatasetProvider, c cache.Cache[ReportResponse]) *ReportService {
	return &ReportService{
		datasets: datasets,
		cache:    c,
		now:      time.Now,
	}
}

// Generate builds the report for req. The summary and monthly breakdown are
// computed in parallel; the monthly one only when requested and the dataset
// has a month column.
func (s *ReportService) Generate(ctx context.Context, req ReportRequest) (ReportResponse, error) {
	ids := core.NormalizeEntityIDs(req.EntityIDs)
	key := cacheKey(ids, req.IncludeMonthly)
	logger := applog.FromContext(ctx).WithComponent(applog.ComponentReport)

	if s.cache != nil {
		if resp, ok := s.cache.Get(key); ok {
			logger.DebugContext(ctx, "Report served from cache",
				applog.FieldEntityCount, len(ids),
				applog.FieldCacheHit, true)
			resp.EntityIDs = ids
			return resp, nil
		}
	}

	ds, err := s.datasets.Get(ctx)
	if err != nil {
		return ReportResponse{}, fmt.Errorf("%w: %w", ErrDatasetUnavailable, err)
	}

	resp := ReportResponse{
		EntityIDs:        ids,
		MonthlyAvailable: ds.HasMonth(),
		RowsLoaded:       ds.Len(),
	}

	start := time.Now()
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		summary, err := core.GenerateSummary(ds, ids)
		if err != nil {
			logger.ErrorContext(ctx, "Report generation failed", applog.FieldOperation, applog.OpSummary, applog.FieldError, err)
			return fmt.Errorf("generate summary: %w", err)
		}
		resp.Summary = summary
		return nil
	})
	if req.IncludeMonthly && resp.MonthlyAvailable {
		g.Go(func() error {
			monthly, err := core.GenerateMonthlyBreakdown(ds, ids)
			if err != nil {
				logger.ErrorContext(ctx, "Report generation failed", applog.FieldOperation, applog.OpMonthly, applog.FieldError, err)
				return fmt.Errorf("generate monthly breakdown: %w", err)
			}
			resp.Monthly = monthly
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ReportResponse{}, err
	}
	resp.GeneratedAt = s.now()

	logger.InfoContext(ctx, "Report generated",
		append(applog.NewFields().
			WithReport(len(ids), len(resp.Summary.Entities()), req.IncludeMonthly).
			Args(),
			applog.FieldMonthlyRows, len(resp.Monthly.Rows),
			applog.FieldCacheHit, false,
			applog.FieldDuration, time.Since(start).Milliseconds())...)

	if s.cache != nil {
		s.cache.Set(key, resp)
	}
	return resp, nil
}

// MonthlyAvailable reports whether the dataset carries a month column.
func (s *ReportService) MonthlyAvailable(ctx context.Context) (bool, error) {
	ds, err := s.datasets.Get(ctx)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrDatasetUnavailable, err)
	}
	return ds.HasMonth(), nil
}

// RowsLoaded returns the number of records in the dataset.
func (s *ReportService) RowsLoaded(ctx context.Context) (int, error) {
	ds, err := s.datasets.Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrDatasetUnavailable, err)
	}
	return ds.Len(), nil
}

// cacheKey ignores id order: report rows follow dataset order, not request order.
func cacheKey(ids []string, monthly bool) string {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	var b strings.Builder
	if monthly {
		b.WriteString("m|")
	} else {
		b.WriteString("s|")
	}
	b.WriteString(strings.Join(sorted, "\x1f"))
	return b.String()
}
