package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optium/internal/cache"
	"optium/internal/core"
)

type countingProvider struct {
	ds    *core.Dataset
	err   error
	calls atomic.Int32
}

func (p *countingProvider) Get(context.Context) (*core.Dataset, error) {
	p.calls.Add(1)
	return p.ds, p.err
}

func rec(id, month string, vf, mf, vs, ms int64) core.Record {
	return core.Record{EntityID: id, Month: month, Measures: core.Measures{
		VisaFees:        decimal.NewFromInt(vf),
		MastercardFees:  decimal.NewFromInt(mf),
		VisaSales:       decimal.NewFromInt(vs),
		MastercardSales: decimal.NewFromInt(ms),
	}}
}

func monthlyDataset() *core.Dataset {
	cols := append(append([]string(nil), core.RequiredColumns...), core.ColMonth)
	return core.NewDataset(cols, []core.Record{
		rec("A", "2024-02", 2, 1, 20, 10),
		rec("A", "2024-01", 10, 5, 100, 50),
		rec("B", "2024-01", 3, 0, 30, 0),
		rec("C", "2024-01", 7, 7, 70, 70),
	})
}

func TestReportService_Generate(t *testing.T) {
	provider := &countingProvider{ds: monthlyDataset()}
	svc := NewReportService(provider, nil)

	resp, err := svc.Generate(context.Background(), ReportRequest{
		EntityIDs:      []string{"A", " B", "Z"},
		IncludeMonthly: true,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B", "Z"}, resp.EntityIDs)
	assert.Equal(t, 4, resp.RowsLoaded)
	assert.True(t, resp.MonthlyAvailable)
	require.Len(t, resp.Summary.Rows, 3)
	assert.Equal(t, "A", resp.Summary.Rows[0].Key)
	assert.True(t, resp.Summary.Total().VisaSales.Equal(decimal.NewFromInt(150)))

	require.Len(t, resp.Monthly.Rows, 3)
	assert.Equal(t, "2024-01", resp.Monthly.Rows[0].Month)
	assert.Equal(t, "2024-02", resp.Monthly.Rows[1].Month)
	assert.Equal(t, "B", resp.Monthly.Rows[2].EntityID)
	assert.False(t, resp.GeneratedAt.IsZero())
}

func TestReportService_MonthlyNotRequested(t *testing.T) {
	svc := NewReportService(&countingProvider{ds: monthlyDataset()}, nil)

	resp, err := svc.Generate(context.Background(), ReportRequest{EntityIDs: []string{"A"}})
	require.NoError(t, err)
	assert.True(t, resp.Monthly.Empty())
	assert.True(t, resp.MonthlyAvailable)
}

func TestReportService_NoMonthColumn(t *testing.T) {
	ds := core.NewDataset(core.RequiredColumns, []core.Record{rec("A", "", 1, 1, 1, 1)})
	svc := NewReportService(&countingProvider{ds: ds}, nil)

	resp, err := svc.Generate(context.Background(), ReportRequest{EntityIDs: []string{"A"}, IncludeMonthly: true})
	require.NoError(t, err)
	assert.False(t, resp.MonthlyAvailable)
	assert.True(t, resp.Monthly.Empty())

	available, err := svc.MonthlyAvailable(context.Background())
	require.NoError(t, err)
	assert.False(t, available)
}

func TestReportService_EmptyIDs(t *testing.T) {
	svc := NewReportService(&countingProvider{ds: monthlyDataset()}, nil)

	resp, err := svc.Generate(context.Background(), ReportRequest{EntityIDs: []string{"", "  "}})
	require.NoError(t, err)
	require.Len(t, resp.Summary.Rows, 1)
	assert.Equal(t, core.TotalKey, resp.Summary.Rows[0].Key)
	assert.True(t, resp.Summary.Total().Equal(core.Measures{}))
}

func TestReportService_Cache(t *testing.T) {
	provider := &countingProvider{ds: monthlyDataset()}
	c := cache.NewLRUCache[ReportResponse](10, time.Minute)
	svc := NewReportService(provider, c)
	ctx := context.Background()

	first, err := svc.Generate(ctx, ReportRequest{EntityIDs: []string{"A", "B"}})
	require.NoError(t, err)
	second, err := svc.Generate(ctx, ReportRequest{EntityIDs: []string{"B", "A", "A"}})
	require.NoError(t, err)

	assert.Equal(t, int32(1), provider.calls.Load(), "second call served from cache")
	assert.Equal(t, first.Summary, second.Summary)
	assert.Equal(t, []string{"B", "A"}, second.EntityIDs)

	_, err = svc.Generate(ctx, ReportRequest{EntityIDs: []string{"A", "B"}, IncludeMonthly: true})
	require.NoError(t, err)
	_, err = svc.Generate(ctx, ReportRequest{EntityIDs: []string{"C"}})
	require.NoError(t, err)
	assert.Equal(t, int32(3), provider.calls.Load(), "distinct requests never share a result")
	assert.Equal(t, 3, c.Size())
}

func TestReportService_DatasetError(t *testing.T) {
	boom := errors.New("no such file")
	svc := NewReportService(&countingProvider{err: boom}, nil)

	_, err := svc.Generate(context.Background(), ReportRequest{EntityIDs: []string{"A"}})
	require.ErrorIs(t, err, boom)
	require.ErrorIs(t, err, ErrDatasetUnavailable)

	_, err = svc.RowsLoaded(context.Background())
	require.ErrorIs(t, err, boom)
}

func TestReportService_SchemaError(t *testing.T) {
	ds := core.NewDataset([]string{core.ColEntityID, core.ColVisaFees}, nil)
	svc := NewReportService(&countingProvider{ds: ds}, nil)

	_, err := svc.Generate(context.Background(), ReportRequest{EntityIDs: []string{"A"}})
	require.Error(t, err)
	assert.True(t, core.IsSchemaError(err))
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, cacheKey([]string{"b", "a"}, false), cacheKey([]string{"a", "b"}, false))
	assert.NotEqual(t, cacheKey([]string{"a"}, false), cacheKey([]string{"a"}, true))
	assert.NotEqual(t, cacheKey([]string{"a,b"}, false), cacheKey([]string{"a", "b"}, false))
}
