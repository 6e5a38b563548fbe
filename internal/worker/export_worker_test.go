package worker

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optium/internal/amqp"
	"optium/internal/core"
	"optium/internal/dataset"
	applog "optium/internal/log"
	"optium/internal/services"
	"optium/internal/sheets/memory"
)

func record(id, month, visaFees string) core.Record {
	return core.Record{EntityID: id, Month: month, Measures: core.Measures{
		VisaFees: decimal.RequireFromString(visaFees),
	}}
}

func newWorker(t *testing.T, withMonth bool) (*ExportWorker, *memory.Store, *bytes.Buffer) {
	t.Helper()
	columns := append([]string(nil), core.RequiredColumns...)
	month := ""
	if withMonth {
		columns = append(columns, core.ColMonth)
		month = "2024-01"
	}
	ds := core.NewDataset(columns, []core.Record{
		record("A", month, "10"),
		record("B", month, "5"),
		record("A", month, "1"),
	})

	var buf bytes.Buffer
	logger := applog.New(applog.Config{Output: &buf})
	store := memory.New()
	reports := services.NewReportService(dataset.NewHandle(dataset.Static{Dataset: ds}), nil)
	return NewExportWorker(reports, store, logger), store, &buf
}

func TestExportWorker_HandleExport(t *testing.T) {
	w, store, logs := newWorker(t, true)
	msg := amqp.NewExportRequestMessage([]string{"A"}, true)

	require.NoError(t, w.HandleExport(context.Background(), msg))

	summary, ok := store.Summary()
	require.True(t, ok)
	assert.True(t, summary.Total().VisaFees.Equal(decimal.NewFromInt(11)))

	monthly, ok := store.Monthly()
	require.True(t, ok)
	require.Len(t, monthly.Rows, 1)
	assert.Equal(t, "A", monthly.Rows[0].EntityID)

	assert.Contains(t, logs.String(), "job_id="+msg.JobID.String())
	assert.Contains(t, logs.String(), "component=worker")
	assert.Contains(t, logs.String(), "operation=export")
	assert.Contains(t, logs.String(), "matched_entities=1")
}

func TestExportWorker_SkipsMonthly(t *testing.T) {
	tests := []struct {
		name      string
		withMonth bool
		ids       []string
		monthly   bool
	}{
		{name: "not requested", withMonth: true, ids: []string{"A"}, monthly: false},
		{name: "no month column", withMonth: false, ids: []string{"A"}, monthly: true},
		{name: "no matching rows", withMonth: true, ids: []string{"Z"}, monthly: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, store, _ := newWorker(t, tt.withMonth)
			require.NoError(t, w.HandleExport(context.Background(), amqp.NewExportRequestMessage(tt.ids, tt.monthly)))

			_, ok := store.Summary()
			assert.True(t, ok, "summary is always written")
			_, ok = store.Monthly()
			assert.False(t, ok)
			assert.Equal(t, 1, store.Writes())
		})
	}
}

func TestExportWorker_WriterError(t *testing.T) {
	w, store, _ := newWorker(t, true)
	boom := errors.New("quota exceeded")
	store.Err = boom

	err := w.HandleExport(context.Background(), amqp.NewExportRequestMessage([]string{"A"}, false))
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "write summary")
	assert.NotErrorIs(t, err, amqp.ErrDropMessage)
}

type failingReports struct{ err error }

func (f failingReports) Generate(context.Context, services.ReportRequest) (services.ReportResponse, error) {
	return services.ReportResponse{}, f.err
}

func TestExportWorker_ReportError(t *testing.T) {
	schema := &core.SchemaError{Missing: []string{core.ColVisaFees}}
	store := memory.New()
	var logs bytes.Buffer
	w := NewExportWorker(failingReports{err: schema}, store, applog.New(applog.Config{Output: &logs}))

	err := w.HandleExport(context.Background(), amqp.NewExportRequestMessage([]string{"A"}, false))
	require.Error(t, err)
	assert.True(t, core.IsSchemaError(err))
	assert.ErrorIs(t, err, amqp.ErrDropMessage)
	assert.Zero(t, store.Writes())
	assert.Contains(t, logs.String(), "permanent=true")
	assert.Contains(t, logs.String(), "operation=export")
}

func TestExportWorker_TransientReportErrorIsRetried(t *testing.T) {
	boom := errors.New("dataset unavailable")
	w := NewExportWorker(failingReports{err: boom}, memory.New(), nil)

	err := w.HandleExport(context.Background(), amqp.NewExportRequestMessage([]string{"A"}, false))
	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, amqp.ErrDropMessage)
}
