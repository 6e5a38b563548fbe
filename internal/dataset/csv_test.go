package dataset

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optium/internal/core"
)

const sampleCSV = `entity_id,month,visa fees,mastercard fees,visa sales,mastercard sales
A,2019-01,10,5,100,50
B,2019-01,20,,200,0

A,2019-02,1.5,0.25,15,2.5
`

func TestParseCSV(t *testing.T) {
	ds, err := ParseCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	require.Equal(t, 3, ds.Len())
	assert.True(t, ds.HasMonth())

	recs := ds.Records()
	assert.Equal(t, "B", recs[1].EntityID)
	assert.True(t, recs[1].MastercardFees.IsZero())
	assert.Equal(t, "2019-02", recs[2].Month)
	assert.Equal(t, "0.25", recs[2].MastercardFees.String())
}

func TestParseCSV_EntityIDStaysString(t *testing.T) {
	in := "entity_id,visa fees,mastercard fees,visa sales,mastercard sales\n00123,1,1,1,1\n"
	ds, err := ParseCSV(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, "00123", ds.Records()[0].EntityID)
	assert.False(t, ds.HasMonth())
}

func TestParseCSV_EntityIDVerbatim(t *testing.T) {
	in := "entity_id,visa fees,mastercard fees,visa sales,mastercard sales\n A ,1,1,1,1\nA,2,2,2,2\n"
	ds, err := ParseCSV(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, " A ", ds.Records()[0].EntityID)

	r, err := core.GenerateSummary(ds, []string{"A"})
	require.NoError(t, err)
	row, ok := r.Row("A")
	require.True(t, ok)
	assert.Equal(t, "2", row.VisaFees.String(), "padded id is a different entity")
}

func TestParseCSV_MissingColumns(t *testing.T) {
	in := "entity_id,visa fees,visa sales\nA,1,2\n"
	_, err := ParseCSV(strings.NewReader(in))
	var se *core.SchemaError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, []string{core.ColMastercardFees, core.ColMastercardSales}, se.Missing)

	_, err = ParseCSV(strings.NewReader(""))
	assert.True(t, core.IsSchemaError(err))
}

func TestParseCSV_NonNumeric(t *testing.T) {
	in := "entity_id,visa fees,mastercard fees,visa sales,mastercard sales\nA,1,1,1,1\nB,1,abc,1,1\n"
	_, err := ParseCSV(strings.NewReader(in))
	var de *core.DataTypeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, core.ColMastercardFees, de.Column)
	assert.Equal(t, 3, de.Line)
	assert.Equal(t, "abc", de.Value)
}

func TestCSVFileLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "combined.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0o644))

	ds, err := NewCSVFile(path).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, ds.Len())

	_, err = NewCSVFile(filepath.Join(t.TempDir(), "missing.csv")).Load(context.Background())
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

type countingSource struct {
	calls int32
	fail  bool
}

func (c *countingSource) Load(ctx context.Context) (*core.Dataset, error) {
	atomic.AddInt32(&c.calls, 1)
	if c.fail {
		return nil, errors.New("boom")
	}
	return ParseCSV(strings.NewReader(sampleCSV))
}

func TestHandle_LoadsOnce(t *testing.T) {
	src := &countingSource{}
	h := NewHandle(src)

	_, err := h.Current()
	assert.ErrorIs(t, err, ErrNotLoaded)
	assert.False(t, h.Loaded())

	first, err := h.Get(context.Background())
	require.NoError(t, err)
	second, err := h.Get(context.Background())
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&src.calls))
	assert.True(t, h.Loaded())
	assert.False(t, h.LoadedAt().IsZero())
}

func TestHandle_RetriesAfterFailure(t *testing.T) {
	src := &countingSource{fail: true}
	h := NewHandle(src)

	_, err := h.Get(context.Background())
	require.Error(t, err)

	src.fail = false
	_, err = h.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&src.calls))
}
