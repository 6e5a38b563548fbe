// Package dataset loads the transaction table and keeps it as a shared,
// read-only handle for the lifetime of the process.
package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/shopspring/decimal"

	"optium/internal/core"
)

// Source produces a dataset. Implementations: CSVFile and storage.SQLiteRepository.
type Source interface {
	Load(ctx context.Context) (*core.Dataset, error)
}

// CSVFile loads the dataset from a CSV file with a header row.
type CSVFile struct {
	Path string
}

var _ Source = CSVFile{}

func NewCSVFile(path string) CSVFile {
	return CSVFile{Path: path}
}

func (f CSVFile) Load(ctx context.Context) (*core.Dataset, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("open dataset %s: %w", f.Path, err)
	}
	defer file.Close()

	ds, err := ParseCSV(file)
	if err != nil {
		return nil, fmt.Errorf("parse dataset %s: %w", f.Path, err)
	}
	slog.InfoContext(ctx, "Dataset loaded from CSV",
		"path", f.Path,
		"rows", ds.Len(),
		"has_month", ds.HasMonth())
	return ds, nil
}

// ParseCSV reads a header row followed by records. Header names are trimmed.
// Required columns are checked before any row is read; a numeric cell that
// does not parse fails with core.DataTypeError. Empty numeric cells count as zero.
func ParseCSV(r io.Reader) (*core.Dataset, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, &core.SchemaError{Missing: append([]string(nil), core.RequiredColumns...)}
	}
	if err != nil {
		return nil, fmt.Errorf("read CSV header: %w", err)
	}

	columns := make([]string, len(header))
	pos := map[string]int{}
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		columns[i] = h
		if _, dup := pos[h]; !dup {
			pos[h] = i
		}
	}

	ds := core.NewDataset(columns, nil)
	if err := ds.CheckSchema(); err != nil {
		return nil, err
	}
	monthCol, hasMonth := pos[core.ColMonth]

	var records []core.Record
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read CSV: %w", err)
		}
		line, _ := reader.FieldPos(0)
		if blankRow(row) {
			continue
		}

		rec := core.Record{EntityID: cell(row, pos[core.ColEntityID])}
		if hasMonth {
			rec.Month = strings.TrimSpace(cell(row, monthCol))
		}
		for _, col := range core.MeasureColumns {
			v, err := ParseAmount(cell(row, pos[col]))
			if err != nil {
				return nil, &core.DataTypeError{Column: col, Line: line, Value: cell(row, pos[col])}
			}
			rec.Measures.Set(col, v)
		}
		records = append(records, rec)
	}

	return core.NewDataset(columns, records), nil
}

// ParseAmount parses a numeric cell. Blank cells are zero.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

func blankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
