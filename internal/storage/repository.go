package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"

	"optium/internal/core"
	"optium/internal/dataset"
	applog "optium/internal/log"

	_ "modernc.org/sqlite"
)

const metaColumnsKey = "columns"

// SQLiteRepository stores the transaction dataset in SQLite. Amounts are kept
// as decimal text so a load returns exactly what was imported.
type SQLiteRepository struct {
	db *sql.DB
}

var _ dataset.Source = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Load implements dataset.Source.
func (r *SQLiteRepository) Load(ctx context.Context) (*core.Dataset, error) {
	columns, err := r.columns(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT entity_id, month, visa_fees, mastercard_fees, visa_sales, mastercard_sales
		FROM transactions
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var (
		records  []core.Record
		anyMonth bool
		line     int
	)
	for rows.Next() {
		line++
		var rec core.Record
		raw := make([]string, len(core.MeasureColumns))
		if err := rows.Scan(&rec.EntityID, &rec.Month, &raw[0], &raw[1], &raw[2], &raw[3]); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		for i, col := range core.MeasureColumns {
			v, err := decimal.NewFromString(raw[i])
			if err != nil {
				return nil, &core.DataTypeError{Column: col, Line: line, Value: raw[i]}
			}
			rec.Measures.Set(col, v)
		}
		anyMonth = anyMonth || rec.Month != ""
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}

	if columns == nil {
		columns = append([]string(nil), core.RequiredColumns...)
		if anyMonth {
			columns = append(columns, core.ColMonth)
		}
	}

	ds := core.NewDataset(columns, records)
	applog.FromContext(ctx).WithComponent(applog.ComponentStorage).InfoContext(ctx, "Dataset loaded from SQLite",
		applog.FieldOperation, applog.OpLoad,
		applog.FieldRows, ds.Len(),
		"has_month", ds.HasMonth())
	return ds, nil
}

// Import replaces the stored dataset with ds in a single transaction.
func (r *SQLiteRepository) Import(ctx context.Context, ds *core.Dataset) (int, error) {
	if ds == nil {
		return 0, core.ErrNilDataset
	}
	if err := ds.CheckSchema(); err != nil {
		return 0, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM transactions`); err != nil {
		return 0, fmt.Errorf("clear transactions: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO transactions (entity_id, month, visa_fees, mastercard_fees, visa_sales, mastercard_sales)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	records := ds.Records()
	for i, rec := range records {
		if _, err := stmt.ExecContext(ctx, rec.EntityID, rec.Month,
			rec.VisaFees.String(), rec.MastercardFees.String(),
			rec.VisaSales.String(), rec.MastercardSales.String()); err != nil {
			return 0, fmt.Errorf("insert record %d: %w", i+1, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO dataset_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		metaColumnsKey, strings.Join(ds.Columns(), "\t")); err != nil {
		return 0, fmt.Errorf("store columns: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit import: %w", err)
	}

	applog.FromContext(ctx).WithComponent(applog.ComponentStorage).InfoContext(ctx, "Dataset imported into SQLite",
		applog.FieldOperation, applog.OpImport,
		applog.FieldRows, len(records))
	return len(records), nil
}

// Count returns the number of stored transactions.
func (r *SQLiteRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return n, nil
}

// columns returns the column list recorded by the last import, nil if none.
func (r *SQLiteRepository) columns(ctx context.Context) ([]string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM dataset_meta WHERE key = ?`, metaColumnsKey).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read dataset columns: %w", err)
	}
	return strings.Split(value, "\t"), nil
}
