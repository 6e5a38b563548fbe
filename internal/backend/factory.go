package backend

import (
	"context"
	"fmt"
	"log/slog"

	"optium/internal/dataset"
	gsheet "optium/internal/sheets/google"
	"optium/internal/sheets/memory"
	"optium/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateSource implements Factory.CreateSource
func (f *DefaultFactory) CreateSource(ctx context.Context, config Config) (*SourceResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case CSVBackend:
		f.logger.InfoContext(ctx, "Using CSV dataset", "path", config.DatasetPath)
		return &SourceResult{Source: dataset.NewCSVFile(config.DatasetPath)}, nil
	case SQLiteBackend:
		return f.createSQLiteSource(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLiteSource(ctx context.Context, config Config) (*SourceResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	count, err := repo.Count(ctx)
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("count stored transactions: %w", err)
	}
	if count == 0 {
		f.logger.WarnContext(ctx, "SQLite dataset is empty, run the import command first",
			"db_path", config.SQLiteDBPath)
	}

	f.logger.InfoContext(ctx, "Using SQLite dataset",
		"db_path", config.SQLiteDBPath,
		"rows", count)

	return &SourceResult{
		Source:  repo,
		Cleanup: repo.Close,
	}, nil
}

// CreateWriter implements Factory.CreateWriter. Without a spreadsheet id the
// worker runs dry, keeping exports in memory.
func (f *DefaultFactory) CreateWriter(ctx context.Context, config Config) (*WriterResult, error) {
	if config.GoogleSpreadsheetID == "" {
		f.logger.WarnContext(ctx, "No Google spreadsheet configured, exports are kept in memory")
		return &WriterResult{Writer: memory.New(), DryRun: true}, nil
	}

	cli, err := gsheet.New(ctx, gsheet.Options{
		SpreadsheetID: config.GoogleSpreadsheetID,
		SummarySheet:  config.GoogleSummarySheet,
		MonthlySheet:  config.GoogleMonthlySheet,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}

	f.logger.InfoContext(ctx, "Initialized Google Sheets export",
		"summary_sheet", config.GoogleSummarySheet,
		"monthly_sheet", config.GoogleMonthlySheet)
	return &WriterResult{Writer: cli}, nil
}
