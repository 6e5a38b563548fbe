package backend

import (
	"context"

	"optium/internal/dataset"
	"optium/internal/sheets"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// SourceResult contains the dataset source and optional cleanup function
type SourceResult struct {
	Source  dataset.Source
	Cleanup CleanupFunc
}

// WriterResult contains the export target and whether it is a dry run.
type WriterResult struct {
	Writer sheets.ReportWriter
	DryRun bool
}

// Factory creates dataset sources and export writers based on configuration
type Factory interface {
	CreateSource(ctx context.Context, config Config) (*SourceResult, error)
	CreateWriter(ctx context.Context, config Config) (*WriterResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	// Dataset backend type
	Type BackendType

	// CSV specific
	DatasetPath string

	// SQLite specific
	SQLiteDBPath string

	// Google Sheets export target; empty id means dry run into memory
	GoogleSpreadsheetID string
	GoogleSummarySheet  string
	GoogleMonthlySheet  string
}

// BackendType represents the type of dataset backend
type BackendType string

const (
	CSVBackend    BackendType = "csv"
	SQLiteBackend BackendType = "sqlite"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case CSVBackend, SQLiteBackend:
		return true
	default:
		return false
	}
}
