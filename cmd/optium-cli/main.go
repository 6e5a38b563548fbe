package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kong"

	"optium/internal/cli"
	"optium/internal/config"
	"optium/internal/core"
	"optium/internal/dataset"
	applog "optium/internal/log"
	"optium/internal/services"
	"optium/internal/sheets"
	"optium/internal/sheets/xlsx"
	"optium/internal/storage"
)

// globals holds options shared by every command
type globals struct {
	LogLevel string `name:"log-level" env:"LOG_LEVEL" default:"warn" help:"Log level: debug, info, warn or error."`
}

var app struct {
	Globals globals `embed:""`

	Report reportCmd `cmd:"" help:"Print the summary report for a set of entities, optionally writing it to an xlsx workbook."`
	Import importCmd `cmd:"" help:"Load a combined CSV dataset into the SQLite store."`
}

type reportCmd struct {
	IDs     string `name:"ids" required:"" help:"Comma separated entity ids."`
	Monthly bool   `help:"Include the month-by-month breakdown."`
	Out     string `type:"path" help:"Write the report to this xlsx file."`
	Backend string `env:"DATA_BACKEND" default:"csv" enum:"csv,sqlite" help:"Dataset backend."`
	Dataset string `type:"path" env:"DATASET_PATH" default:"./data/combined.csv" help:"CSV dataset path."`
	DB      string `name:"db" type:"path" env:"SQLITE_DB_PATH" default:"./data/optium.db" help:"SQLite database path."`
}

func (c *reportCmd) Run(logger *applog.Logger) error {
	ctx := applog.NewContext(context.Background(), logger)
	cfg := &config.Config{DataBackend: c.Backend, DatasetPath: c.Dataset, SQLiteDBPath: c.DB}

	handle, closeSource, err := cli.OpenDataset(ctx, logger, cfg)
	if err != nil {
		return err
	}
	defer closeSource()

	resp, err := services.NewReportService(handle, nil).Generate(ctx, services.ReportRequest{
		EntityIDs:      core.ParseEntityIDs(c.IDs),
		IncludeMonthly: c.Monthly,
	})
	if err != nil {
		return err
	}

	if err := sheets.WriteText(os.Stdout, sheets.SummaryTable(resp.Summary)); err != nil {
		return err
	}
	switch {
	case !c.Monthly:
	case !resp.MonthlyAvailable:
		fmt.Fprintln(os.Stderr, "\nThe dataset has no month column, no monthly breakdown.")
	case resp.Monthly.Empty():
		fmt.Fprintln(os.Stderr, "\nNo monthly rows for the selected entities.")
	default:
		fmt.Println("\nMonthly Breakdown")
		if err := sheets.WriteText(os.Stdout, sheets.MonthlyTable(resp.Monthly)); err != nil {
			return err
		}
	}

	if c.Out == "" {
		return nil
	}
	return writeWorkbook(ctx, c.Out, resp)
}

func writeWorkbook(ctx context.Context, path string, resp services.ReportResponse) error {
	wb := xlsx.New()
	defer wb.Close()

	if err := wb.WriteSummary(ctx, resp.Summary); err != nil {
		return err
	}
	if !resp.Monthly.Empty() {
		if err := wb.WriteMonthly(ctx, resp.Monthly); err != nil {
			return err
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := wb.Encode(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Wrote %s (%v)\n", path, wb.Sheets())
	return nil
}

type importCmd struct {
	CSV string `name:"csv" type:"path" env:"DATASET_PATH" default:"./data/combined.csv" help:"CSV dataset to import."`
	DB  string `name:"db" type:"path" env:"SQLITE_DB_PATH" default:"./data/optium.db" help:"SQLite database path."`
}

func (c *importCmd) Run(logger *applog.Logger) error {
	ctx := applog.NewContext(context.Background(), logger)
	start := time.Now()

	ds, err := dataset.NewCSVFile(c.CSV).Load(ctx)
	if err != nil {
		return err
	}

	repo, err := storage.NewSQLiteRepository(c.DB)
	if err != nil {
		return err
	}
	defer repo.Close()

	n, err := repo.Import(ctx, ds)
	if err != nil {
		return err
	}
	logger.Info("Import finished",
		applog.FieldOperation, applog.OpImport,
		applog.FieldRows, n,
		applog.FieldDuration, time.Since(start).Milliseconds())
	fmt.Printf("Imported %d rows from %s into %s\n", n, c.CSV, c.DB)
	return nil
}

func main() {
	cli.LoadEnvFile()
	ctx := kong.Parse(&app,
		kong.Name("optium-cli"),
		kong.Description("Franchisee fee and sales reports from the command line."),
		kong.UsageOnError(),
	)
	logger := cli.SetupLogger(app.Globals.LogLevel, applog.ComponentCLI)
	ctx.FatalIfErrorf(ctx.Run(logger))
}
