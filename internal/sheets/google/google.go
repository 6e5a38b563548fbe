package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"optium/internal/core"
	ports "optium/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Options selects the spreadsheet and the sheets reports are written to.
type Options struct {
	SpreadsheetID string
	SummarySheet  string
	MonthlySheet  string
}

// Client writes reports into a Google spreadsheet. Each write clears the
// target sheet and rewrites it from A1, creating the sheet when missing.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	summarySheet  string
	monthlySheet  string

	mu    sync.Mutex
	known map[string]bool
}

// Ensure interface conformance
var _ ports.ReportWriter = (*Client)(nil)

// New creates a client authenticated with service account credentials from
// the environment.
func New(ctx context.Context, opts Options) (*Client, error) {
	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return NewWithService(svc, opts)
}

// NewWithService creates a client on an existing service.
func NewWithService(svc *gsheet.Service, opts Options) (*Client, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if opts.SummarySheet == "" {
		opts.SummarySheet = ports.SummarySheet
	}
	if opts.MonthlySheet == "" {
		opts.MonthlySheet = ports.MonthlySheet
	}
	return &Client{
		svc:           svc,
		spreadsheetID: strings.TrimSpace(opts.SpreadsheetID),
		summarySheet:  opts.SummarySheet,
		monthlySheet:  opts.MonthlySheet,
		known:         map[string]bool{},
	}, nil
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
// Uses GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	var err error

	switch {
	case serviceAccountJSON != "":
		slog.InfoContext(ctx, "Using inline JSON credentials")
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		slog.InfoContext(ctx, "Reading credentials from file", "path", serviceAccountFile)
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

func (c *Client) WriteSummary(ctx context.Context, r core.SummaryReport) error {
	return c.writeTable(ctx, c.summarySheet, ports.SummaryTable(r))
}

func (c *Client) WriteMonthly(ctx context.Context, r core.MonthlyReport) error {
	return c.writeTable(ctx, c.monthlySheet, ports.MonthlyTable(r))
}

func (c *Client) writeTable(ctx context.Context, sheet string, t ports.Table) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	if err := c.ensureSheet(ctx, sheet); err != nil {
		return err
	}

	_, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, quoteSheet(sheet), &gsheet.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clear sheet %s: %w", sheet, err)
	}

	rng := quoteSheet(sheet) + "!A1"
	vr := &gsheet.ValueRange{Values: cellValues(t)}
	resp, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update sheet %s: %w", sheet, err)
	}

	slog.InfoContext(ctx, "Report written to Google Sheets",
		"sheet", sheet,
		"rows", len(t.Rows),
		"updated_range", resp.UpdatedRange)
	return nil
}

// ensureSheet adds the sheet to the spreadsheet unless it already exists.
func (c *Client) ensureSheet(ctx context.Context, sheet string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.known[sheet] {
		return nil
	}

	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read spreadsheet %s: %w", c.spreadsheetID, err)
	}
	for _, s := range ss.Sheets {
		if s.Properties != nil {
			c.known[s.Properties.Title] = true
		}
	}
	if c.known[sheet] {
		return nil
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: sheet}},
	}}}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add sheet %s: %w", sheet, err)
	}
	slog.InfoContext(ctx, "Created sheet", "sheet", sheet)
	c.known[sheet] = true
	return nil
}

// cellValues renders the table for USER_ENTERED input. Text cells get a
// leading apostrophe so ids like 00123 and months like 2024-01 are not
// reinterpreted as numbers or dates.
func cellValues(t ports.Table) [][]any {
	out := make([][]any, 0, len(t.Rows)+1)
	header := make([]any, len(t.Header))
	for i, h := range t.Header {
		header[i] = h
	}
	out = append(out, header)
	for _, row := range t.Rows {
		cells := make([]any, len(row))
		for i, cell := range row {
			switch v := cell.(type) {
			case decimal.Decimal:
				cells[i] = v.String()
			case string:
				cells[i] = "'" + v
			default:
				cells[i] = v
			}
		}
		out = append(out, cells)
	}
	return out
}

// quoteSheet quotes a sheet name for A1 notation.
func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}
