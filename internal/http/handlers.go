package http

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"optium/internal/core"
	applog "optium/internal/log"
	"optium/internal/services"
	"optium/internal/sheets/xlsx"
)

var templateFuncs = template.FuncMap{
	"amount": formatAmount,
}

type summaryRowView struct {
	Key     string
	Total   bool
	Amounts []decimal.Decimal
}

type monthlyRowView struct {
	EntityID string
	Month    string
	Amounts  []decimal.Decimal
}

type reportView struct {
	IDs              string
	IDList           string
	Columns          []string
	Summary          []summaryRowView
	Matched          int
	MonthlyRequested bool
	MonthlyAvailable bool
	Monthly          []monthlyRowView
	RowsLoaded       int
	ExportsEnabled   bool
}

func newReportView(req services.ReportRequest, resp services.ReportResponse, exportsEnabled bool) reportView {
	v := reportView{
		IDs:              strings.Join(resp.EntityIDs, ", "),
		IDList:           strings.Join(resp.EntityIDs, ","),
		Columns:          core.MeasureColumns,
		Matched:          len(resp.Summary.Entities()),
		MonthlyRequested: req.IncludeMonthly,
		MonthlyAvailable: resp.MonthlyAvailable,
		RowsLoaded:       resp.RowsLoaded,
		ExportsEnabled:   exportsEnabled,
	}
	for _, row := range resp.Summary.Rows {
		v.Summary = append(v.Summary, summaryRowView{Key: row.Key, Total: row.Key == core.TotalKey, Amounts: row.Values()})
	}
	for _, row := range resp.Monthly.Rows {
		v.Monthly = append(v.Monthly, monthlyRowView{EntityID: row.EntityID, Month: row.Month, Amounts: row.Values()})
	}
	return v
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	logger := applog.FromContext(r.Context())
	if s.templates == nil {
		logger.ErrorContext(r.Context(), "Templates not loaded", applog.FieldPath, r.URL.Path)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}

	data := struct {
		IDs            string
		Monthly        bool
		RowsLoaded     int
		Loaded         bool
		ExportsEnabled bool
	}{
		IDs:            sanitizeInput(r.URL.Query().Get("ids")),
		Monthly:        parseFlag(r.URL.Query().Get("monthly")),
		ExportsEnabled: s.exports != nil && s.exports.Enabled(),
	}
	if rows, err := s.reports.RowsLoaded(r.Context()); err != nil {
		logger.WarnContext(r.Context(), "Dataset not available for index", applog.FieldError, err)
	} else {
		data.RowsLoaded = rows
		data.Loaded = true
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, "index.html", data); err != nil {
		logger.ErrorContext(r.Context(), "Index template execution failed", applog.FieldError, err, "template", "index.html")
		http.Error(w, "template error", http.StatusInternalServerError)
	}
}

// generate runs a report and writes the mapped error response on failure.
func (s *Server) generate(w http.ResponseWriter, r *http.Request, req services.ReportRequest, asJSON bool) (services.ReportResponse, bool) {
	resp, err := s.reports.Generate(r.Context(), req)
	if err == nil {
		return resp, true
	}
	status, msg := reportErrorStatus(err)
	applog.FromContext(r.Context()).ErrorContext(r.Context(), "Report request failed",
		applog.FieldError, err,
		applog.FieldStatusCode, status,
		applog.FieldEntityCount, len(req.EntityIDs))
	if asJSON {
		writeJSON(w, status, map[string]string{"error": msg})
	} else {
		ErrorResponse(status, msg).Write(w)
	}
	return services.ReportResponse{}, false
}

func (s *Server) parseRequest(w http.ResponseWriter, r *http.Request, asJSON bool) (services.ReportRequest, bool) {
	req, err := ParseReportRequest(r)
	if err == nil {
		return req, true
	}
	msg := "Invalid request"
	if errors.Is(err, errTooManyIDs) {
		msg = fmt.Sprintf("At most %d entity ids per request", MaxEntityIDs)
	}
	if asJSON {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
	} else {
		BadRequestError(msg).Write(w)
	}
	return services.ReportRequest{}, false
}

// handleReport renders the report table partial.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	req, ok := s.parseRequest(w, r, false)
	if !ok {
		return
	}
	resp, ok := s.generate(w, r, req, false)
	if !ok {
		return
	}
	atomic.AddInt64(&s.appMetrics.reportsServed, 1)

	if s.templates == nil {
		InternalServerError("templates not loaded").Write(w)
		return
	}
	var buf bytes.Buffer
	view := newReportView(req, resp, s.exports != nil && s.exports.Enabled())
	if err := s.templates.ExecuteTemplate(&buf, "report.html", view); err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Report template execution failed", applog.FieldError, err, "template", "report.html")
		InternalServerError("Error rendering report").Write(w)
		return
	}
	NewHTMXResponse().BodyHTML(buf.String()).Write(w)
}

type measuresJSON struct {
	VisaFees        decimal.Decimal `json:"visa_fees"`
	MastercardFees  decimal.Decimal `json:"mastercard_fees"`
	VisaSales       decimal.Decimal `json:"visa_sales"`
	MastercardSales decimal.Decimal `json:"mastercard_sales"`
}

func toMeasuresJSON(m core.Measures) measuresJSON {
	return measuresJSON{
		VisaFees:        m.VisaFees,
		MastercardFees:  m.MastercardFees,
		VisaSales:       m.VisaSales,
		MastercardSales: m.MastercardSales,
	}
}

type summaryRowJSON struct {
	EntityID string `json:"entity_id"`
	measuresJSON
}

type monthlyRowJSON struct {
	EntityID string `json:"entity_id"`
	Month    string `json:"month"`
	measuresJSON
}

type reportJSON struct {
	EntityIDs        []string         `json:"entity_ids"`
	Summary          []summaryRowJSON `json:"summary"`
	Monthly          []monthlyRowJSON `json:"monthly,omitempty"`
	MonthlyAvailable bool             `json:"monthly_available"`
	RowsLoaded       int              `json:"rows_loaded"`
	GeneratedAt      time.Time        `json:"generated_at"`
}

// handleAPIReport serves the report as JSON. Amounts are decimal strings.
func (s *Server) handleAPIReport(w http.ResponseWriter, r *http.Request) {
	if resp := RequireMethod(r, http.MethodGet, http.MethodHead, http.MethodPost); resp != nil {
		resp.Write(w)
		return
	}
	req, ok := s.parseRequest(w, r, true)
	if !ok {
		return
	}
	resp, ok := s.generate(w, r, req, true)
	if !ok {
		return
	}
	atomic.AddInt64(&s.appMetrics.reportsServed, 1)

	out := reportJSON{
		EntityIDs:        resp.EntityIDs,
		Summary:          make([]summaryRowJSON, 0, len(resp.Summary.Rows)),
		MonthlyAvailable: resp.MonthlyAvailable,
		RowsLoaded:       resp.RowsLoaded,
		GeneratedAt:      resp.GeneratedAt,
	}
	if out.EntityIDs == nil {
		out.EntityIDs = []string{}
	}
	for _, row := range resp.Summary.Rows {
		out.Summary = append(out.Summary, summaryRowJSON{EntityID: row.Key, measuresJSON: toMeasuresJSON(row.Measures)})
	}
	for _, row := range resp.Monthly.Rows {
		out.Monthly = append(out.Monthly, monthlyRowJSON{EntityID: row.EntityID, Month: row.Month, measuresJSON: toMeasuresJSON(row.Measures)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSummaryDownload(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	req, ok := s.parseRequest(w, r, false)
	if !ok {
		return
	}
	req.IncludeMonthly = false
	resp, ok := s.generate(w, r, req, false)
	if !ok {
		return
	}

	wb := xlsx.New()
	defer wb.Close()
	if err := wb.WriteSummary(r.Context(), resp.Summary); err != nil {
		s.downloadFailed(w, r, err)
		return
	}
	s.sendWorkbook(w, r, wb, xlsx.SummaryFilename)
}

// handleMonthlyDownload returns 404 when the dataset has no month column or
// no rows matched.
func (s *Server) handleMonthlyDownload(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	req, ok := s.parseRequest(w, r, false)
	if !ok {
		return
	}
	req.IncludeMonthly = true
	resp, ok := s.generate(w, r, req, false)
	if !ok {
		return
	}
	if !resp.MonthlyAvailable {
		NotFoundError("The dataset has no month column").Write(w)
		return
	}
	if resp.Monthly.Empty() {
		NotFoundError("No monthly rows for the selected entities").Write(w)
		return
	}

	wb := xlsx.New()
	defer wb.Close()
	if err := wb.WriteMonthly(r.Context(), resp.Monthly); err != nil {
		s.downloadFailed(w, r, err)
		return
	}
	s.sendWorkbook(w, r, wb, xlsx.MonthlyFilename)
}

func (s *Server) sendWorkbook(w http.ResponseWriter, r *http.Request, wb *xlsx.Workbook, filename string) {
	var buf bytes.Buffer
	if err := wb.Encode(&buf); err != nil {
		s.downloadFailed(w, r, err)
		return
	}
	atomic.AddInt64(&s.appMetrics.downloads, 1)

	w.Header().Set("Content-Type", xlsx.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) downloadFailed(w http.ResponseWriter, r *http.Request, err error) {
	applog.FromContext(r.Context()).ErrorContext(r.Context(), "Workbook generation failed", applog.FieldError, err)
	InternalServerError("Error building the workbook").Write(w)
}

// handleCreateExport queues a Google Sheets export of the requested report.
func (s *Server) handleCreateExport(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	if s.exports == nil || !s.exports.Enabled() {
		ServiceUnavailableError("Spreadsheet export is not configured").Write(w)
		return
	}
	req, ok := s.parseRequest(w, r, false)
	if !ok {
		return
	}
	if len(req.EntityIDs) == 0 {
		BadRequestError("Enter at least one entity id to export").Write(w)
		return
	}

	jobID, err := s.exports.RequestExport(r.Context(), req)
	if err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Export request failed",
			applog.FieldError, err,
			applog.FieldEntityCount, len(req.EntityIDs))
		ServiceUnavailableError("Could not queue the export, please retry").
			TriggerErrorNotification("Export failed").
			Write(w)
		return
	}
	atomic.AddInt64(&s.appMetrics.exportsQueued, 1)

	NewHTMXResponse().
		Status(http.StatusAccepted).
		TriggerExportQueued(jobID, len(req.EntityIDs)).
		TriggerSuccessNotification("Export queued").
		BodyHTML(`<div class="success">Export queued (job ` + template.HTMLEscapeString(jobID.String()) + `)</div>`).
		Write(w)
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.uptime).String(),
	})
}

// handleReady reports ready once the dataset is in memory.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	if s.dataset != nil && s.dataset.Loaded() {
		checks["dataset"] = map[string]any{
			"status":    "ok",
			"loaded_at": s.dataset.LoadedAt().Format(time.RFC3339),
		}
	} else {
		checks["dataset"] = "not_loaded"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	}

	if s.cache != nil {
		stats := s.cache.Stats()
		checks["cache"] = map[string]any{
			"entries": stats.Size,
			"hits":    stats.Hits,
			"misses":  stats.Misses,
		}
	}
	checks["exports"] = s.exports != nil && s.exports.Enabled()
	checks["rate_limiter"] = map[string]any{"active_clients": s.rateLimiter.ActiveClients()}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	securityMetrics := s.securityDetector.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	traceMetrics := s.traceMiddleware.GetMetrics()

	metric := func(name, kind, help string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %v\n\n", name, help, name, kind, name, value)
	}

	w.WriteHeader(http.StatusOK)
	metric("http_requests_total", "counter", "Total number of HTTP requests", traceMetrics.TotalRequests)
	metric("http_server_errors_total", "counter", "Total number of 5xx responses", traceMetrics.ServerErrors)
	metric("reports_served_total", "counter", "Total reports rendered or returned as JSON", atomic.LoadInt64(&s.appMetrics.reportsServed))
	metric("report_downloads_total", "counter", "Total workbook downloads", atomic.LoadInt64(&s.appMetrics.downloads))
	metric("exports_queued_total", "counter", "Total spreadsheet exports queued", atomic.LoadInt64(&s.appMetrics.exportsQueued))
	if s.cache != nil {
		stats := s.cache.Stats()
		metric("report_cache_hits_total", "counter", "Total report cache hits", stats.Hits)
		metric("report_cache_misses_total", "counter", "Total report cache misses", stats.Misses)
		metric("report_cache_entries", "gauge", "Current report cache entries", stats.Size)
	}
	metric("rate_limit_hits_total", "counter", "Total rate limit hits", rateLimitMetrics.TotalHits)
	metric("rate_limit_global_hits_total", "counter", "Requests rejected by the global rate limit", rateLimitMetrics.GlobalHits)
	metric("active_rate_limit_clients", "gauge", "Currently tracked rate limit clients", rateLimitMetrics.ClientCount)
	metric("suspicious_requests_total", "counter", "Total suspicious requests detected", securityMetrics.SuspiciousRequests)
	metric("uptime_seconds", "gauge", "Application uptime in seconds", fmt.Sprintf("%.0f", time.Since(s.appMetrics.uptime).Seconds()))
}
