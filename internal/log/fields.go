package log

// Common field names for structured logging
const (
	FieldComponent      = "component"
	FieldRequestID      = "request_id"
	FieldClientIP       = "client_ip"
	FieldMethod         = "method"
	FieldPath           = "path"
	FieldStatusCode     = "status_code"
	FieldDuration       = "duration_ms"
	FieldError          = "error"
	FieldOperation      = "operation"
	FieldEntityCount    = "entity_count"
	FieldMatchedCount   = "matched_entities"
	FieldMonthlyRows    = "monthly_rows"
	FieldIncludeMonthly = "include_monthly"
	FieldCacheHit       = "cache_hit"
	FieldJobID          = "job_id"
	FieldRows           = "rows"
)

// Component names
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentReport    = "report"
	ComponentDataset   = "dataset"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentSheets    = "sheets"
	ComponentCache     = "cache"
	ComponentRateLimit = "rate_limit"
	ComponentCLI       = "cli"
)

// Operation names
const (
	OpSummary  = "summary"
	OpMonthly  = "monthly"
	OpExport   = "export"
	OpLoad     = "load"
	OpImport   = "import"
	OpPublish  = "publish"
	OpConsume  = "consume"
	OpStartup  = "startup"
	OpShutdown = "shutdown"
)

// Fields collects key/value pairs for a log call.
type Fields map[string]any

func NewFields() Fields {
	return make(Fields)
}

func (f Fields) WithComponent(component string) Fields {
	f[FieldComponent] = component
	return f
}

func (f Fields) WithOperation(op string) Fields {
	f[FieldOperation] = op
	return f
}

// WithError is a no-op for nil errors.
func (f Fields) WithError(err error) Fields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithReport records the shape of a report request and its result.
func (f Fields) WithReport(requested, matched int, includeMonthly bool) Fields {
	f[FieldEntityCount] = requested
	f[FieldMatchedCount] = matched
	f[FieldIncludeMonthly] = includeMonthly
	return f
}

// Args flattens the fields for slog. Map order is not preserved.
func (f Fields) Args() []any {
	out := make([]any, 0, len(f)*2)
	for k, v := range f {
		out = append(out, k, v)
	}
	return out
}
