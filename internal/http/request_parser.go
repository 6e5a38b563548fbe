// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data.

package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"optium/internal/core"
	"optium/internal/services"
)

// maxBodyBytes bounds request bodies. Id lists are short.
const maxBodyBytes = 64 << 10

// MaxEntityIDs caps the identifiers accepted in one request.
const MaxEntityIDs = 500

var errTooManyIDs = errors.New("too many entity ids")

// RequestBodyParser handles different content types for request body parsing.
// It supports both JSON and form-encoded data, commonly used with HTMX.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser creates a parser for the given request.
// It reads the body once and stores it for subsequent parsing.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	if r.Body != nil {
		p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	}
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	if len(p.body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if p.body[0] == '{' {
		p.jsonData = make(map[string]any)
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(string(p.body))
	return p.err
}

// Get returns a string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return strings.TrimSpace(sanitizeInput(stringValue(val)))
		}
	}
	if p.formData != nil {
		return strings.TrimSpace(sanitizeInput(p.formData.Get(key)))
	}
	return ""
}

// GetList returns key as a list. JSON arrays are taken element by element,
// any other value is split on commas.
func (p *RequestBodyParser) GetList(key string) []string {
	if p.jsonData != nil {
		if arr, ok := p.jsonData[key].([]any); ok {
			out := make([]string, 0, len(arr))
			for _, v := range arr {
				out = append(out, sanitizeInput(stringValue(v)))
			}
			return core.NormalizeEntityIDs(out)
		}
	}
	return core.ParseEntityIDs(p.Get(key))
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// ParseReportRequest reads ids and monthly from the query string. Body values,
// form or JSON, take precedence on POST.
func ParseReportRequest(r *http.Request) (services.ReportRequest, error) {
	query := r.URL.Query()
	req := services.ReportRequest{
		EntityIDs:      core.ParseEntityIDs(sanitizeInput(query.Get("ids"))),
		IncludeMonthly: parseFlag(query.Get("monthly")),
	}

	if r.Method == http.MethodPost {
		p := NewRequestBodyParser(r)
		if err := p.Parse(); err != nil {
			return services.ReportRequest{}, err
		}
		if ids := p.GetList("ids"); len(ids) > 0 {
			req.EntityIDs = ids
		}
		if v := p.Get("monthly"); v != "" {
			req.IncludeMonthly = parseFlag(v)
		}
	}

	if len(req.EntityIDs) > MaxEntityIDs {
		return services.ReportRequest{}, errTooManyIDs
	}
	return req, nil
}

// parseFlag accepts the values HTML checkboxes and query strings commonly send.
func parseFlag(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "on", "yes":
		return true
	default:
		return false
	}
}

// RequireMethod checks if the request method matches the expected method(s).
// Returns an error response builder if the method doesn't match.
func RequireMethod(r *http.Request, methods ...string) *HTMXResponseBuilder {
	for _, m := range methods {
		if r.Method == m {
			return nil
		}
	}
	return MethodNotAllowedError(strings.Join(methods, ", "))
}

// RequireGET allows GET and HEAD.
func RequireGET(r *http.Request) *HTMXResponseBuilder {
	return RequireMethod(r, http.MethodGet, http.MethodHead)
}

// RequirePOST is a convenience function for POST-only handlers.
func RequirePOST(r *http.Request) *HTMXResponseBuilder {
	return RequireMethod(r, http.MethodPost)
}
