package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"optium/internal/core"
	"optium/internal/services"
)

// formatAmount renders d with thousands separators, keeping every stored digit
// (e.g. "1,234.5").
func formatAmount(d decimal.Decimal) string {
	s := d.String()
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	intPart, frac, hasFrac := strings.Cut(s, ".")
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	if hasFrac {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return b.String()
}

// sanitizeInput removes control characters except tab, newline and carriage
// return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// reportErrorStatus maps a report error to a status code and a message that
// is safe to show.
func reportErrorStatus(err error) (int, string) {
	switch {
	case core.IsSchemaError(err):
		return http.StatusInternalServerError, "The dataset is missing required columns"
	case core.IsDataTypeError(err):
		return http.StatusInternalServerError, "The dataset contains non-numeric amounts"
	case errors.Is(err, services.ErrDatasetUnavailable):
		return http.StatusServiceUnavailable, "The dataset is not available yet, please retry"
	default:
		return http.StatusInternalServerError, "Report generation failed"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
