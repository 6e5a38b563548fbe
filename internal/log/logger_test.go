package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
		ok   bool
	}{
		{"debug", slog.LevelDebug, true},
		{" INFO ", slog.LevelInfo, true},
		{"", slog.LevelInfo, true},
		{"warning", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"loud", slog.LevelInfo, false},
	}
	for _, tc := range cases {
		got, ok := ParseLevel(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("ParseLevel(%q) = %v,%v want %v,%v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestLoggerComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelInfo, Component: ComponentReport, Output: &buf})
	l.Info("summary built", NewFields().WithReport(3, 2, true).Args()...)

	out := buf.String()
	for _, want := range []string{"component=report", "entity_count=3", "matched_entities=2", "include_monthly=true"} {
		if !strings.Contains(out, want) {
			t.Fatalf("log line %q missing %q", out, want)
		}
	}
	if l.WithComponent(ComponentSheets).Component() != ComponentSheets {
		t.Fatalf("expected component override")
	}
}

func TestFields(t *testing.T) {
	f := NewFields().
		WithComponent(ComponentAMQP).
		WithOperation(OpPublish).
		WithError(errors.New("channel closed")).
		WithError(nil)

	want := Fields{
		FieldComponent: ComponentAMQP,
		FieldOperation: OpPublish,
		FieldError:     "channel closed",
	}
	if len(f) != len(want) {
		t.Fatalf("fields = %v, want %v", f, want)
	}
	for k, v := range want {
		if f[k] != v {
			t.Fatalf("field %s = %v, want %v", k, f[k], v)
		}
	}
	if got := len(f.Args()); got != 6 {
		t.Fatalf("Args() has %d entries, want 6", got)
	}
}

func TestMiddlewareStoresLogger(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Level: slog.LevelDebug, Output: &buf})

	h := Middleware(base, func(*http.Request) string { return "req_1" })(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		FromContext(r.Context()).Info("inside")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if !strings.Contains(buf.String(), "request_id=req_1") {
		t.Fatalf("expected request id in %q", buf.String())
	}
	if FromContext(context.Background()).Component() != "unknown" {
		t.Fatalf("expected fallback logger")
	}
}
