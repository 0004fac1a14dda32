package web

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// Not parallel: swaps the default logger.
func TestWriteJSON_LogsEncodeFailure(t *testing.T) {
	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(orig) })

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/conversations/c1", nil)
	writeJSON(rec, req, http.StatusOK, map[string]any{"bad": make(chan int)})

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	out := buf.String()
	if !strings.Contains(out, "web: encode response failed") || !strings.Contains(out, "level=WARN") {
		t.Errorf("log output = %q, want a warning for the encode failure", out)
	}
}
