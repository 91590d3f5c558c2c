package middleware

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// mockRecorder collects audit entries for assertions.
type mockRecorder struct {
	mu      sync.Mutex
	entries []AuditEntry
	err     error
}

func (m *mockRecorder) RecordAccess(entry AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return m.err
}

func (m *mockRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *mockRecorder) last() AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[len(m.entries)-1]
}

func newAuditEcho(logger zerolog.Logger, rec AuditRecorder) *echo.Echo {
	e := newTestEcho()
	e.Use(RequestID(), Audit(logger, rec))
	ok := func(c echo.Context) error { return c.JSON(http.StatusOK, map[string]string{"status": "success"}) }
	e.GET("/api/patients/:documento", ok)
	e.DELETE("/api/patients/:documento", func(c echo.Context) error {
		c.Set("api_key_id", "key-1")
		return c.NoContent(http.StatusOK)
	})
	e.PUT("/api/services/:id/status", ok)
	e.POST("/api/services/log", ok)
	e.POST("/internal/ping", ok)
	return e
}

func TestAudit_RecordsWrites(t *testing.T) {
	rec := &mockRecorder{}
	e := newAuditEcho(zerolog.Nop(), rec)

	req := httptest.NewRequest(http.MethodPut, "/api/services/7c9e6679/status", strings.NewReader(`{}`))
	req.Header.Set("User-Agent", "kiosk/1.0")
	e.ServeHTTP(httptest.NewRecorder(), req)

	if rec.count() != 1 {
		t.Fatalf("expected 1 entry, got %d", rec.count())
	}
	entry := rec.last()
	if entry.Action != "update" || entry.Resource != "services" || entry.Target != "7c9e6679" {
		t.Errorf("unexpected entry %+v", entry)
	}
	if entry.UserAgent != "kiosk/1.0" || entry.RequestID == "" || entry.StatusCode != http.StatusOK {
		t.Errorf("unexpected entry metadata %+v", entry)
	}
}

func TestAudit_MasksDocumentAndCapturesKey(t *testing.T) {
	rec := &mockRecorder{}
	e := newAuditEcho(zerolog.Nop(), rec)

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodDelete, "/api/patients/12345678", nil))

	entry := rec.last()
	if entry.Action != "delete" || entry.Target != "*****678" {
		t.Errorf("unexpected entry %+v", entry)
	}
	if entry.APIKeyID != "key-1" {
		t.Errorf("expected api key id, got %q", entry.APIKeyID)
	}
}

func TestAudit_SkipsReadsAndNonAPIPaths(t *testing.T) {
	rec := &mockRecorder{}
	e := newAuditEcho(zerolog.Nop(), rec)

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/patients/12345678", nil))
	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/internal/ping", nil))

	if rec.count() != 0 {
		t.Errorf("expected no entries, got %d", rec.count())
	}
}

func TestAudit_RecorderError_DoesNotBreakRequest(t *testing.T) {
	var buf bytes.Buffer
	rec := &mockRecorder{err: errors.New("disk full")}
	e := newAuditEcho(zerolog.New(&buf), rec)

	w := httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/services/log", strings.NewReader(`{}`)))

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(buf.String(), "failed to record audit entry") {
		t.Error("expected recorder failure to be logged")
	}
}

func TestAudit_LogsRenderedStatus(t *testing.T) {
	var buf bytes.Buffer
	e := newTestEcho()
	e.Use(Audit(zerolog.New(&buf)))
	e.POST("/api/services/log", func(c echo.Context) error { return echo.ErrBadRequest })

	w := httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/services/log", nil))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if !strings.Contains(buf.String(), `"status":400`) {
		t.Errorf("expected status 400 in audit log, got %s", buf.String())
	}
}

func TestHttpMethodToAction(t *testing.T) {
	tests := map[string]string{
		http.MethodGet:    "",
		http.MethodHead:   "",
		http.MethodPost:   "create",
		http.MethodPut:    "update",
		http.MethodPatch:  "update",
		http.MethodDelete: "delete",
	}
	for method, want := range tests {
		if got := httpMethodToAction(method); got != want {
			t.Errorf("httpMethodToAction(%s) = %q, want %q", method, got, want)
		}
	}
}

func TestExtractResource(t *testing.T) {
	tests := map[string]string{
		"/api/patients/12345678":    "patients",
		"/api/services/log":         "services",
		"/api/services/status/bulk": "services",
		"/api/":                     "unknown",
	}
	for path, want := range tests {
		if got := extractResource(path); got != want {
			t.Errorf("extractResource(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestMaskDocument(t *testing.T) {
	tests := map[string]string{
		"12345678":   "*****678",
		"1234567890": "*******890",
		"123":        "***",
		"":           "",
	}
	for in, want := range tests {
		if got := MaskDocument(in); got != want {
			t.Errorf("MaskDocument(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAuditRecorderFunc(t *testing.T) {
	var got AuditEntry
	f := AuditRecorderFunc(func(e AuditEntry) error {
		got = e
		return nil
	})
	if err := f.RecordAccess(AuditEntry{Action: "create"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Action != "create" {
		t.Errorf("expected create, got %q", got.Action)
	}
}
