package telemetry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewProvider_Defaults(t *testing.T) {
	p := NewProvider(Config{})
	res := p.Resource()
	if res["service.name"] != "totem-server" {
		t.Errorf("expected default service name, got %q", res["service.name"])
	}
	if res["deployment.environment"] != "development" {
		t.Errorf("expected default environment, got %q", res["deployment.environment"])
	}
}

func TestProviders_AreIndependent(t *testing.T) {
	a := NewProvider(Config{})
	b := NewProvider(Config{})
	a.RecordAdmission(OutcomeAllowed)
	if got := testutil.ToFloat64(b.Admissions.WithLabelValues(OutcomeAllowed)); got != 0 {
		t.Errorf("expected independent registries, got %v", got)
	}
}

func TestRecordAdmission(t *testing.T) {
	p := NewProvider(Config{})
	p.RecordAdmission(OutcomeAllowed)
	p.RecordAdmission(OutcomeAllowed)
	p.RecordAdmission(OutcomeBurst)

	if got := testutil.ToFloat64(p.Admissions.WithLabelValues(OutcomeAllowed)); got != 2 {
		t.Errorf("expected 2 allowed, got %v", got)
	}
	if got := testutil.ToFloat64(p.Admissions.WithLabelValues(OutcomeBurst)); got != 1 {
		t.Errorf("expected 1 burst, got %v", got)
	}
}

func TestRecordCacheLookup(t *testing.T) {
	p := NewProvider(Config{})
	p.RecordCacheLookup(true)
	p.RecordCacheLookup(false)
	p.RecordCacheLookup(false)

	if got := testutil.ToFloat64(p.CacheLookups.WithLabelValues("hit")); got != 1 {
		t.Errorf("expected 1 hit, got %v", got)
	}
	if got := testutil.ToFloat64(p.CacheLookups.WithLabelValues("miss")); got != 2 {
		t.Errorf("expected 2 misses, got %v", got)
	}
}

func TestNilProvider_IsNoop(t *testing.T) {
	var p *Provider
	p.RecordAdmission(OutcomeAllowed)
	p.RecordCacheLookup(true)
	p.SetDBPool(1, 1, 0)
}

func TestMetricsMiddleware_UsesRoutePattern(t *testing.T) {
	p := NewProvider(Config{})
	e := echo.New()
	e.Use(p.MetricsMiddleware())
	e.GET("/api/patients/:documento", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	for _, doc := range []string{"12345678", "87654321"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/patients/"+doc, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	}

	if n := testutil.CollectAndCount(p.RequestDuration); n != 1 {
		t.Errorf("expected one label set, got %d", n)
	}
	if got := testutil.ToFloat64(p.ActiveRequests); got != 0 {
		t.Errorf("expected no in-flight requests, got %v", got)
	}
}

func TestHandler_ExposesMetrics(t *testing.T) {
	p := NewProvider(Config{ServiceVersion: "1.2.3"})
	p.RecordAdmission(OutcomeMinute)
	p.SetDBPool(10, 7, 3)

	e := echo.New()
	e.GET("/metrics", p.Handler())
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`totem_admission_decisions_total{outcome="minute"} 1`,
		`totem_db_pool_connections{state="acquired"} 3`,
		`version="1.2.3"`,
		"go_goroutines",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in exposition", want)
		}
	}
}
