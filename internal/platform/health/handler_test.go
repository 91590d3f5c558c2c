package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

func TestHandler_Health(t *testing.T) {
	m := newTestMonitor(NewPingProber("database", func(context.Context) error { return nil }))
	h := NewHandler(m)
	e := echo.New()
	h.RegisterRoutes(e.Group("/api"))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var r Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &r))
	require.Equal(t, StatusHealthy, r.Status)
	require.Contains(t, r.Checks, "database")
}

func TestHandler_HealthDependencyDown(t *testing.T) {
	m := newTestMonitor(NewPingProber("database", func(context.Context) error { return errors.New("down") }))
	h := NewHandler(m)
	e := echo.New()
	h.RegisterRoutes(e.Group("/api"))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandler_MetricsSections(t *testing.T) {
	m := newTestMonitor()
	h := NewHandler(m)
	h.AddSource("patients", func(context.Context) (interface{}, error) {
		return map[string]int{"total": 3}, nil
	})
	h.AddSource("redis", func(context.Context) (interface{}, error) {
		return nil, errors.New("dial tcp: refused")
	})
	e := echo.New()
	h.RegisterRoutes(e.Group("/api"))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status   string                     `json:"status"`
		Sections map[string]json.RawMessage `json:"sections"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "success", body.Status)
	require.JSONEq(t, `{"total":3}`, string(body.Sections["patients"]))
	require.JSONEq(t, `{"error":"unavailable"}`, string(body.Sections["redis"]))
}

func TestMiddleware_CountsServerErrors(t *testing.T) {
	m := newTestMonitor()
	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/ok", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/bad", func(c echo.Context) error { return echo.NewHTTPError(http.StatusBadRequest) })
	e.GET("/boom", func(c echo.Context) error { return errors.New("boom") })

	for _, path := range []string{"/ok", "/bad", "/boom"} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}
	api := m.API()
	require.EqualValues(t, 3, api.TotalRequests)
	require.EqualValues(t, 1, api.TotalErrors)
}
