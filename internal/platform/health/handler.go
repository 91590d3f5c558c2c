package health

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Middleware feeds every request into the monitor. Responses with a 5xx
// status count as errors.
func (m *Monitor) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			m.RecordRequest(time.Since(start), c.Response().Status >= http.StatusInternalServerError)
			return nil
		}
	}
}

// Source contributes one named section to the metrics response.
type Source func(ctx context.Context) (interface{}, error)

type Handler struct {
	monitor *Monitor
	names   []string
	sources map[string]Source
}

func NewHandler(m *Monitor) *Handler {
	return &Handler{monitor: m, sources: make(map[string]Source)}
}

// AddSource registers a metrics section, replacing any with the same name.
func (h *Handler) AddSource(name string, fn Source) {
	if _, ok := h.sources[name]; !ok {
		h.names = append(h.names, name)
	}
	h.sources[name] = fn
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/health", h.Health)
	g.GET("/metrics", h.Metrics)
}

// Health runs every probe and returns the report. A failed dependency turns
// the response into a 503.
func (h *Handler) Health(c echo.Context) error {
	r := h.monitor.Check(c.Request().Context())
	code := http.StatusOK
	if !r.Ready() {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, r)
}

type metricsResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	API       APIMetrics             `json:"api"`
	Sections  map[string]interface{} `json:"sections"`
}

type sectionError struct {
	Error string `json:"error"`
}

// Metrics returns request metrics plus every registered section. A failing
// section is reported in place without failing the response.
func (h *Handler) Metrics(c echo.Context) error {
	ctx := c.Request().Context()
	resp := metricsResponse{
		Status:    "success",
		Timestamp: h.monitor.now().UTC(),
		API:       h.monitor.API(),
		Sections:  make(map[string]interface{}, len(h.names)),
	}
	for _, name := range h.names {
		v, err := h.sources[name](ctx)
		if err != nil {
			h.monitor.opts.Logger.Warn().Err(err).Str("section", name).Msg("metrics section failed")
			v = sectionError{Error: "unavailable"}
		}
		resp.Sections[name] = v
	}
	return c.JSON(http.StatusOK, resp)
}
