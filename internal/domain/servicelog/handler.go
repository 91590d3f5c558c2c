package servicelog

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/totem/totem/internal/platform/apierror"
	"github.com/totem/totem/pkg/pagination"
	"github.com/totem/totem/pkg/validation"
)

const (
	DefaultRecentLimit = 50
	MaxRecentLimit     = 200
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the service-request endpoints on g. admin guards bulk
// status changes.
func (h *Handler) RegisterRoutes(g *echo.Group, admin echo.MiddlewareFunc) {
	if admin == nil {
		admin = func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	g.POST("/log", h.LogRequest)
	g.GET("/stats", h.GetStats)
	g.GET("/recent", h.ListRecent)
	g.GET("/pending/count", h.PendingCount)
	g.GET("/by-document/:documento", h.ListByDocument)
	g.PUT("/status/bulk", h.BulkUpdateStatus, admin)
	g.GET("/:id", h.GetService)
	g.PUT("/:id/status", h.UpdateStatus)
	g.DELETE("/:id", h.DeleteService)
}

type logRequest struct {
	Documento  string `json:"documento"`
	Secretaria string `json:"secretaria"`
	Piso       string `json:"piso"`
}

type logData struct {
	ID         uuid.UUID `json:"id"`
	Documento  string    `json:"documento"`
	Secretaria string    `json:"secretaria"`
	Piso       string    `json:"piso"`
	Timestamp  time.Time `json:"timestamp"`
	Estado     string    `json:"estado"`
}

type logResponse struct {
	Status  string  `json:"status"`
	Message string  `json:"message"`
	Data    logData `json:"data"`
}

type statsResponse struct {
	Status string `json:"status"`
	Data   *Stats `json:"data"`
	Days   int    `json:"days"`
}

type recentFilters struct {
	Secretaria *string `json:"secretaria"`
	Estado     *string `json:"estado"`
	Limit      int     `json:"limit"`
}

type listResponse struct {
	Status  string         `json:"status"`
	Data    []*ServiceLog  `json:"data"`
	Count   int            `json:"count"`
	Filters *recentFilters `json:"filters,omitempty"`
}

type serviceResponse struct {
	Status string      `json:"status"`
	Data   *ServiceLog `json:"data"`
}

type pendingResponse struct {
	Status       string `json:"status"`
	PendingCount int    `json:"pending_count"`
}

type statusRequest struct {
	Estado string `json:"estado"`
}

type statusResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	ServiceID string `json:"service_id"`
	NewEstado string `json:"new_estado"`
}

type bulkRequest struct {
	IDs    []string `json:"ids"`
	Estado string   `json:"estado"`
}

type bulkResponse struct {
	Status  string `json:"status"`
	Updated int    `json:"updated"`
	Estado  string `json:"estado"`
}

type deleteResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	ServiceID string `json:"service_id"`
}

func (h *Handler) LogRequest(c echo.Context) error {
	var req logRequest
	if err := c.Bind(&req); err != nil {
		return apierror.InvalidBody(nil)
	}
	if !validation.IsValidDocument(req.Documento) {
		return apierror.InvalidDocument()
	}
	if !validation.IsValidDepartment(req.Secretaria) {
		return apierror.InvalidSecretaria()
	}
	if !validation.FitsLength(strings.TrimSpace(req.Piso), validation.MaxFloorLength) {
		return apierror.InvalidBody(fmt.Errorf("piso excede %d caracteres", validation.MaxFloorLength))
	}
	l, err := h.svc.Log(c.Request().Context(), req.Documento, req.Secretaria, req.Piso)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, logResponse{
		Status:  "success",
		Message: "Solicitud registrada exitosamente",
		Data: logData{
			ID:         l.ID,
			Documento:  l.Document,
			Secretaria: l.Department,
			Piso:       l.Floor,
			Timestamp:  l.Timestamp,
			Estado:     l.State,
		},
	})
}

func (h *Handler) GetStats(c echo.Context) error {
	days := DefaultStatsDays
	if raw := c.QueryParam("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < MinStatsDays || n > MaxStatsDays {
			return apierror.BadRequest("invalid_days", apierror.CodeInvalidDays,
				"El parámetro days debe estar entre 1 y 90")
		}
		days = n
	}
	st, err := h.svc.Stats(c.Request().Context(), days)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, statsResponse{Status: "success", Data: st, Days: days})
}

func (h *Handler) ListRecent(c echo.Context) error {
	limit := pagination.QueryLimit(c, "limit", DefaultRecentLimit, MaxRecentLimit)
	f := Filter{Limit: limit}
	filters := &recentFilters{Limit: limit}

	if dept := c.QueryParam("secretaria"); dept != "" {
		if !validation.IsValidDepartment(dept) {
			return apierror.BadRequest("invalid_secretaria", apierror.CodeInvalidFilterSecretaria,
				"Secretaría inválida para filtro")
		}
		f.Department = dept
		filters.Secretaria = &dept
	}
	if state := c.QueryParam("estado"); state != "" {
		if !validation.IsValidState(state) {
			return apierror.BadRequest("invalid_estado", apierror.CodeInvalidFilterEstado,
				"Estado inválido para filtro")
		}
		f.State = state
		filters.Estado = &state
	}

	items, err := h.svc.Recent(c.Request().Context(), f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, listResponse{Status: "success", Data: items, Count: len(items), Filters: filters})
}

func (h *Handler) GetService(c echo.Context) error {
	l, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if errors.Is(err, ErrNotFound) {
		return apierror.ServiceNotFound()
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, serviceResponse{Status: "success", Data: l})
}

func (h *Handler) ListByDocument(c echo.Context) error {
	doc := c.Param("documento")
	if !validation.IsValidDocument(doc) {
		return apierror.InvalidDocument()
	}
	items, err := h.svc.ListByDocument(c.Request().Context(), doc)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, listResponse{Status: "success", Data: items, Count: len(items)})
}

func (h *Handler) PendingCount(c echo.Context) error {
	n, err := h.svc.PendingCount(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pendingResponse{Status: "success", PendingCount: n})
}

func validateEstado(estado string) error {
	if estado == "" {
		return apierror.BadRequest("missing_estado", apierror.CodeMissingEstado, "Estado es requerido")
	}
	if !validation.IsValidState(estado) {
		return apierror.InvalidEstado()
	}
	return nil
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return apierror.InvalidBody(nil)
	}
	if err := validateEstado(req.Estado); err != nil {
		return err
	}
	id := c.Param("id")
	_, err := h.svc.UpdateStatus(c.Request().Context(), id, req.Estado)
	if errors.Is(err, ErrNotFound) {
		return apierror.ServiceNotFound()
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, statusResponse{
		Status:    "success",
		Message:   "Estado actualizado exitosamente",
		ServiceID: id,
		NewEstado: req.Estado,
	})
}

func (h *Handler) BulkUpdateStatus(c echo.Context) error {
	var req bulkRequest
	if err := c.Bind(&req); err != nil {
		return apierror.InvalidBody(nil)
	}
	if err := validateEstado(req.Estado); err != nil {
		return err
	}
	n, err := h.svc.BulkUpdateStatus(c.Request().Context(), req.IDs, req.Estado)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, bulkResponse{Status: "success", Updated: n, Estado: req.Estado})
}

func (h *Handler) DeleteService(c echo.Context) error {
	id := c.Param("id")
	err := h.svc.Delete(c.Request().Context(), id)
	if errors.Is(err, ErrNotFound) {
		return apierror.ServiceNotFound()
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, deleteResponse{
		Status:    "success",
		Message:   "Servicio eliminado exitosamente",
		ServiceID: id,
	})
}
