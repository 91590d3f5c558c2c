package patient

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/totem/totem/internal/platform/apierror"
	"github.com/totem/totem/pkg/pagination"
	"github.com/totem/totem/pkg/validation"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the patient endpoints on g. admin guards the
// management routes.
func (h *Handler) RegisterRoutes(g *echo.Group, admin echo.MiddlewareFunc) {
	if admin == nil {
		admin = func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	g.GET("/confirmed/appointments", h.ListConfirmed)
	g.POST("/confirm", h.ConfirmAppointment)
	g.GET("/:documento", h.GetByDocument)

	g.GET("/", h.ListPatients, admin)
	g.POST("/", h.CreatePatient, admin)
	g.DELETE("/:documento", h.DeletePatient, admin)
}

type patientData struct {
	Documento string      `json:"documento"`
	Nombre    string      `json:"nombre"`
	Apellido  string      `json:"apellido"`
	Turno     Appointment `json:"turno"`
}

type lookupResponse struct {
	Status    string      `json:"status"`
	Data      patientData `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

type confirmRequest struct {
	Documento string `json:"documento"`
}

type confirmResponse struct {
	Status      string     `json:"status"`
	Message     string     `json:"message"`
	Documento   string     `json:"documento"`
	ConfirmedAt *time.Time `json:"confirmed_at"`
}

type confirmedListResponse struct {
	Status string     `json:"status"`
	Data   []*Patient `json:"data"`
	Count  int        `json:"count"`
}

type createRequest struct {
	Documento string      `json:"documento"`
	Nombre    string      `json:"nombre"`
	Apellido  string      `json:"apellido"`
	Turno     Appointment `json:"turno"`
}

type createResponse struct {
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	ID        uuid.UUID `json:"id"`
	Documento string    `json:"documento"`
}

type deleteResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Documento string `json:"documento"`
}

func errNoPatientRecord() *apierror.Error {
	return apierror.NotFound("no_patient_record", apierror.CodePatientNotFound,
		"Paciente no encontrado en el sistema").WithRedirect(apierror.RedirectOtherServices)
}

func errNoAppointment() *apierror.Error {
	return apierror.NotFound("no_appointment", apierror.CodeNoAppointment,
		"Usted no cuenta con turno programado").WithRedirect(apierror.RedirectOtherServices)
}

func errConfirmationFailed() *apierror.Error {
	return apierror.NotFound("confirmation_failed", apierror.CodeConfirmationFailed,
		"No se pudo confirmar el turno")
}

// documentParam validates and normalizes raw before anything touches the store.
func documentParam(raw string) (string, error) {
	if !validation.IsValidDocument(raw) {
		return "", apierror.InvalidDocument()
	}
	return validation.NormalizeDocument(raw), nil
}

func (h *Handler) GetByDocument(c echo.Context) error {
	doc, err := documentParam(c.Param("documento"))
	if err != nil {
		return err
	}
	p, status, err := h.svc.Lookup(c.Request().Context(), doc)
	if err != nil {
		return err
	}
	switch status {
	case LookupNotFound:
		return errNoPatientRecord()
	case LookupFoundNoAppointment:
		return errNoAppointment()
	}
	return c.JSON(http.StatusOK, lookupResponse{
		Status: "success",
		Data: patientData{
			Documento: p.Document,
			Nombre:    p.FirstName,
			Apellido:  p.LastName,
			Turno:     p.Appointment,
		},
		Timestamp: p.UpdatedAt,
	})
}

func (h *Handler) ConfirmAppointment(c echo.Context) error {
	var req confirmRequest
	if err := c.Bind(&req); err != nil {
		return apierror.InvalidBody(nil)
	}
	doc, err := documentParam(req.Documento)
	if err != nil {
		return err
	}
	p, err := h.svc.Confirm(c.Request().Context(), doc)
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrNoAppointment) {
		return errConfirmationFailed()
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, confirmResponse{
		Status:      "success",
		Message:     "Turno confirmado exitosamente",
		Documento:   doc,
		ConfirmedAt: p.Appointment.ConfirmedAt,
	})
}

func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) ListConfirmed(c echo.Context) error {
	items, err := h.svc.ListConfirmed(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, confirmedListResponse{Status: "success", Data: items, Count: len(items)})
}

func (h *Handler) CreatePatient(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return apierror.InvalidBody(nil)
	}
	if !validation.IsValidDocument(req.Documento) {
		return apierror.InvalidDocument()
	}
	p := &Patient{
		Document:    req.Documento,
		FirstName:   req.Nombre,
		LastName:    req.Apellido,
		Appointment: req.Turno,
	}
	err := h.svc.Create(c.Request().Context(), p)
	switch {
	case errors.Is(err, ErrDuplicate):
		return apierror.BadRequest("creation_failed", apierror.CodePatientCreationFailed,
			"Ya existe un paciente con ese documento")
	case errors.Is(err, ErrInvalid):
		return apierror.InvalidBody(err)
	case err != nil:
		return err
	}
	return c.JSON(http.StatusOK, createResponse{
		Status:    "success",
		Message:   "Paciente creado exitosamente",
		ID:        p.ID,
		Documento: p.Document,
	})
}

func (h *Handler) DeletePatient(c echo.Context) error {
	doc, err := documentParam(c.Param("documento"))
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), doc); err != nil {
		if errors.Is(err, ErrNotFound) {
			return errNoPatientRecord()
		}
		return err
	}
	return c.JSON(http.StatusOK, deleteResponse{
		Status:    "success",
		Message:   "Paciente eliminado exitosamente",
		Documento: doc,
	})
}
