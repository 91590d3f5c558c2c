// Package apierror defines the error taxonomy returned by the kiosk API and
// the echo error handler that renders it.
package apierror

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Machine-readable codes. The kiosk frontend branches on these.
const (
	CodeInvalidDocument         = "INVALID_DOCUMENT_FORMAT"
	CodeInvalidSecretaria       = "INVALID_SECRETARIA"
	CodeInvalidEstado           = "INVALID_ESTADO_VALUE"
	CodeMissingEstado           = "MISSING_ESTADO_FIELD"
	CodeInvalidFilterSecretaria = "INVALID_FILTER_SECRETARIA"
	CodeInvalidFilterEstado     = "INVALID_FILTER_ESTADO"
	CodeInvalidDays             = "INVALID_DAYS"
	CodeInvalidBody             = "INVALID_REQUEST_BODY"
	CodePatientNotFound         = "PATIENT_NOT_FOUND"
	CodeNoAppointment           = "NO_APPOINTMENT_SCHEDULED"
	CodeConfirmationFailed      = "APPOINTMENT_CONFIRMATION_FAILED"
	CodePatientCreationFailed   = "PATIENT_CREATION_FAILED"
	CodeServiceNotFound         = "SERVICE_NOT_FOUND"
	CodeBurstLimit              = "BURST_LIMIT_EXCEEDED"
	CodeMinuteLimit             = "MINUTE_LIMIT_EXCEEDED"
	CodeInvalidAPIKey           = "INVALID_API_KEY"
	CodeTimeout                 = "REQUEST_TIMEOUT"
	CodePayloadTooLarge         = "PAYLOAD_TOO_LARGE"
	CodeRejectedRequest         = "REJECTED_REQUEST"
	CodeNotFound                = "NOT_FOUND"
	CodeInternal                = "INTERNAL_SERVER_ERROR"
)

// RedirectOtherServices tells the kiosk to offer the desk-request flow.
const RedirectOtherServices = "other_services"

// Error is a client-facing API error. Status is never serialized; it selects
// the HTTP status code.
type Error struct {
	Status     int    `json:"-"`
	Kind       string `json:"error"`
	Message    string `json:"message"`
	Code       string `json:"code"`
	Redirect   string `json:"redirect,omitempty"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

// WithRedirect returns a copy of e carrying a redirect hint.
func (e *Error) WithRedirect(target string) *Error {
	cp := *e
	cp.Redirect = target
	return &cp
}

func New(status int, kind, code, message string) *Error {
	return &Error{Status: status, Kind: kind, Code: code, Message: message}
}

func BadRequest(kind, code, message string) *Error {
	return New(http.StatusBadRequest, kind, code, message)
}

func NotFound(kind, code, message string) *Error {
	return New(http.StatusNotFound, kind, code, message)
}

func InvalidDocument() *Error {
	return BadRequest("invalid_document",
		CodeInvalidDocument,
		"Número de documento inválido. Debe contener entre 7 y 10 dígitos.")
}

func InvalidSecretaria() *Error {
	return BadRequest("invalid_secretaria",
		CodeInvalidSecretaria,
		"Secretaría inválida. Valores permitidos: pb, pp, 2p, 3p")
}

func InvalidEstado() *Error {
	return BadRequest("invalid_estado",
		CodeInvalidEstado,
		"Estado inválido. Valores permitidos: pendiente, atendido, cancelado")
}

func InvalidBody(err error) *Error {
	msg := "Cuerpo de la solicitud inválido"
	if err != nil {
		msg += ": " + err.Error()
	}
	return BadRequest("invalid_body", CodeInvalidBody, msg)
}

func ServiceNotFound() *Error {
	return NotFound("service_not_found", CodeServiceNotFound, "Servicio no encontrado")
}

func Unauthorized() *Error {
	return New(http.StatusUnauthorized, "unauthorized", CodeInvalidAPIKey, "API key inválida o ausente")
}

func GatewayTimeout() *Error {
	return New(http.StatusGatewayTimeout, "request_timeout", CodeTimeout,
		"La solicitud excedió el tiempo máximo de procesamiento")
}

func PayloadTooLarge(limit int64) *Error {
	return New(http.StatusRequestEntityTooLarge, "payload_too_large", CodePayloadTooLarge,
		fmt.Sprintf("El cuerpo de la solicitud excede el máximo de %d bytes", limit))
}

// Rejected is returned by the input screening middleware.
func Rejected(reason string) *Error {
	return BadRequest("rejected_request", CodeRejectedRequest, reason)
}

// Internal is the only shape a backend failure takes on the wire.
func Internal() *Error {
	return New(http.StatusInternalServerError, "internal_error", CodeInternal, "Error interno del sistema")
}

// RateLimited builds the 429 body for a limiter rejection.
func RateLimited(code string, retryAfter int) *Error {
	msg := "Rate limit exceeded. Maximum requests per minute exceeded."
	if code == CodeBurstLimit {
		msg = "Too many requests in short time. Please wait."
	}
	e := New(http.StatusTooManyRequests, "rate_limit_exceeded", code, msg)
	e.RetryAfter = retryAfter
	return e
}

// Handler returns an echo.HTTPErrorHandler rendering *Error values as-is,
// echo's own HTTP errors (404 route, 405, bind failures) with a code derived
// from the status, and everything else as a logged 500.
func Handler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var apiErr *Error
		var httpErr *echo.HTTPError
		switch {
		case errors.As(err, &apiErr):
		case errors.As(err, &httpErr):
			apiErr = fromHTTPError(httpErr)
		default:
			apiErr = nil
		}

		if apiErr == nil || apiErr.Status >= http.StatusInternalServerError {
			rid, _ := c.Get("request_id").(string)
			logger.Error().Err(err).
				Str("request_id", rid).
				Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Msg("unhandled error")
			if apiErr == nil || apiErr.Code == "" {
				apiErr = Internal()
			}
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(apiErr.Status)
		} else {
			writeErr = c.JSON(apiErr.Status, apiErr)
		}
		if writeErr != nil {
			logger.Error().Err(writeErr).Msg("write error response")
		}
	}
}

func fromHTTPError(he *echo.HTTPError) *Error {
	msg := http.StatusText(he.Code)
	if s, ok := he.Message.(string); ok && s != "" {
		msg = s
	}
	switch he.Code {
	case http.StatusNotFound:
		return New(he.Code, "not_found", CodeNotFound, msg)
	case http.StatusBadRequest, http.StatusUnsupportedMediaType:
		return New(he.Code, "invalid_request", CodeInvalidBody, msg)
	case http.StatusRequestEntityTooLarge:
		return New(he.Code, "payload_too_large", CodePayloadTooLarge, msg)
	case http.StatusInternalServerError:
		return Internal()
	}
	code := strings.ToUpper(strings.ReplaceAll(http.StatusText(he.Code), " ", "_"))
	return New(he.Code, "http_error", code, msg)
}
