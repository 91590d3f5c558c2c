package apierror

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func render(t *testing.T, err error) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/patients/123", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	Handler(zerolog.Nop())(err, c)

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON: %v (%s)", err, rec.Body.String())
	}
	return rec, body
}

func TestHandler_APIError(t *testing.T) {
	rec, body := render(t, InvalidDocument())
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	if body["code"] != CodeInvalidDocument {
		t.Errorf("expected code %s, got %v", CodeInvalidDocument, body["code"])
	}
	if body["error"] != "invalid_document" {
		t.Errorf("expected error kind invalid_document, got %v", body["error"])
	}
	if _, ok := body["redirect"]; ok {
		t.Error("expected no redirect field")
	}
}

func TestHandler_WrappedAPIErrorWithRedirect(t *testing.T) {
	base := NotFound("no_patient_record", CodePatientNotFound, "Paciente no encontrado en el sistema")
	err := fmt.Errorf("lookup: %w", base.WithRedirect(RedirectOtherServices))

	rec, body := render(t, err)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	if body["redirect"] != RedirectOtherServices {
		t.Errorf("expected redirect %q, got %v", RedirectOtherServices, body["redirect"])
	}
	if base.Redirect != "" {
		t.Error("WithRedirect must not mutate the receiver")
	}
}

func TestHandler_UnknownErrorBecomesInternal(t *testing.T) {
	rec, body := render(t, errors.New("pq: connection refused to 10.0.0.5"))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
	if body["code"] != CodeInternal {
		t.Errorf("expected %s, got %v", CodeInternal, body["code"])
	}
	if strings.Contains(rec.Body.String(), "10.0.0.5") {
		t.Error("internal details leaked into the response body")
	}
}

func TestHandler_EchoNotFound(t *testing.T) {
	rec, body := render(t, echo.ErrNotFound)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	if body["code"] != CodeNotFound {
		t.Errorf("expected %s, got %v", CodeNotFound, body["code"])
	}
}

func TestRateLimited(t *testing.T) {
	burst := RateLimited(CodeBurstLimit, 10)
	if burst.Status != http.StatusTooManyRequests || burst.RetryAfter != 10 {
		t.Errorf("unexpected burst error: %+v", burst)
	}
	minute := RateLimited(CodeMinuteLimit, 60)
	if minute.Message == burst.Message {
		t.Error("burst and sustained rejections should carry distinct messages")
	}
}

func TestHandler_EchoMethodNotAllowed(t *testing.T) {
	rec, body := render(t, echo.ErrMethodNotAllowed)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
	if body["code"] != "METHOD_NOT_ALLOWED" {
		t.Errorf("expected METHOD_NOT_ALLOWED, got %v", body["code"])
	}
}

func TestHandler_GatewayTimeoutKeepsCode(t *testing.T) {
	rec, body := render(t, GatewayTimeout())
	if rec.Code != http.StatusGatewayTimeout {
		t.Errorf("expected 504, got %d", rec.Code)
	}
	if body["code"] != CodeTimeout {
		t.Errorf("expected %s, got %v", CodeTimeout, body["code"])
	}
}
