package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/totem/totem/internal/platform/apierror"
)

func TestNewKeySet_IgnoresBlanksAndDuplicates(t *testing.T) {
	ks := NewKeySet([]string{"alpha", " ", "", "alpha", "beta "})
	if ks.Len() != 2 {
		t.Errorf("expected 2 keys, got %d", ks.Len())
	}
	if !ks.Enabled() {
		t.Error("expected key set to be enabled")
	}
	if NewKeySet(nil).Enabled() {
		t.Error("expected empty key set to be disabled")
	}
}

func TestKeySet_Validate(t *testing.T) {
	ks := NewKeySet([]string{"alpha", "beta"})

	id, ok := ks.Validate("beta")
	if !ok {
		t.Fatal("expected beta to validate")
	}
	if id != Fingerprint("beta") || len(id) != 8 {
		t.Errorf("unexpected fingerprint %q", id)
	}
	if _, ok := ks.Validate("gamma"); ok {
		t.Error("expected unknown key to fail")
	}
	if _, ok := ks.Validate(""); ok {
		t.Error("expected empty key to fail")
	}
}

func runAPIKey(t *testing.T, ks *KeySet, setup func(*http.Request)) (echo.Context, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/patients/", nil)
	if setup != nil {
		setup(req)
	}
	c := e.NewContext(req, httptest.NewRecorder())
	err := APIKeyMiddleware(ks)(func(c echo.Context) error { return c.NoContent(http.StatusOK) })(c)
	return c, err
}

func TestAPIKeyMiddleware_RejectsMissingKey(t *testing.T) {
	_, err := runAPIKey(t, NewKeySet([]string{"alpha"}), nil)
	var apiErr *apierror.Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *apierror.Error, got %T", err)
	}
	if apiErr.Status != http.StatusUnauthorized || apiErr.Code != apierror.CodeInvalidAPIKey {
		t.Errorf("expected 401 INVALID_API_KEY, got %d %s", apiErr.Status, apiErr.Code)
	}
}

func TestAPIKeyMiddleware_RejectsWrongKey(t *testing.T) {
	_, err := runAPIKey(t, NewKeySet([]string{"alpha"}), func(r *http.Request) {
		r.Header.Set(APIKeyHeader, "wrong")
	})
	if err == nil {
		t.Fatal("expected an error for a wrong key")
	}
}

func TestAPIKeyMiddleware_AcceptsHeader(t *testing.T) {
	c, err := runAPIKey(t, NewKeySet([]string{"alpha"}), func(r *http.Request) {
		r.Header.Set(APIKeyHeader, "alpha")
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Get("api_key_id") != Fingerprint("alpha") {
		t.Errorf("expected api_key_id to be set, got %v", c.Get("api_key_id"))
	}
}

func TestAPIKeyMiddleware_AcceptsAuthorizationScheme(t *testing.T) {
	_, err := runAPIKey(t, NewKeySet([]string{"alpha"}), func(r *http.Request) {
		r.Header.Set("Authorization", "ApiKey alpha")
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAPIKeyMiddleware_DisabledWithoutKeys(t *testing.T) {
	if _, err := runAPIKey(t, NewKeySet(nil), nil); err != nil {
		t.Fatalf("expected pass-through without configured keys, got %v", err)
	}
}
