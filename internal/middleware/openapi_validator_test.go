package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"room-web/internal/apispec"
)

func newValidated(t *testing.T, config *OpenAPIValidatorConfig, handler http.HandlerFunc) http.Handler {
	t.Helper()
	doc, err := apispec.Load()
	require.NoError(t, err)

	mw, err := OpenAPIValidator(doc, config)
	require.NoError(t, err)
	return mw(handler)
}

func TestOpenAPIValidator_KnownOperation(t *testing.T) {
	handler := newValidated(t, nil, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"authenticated": false, "user": nil})
	})

	req := httptest.NewRequest(http.MethodGet, "http://room.example/api/v1/session", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"authenticated":false,"user":null}`, rr.Body.String())
}

func TestOpenAPIValidator_UnknownOperation(t *testing.T) {
	var called bool
	handler := newValidated(t, nil, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/nope", nil))

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.False(t, called)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
}

func TestOpenAPIValidator_WrongMethod(t *testing.T) {
	handler := newValidated(t, nil, func(w http.ResponseWriter, r *http.Request) {})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/api/v1/listings", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestOpenAPIValidator_PagesPassThrough(t *testing.T) {
	var called bool
	handler := newValidated(t, nil, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/listings", nil))
	assert.True(t, called)
}

func TestOpenAPIValidator_ResponseDriftIsLoggedOnly(t *testing.T) {
	handler := newValidated(t, DefaultOpenAPIValidatorConfig(false), func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"unexpected":true}`))
	})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/session", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"unexpected":true}`, rr.Body.String())
}

func TestOpenAPIValidator_Disabled(t *testing.T) {
	var called bool
	handler := newValidated(t, &OpenAPIValidatorConfig{Enabled: false}, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/nope", nil))
	assert.True(t, called)
}

func TestDefaultOpenAPIValidatorConfig(t *testing.T) {
	assert.False(t, DefaultOpenAPIValidatorConfig(true).ValidateResponses)
	assert.True(t, DefaultOpenAPIValidatorConfig(false).ValidateResponses)
	assert.Equal(t, "/api/", DefaultOpenAPIValidatorConfig(true).PathPrefix)
}
