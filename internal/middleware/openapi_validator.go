package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
)

// OpenAPIValidatorConfig holds configuration for OpenAPI validation middleware
type OpenAPIValidatorConfig struct {
	// Enabled controls whether validation is active
	Enabled bool
	// PathPrefix limits validation to the JSON API
	PathPrefix string
	// ValidateRequests enables request validation
	ValidateRequests bool
	// ValidateResponses logs responses that drift from the document
	ValidateResponses bool
}

// DefaultOpenAPIValidatorConfig validates requests always and responses
// outside production.
func DefaultOpenAPIValidatorConfig(production bool) *OpenAPIValidatorConfig {
	return &OpenAPIValidatorConfig{
		Enabled:           true,
		PathPrefix:        "/api/",
		ValidateRequests:  true,
		ValidateResponses: !production,
	}
}

// OpenAPIValidator checks JSON API traffic against doc. The document's
// server list is ignored so matching works behind any host name.
func OpenAPIValidator(doc *openapi3.T, config *OpenAPIValidatorConfig) (func(next http.Handler) http.Handler, error) {
	if config == nil {
		config = DefaultOpenAPIValidatorConfig(false)
	}

	if !config.Enabled {
		slog.Info("OpenAPI validation disabled")
		return func(next http.Handler) http.Handler { return next }, nil
	}

	hostless := *doc
	hostless.Servers = nil

	router, err := gorillamux.NewRouter(&hostless)
	if err != nil {
		return nil, fmt.Errorf("create openapi router: %w", err)
	}

	slog.Info("OpenAPI validation enabled",
		slog.Bool("validate_requests", config.ValidateRequests),
		slog.Bool("validate_responses", config.ValidateResponses),
		slog.String("path_prefix", config.PathPrefix))

	options := &openapi3filter.Options{AuthenticationFunc: openapi3filter.NoopAuthenticationFunc}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, config.PathPrefix) {
				next.ServeHTTP(w, r)
				return
			}

			route, pathParams, err := router.FindRoute(r)
			if err != nil {
				status := http.StatusNotFound
				if errors.Is(err, routers.ErrMethodNotAllowed) {
					status = http.StatusMethodNotAllowed
				}
				writeValidationError(w, status, fmt.Sprintf("No such operation: %s %s", r.Method, r.URL.Path))
				return
			}

			requestInput := &openapi3filter.RequestValidationInput{
				Request:    r,
				PathParams: pathParams,
				Route:      route,
				Options:    options,
			}

			if config.ValidateRequests {
				if err := openapi3filter.ValidateRequest(r.Context(), requestInput); err != nil {
					slog.Warn("request validation failed",
						slog.String("method", r.Method),
						slog.String("path", r.URL.Path),
						slog.String("error", err.Error()))
					writeValidationError(w, http.StatusBadRequest, fmt.Sprintf("Request validation failed: %s", err.Error()))
					return
				}
			}

			if !config.ValidateResponses {
				next.ServeHTTP(w, r)
				return
			}

			recorder := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(recorder, r)

			responseInput := &openapi3filter.ResponseValidationInput{
				RequestValidationInput: requestInput,
				Status:                 recorder.statusCode,
				Header:                 recorder.Header(),
				Body:                   io.NopCloser(bytes.NewReader(recorder.body)),
				Options:                options,
			}

			// The response is already sent; drift is only logged.
			if err := openapi3filter.ValidateResponse(r.Context(), responseInput); err != nil {
				slog.Warn("response validation failed",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Int("status", recorder.statusCode),
					slog.String("error", err.Error()))
			}
		})
	}, nil
}

func writeValidationError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// responseRecorder wraps http.ResponseWriter to capture response data
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       []byte
}

func (r *responseRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body = append(r.body, b...)
	return r.ResponseWriter.Write(b)
}
