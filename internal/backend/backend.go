// Package backend holds the HTTP clients for the remote auth service and
// the listings REST API. Calls are fire-once: no retry, no backoff.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"room-web/internal/domain"
	"room-web/internal/observability"
)

// ErrMissingConfig is returned by the client constructors when a required
// URL or key is empty.
var ErrMissingConfig = errors.New("backend: missing configuration")

const maxBodySize = 4 << 20

// request describes one remote call.
type request struct {
	op      string
	method  string
	url     string
	headers map[string]string
	body    any
}

// response is a fully read remote answer.
type response struct {
	status int
	body   []byte
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// do sends req once. Transport failures come back as *domain.NetworkError;
// any status is returned to the caller for classification.
func do(ctx context.Context, client *http.Client, req request) (*response, error) {
	var body io.Reader
	if req.body != nil {
		payload, err := json.Marshal(req.body)
		if err != nil {
			return nil, fmt.Errorf("%s: encode body: %w", req.op, err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, req.url, body)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create request: %w", req.op, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, &domain.NetworkError{Op: req.op, Reason: transportReason(err), Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &domain.NetworkError{Op: req.op, Status: resp.StatusCode, Reason: "read body", Err: err}
	}
	return &response{status: resp.StatusCode, body: data}, nil
}

func transportReason(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "request canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "request timed out"
	}
	return err.Error()
}

// classify maps a non-2xx answer onto the domain error taxonomy.
func classify(op string, resp *response) error {
	msg := errorMessage(resp.body)
	switch resp.status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return &domain.ValidationError{Message: msg}
	case http.StatusUnauthorized, http.StatusForbidden:
		return &domain.AuthError{Status: resp.status, Message: msg}
	}
	if msg == "" {
		msg = http.StatusText(resp.status)
	}
	return &domain.NetworkError{Op: op, Status: resp.status, Reason: msg}
}

// errorMessage pulls a human message out of the error bodies both remotes
// produce ({"message"}, {"msg"}, {"error_description"}, {"error"}).
func errorMessage(body []byte) string {
	var payload struct {
		Message          any    `json:"message"`
		Msg              string `json:"msg"`
		ErrorDescription string `json:"error_description"`
		Error            any    `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}

	for _, candidate := range []any{payload.Message, payload.Msg, payload.ErrorDescription, payload.Error} {
		switch v := candidate.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				return v
			}
		case []any:
			parts := make([]string, 0, len(v))
			for _, p := range v {
				if s, ok := p.(string); ok {
					parts = append(parts, s)
				}
			}
			if len(parts) > 0 {
				return strings.Join(parts, ", ")
			}
		}
	}
	return ""
}

// outcome is the metrics label for err.
func outcome(err error) string {
	var (
		netErr  *domain.NetworkError
		valErr  *domain.ValidationError
		authErr *domain.AuthError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrListingNotFound):
		return "not_found"
	case errors.As(err, &authErr):
		return "auth"
	case errors.As(err, &valErr):
		return "validation"
	case errors.As(err, &netErr):
		return "network"
	}
	return "error"
}

// observe records the duration and outcome of one operation.
func observe(ctx context.Context, op string, start time.Time, err error) {
	result := outcome(err)
	observability.BackendRequestDuration.WithLabelValues(op, result).Observe(time.Since(start).Seconds())
	observability.BackendRequestsTotal.WithLabelValues(op, result).Inc()

	if err != nil {
		observability.FromContext(ctx).Warn("backend call failed",
			slog.String("operation", op),
			slog.String("outcome", result),
			slog.String("error", err.Error()))
	}
}

func bearer(token string) string {
	return "Bearer " + token
}
