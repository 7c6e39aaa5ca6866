package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"room-web/internal/messaging"
)

// Health returns basic health check
func Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
	})
}

// HealthCheckResult represents the result of a health check
type HealthCheckResult struct {
	Status    string                 `json:"status"`
	LatencyMs int64                  `json:"latency_ms,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// Dependency is one named readiness check.
type Dependency struct {
	Name  string
	Check func(ctx context.Context) HealthCheckResult
}

// Pinger is a remote service with a cheap health endpoint.
type Pinger interface {
	Health(ctx context.Context) error
}

// Ready checks every dependency in parallel. Any check that is down
// makes the instance not ready.
func Ready(deps ...Dependency) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		results := make([]chan HealthCheckResult, len(deps))
		for i, dep := range deps {
			results[i] = make(chan HealthCheckResult, 1)
			go func(ch chan<- HealthCheckResult, check func(context.Context) HealthCheckResult) {
				ch <- check(ctx)
			}(results[i], dep.Check)
		}

		checks := make(map[string]HealthCheckResult, len(deps))
		allHealthy := true
		for i, dep := range deps {
			result := <-results[i]
			checks[dep.Name] = result
			if result.Status == "down" {
				allHealthy = false
			}
		}

		response := map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"checks":    checks,
		}

		w.Header().Set("Content-Type", "application/json")
		if allHealthy {
			response["status"] = "ready"
			w.WriteHeader(http.StatusOK)
		} else {
			response["status"] = "not_ready"
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		json.NewEncoder(w).Encode(response)
	}
}

// DatabaseCheck pings the session store. A nil db means sessions live in
// memory and the check is skipped.
func DatabaseCheck(db *sql.DB) Dependency {
	return Dependency{Name: "database", Check: func(ctx context.Context) HealthCheckResult {
		if db == nil {
			return HealthCheckResult{Status: "skipped"}
		}

		start := time.Now()
		err := db.PingContext(ctx)
		latency := time.Since(start)

		if err != nil {
			return HealthCheckResult{
				Status:    "down",
				LatencyMs: latency.Milliseconds(),
				Error:     err.Error(),
			}
		}

		stats := db.Stats()
		return HealthCheckResult{
			Status:    "up",
			LatencyMs: latency.Milliseconds(),
			Metadata: map[string]interface{}{
				"connections_open":   stats.OpenConnections,
				"connections_in_use": stats.InUse,
				"connections_idle":   stats.Idle,
				"max_open":           stats.MaxOpenConnections,
			},
		}
	}}
}

// RabbitMQCheck verifies the auth event bus. A nil rmq means events stay
// in process.
func RabbitMQCheck(rmq *messaging.RabbitMQ) Dependency {
	return Dependency{Name: "rabbitmq", Check: func(ctx context.Context) HealthCheckResult {
		if rmq == nil {
			return HealthCheckResult{Status: "skipped"}
		}

		start := time.Now()
		if err := rmq.Ping(ctx); err != nil {
			return HealthCheckResult{
				Status: "down",
				Error:  err.Error(),
			}
		}
		return HealthCheckResult{
			Status:    "up",
			LatencyMs: time.Since(start).Milliseconds(),
		}
	}}
}

// BackendCheck calls a remote service's health endpoint.
func BackendCheck(name string, p Pinger) Dependency {
	return Dependency{Name: name, Check: func(ctx context.Context) HealthCheckResult {
		start := time.Now()
		err := p.Health(ctx)
		latency := time.Since(start)

		if err != nil {
			return HealthCheckResult{
				Status:    "down",
				LatencyMs: latency.Milliseconds(),
				Error:     err.Error(),
			}
		}
		return HealthCheckResult{
			Status:    "up",
			LatencyMs: latency.Milliseconds(),
		}
	}}
}
