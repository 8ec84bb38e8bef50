package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"intuneget/pkg/version"
)

// Checker reports the health of one dependency
type Checker func(ctx context.Context) error

// HealthResponse represents the health check response structure
type HealthResponse struct {
	Status       string            `json:"status"`
	Service      string            `json:"service"`
	Version      string            `json:"version"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

// HealthHandler reports "healthy" when every checker passes and "degraded" (503) otherwise.
func HealthHandler(service string, checkers map[string]Checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		response := HealthResponse{
			Status:  "healthy",
			Service: service,
			Version: version.Version,
		}
		code := http.StatusOK

		if len(checkers) > 0 {
			response.Dependencies = make(map[string]string, len(checkers))
		}
		for name, check := range checkers {
			if err := check(ctx); err != nil {
				slog.Warn("Health check failed",
					slog.String("dependency", name),
					slog.String("error", err.Error()),
				)
				response.Dependencies[name] = "unhealthy"
				response.Status = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			response.Dependencies[name] = "healthy"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)

		if err := json.NewEncoder(w).Encode(response); err != nil {
			slog.Error("Failed to encode health response", "error", err, "service", service)
		}
	}
}
