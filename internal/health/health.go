// Package health implements the /api/v1/health endpoint contract shared
// by every service: overall status plus per-dependency reachability.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Checker reports whether a dependency is currently reachable.
type Checker func(ctx context.Context) bool

// Handler builds the health endpoint. checks maps a dependency name (as
// it appears in the response body, e.g. "rabbitmq_connected") to the
// function that reports its state. Overall status is "ok" only if every
// check passes.
func Handler(checks map[string]Checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		body := map[string]any{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		}
		ok := true
		for name, check := range checks {
			healthy := check(ctx)
			body[name] = healthy
			if !healthy {
				ok = false
			}
		}

		status := "ok"
		code := http.StatusOK
		if !ok {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		body["status"] = status

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(body)
	}
}
