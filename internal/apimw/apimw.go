// Package apimw holds the chi middleware stack shared by every service
// that exposes an HTTP surface: request id, structured request logging,
// panic recovery, and rate limiting.
package apimw

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"golang.org/x/time/rate"
)

// metricsRecorder is the subset of obsmetrics.HTTPMetrics the Metrics
// middleware needs, kept narrow so apimw does not import obsmetrics.
type metricsRecorder interface {
	Observe(route, status string, d time.Duration)
}

// Metrics records one Observe call per completed request, keyed by the
// matched chi route pattern rather than the raw path so that templated
// routes (e.g. /sessions/{id}) don't explode the label cardinality.
func Metrics(m metricsRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = r.URL.Path
			}
			m.Observe(route, strconv.Itoa(ww.Status()), time.Since(start))
		})
	}
}

// Logging wires zerolog/hlog to log one line per request with the
// request id, method, path, status, and duration.
func Logging(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		h := hlog.NewHandler(log)(next)
		h = hlog.RequestIDHandler("req_id", "X-Request-Id")(h)
		h = hlog.AccessHandler(func(r *http.Request, status, size int, dur time.Duration) {
			hlog.FromRequest(r).Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Dur("duration", dur).
				Msg("request")
		})(h)
		return h
	}
}

// RequestID assigns chi's standard request id. Logging above does not read
// it: hlog.RequestIDHandler tags log lines with an id of its own.
func RequestID(next http.Handler) http.Handler {
	return middleware.RequestID(next)
}

// Recoverer converts panics in downstream handlers into 500 responses
// instead of crashing the process.
func Recoverer(next http.Handler) http.Handler {
	return middleware.Recoverer(next)
}

// RateLimiter rejects requests beyond rps/burst with 429, protecting the
// Collector's ingest endpoints from a single misbehaving device.
func RateLimiter(rps float64, burst int) func(http.Handler) http.Handler {
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
