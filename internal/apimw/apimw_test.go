package apimw

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeMetricsRecorder struct {
	route  string
	status string
}

func (f *fakeMetricsRecorder) Observe(route, status string, d time.Duration) {
	f.route = route
	f.status = status
}

func TestMetricsRecordsRouteAndStatus(t *testing.T) {
	rec := &fakeMetricsRecorder{}
	h := Metrics(rec)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if rec.status != "201" {
		t.Errorf("status = %q, want 201", rec.status)
	}
	if rec.route != "/api/v1/sessions" {
		t.Errorf("route = %q, want /api/v1/sessions (no chi routing context present)", rec.route)
	}
}

func TestRateLimiterAllowsWithinBurst(t *testing.T) {
	called := 0
	h := RateLimiter(1, 2)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called++
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/data", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, rec.Code)
		}
	}
	if called != 2 {
		t.Errorf("handler called %d times, want 2", called)
	}
}

func TestRateLimiterRejectsOverBurst(t *testing.T) {
	h := RateLimiter(0.001, 1)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/data", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request: status = %d, want 200", rec.Code)
	}

	req2 := httptest.NewRequest(http.MethodPost, "/api/v1/data", nil)
	rec2 := httptest.NewRecorder()
	h.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: status = %d, want 429", rec2.Code)
	}
}

func TestRecovererCatchesPanic(t *testing.T) {
	h := Recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}
