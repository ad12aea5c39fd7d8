package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHandlerOKWhenAllChecksPass(t *testing.T) {
	h := Handler(map[string]Checker{
		"rabbitmq_connected": func(ctx context.Context) bool { return true },
		"db_connected":       func(ctx context.Context) bool { return true },
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	h(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %v, want ok", body["status"])
	}
}

func TestHandlerDegradedWhenOneCheckFails(t *testing.T) {
	h := Handler(map[string]Checker{
		"rabbitmq_connected": func(ctx context.Context) bool { return true },
		"db_connected":       func(ctx context.Context) bool { return false },
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	h(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["status"] != "degraded" {
		t.Errorf("status field = %v, want degraded", body["status"])
	}
	if body["db_connected"] != false {
		t.Errorf("db_connected = %v, want false", body["db_connected"])
	}
}
