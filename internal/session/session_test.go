package session

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

func TestCreateSessionRejectsMissingFields(t *testing.T) {
	h := &Handlers{Log: zerolog.Nop()}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", jsonBody(t, createSessionRequest{}))
	rec := httptest.NewRecorder()
	h.CreateSession(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCloseSessionRejectsInvalidID(t *testing.T) {
	h := &Handlers{Log: zerolog.Nop()}
	r := chi.NewRouter()
	h.Routes(r)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/not-a-uuid/close", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCreateEventRejectsMissingLabel(t *testing.T) {
	h := &Handlers{Log: zerolog.Nop()}
	r := chi.NewRouter()
	h.Routes(r)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+validUUID+"/events", jsonBody(t, createEventRequest{OnsetUS: 100}))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestClockOffsetRequestRoundTrip(t *testing.T) {
	body := []byte(`{"offset_ms_avg": 12.5}`)
	var req clockOffsetRequest
	if err := json.Unmarshal(body, &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if req.OffsetMsAvg != 12.5 {
		t.Errorf("unexpected request: %+v", req)
	}
}

const validUUID = "00000000-0000-0000-0000-000000000001"

func jsonBody(t *testing.T, v any) *bytes.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return bytes.NewReader(b)
}
