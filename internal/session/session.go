// Package session implements the Session Manager's minimal control-plane
// surface: session lifecycle, event recording, and clock offset capture.
// Participant authentication, the stimulus asset catalog, and a
// dashboard are out of scope for this build.
package session

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/biosig-io/pipeline/internal/db"
)

// Publisher is the subset of broker.Client used to enqueue correction
// jobs once a session closes.
type Publisher interface {
	PublishCorrectionJob(queue, jobID string) error
}

// Handlers groups the Session Manager's HTTP handlers.
type Handlers struct {
	DB              *db.DB
	Pub             Publisher
	CorrectionQueue string
	Log             zerolog.Logger
}

// Routes mounts the session control-plane endpoints onto r.
func (h *Handlers) Routes(r chi.Router) {
	r.Post("/api/v1/sessions", h.CreateSession)
	r.Post("/api/v1/sessions/{id}/close", h.CloseSession)
	r.Post("/api/v1/sessions/{id}/events", h.CreateEvent)
	r.Put("/api/v1/sessions/{id}/clock-offset", h.SetClockOffset)
}

type createSessionRequest struct {
	UserID         string   `json:"user_id"`
	DeviceID       string   `json:"device_id"`
	ExperimentID   *string  `json:"experiment_id,omitempty"`
	SamplingRateHz *float64 `json:"sampling_rate_hz,omitempty"`
	LSBToVolts     *float64 `json:"lsb_to_volts,omitempty"`
	StartTimeMS    *int64   `json:"start_time_ms,omitempty"`
}

// CreateSession handles POST /api/v1/sessions.
func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.DeviceID == "" {
		http.Error(w, "user_id and device_id are required", http.StatusBadRequest)
		return
	}

	startTimeMS := time.Now().UnixMilli()
	if req.StartTimeMS != nil {
		startTimeMS = *req.StartTimeMS
	}

	id := uuid.New()
	err := h.DB.CreateSession(r.Context(), db.Session{
		ID:             id,
		UserID:         req.UserID,
		DeviceID:       req.DeviceID,
		ExperimentID:   req.ExperimentID,
		Status:         "open",
		SamplingRateHz: req.SamplingRateHz,
		LSBToVolts:     req.LSBToVolts,
		StartTimeMS:    startTimeMS,
	})
	if err != nil {
		h.Log.Error().Err(err).Msg("create session failed")
		http.Error(w, "failed to create session", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": id.String()})
}

type closeSessionRequest struct {
	EndTimeMS *int64 `json:"end_time_ms,omitempty"`
}

// CloseSession handles POST /api/v1/sessions/{id}/close, closing the
// session and enqueuing a correction job for it. An empty body closes the
// session with the current wall-clock time as its end time.
func (h *Handlers) CloseSession(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}

	var req closeSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	endTimeMS := time.Now().UnixMilli()
	if req.EndTimeMS != nil {
		endTimeMS = *req.EndTimeMS
	}

	if err := h.DB.CloseSession(r.Context(), id, endTimeMS); err != nil {
		h.Log.Error().Err(err).Msg("close session failed")
		http.Error(w, "failed to close session", http.StatusInternalServerError)
		return
	}

	jobID := uuid.New()
	if err := h.DB.InsertCorrectionJob(r.Context(), db.CorrectionJob{ID: jobID, SessionID: id}); err != nil {
		h.Log.Error().Err(err).Msg("enqueue correction job failed")
		http.Error(w, "failed to enqueue correction job", http.StatusInternalServerError)
		return
	}
	if err := h.Pub.PublishCorrectionJob(h.CorrectionQueue, jobID.String()); err != nil {
		h.Log.Error().Err(err).Msg("publish correction job failed")
		http.Error(w, "failed to publish correction job", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"correction_job_id": jobID.String()})
}

type createEventRequest struct {
	Label   string `json:"label"`
	OnsetUS int64  `json:"onset_us"`
}

// CreateEvent handles POST /api/v1/sessions/{id}/events.
func (h *Handlers) CreateEvent(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}

	var req createEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.Label == "" {
		http.Error(w, "label is required", http.StatusBadRequest)
		return
	}

	id := uuid.New()
	err = h.DB.InsertSessionEvent(r.Context(), db.SessionEvent{
		ID:        id,
		SessionID: sessionID,
		Label:     req.Label,
		OnsetUS:   req.OnsetUS,
	})
	if err != nil {
		h.Log.Error().Err(err).Msg("insert event failed")
		http.Error(w, "failed to record event", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": id.String()})
}

type clockOffsetRequest struct {
	OffsetMsAvg float64 `json:"offset_ms_avg"`
}

// SetClockOffset handles PUT /api/v1/sessions/{id}/clock-offset, recording
// the average device/wall-clock offset the Data Linker and Event Corrector
// combine with the session's own start_time_ms/end_time_ms to compute its
// device-time window.
func (h *Handlers) SetClockOffset(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}

	var req clockOffsetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	info, err := json.Marshal(req)
	if err != nil {
		http.Error(w, "failed to encode clock offset", http.StatusInternalServerError)
		return
	}

	if err := h.DB.SetClockOffsetInfo(r.Context(), sessionID, info); err != nil {
		h.Log.Error().Err(err).Msg("set clock offset failed")
		http.Error(w, "failed to set clock offset", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
