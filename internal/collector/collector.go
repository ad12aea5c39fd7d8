// Package collector implements the ingestion HTTP surface: accepting raw
// sensor payloads and media uploads, and publishing them to the broker
// for downstream processing.
package collector

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/biosig-io/pipeline/internal/broker"
)

// Publisher is the subset of broker.Client the HTTP handlers need, kept
// as an interface so handlers can be tested without a live connection.
type Publisher interface {
	Ready() bool
	PublishRaw(exchange, userID string, body []byte) error
	PublishMedia(queue string, meta broker.MediaMetadata, mimeType string, body []byte) error
}

var _ Publisher = (*broker.Client)(nil)

// Handlers groups the Collector's HTTP handlers and their dependencies.
type Handlers struct {
	Pub          Publisher
	RawExchange  string
	MediaQueue   string
	MaxBodyBytes int64
	Log          zerolog.Logger
}

const defaultMaxBodyBytes = 64 << 20 // 64 MiB

type dataRequest struct {
	UserID string `json:"user_id"`
	Data   []byte `json:"data"` // base64-decoded by encoding/json automatically
}

// PostData handles POST /api/v1/data: a JSON body with a base64-encoded
// zstd-compressed sensor payload, published as-is to the raw fanout
// exchange for the Processor to decompress and parse.
func (h *Handlers) PostData(w http.ResponseWriter, r *http.Request) {
	if !h.Pub.Ready() {
		http.Error(w, "broker unavailable", http.StatusServiceUnavailable)
		return
	}

	max := h.MaxBodyBytes
	if max == 0 {
		max = defaultMaxBodyBytes
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, max+1))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	if int64(len(body)) > max {
		http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
		return
	}

	var req dataRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}
	if len(req.Data) == 0 {
		http.Error(w, "data is required", http.StatusBadRequest)
		return
	}

	if err := h.Pub.PublishRaw(h.RawExchange, req.UserID, req.Data); err != nil {
		h.Log.Error().Err(err).Msg("publish raw data failed")
		http.Error(w, "failed to publish", http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// PostMedia handles POST /api/v1/media: a multipart upload of either a
// photo or audio clip, routed to the media queue by the file's MIME type.
func (h *Handlers) PostMedia(w http.ResponseWriter, r *http.Request) {
	if !h.Pub.Ready() {
		http.Error(w, "broker unavailable", http.StatusServiceUnavailable)
		return
	}

	max := h.MaxBodyBytes
	if max == 0 {
		max = defaultMaxBodyBytes
	}
	if err := r.ParseMultipartForm(max); err != nil {
		http.Error(w, "invalid multipart body", http.StatusBadRequest)
		return
	}

	userID := r.FormValue("user_id")
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}
	sessionID := r.FormValue("session_id")
	if sessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	mimeType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(mimeType, "image/") && !strings.HasPrefix(mimeType, "audio/") {
		http.Error(w, "file must be image/* or audio/*", http.StatusBadRequest)
		return
	}

	meta := broker.MediaMetadata{
		UserID:           userID,
		SessionID:        sessionID,
		OriginalFilename: r.FormValue("original_filename"),
		TimestampUTC:     r.FormValue("timestamp_utc"),
		StartTimeUTC:     r.FormValue("start_time_utc"),
		EndTimeUTC:       r.FormValue("end_time_utc"),
	}
	if strings.HasPrefix(mimeType, "image/") {
		if meta.TimestampUTC == "" {
			http.Error(w, "timestamp_utc is required for image uploads", http.StatusBadRequest)
			return
		}
	} else {
		if meta.StartTimeUTC == "" || meta.EndTimeUTC == "" {
			http.Error(w, "start_time_utc and end_time_utc are required for audio uploads", http.StatusBadRequest)
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(file, max+1))
	if err != nil {
		http.Error(w, "failed to read file", http.StatusBadRequest)
		return
	}
	if int64(len(body)) > max {
		http.Error(w, "file too large", http.StatusRequestEntityTooLarge)
		return
	}

	if err := h.Pub.PublishMedia(h.MediaQueue, meta, mimeType, body); err != nil {
		h.Log.Error().Err(err).Msg("publish media failed")
		http.Error(w, "failed to publish", http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}
