// Package mediaprocessor consumes media uploads (photos and audio clips)
// from the media processing queue, stores them at a deterministic object
// key, and records their metadata.
package mediaprocessor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/biosig-io/pipeline/internal/db"
	"github.com/biosig-io/pipeline/internal/objectstore"
	"github.com/biosig-io/pipeline/internal/svcerr"
)

// DB is the subset of db.DB the Media Processor needs to record uploaded
// media metadata.
type DB interface {
	InsertImage(ctx context.Context, img db.Image) error
	InsertAudioClip(ctx context.Context, a db.AudioClip) error
}

// Service processes one media delivery at a time.
type Service struct {
	Store       objectstore.Store
	DB          DB
	MediaBucket string
	Log         zerolog.Logger
}

// New constructs a Service.
func New(store objectstore.Store, database DB, mediaBucket string, log zerolog.Logger) *Service {
	return &Service{Store: store, DB: database, MediaBucket: mediaBucket, Log: log}
}

var extensionsByPrefix = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"audio/mpeg": ".mp3",
	"audio/wav":  ".wav",
	"audio/x-wav": ".wav",
}

func extensionFor(mimeType string) string {
	if ext, ok := extensionsByPrefix[mimeType]; ok {
		return ext
	}
	if strings.HasPrefix(mimeType, "image/") {
		return ".img"
	}
	return ".audio"
}

func headerString(headers amqp.Table, key string) (string, bool) {
	v, ok := headers[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

// Handle implements broker.Handler. The headers reproduce PostMedia's
// validated metadata; timestamps are parsed here rather than recomputed
// from wall-clock time so the stored object key matches what the
// Collector already committed to.
func (s *Service) Handle(ctx context.Context, d amqp.Delivery) error {
	userID, ok := headerString(d.Headers, "user_id")
	if !ok {
		return svcerr.NewValidation(fmt.Errorf("missing or invalid user_id header"))
	}
	sessionIDStr, _ := headerString(d.Headers, "session_id")
	if len(d.Body) == 0 {
		return svcerr.NewValidation(fmt.Errorf("empty media body"))
	}

	mimeType := d.ContentType
	isImage := strings.HasPrefix(mimeType, "image/")
	isAudio := strings.HasPrefix(mimeType, "audio/")
	if !isImage && !isAudio {
		return svcerr.NewValidation(fmt.Errorf("unsupported content type %q", mimeType))
	}

	var sessionID *uuid.UUID
	if sessionIDStr != "" {
		if parsed, err := uuid.Parse(sessionIDStr); err == nil {
			sessionID = &parsed
		}
	}

	var ts int64
	var startMS, endMS *int64
	if isImage {
		timestampUTC, ok := headerString(d.Headers, "timestamp_utc")
		if !ok {
			return svcerr.NewValidation(fmt.Errorf("missing timestamp_utc header for image upload"))
		}
		t, err := time.Parse(time.RFC3339, timestampUTC)
		if err != nil {
			return svcerr.NewValidation(fmt.Errorf("invalid timestamp_utc header: %w", err))
		}
		ts = t.UnixMilli()
	} else {
		startTimeUTC, okStart := headerString(d.Headers, "start_time_utc")
		endTimeUTC, okEnd := headerString(d.Headers, "end_time_utc")
		if !okStart || !okEnd {
			return svcerr.NewValidation(fmt.Errorf("missing start_time_utc/end_time_utc headers for audio upload"))
		}
		start, err := time.Parse(time.RFC3339, startTimeUTC)
		if err != nil {
			return svcerr.NewValidation(fmt.Errorf("invalid start_time_utc header: %w", err))
		}
		end, err := time.Parse(time.RFC3339, endTimeUTC)
		if err != nil {
			return svcerr.NewValidation(fmt.Errorf("invalid end_time_utc header: %w", err))
		}
		ts = start.UnixMilli()
		s, e := start.UnixMilli(), end.UnixMilli()
		startMS, endMS = &s, &e
	}

	id := uuid.New()
	kind := "photo"
	if isAudio {
		kind = "audio"
	}
	key := fmt.Sprintf("media/%s/%s/%d_%s%s", userID, sessionIDStr, ts, kind, extensionFor(mimeType))

	if err := s.Store.Put(ctx, s.MediaBucket, key, d.Body, mimeType); err != nil {
		return fmt.Errorf("store media object: %w", err)
	}

	if isImage {
		if err := s.DB.InsertImage(ctx, db.Image{ID: id, UserID: userID, SessionID: sessionID, ObjectKey: key, TimestampMS: ts}); err != nil {
			return fmt.Errorf("insert image: %w", err)
		}
		return nil
	}

	var durationMS *int64
	if startMS != nil && endMS != nil {
		d := *endMS - *startMS
		durationMS = &d
	}
	if err := s.DB.InsertAudioClip(ctx, db.AudioClip{
		ID: id, UserID: userID, SessionID: sessionID, ObjectKey: key, TimestampMS: ts, DurationMS: durationMS,
	}); err != nil {
		return fmt.Errorf("insert audio clip: %w", err)
	}
	return nil
}
