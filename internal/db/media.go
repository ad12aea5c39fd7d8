package db

import (
	"context"

	"github.com/google/uuid"
)

// Image mirrors a row in images.
type Image struct {
	ID          uuid.UUID
	UserID      string
	SessionID   *uuid.UUID
	ObjectKey   string
	TimestampMS int64
}

// AudioClip mirrors a row in audio_clips.
type AudioClip struct {
	ID          uuid.UUID
	UserID      string
	SessionID   *uuid.UUID
	ObjectKey   string
	TimestampMS int64
	DurationMS  *int64
}

// InsertImage records a photo upload. ON CONFLICT on object_key makes
// this idempotent across requeues.
func (d *DB) InsertImage(ctx context.Context, img Image) error {
	_, err := d.Pool.Exec(ctx, `
		INSERT INTO images (id, user_id, session_id, object_key, timestamp_ms)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (object_key) DO NOTHING`,
		img.ID, img.UserID, img.SessionID, img.ObjectKey, img.TimestampMS)
	return err
}

// InsertAudioClip records an audio upload.
func (d *DB) InsertAudioClip(ctx context.Context, a AudioClip) error {
	_, err := d.Pool.Exec(ctx, `
		INSERT INTO audio_clips (id, user_id, session_id, object_key, timestamp_ms, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (object_key) DO NOTHING`,
		a.ID, a.UserID, a.SessionID, a.ObjectKey, a.TimestampMS, a.DurationMS)
	return err
}
