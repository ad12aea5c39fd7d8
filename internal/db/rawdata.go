package db

import (
	"context"

	"github.com/google/uuid"
)

// RawDataObject mirrors a row in raw_data_objects.
type RawDataObject struct {
	ID              uuid.UUID
	UserID          string
	DeviceID        string
	ObjectKey       string
	StartMS         int64
	EndMS           int64
	StartTimeDevice uint32
	EndTimeDevice   uint32
	SampleCount     int
	SessionID       *uuid.UUID
}

// InsertRawDataObject records a processed raw data object. ON CONFLICT on
// object_key makes this safe to retry after a requeue without creating a
// duplicate row.
func (d *DB) InsertRawDataObject(ctx context.Context, o RawDataObject) error {
	_, err := d.Pool.Exec(ctx, `
		INSERT INTO raw_data_objects
			(id, user_id, device_id, object_key, start_ms, end_ms,
			 start_time_device, end_time_device, sample_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (object_key) DO NOTHING`,
		o.ID, o.UserID, o.DeviceID, o.ObjectKey, o.StartMS, o.EndMS,
		o.StartTimeDevice, o.EndTimeDevice, o.SampleCount)
	return err
}

// UnlinkedObjects returns raw data objects not yet assigned to a session,
// for the user/device pair, ordered by device start time. Used by both
// the reactive LISTEN path and the periodic sweep.
func (d *DB) UnlinkedObjects(ctx context.Context, userID, deviceID string) ([]RawDataObject, error) {
	rows, err := d.Pool.Query(ctx, `
		SELECT id, user_id, device_id, object_key, start_ms, end_ms,
		       start_time_device, end_time_device, sample_count
		FROM raw_data_objects
		WHERE session_id IS NULL AND user_id = $1 AND device_id = $2
		ORDER BY start_time_device`, userID, deviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RawDataObject
	for rows.Next() {
		var o RawDataObject
		if err := rows.Scan(&o.ID, &o.UserID, &o.DeviceID, &o.ObjectKey, &o.StartMS, &o.EndMS,
			&o.StartTimeDevice, &o.EndTimeDevice, &o.SampleCount); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// LinkObjectToSession idempotently assigns a raw data object to a session
// and records the link row; safe to call twice for the same pair.
func (d *DB) LinkObjectToSession(ctx context.Context, sessionID, objectID uuid.UUID) error {
	tx, err := d.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO session_object_links (session_id, object_id)
		VALUES ($1, $2)
		ON CONFLICT (session_id, object_id) DO NOTHING`, sessionID, objectID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE raw_data_objects SET session_id = $1 WHERE id = $2 AND session_id IS NULL`,
		sessionID, objectID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// LinkedObjects returns the raw data objects linked to a session, ordered
// by device start time, as the Event Corrector requires.
func (d *DB) LinkedObjects(ctx context.Context, sessionID uuid.UUID) ([]RawDataObject, error) {
	rows, err := d.Pool.Query(ctx, `
		SELECT o.id, o.user_id, o.device_id, o.object_key, o.start_ms, o.end_ms,
		       o.start_time_device, o.end_time_device, o.sample_count
		FROM raw_data_objects o
		JOIN session_object_links l ON l.object_id = o.id
		WHERE l.session_id = $1
		ORDER BY o.start_time_device`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RawDataObject
	for rows.Next() {
		var o RawDataObject
		if err := rows.Scan(&o.ID, &o.UserID, &o.DeviceID, &o.ObjectKey, &o.StartMS, &o.EndMS,
			&o.StartTimeDevice, &o.EndTimeDevice, &o.SampleCount); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
