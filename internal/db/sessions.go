package db

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
)

// Session mirrors a row in sessions. StartTimeMS/EndTimeMS are the
// session's own wall-clock bounds (epoch milliseconds); together with
// ClockOffsetInfo's offset_ms_avg they drive the device-time window
// formula in internal/clockwrap, consumed by the Data Linker and Event
// Corrector. EventCorrectionStatus tracks the Event Corrector's job
// progress independently of Status, which tracks open/closed lifecycle.
type Session struct {
	ID                    uuid.UUID
	UserID                string
	DeviceID              string
	ExperimentID          *string
	Status                string
	SamplingRateHz        *float64
	LSBToVolts            *float64
	StartTimeMS           int64
	EndTimeMS             *int64
	ClockOffsetInfo       json.RawMessage
	EventCorrectionStatus string
}

// CreateSession opens a new session row, recording its wall-clock start
// time; end_time_ms is filled in at close.
func (d *DB) CreateSession(ctx context.Context, s Session) error {
	_, err := d.Pool.Exec(ctx, `
		INSERT INTO sessions (id, user_id, device_id, experiment_id, status, sampling_rate_hz, lsb_to_volts, start_time_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		s.ID, s.UserID, s.DeviceID, s.ExperimentID, s.Status, s.SamplingRateHz, s.LSBToVolts, s.StartTimeMS)
	return err
}

// GetSession fetches a session by ID.
func (d *DB) GetSession(ctx context.Context, id uuid.UUID) (*Session, error) {
	var s Session
	err := d.Pool.QueryRow(ctx, `
		SELECT id, user_id, device_id, experiment_id, status, sampling_rate_hz, lsb_to_volts,
		       start_time_ms, end_time_ms, clock_offset_info, event_correction_status
		FROM sessions WHERE id = $1`, id).
		Scan(&s.ID, &s.UserID, &s.DeviceID, &s.ExperimentID, &s.Status, &s.SamplingRateHz, &s.LSBToVolts,
			&s.StartTimeMS, &s.EndTimeMS, &s.ClockOffsetInfo, &s.EventCorrectionStatus)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// SetClockOffsetInfo records the average device/wall-clock offset
// measurement ({"offset_ms_avg": ...}) the Data Linker and Event
// Corrector combine with the session's own start_time_ms/end_time_ms to
// compute its device-time window.
func (d *DB) SetClockOffsetInfo(ctx context.Context, id uuid.UUID, info json.RawMessage) error {
	_, err := d.Pool.Exec(ctx, `UPDATE sessions SET clock_offset_info = $2 WHERE id = $1`, id, info)
	return err
}

// CloseSession marks a session closed with its wall-clock end time,
// ready for correction.
func (d *DB) CloseSession(ctx context.Context, id uuid.UUID, endTimeMS int64) error {
	_, err := d.Pool.Exec(ctx, `
		UPDATE sessions SET status = 'closed', closed_at = now(), end_time_ms = $2 WHERE id = $1`, id, endTimeMS)
	return err
}

// SetEventCorrectionStatus moves a session's event_correction_status
// through pending/processing/completed/failed as the Event Corrector
// runs its job, independently of the open/closed Status column.
func (d *DB) SetEventCorrectionStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := d.Pool.Exec(ctx, `UPDATE sessions SET event_correction_status = $2 WHERE id = $1`, id, status)
	return err
}
