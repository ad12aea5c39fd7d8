package db

import "context"

// UnlinkedPair identifies one user/device combination that currently has
// at least one raw data object awaiting a session link.
type UnlinkedPair struct {
	UserID   string
	DeviceID string
}

// ListUnlinkedPairs returns the distinct user/device pairs with
// unassigned raw data objects, for the Data Linker's periodic sweep.
func (d *DB) ListUnlinkedPairs(ctx context.Context) ([]UnlinkedPair, error) {
	rows, err := d.Pool.Query(ctx, `
		SELECT DISTINCT user_id, device_id FROM raw_data_objects WHERE session_id IS NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []UnlinkedPair
	for rows.Next() {
		var p UnlinkedPair
		if err := rows.Scan(&p.UserID, &p.DeviceID); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ResolveObjectUserDevice looks up the user/device pair for a raw data
// object id, used to react to a NOTIFY payload carrying only the id.
func (d *DB) ResolveObjectUserDevice(ctx context.Context, objectID string) (userID, deviceID string, err error) {
	err = d.Pool.QueryRow(ctx, `
		SELECT user_id, device_id FROM raw_data_objects WHERE id = $1`, objectID).Scan(&userID, &deviceID)
	return userID, deviceID, err
}

// OpenSessionsForDevice returns open sessions for a user/device pair
// along with their recorded clock offset, if any.
func (d *DB) OpenSessionsForDevice(ctx context.Context, userID, deviceID string) ([]Session, error) {
	rows, err := d.Pool.Query(ctx, `
		SELECT id, user_id, device_id, experiment_id, status, sampling_rate_hz, lsb_to_volts,
		       start_time_ms, end_time_ms, clock_offset_info, event_correction_status
		FROM sessions WHERE user_id = $1 AND device_id = $2 AND status = 'open'`, userID, deviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.ID, &s.UserID, &s.DeviceID, &s.ExperimentID, &s.Status, &s.SamplingRateHz, &s.LSBToVolts,
			&s.StartTimeMS, &s.EndTimeMS, &s.ClockOffsetInfo, &s.EventCorrectionStatus); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
