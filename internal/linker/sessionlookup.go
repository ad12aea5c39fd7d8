package linker

import (
	"context"
	"encoding/json"

	"github.com/biosig-io/pipeline/internal/clockwrap"
	"github.com/biosig-io/pipeline/internal/db"
)

// clockOffset is the shape written to sessions.clock_offset_info by the
// Session Manager once a device/wall-clock offset measurement lands: the
// average offset (milliseconds) between the device clock and wall clock,
// combined with the session's own start_time_ms/end_time_ms to derive its
// device-time window.
type clockOffset struct {
	OffsetMsAvg float64 `json:"offset_ms_avg"`
}

// SessionLookupDB is the subset of db.DB needed to resolve open sessions
// for a user/device pair.
type SessionLookupDB interface {
	OpenSessionsForDevice(ctx context.Context, userID, deviceID string) ([]db.Session, error)
}

// DBSessionLookup resolves open session windows directly from Postgres.
type DBSessionLookup struct {
	DB SessionLookupDB
}

// OpenSessionWindows implements SessionLookup.
func (l *DBSessionLookup) OpenSessionWindows(ctx context.Context, userID, deviceID string) ([]SessionWindow, error) {
	sessions, err := l.DB.OpenSessionsForDevice(ctx, userID, deviceID)
	if err != nil {
		return nil, err
	}

	var out []SessionWindow
	for _, s := range sessions {
		if len(s.ClockOffsetInfo) == 0 || s.EndTimeMS == nil {
			continue // no offset measurement yet, nothing to overlap against
		}
		var off clockOffset
		if err := json.Unmarshal(s.ClockOffsetInfo, &off); err != nil {
			continue
		}
		out = append(out, SessionWindow{
			SessionID: s.ID,
			Window:    clockwrap.SessionWindowFromOffset(s.StartTimeMS, *s.EndTimeMS, off.OffsetMsAvg),
		})
	}
	return out, nil
}
