// Package linker assigns raw data objects to sessions by overlapping
// each object's device-time span against open sessions for the same
// user/device, reacting to Postgres NOTIFY and falling back to a
// periodic sweep so a missed notification never leaves an object
// permanently unlinked.
package linker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/biosig-io/pipeline/internal/clockwrap"
	"github.com/biosig-io/pipeline/internal/db"
)

// SessionWindow is the device-time span a session is expected to cover,
// known only once the session's clock offset and end time are recorded.
type SessionWindow struct {
	SessionID uuid.UUID
	Window    clockwrap.Window
}

// SessionLookup resolves the open sessions that might own a given
// user/device's unassigned objects.
type SessionLookup interface {
	OpenSessionWindows(ctx context.Context, userID, deviceID string) ([]SessionWindow, error)
}

// DB is the subset of db.DB the Data Linker needs: unassigned-object
// lookup, link assignment, and the NOTIFY listen loop.
type DB interface {
	UnlinkedObjects(ctx context.Context, userID, deviceID string) ([]db.RawDataObject, error)
	LinkObjectToSession(ctx context.Context, sessionID, objectID uuid.UUID) error
	Listen(ctx context.Context, channel string, onNotify func(payload string)) error
}

// Service links unassigned raw data objects to sessions.
type Service struct {
	DB       DB
	Sessions SessionLookup
	Log      zerolog.Logger
}

// New constructs a Service.
func New(database DB, sessions SessionLookup, log zerolog.Logger) *Service {
	return &Service{DB: database, Sessions: sessions, Log: log.With().Str("component", "linker").Logger()}
}

// LinkUserDevice resolves and links every unassigned object for one
// user/device pair against currently open sessions.
func (s *Service) LinkUserDevice(ctx context.Context, userID, deviceID string) error {
	objects, err := s.DB.UnlinkedObjects(ctx, userID, deviceID)
	if err != nil {
		return err
	}
	if len(objects) == 0 {
		return nil
	}

	windows, err := s.Sessions.OpenSessionWindows(ctx, userID, deviceID)
	if err != nil {
		return err
	}
	if len(windows) == 0 {
		return nil
	}

	for _, obj := range objects {
		objWindow := clockwrap.Window{Lo: obj.StartTimeDevice, Hi: obj.EndTimeDevice}
		for _, sw := range windows {
			if clockwrap.Overlaps(objWindow, sw.Window) {
				if err := s.DB.LinkObjectToSession(ctx, sw.SessionID, obj.ID); err != nil {
					s.Log.Error().Err(err).Str("object_id", obj.ID.String()).Msg("failed to link object")
				}
				break
			}
		}
	}
	return nil
}

// RunNotifyLoop subscribes to raw_data_object_inserted and resolves each
// notified object's user/device pair. Loop exits when ctx is cancelled.
func (s *Service) RunNotifyLoop(ctx context.Context, resolveUserDevice func(ctx context.Context, objectID string) (userID, deviceID string, err error)) {
	for {
		err := s.DB.Listen(ctx, db.RawDataObjectInsertedChannel, func(payload string) {
			userID, deviceID, err := resolveUserDevice(ctx, payload)
			if err != nil {
				s.Log.Warn().Err(err).Str("object_id", payload).Msg("failed to resolve notified object")
				return
			}
			if err := s.LinkUserDevice(ctx, userID, deviceID); err != nil {
				s.Log.Error().Err(err).Msg("link on notify failed")
			}
		})
		if ctx.Err() != nil {
			return
		}
		s.Log.Warn().Err(err).Msg("listen loop exited, retrying")
		select {
		case <-ctx.Done():
			return
		case <-time.After(2 * time.Second):
		}
	}
}

// RunSweep periodically re-attempts linking for every user/device pair
// with unassigned objects, as an at-least-once backstop for the reactive
// path.
func (s *Service) RunSweep(ctx context.Context, interval time.Duration, listPairs func(ctx context.Context) ([]UserDevice, error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pairs, err := listPairs(ctx)
			if err != nil {
				s.Log.Error().Err(err).Msg("sweep: failed to list unlinked pairs")
				continue
			}
			for _, p := range pairs {
				if err := s.LinkUserDevice(ctx, p.UserID, p.DeviceID); err != nil {
					s.Log.Error().Err(err).Str("user_id", p.UserID).Str("device_id", p.DeviceID).Msg("sweep link failed")
				}
			}
		}
	}
}

// UserDevice identifies one device belonging to one user.
type UserDevice struct {
	UserID   string
	DeviceID string
}
