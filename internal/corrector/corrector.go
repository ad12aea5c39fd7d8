// Package corrector implements the Event Corrector: given a closed
// session, it downloads the session's linked raw data objects, extracts
// their hardware trigger onsets, and rewrites each recorded event's
// approximate (wall-clock-derived) onset with the matching device-clock
// onset, inside one all-or-nothing transaction per job.
package corrector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"

	"github.com/biosig-io/pipeline/internal/clockwrap"
	"github.com/biosig-io/pipeline/internal/db"
	"github.com/biosig-io/pipeline/internal/objectstore"
	"github.com/biosig-io/pipeline/internal/packet"
	"github.com/biosig-io/pipeline/internal/svcerr"
)

// offsetInfo is the shape written to sessions.clock_offset_info: the
// average device/wall-clock offset (milliseconds) measured for a session,
// combined with its own start_time_ms/end_time_ms via
// clockwrap.SessionWindowFromOffset to get its device-time window.
type offsetInfo struct {
	OffsetMsAvg float64 `json:"offset_ms_avg"`
}

// ErrCountMismatch is returned when the number of extracted triggers does
// not equal the number of recorded events; the job's transaction is then
// rolled back.
var ErrCountMismatch = errors.New("corrector: trigger count does not match event count")

// DB is the subset of db.DB the Event Corrector needs: session and linked
// object lookups, job status bookkeeping, and a single-transaction
// correction commit.
type DB interface {
	GetSession(ctx context.Context, id uuid.UUID) (*db.Session, error)
	LinkedObjects(ctx context.Context, sessionID uuid.UUID) ([]db.RawDataObject, error)
	CorrectionTx(ctx context.Context, fn func(tx db.Tx) error) error
	SetCorrectionJobStatus(ctx context.Context, id uuid.UUID, status string, errMsg *string) error
	SetEventCorrectionStatus(ctx context.Context, id uuid.UUID, status string) error
}

// Service runs correction jobs.
type Service struct {
	Store objectstore.Store
	DB    DB
	Log   zerolog.Logger

	decoder *zstd.Decoder
}

// New constructs a Service.
func New(store objectstore.Store, database DB, log zerolog.Logger) (*Service, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("init zstd decoder: %w", err)
	}
	return &Service{Store: store, DB: database, Log: log.With().Str("component", "corrector").Logger(), decoder: dec}, nil
}

// RunJob executes one correction job end to end, in a single database
// transaction: it either commits a fully corrected set of events or
// rolls back and marks the job failed, never a partial correction.
func (s *Service) RunJob(ctx context.Context, jobID, sessionID uuid.UUID, rawBucket string) error {
	if err := s.DB.SetEventCorrectionStatus(ctx, sessionID, "processing"); err != nil {
		return fmt.Errorf("mark session processing: %w", err)
	}

	txErr := s.DB.CorrectionTx(ctx, func(tx db.Tx) error {
		return s.correctWithinTx(ctx, tx, sessionID, rawBucket)
	})

	if txErr != nil {
		msg := txErr.Error()
		if err := s.DB.SetCorrectionJobStatus(ctx, jobID, "failed", &msg); err != nil {
			s.Log.Error().Err(err).Msg("failed to record job failure")
		}
		if err := s.DB.SetEventCorrectionStatus(ctx, sessionID, "failed"); err != nil {
			s.Log.Error().Err(err).Msg("failed to mark session failed")
		}
		return txErr
	}

	if err := s.DB.SetCorrectionJobStatus(ctx, jobID, "completed", nil); err != nil {
		return fmt.Errorf("record job completion: %w", err)
	}
	if err := s.DB.SetEventCorrectionStatus(ctx, sessionID, "completed"); err != nil {
		return fmt.Errorf("mark session completed: %w", err)
	}
	return nil
}

func (s *Service) correctWithinTx(ctx context.Context, tx db.Tx, sessionID uuid.UUID, rawBucket string) error {
	events, err := tx.EventsForSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load events: %w", err)
	}
	if len(events) == 0 {
		return nil // nothing to correct; short-circuit rather than fail
	}

	objects, err := s.DB.LinkedObjects(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load linked objects: %w", err)
	}
	if len(objects) == 0 {
		s.Log.Warn().Str("session_id", sessionID.String()).Msg("session has events but no linked raw data objects")
		return nil
	}

	session, err := s.DB.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if len(session.ClockOffsetInfo) == 0 || session.EndTimeMS == nil {
		return svcerr.NewValidation(fmt.Errorf("session %s missing clock offset or end time", sessionID))
	}
	var off offsetInfo
	if err := json.Unmarshal(session.ClockOffsetInfo, &off); err != nil {
		return svcerr.NewValidation(fmt.Errorf("parse clock offset for session %s: %w", sessionID, err))
	}
	window := clockwrap.SessionWindowFromOffset(session.StartTimeMS, *session.EndTimeMS, off.OffsetMsAvg)

	var triggers []uint32
	for _, obj := range objects {
		raw, err := s.Store.Get(ctx, rawBucket, obj.ObjectKey)
		if err != nil {
			return svcerr.NewValidation(fmt.Errorf("fetch raw object %s: %w", obj.ObjectKey, err))
		}
		view, err := packet.Parse(raw)
		if err != nil {
			return svcerr.NewValidation(fmt.Errorf("parse raw object %s: %w", obj.ObjectKey, err))
		}
		for _, ts := range view.Triggers() {
			if !window.Contains(ts) {
				continue
			}
			triggers = append(triggers, ts)
		}
	}

	sort.Slice(triggers, func(i, j int) bool { return triggers[i] < triggers[j] })

	if len(triggers) != len(events) {
		return fmt.Errorf("%w: %d triggers, %d events", ErrCountMismatch, len(triggers), len(events))
	}

	for i, e := range events {
		if err := tx.SetEventCorrectedOnset(ctx, e.ID, int64(triggers[i])); err != nil {
			return fmt.Errorf("set corrected onset for event %s: %w", e.ID, err)
		}
	}
	return nil
}
