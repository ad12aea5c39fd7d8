package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SessionEvent mirrors a row in session_events.
type SessionEvent struct {
	ID               uuid.UUID
	SessionID        uuid.UUID
	Label            string
	OnsetUS          int64
	OnsetCorrectedUS *int64
}

// InsertSessionEvent records a stimulus/behavioral event with its
// uncorrected (wall-clock-derived) onset.
func (d *DB) InsertSessionEvent(ctx context.Context, e SessionEvent) error {
	_, err := d.Pool.Exec(ctx, `
		INSERT INTO session_events (id, session_id, label, onset_us)
		VALUES ($1, $2, $3, $4)`, e.ID, e.SessionID, e.Label, e.OnsetUS)
	return err
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx,
// letting the Event Corrector's queries run either standalone or inside
// its single correction transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

var _ querier = (*pgxpool.Pool)(nil)

// Tx is the transactional view of session_events the Event Corrector
// needs inside its one-transaction-per-job, independent of the
// underlying driver so tests can substitute an in-memory fake.
type Tx interface {
	EventsForSession(ctx context.Context, sessionID uuid.UUID) ([]SessionEvent, error)
	SetEventCorrectedOnset(ctx context.Context, eventID uuid.UUID, correctedUS int64) error
}

// pgxTx adapts a live pgx.Tx to Tx, delegating to the querier-based
// functions below.
type pgxTx struct{ q querier }

func (t pgxTx) EventsForSession(ctx context.Context, sessionID uuid.UUID) ([]SessionEvent, error) {
	return EventsForSession(ctx, t.q, sessionID)
}

func (t pgxTx) SetEventCorrectedOnset(ctx context.Context, eventID uuid.UUID, correctedUS int64) error {
	return SetEventCorrectedOnset(ctx, t.q, eventID, correctedUS)
}

// EventsForSession returns a session's events ordered by onset time, the
// order the Event Corrector requires before zipping them against
// extracted triggers.
func EventsForSession(ctx context.Context, q querier, sessionID uuid.UUID) ([]SessionEvent, error) {
	rows, err := q.Query(ctx, `
		SELECT id, session_id, label, onset_us, onset_corrected_us
		FROM session_events WHERE session_id = $1 ORDER BY onset_us`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionEvent
	for rows.Next() {
		var e SessionEvent
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Label, &e.OnsetUS, &e.OnsetCorrectedUS); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SetEventCorrectedOnset writes the corrected device-time onset for one
// event, part of the Event Corrector's per-job transaction.
func SetEventCorrectedOnset(ctx context.Context, q querier, eventID uuid.UUID, correctedUS int64) error {
	_, err := q.Exec(ctx, `UPDATE session_events SET onset_corrected_us = $2 WHERE id = $1`, eventID, correctedUS)
	return err
}
