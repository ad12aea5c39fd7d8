package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// CorrectionJob mirrors a row in correction_jobs.
type CorrectionJob struct {
	ID        uuid.UUID
	SessionID uuid.UUID
	Status    string
	Error     *string
}

// InsertCorrectionJob enqueues a correction job for a closed session.
func (d *DB) InsertCorrectionJob(ctx context.Context, j CorrectionJob) error {
	_, err := d.Pool.Exec(ctx, `
		INSERT INTO correction_jobs (id, session_id, status)
		VALUES ($1, $2, 'pending')`, j.ID, j.SessionID)
	return err
}

// GetCorrectionJob fetches a correction job by id.
func (d *DB) GetCorrectionJob(ctx context.Context, id uuid.UUID) (*CorrectionJob, error) {
	var j CorrectionJob
	err := d.Pool.QueryRow(ctx, `
		SELECT id, session_id, status, error FROM correction_jobs WHERE id = $1`, id).
		Scan(&j.ID, &j.SessionID, &j.Status, &j.Error)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// SetCorrectionJobStatus transitions a job's status and optional error
// message, stamping completed_at when moving to a terminal state.
func (d *DB) SetCorrectionJobStatus(ctx context.Context, id uuid.UUID, status string, errMsg *string) error {
	_, err := d.Pool.Exec(ctx, `
		UPDATE correction_jobs
		SET status = $2, error = $3,
		    completed_at = CASE WHEN $2 IN ('completed', 'failed') THEN now() ELSE completed_at END
		WHERE id = $1`, id, status, errMsg)
	return err
}

// CorrectionTx runs fn inside a single database transaction and commits
// only if fn returns nil, matching the Event Corrector's requirement that
// an entire job's writes are all-or-nothing.
func (d *DB) CorrectionTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := d.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin correction tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(pgxTx{q: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
