// Package svcerr classifies errors into the dispositions the broker
// consumers need: validation failures and permanent errors drop the
// message, transient errors requeue it for another attempt.
package svcerr

import (
	"errors"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
)

// Kind categorizes an error for ack/nack decisions and logging.
type Kind int

const (
	// KindValidation is a malformed or unprocessable message; never requeue.
	KindValidation Kind = iota
	// KindPermanent is a non-recoverable failure unrelated to message
	// content (e.g. a programming error); never requeue.
	KindPermanent
	// KindTransient is a failure in a dependency that is expected to
	// recover (connection reset, broker unavailable); requeue.
	KindTransient
	// KindDegraded indicates a health dependency is unavailable but the
	// current operation need not fail outright.
	KindDegraded
	// KindFatalStartup aborts process startup; never used for consumer
	// message handling.
	KindFatalStartup
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindPermanent:
		return "permanent"
	case KindTransient:
		return "transient"
	case KindDegraded:
		return "degraded"
	case KindFatalStartup:
		return "fatal_startup"
	default:
		return "unknown"
	}
}

// transientSQLStates are Postgres SQLSTATE codes that indicate the
// connection or server is temporarily unavailable, per
// https://www.postgresql.org/docs/current/errcodes-appendix.html.
var transientSQLStates = map[string]bool{
	"08006": true, // connection_failure
	"08003": true, // connection_does_not_exist
	"57P03": true, // cannot_connect_now
}

// Validation wraps err to mark it as a validation failure (bad message
// content). Messages classified this way are dropped, not requeued.
type Validation struct{ Err error }

func (v *Validation) Error() string { return v.Err.Error() }
func (v *Validation) Unwrap() error { return v.Err }

// NewValidation wraps err as a Validation error.
func NewValidation(err error) error { return &Validation{Err: err} }

// Classify inspects err and returns the Kind that determines ack policy.
// Order of checks: explicit Validation wrapper, Postgres transient
// SQLSTATEs, network errors, then a default of Permanent — unclassified
// errors are treated as permanent rather than silently requeued forever.
func Classify(err error) Kind {
	if err == nil {
		return KindPermanent
	}

	var v *Validation
	if errors.As(err, &v) {
		return KindValidation
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if transientSQLStates[pgErr.Code] {
			return KindTransient
		}
		return KindPermanent
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}

	if errors.Is(err, ErrBrokerNotReady) || errors.Is(err, ErrObjectStoreUnavailable) {
		return KindTransient
	}

	return KindPermanent
}

// ErrBrokerNotReady indicates the broker channel is not currently usable.
var ErrBrokerNotReady = errors.New("svcerr: broker not ready")

// ErrObjectStoreUnavailable indicates the object store could not be reached.
var ErrObjectStoreUnavailable = errors.New("svcerr: object store unavailable")
