package domain

import (
	"context"
	"errors"
	"time"

	paymentdomain "github.com/Johanhagos/mijn-api/internal/payment/domain"
	sessiondomain "github.com/Johanhagos/mijn-api/internal/session/domain"
)

type Service interface {
	// Provision enqueues the session's job and runs it inline. A failed run
	// stays queued for the retry consumer; paid is never rolled back.
	Provision(ctx context.Context, session *sessiondomain.Session, confirmed paymentdomain.PaymentConfirmed) (*Report, error)
	// RunDue retries pending jobs whose next attempt is due.
	RunDue(ctx context.Context) (int, error)
	// SweepPaid enqueues recently paid sessions that have no job.
	SweepPaid(ctx context.Context) (int, error)
}

type Repository interface {
	// Enqueue inserts job unless the session already has one.
	Enqueue(ctx context.Context, job *Job) (bool, error)
	FindBySessionID(ctx context.Context, sessionID string) (*Job, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]Job, error)
	// Claim pushes next_attempt_at to leaseUntil if the job is still due.
	Claim(ctx context.Context, id int64, now, leaseUntil time.Time) (bool, error)
	// HoldKey stores a sealed, undelivered API key on the job. Empty values
	// release it.
	HoldKey(ctx context.Context, id int64, keyID, sealed string, now time.Time) error
	// MarkDone also releases any held key.
	MarkDone(ctx context.Context, id int64, now time.Time) error
	MarkFailed(ctx context.Context, id int64, update FailureUpdate) error
}

type FailureUpdate struct {
	Attempts      int
	Status        JobStatus
	NextAttemptAt time.Time
	LastError     string
	UpdatedAt     time.Time
}

var ErrJobNotFound = errors.New("provisioning_job_not_found")
