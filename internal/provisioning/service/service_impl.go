package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	accesstokendomain "github.com/Johanhagos/mijn-api/internal/accesstoken/domain"
	apikeydomain "github.com/Johanhagos/mijn-api/internal/apikey/domain"
	"github.com/Johanhagos/mijn-api/internal/clock"
	"github.com/Johanhagos/mijn-api/internal/config"
	invoicedomain "github.com/Johanhagos/mijn-api/internal/invoice/domain"
	"github.com/Johanhagos/mijn-api/internal/notify"
	"github.com/Johanhagos/mijn-api/internal/observability/metrics"
	paymentdomain "github.com/Johanhagos/mijn-api/internal/payment/domain"
	"github.com/Johanhagos/mijn-api/internal/provisioning/domain"
	"github.com/Johanhagos/mijn-api/internal/provisioning/keybox"
	"github.com/Johanhagos/mijn-api/internal/ratelimit"
	sessiondomain "github.com/Johanhagos/mijn-api/internal/session/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	batchSize    = 50
	sweepBatch   = 200
	baseBackoff  = 5 * time.Second
	maxBackoff   = time.Hour
	maxErrorText = 1024
	lockPrefix   = "provisioning:job:"
)

type Params struct {
	fx.In

	Log       *zap.Logger
	Cfg       config.Config
	Clock     clock.Clock
	GenID     *snowflake.Node
	Repo      domain.Repository
	Sessions  sessiondomain.Service
	Store     sessiondomain.Store
	Invoices  invoicedomain.Materializer
	APIKeys   apikeydomain.Service
	Tokens    accesstokendomain.Service
	Publisher notify.Publisher
	Keys      *keybox.Box
	Locker    *ratelimit.Locker      `optional:"true"`
	Metrics   *metrics.Metrics       `optional:"true"`
	Worker    *metrics.WorkerMetrics `optional:"true"`
}

type Service struct {
	log       *zap.Logger
	clock     clock.Clock
	genID     *snowflake.Node
	repo      domain.Repository
	sessions  sessiondomain.Service
	store     sessiondomain.Store
	invoices  invoicedomain.Materializer
	apiKeys   apikeydomain.Service
	tokens    accesstokendomain.Service
	publisher notify.Publisher
	keys      *keybox.Box
	locker    *ratelimit.Locker
	metrics   *metrics.Metrics
	worker    *metrics.WorkerMetrics

	timeout     time.Duration
	maxAttempts int
	sweepWindow time.Duration
	lockTTL     time.Duration
}

func New(p Params) domain.Service {
	timeout := p.Cfg.Provisioning.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	maxAttempts := p.Cfg.Provisioning.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	lockTTL := p.Cfg.Redis.JobLockTTL
	if lockTTL < 2*timeout {
		lockTTL = 2 * timeout
	}

	return &Service{
		log:         p.Log.Named("provisioning.service"),
		clock:       p.Clock,
		genID:       p.GenID,
		repo:        p.Repo,
		sessions:    p.Sessions,
		store:       p.Store,
		invoices:    p.Invoices,
		apiKeys:     p.APIKeys,
		tokens:      p.Tokens,
		publisher:   p.Publisher,
		keys:        p.Keys,
		locker:      p.Locker,
		metrics:     p.Metrics,
		worker:      p.Worker,
		timeout:     timeout,
		maxAttempts: maxAttempts,
		sweepWindow: p.Cfg.Provisioning.SweepWindow,
		lockTTL:     lockTTL,
	}
}

func (s *Service) Provision(ctx context.Context, session *sessiondomain.Session, confirmed paymentdomain.PaymentConfirmed) (*domain.Report, error) {
	if session == nil || session.Status != sessiondomain.StatusPaid {
		return nil, invoicedomain.ErrSessionNotPaid
	}

	now := s.clock.Now()
	job := s.newJob(session, confirmed, now)
	// The lease keeps the retry consumer away while the inline run is in flight.
	job.NextAttemptAt = now.Add(2 * s.timeout)
	if _, err := s.repo.Enqueue(ctx, job); err != nil {
		// Without the outbox row the sweep is the only safety net.
		s.log.Error("failed to enqueue provisioning job", zap.String("session_id", session.ID), zap.Error(err))
	}
	stored, err := s.repo.FindBySessionID(ctx, session.ID)
	if err == nil {
		job = stored
	}

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	report, runErr := s.run(runCtx, job, session, confirmed)
	s.finish(ctx, job, runErr)
	return report, runErr
}

func (s *Service) RunDue(ctx context.Context) (int, error) {
	now := s.clock.Now()
	jobs, err := s.repo.ListDue(ctx, now, batchSize)
	if err != nil {
		return 0, err
	}

	processed := 0
	for i := range jobs {
		if ctx.Err() != nil {
			break
		}
		job := jobs[i]
		ran, err := s.locker.WithLock(ctx, lockPrefix+job.SessionID, s.lockTTL, func(ctx context.Context) error {
			return s.retry(ctx, &job)
		})
		if err != nil {
			s.log.Warn("provisioning retry failed",
				zap.String("session_id", job.SessionID),
				zap.Int("attempt", job.Attempts+1),
				zap.Error(err),
			)
			continue
		}
		if ran {
			processed++
		}
	}
	s.worker.AddBatchProcessed(metrics.WorkerJobProvisioning, "jobs", processed)
	return processed, nil
}

func (s *Service) retry(ctx context.Context, job *domain.Job) error {
	now := s.clock.Now()
	claimed, err := s.repo.Claim(ctx, job.ID.Int64(), now, now.Add(2*s.timeout))
	if err != nil || !claimed {
		return err
	}

	start := time.Now()
	s.worker.IncJobRun(metrics.WorkerJobProvisioning)
	defer func() { s.worker.ObserveJobDuration(metrics.WorkerJobProvisioning, time.Since(start)) }()

	session, err := s.sessions.Get(ctx, job.SessionID)
	if err != nil {
		s.finish(ctx, job, err)
		return err
	}

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	_, runErr := s.run(runCtx, job, session, job.Confirmed())
	s.finish(ctx, job, runErr)
	return runErr
}

func (s *Service) SweepPaid(ctx context.Context) (int, error) {
	if s.sweepWindow <= 0 {
		return 0, nil
	}

	since := s.clock.Now().Add(-s.sweepWindow)
	enqueued := 0
	for {
		sessions, err := s.store.ListPaidSince(ctx, since, sweepBatch)
		if err != nil {
			return enqueued, err
		}
		for i := range sessions {
			session := &sessions[i]
			created, err := s.repo.Enqueue(ctx, s.newJob(session, confirmedFromSession(session), s.clock.Now()))
			if err != nil {
				return enqueued, err
			}
			if created {
				enqueued++
				s.log.Warn("paid session had no provisioning job, enqueued",
					zap.String("session_id", session.ID),
					zap.String("merchant_id", session.MerchantID),
				)
			}
		}
		if len(sessions) < sweepBatch {
			return enqueued, nil
		}
		last := sessions[len(sessions)-1].PaidAt
		if last == nil || !last.After(since) {
			return enqueued, nil
		}
		since = *last
	}
}

func (s *Service) run(ctx context.Context, job *domain.Job, session *sessiondomain.Session, confirmed paymentdomain.PaymentConfirmed) (*domain.Report, error) {
	report := &domain.Report{}

	invoice, created, err := s.invoices.Materialize(ctx, session, confirmed)
	if err != nil {
		return report, fmt.Errorf("invoice: %w", err)
	}
	report.Invoice = invoice
	report.InvoiceCreated = created

	key, secret, keyCreated, err := s.apiKeys.EnsureForMerchant(ctx, session.MerchantID)
	if err != nil {
		return report, fmt.Errorf("api key: %w", err)
	}
	report.APIKeyID = key.KeyID
	report.APIKeyCreated = keyCreated
	if err := s.deliverKey(ctx, job, key, secret, keyCreated); err != nil {
		return report, fmt.Errorf("api key delivery: %w", err)
	}

	token, err := s.tokens.Issue(session.ID, session.MerchantID)
	if err != nil {
		return report, fmt.Errorf("access token: %w", err)
	}
	report.AccessToken = &token

	event := notify.SessionPaid{
		SessionID:       session.ID,
		MerchantID:      session.MerchantID,
		PaymentProvider: session.PaymentProvider,
		ProviderRef:     session.ProviderRef,
		Amount:          session.Amount,
		Currency:        session.Currency,
		AccessToken:     token.Value,
		AccessExpiresAt: &token.ExpiresAt,
	}
	if session.PaidAt != nil {
		event.PaidAt = *session.PaidAt
	}
	if invoice != nil {
		event.InvoiceNumber = invoice.InvoiceNumber
	}
	if err := s.publisher.SessionPaid(ctx, event); err != nil {
		return report, fmt.Errorf("notify: %w", err)
	}

	return report, nil
}

// deliverKey publishes a newly created key. The plaintext is never stored by
// the api key service, so it is sealed onto the job first and only released
// once a publish succeeds; retries reopen it from there.
func (s *Service) deliverKey(ctx context.Context, job *domain.Job, key *apikeydomain.APIKey, secret string, created bool) error {
	switch {
	case created:
		sealed, err := s.keys.Seal(secret)
		if err == nil {
			err = s.repo.HoldKey(ctx, job.ID.Int64(), key.KeyID, sealed, s.clock.Now())
		}
		if err != nil {
			// Still try to publish; only a failure of both loses the key.
			s.log.Error("failed to hold undelivered api key",
				zap.String("merchant_id", key.MerchantID),
				zap.String("key_id", key.KeyID),
				zap.Error(err),
			)
		} else {
			job.PendingKeyID, job.SealedAPIKey = key.KeyID, sealed
		}
	case job.SealedAPIKey != "" && job.PendingKeyID == key.KeyID:
		opened, err := s.keys.Open(job.SealedAPIKey)
		if err != nil {
			return err
		}
		secret = opened
	default:
		return nil
	}

	if err := s.publisher.APIKeyIssued(ctx, notify.APIKeyIssued{
		MerchantID: key.MerchantID,
		KeyID:      key.KeyID,
		APIKey:     secret,
		Scopes:     []string(key.Scopes),
		IssuedAt:   key.CreatedAt,
	}); err != nil {
		return err
	}

	if job.SealedAPIKey != "" {
		if err := s.repo.HoldKey(ctx, job.ID.Int64(), "", "", s.clock.Now()); err != nil {
			s.log.Warn("failed to release delivered api key", zap.String("key_id", key.KeyID), zap.Error(err))
		}
		job.PendingKeyID, job.SealedAPIKey = "", ""
	}
	return nil
}

// finish records the run outcome on the job. Bookkeeping errors are logged
// only; the caller's result does not depend on them.
func (s *Service) finish(ctx context.Context, job *domain.Job, runErr error) {
	ctx = context.WithoutCancel(ctx)
	now := s.clock.Now()

	if runErr == nil {
		s.metrics.RecordProvisioning(ctx, string(domain.JobDone))
		if job.ID == 0 {
			return
		}
		if err := s.repo.MarkDone(ctx, job.ID.Int64(), now); err != nil {
			s.log.Warn("failed to mark provisioning job done", zap.String("session_id", job.SessionID), zap.Error(err))
		}
		return
	}

	s.worker.IncJobError(metrics.WorkerJobProvisioning, runErr)
	attempts := job.Attempts + 1
	update := domain.FailureUpdate{
		Attempts:      attempts,
		Status:        domain.JobPending,
		NextAttemptAt: now.Add(Backoff(attempts)),
		LastError:     truncate(runErr.Error(), maxErrorText),
		UpdatedAt:     now,
	}
	if attempts >= s.maxAttempts {
		update.Status = domain.JobManual
		s.worker.IncManual()
		s.log.Error("provisioning exhausted retries, manual follow-up required",
			zap.String("session_id", job.SessionID),
			zap.String("merchant_id", job.MerchantID),
			zap.Int("attempts", attempts),
			zap.Error(runErr),
		)
	} else {
		s.log.Warn("provisioning failed, will retry",
			zap.String("session_id", job.SessionID),
			zap.Int("attempts", attempts),
			zap.Time("next_attempt_at", update.NextAttemptAt),
			zap.Error(runErr),
		)
	}
	s.metrics.RecordProvisioning(ctx, string(update.Status))

	if job.ID == 0 {
		return
	}
	if err := s.repo.MarkFailed(ctx, job.ID.Int64(), update); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("failed to record provisioning failure", zap.String("session_id", job.SessionID), zap.Error(err))
	}
	job.Attempts = attempts
	job.Status = update.Status
}

func (s *Service) newJob(session *sessiondomain.Session, confirmed paymentdomain.PaymentConfirmed, now time.Time) *domain.Job {
	provider := confirmed.Provider
	if provider == "" {
		provider = session.PaymentProvider
	}
	return &domain.Job{
		ID:            s.genID.Generate(),
		SessionID:     session.ID,
		MerchantID:    session.MerchantID,
		Provider:      provider,
		ProviderRef:   confirmed.ProviderRef,
		EventID:       confirmed.EventID,
		Amount:        confirmed.Amount,
		Currency:      confirmed.Currency,
		Status:        domain.JobPending,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func confirmedFromSession(session *sessiondomain.Session) paymentdomain.PaymentConfirmed {
	return paymentdomain.PaymentConfirmed{
		SessionID:   session.ID,
		Provider:    session.PaymentProvider,
		Amount:      session.Amount,
		Currency:    session.Currency,
		ProviderRef: session.ProviderRef,
	}
}

// Backoff returns the delay before attempt n+1: 5s doubling, capped at 1h.
// The schedule is indexed by the persisted attempt count so it survives
// restarts; jitter is off to keep next_attempt_at reproducible.
func Backoff(attempts int) time.Duration {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = baseBackoff
	bo.Multiplier = 2
	bo.MaxInterval = maxBackoff
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0
	bo.Reset()

	delay := bo.NextBackOff()
	for i := 1; i < attempts && delay < maxBackoff; i++ {
		delay = bo.NextBackOff()
	}
	return delay
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
