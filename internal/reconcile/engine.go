package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Johanhagos/mijn-api/internal/clock"
	"github.com/Johanhagos/mijn-api/internal/observability/metrics"
	paymentdomain "github.com/Johanhagos/mijn-api/internal/payment/domain"
	provisioningdomain "github.com/Johanhagos/mijn-api/internal/provisioning/domain"
	sessiondomain "github.com/Johanhagos/mijn-api/internal/session/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Outcome string

const (
	OutcomePaid            Outcome = "paid"
	OutcomeAlreadyTerminal Outcome = "already_terminal"
)

var (
	// ErrUnknownSession wraps sessiondomain.ErrNotFound.
	ErrUnknownSession = errors.New("unknown_session")
	// ErrPersistence wraps sessiondomain.ErrStoreUnavailable.
	ErrPersistence = errors.New("persistence_failure")
)

type Result struct {
	Outcome Outcome
	Session *sessiondomain.Session
	// Winner is true only for the call that moved the session to paid.
	Winner       bool
	Provisioning *provisioningdomain.Report
}

// Status is the terminal status seen by an AlreadyTerminal result.
func (r Result) Status() sessiondomain.Status {
	if r.Session == nil {
		return ""
	}
	return r.Session.Status
}

type Reconciler interface {
	Reconcile(ctx context.Context, confirmed paymentdomain.PaymentConfirmed) (Result, error)
}

type Params struct {
	fx.In

	Log         *zap.Logger
	Clock       clock.Clock
	Sessions    sessiondomain.Service
	Provisioner provisioningdomain.Service
	Metrics     *metrics.Metrics `optional:"true"`
}

type Engine struct {
	log         *zap.Logger
	clock       clock.Clock
	sessions    sessiondomain.Service
	provisioner provisioningdomain.Service
	metrics     *metrics.Metrics
}

func NewEngine(p Params) Reconciler {
	return &Engine{
		log:         p.Log.Named("reconcile"),
		clock:       p.Clock,
		sessions:    p.Sessions,
		provisioner: p.Provisioner,
		metrics:     p.Metrics,
	}
}

// Reconcile converges the session named by confirmed to paid exactly once.
// Late or duplicate confirmations on a terminal session only record their
// provider in webhook_sources.
func (e *Engine) Reconcile(ctx context.Context, confirmed paymentdomain.PaymentConfirmed) (Result, error) {
	provider := strings.ToLower(strings.TrimSpace(confirmed.Provider))
	log := e.log.With(
		zap.String("session_id", confirmed.SessionID),
		zap.String("provider", provider),
		zap.String("event_id", confirmed.EventID),
	)

	var outcome Outcome
	session, _, err := e.sessions.Apply(ctx, confirmed.SessionID, func(s *sessiondomain.Session) (bool, error) {
		outcome = ""
		meta := s.Meta()
		added := meta.AddWebhookSource(provider)

		if s.Status.IsTerminal() {
			outcome = OutcomeAlreadyTerminal
			if !added {
				return false, nil
			}
			s.SetMeta(meta)
			return true, nil
		}
		if !sessiondomain.CanTransition(s.Status, sessiondomain.StatusPaid) {
			return false, sessiondomain.ErrInvalidTransition
		}

		now := e.clock.Now()
		s.Status = sessiondomain.StatusPaid
		s.PaidAt = &now
		s.PaymentProvider = provider
		s.ProviderRef = confirmed.ProviderRef
		s.SetMeta(meta)
		outcome = OutcomePaid
		return true, nil
	})
	if err != nil {
		e.metrics.RecordReconcile(ctx, provider, outcomeLabel(err))
		return Result{Session: session}, e.mapError(log, session, err)
	}

	result := Result{Outcome: outcome, Session: session}
	e.metrics.RecordReconcile(ctx, provider, string(outcome))

	if outcome == OutcomeAlreadyTerminal {
		log.Info("session already terminal",
			zap.String("status", session.Status.String()),
			zap.String("paid_by", session.PaymentProvider),
		)
		return result, nil
	}

	result.Winner = true
	log.Info("session paid",
		zap.String("merchant_id", session.MerchantID),
		zap.String("provider_ref", session.ProviderRef),
		zap.Int64("version", session.Version),
	)

	report, err := e.provisioner.Provision(ctx, session, confirmed)
	result.Provisioning = report
	if err != nil {
		// paid stands; the provisioning consumer retries.
		log.Error("provisioning failed after payment", zap.Error(err))
	}
	return result, nil
}

func (e *Engine) mapError(log *zap.Logger, session *sessiondomain.Session, err error) error {
	switch {
	case errors.Is(err, sessiondomain.ErrNotFound), errors.Is(err, sessiondomain.ErrInvalidID):
		log.Warn("confirmation for unknown session")
		return fmt.Errorf("%w: %w", ErrUnknownSession, err)
	case errors.Is(err, sessiondomain.ErrInvalidTransition):
		fields := []zap.Field{zap.Error(err)}
		if session != nil {
			fields = append(fields, zap.String("status", session.Status.String()))
		}
		log.Error("illegal transition to paid", fields...)
		return err
	case errors.Is(err, sessiondomain.ErrStoreUnavailable):
		log.Error("session store unavailable", zap.Error(err))
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	default:
		log.Error("reconcile failed", zap.Error(err))
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, sessiondomain.ErrNotFound), errors.Is(err, sessiondomain.ErrInvalidID):
		return "unknown_session"
	case errors.Is(err, sessiondomain.ErrInvalidTransition):
		return "invalid_transition"
	default:
		return "persistence_failure"
	}
}
