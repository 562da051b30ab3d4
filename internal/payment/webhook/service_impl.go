package webhook

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/Johanhagos/mijn-api/internal/clock"
	"github.com/Johanhagos/mijn-api/internal/config"
	obscontext "github.com/Johanhagos/mijn-api/internal/observability/context"
	"github.com/Johanhagos/mijn-api/internal/observability/metrics"
	"github.com/Johanhagos/mijn-api/internal/payment/adapters"
	paymentdomain "github.com/Johanhagos/mijn-api/internal/payment/domain"
	"github.com/Johanhagos/mijn-api/internal/reconcile"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const OutcomeIgnored = "ignored"

type Result struct {
	Outcome   string
	SessionID string
	EventID   string
	// Reconcile is nil for ignored events.
	Reconcile *reconcile.Result
}

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Cfg        config.Config
	Clock      clock.Clock
	GenID      *snowflake.Node
	Registry   *adapters.Registry
	Repo       paymentdomain.Repository
	Reconciler reconcile.Reconciler
	Metrics    *metrics.Metrics `optional:"true"`
}

type providerAdapter struct {
	adapter paymentdomain.PaymentAdapter
	signed  bool
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	clock         clock.Clock
	genID         *snowflake.Node
	repo          paymentdomain.Repository
	reconciler    reconcile.Reconciler
	metrics       *metrics.Metrics
	adapters      map[string]providerAdapter
	allowUnsigned bool
}

func NewService(p Params) (*Service, error) {
	log := p.Log.Named("payment.webhook")
	s := &Service{
		db:            p.DB,
		log:           log,
		clock:         p.Clock,
		genID:         p.GenID,
		repo:          p.Repo,
		reconciler:    p.Reconciler,
		metrics:       p.Metrics,
		adapters:      map[string]providerAdapter{},
		allowUnsigned: p.Cfg.Webhooks.AllowUnsigned,
	}

	for _, provider := range p.Registry.Providers() {
		cfg := adapterConfig(p.Cfg, provider, p.Clock)
		adapter, err := p.Registry.NewAdapter(provider, cfg)
		if err != nil {
			return nil, err
		}
		signed := cfg.Secret != ""
		s.adapters[provider] = providerAdapter{adapter: adapter, signed: signed}
		if !signed {
			log.Warn("webhook secret not configured", zap.String("provider", provider), zap.Bool("allow_unsigned", s.allowUnsigned))
		}
	}
	if s.allowUnsigned {
		log.Error("WEBHOOKS_ALLOW_UNSIGNED is enabled; providers without a secret are accepted unauthenticated")
	}
	return s, nil
}

func adapterConfig(cfg config.Config, provider string, clk clock.Clock) paymentdomain.AdapterConfig {
	out := paymentdomain.AdapterConfig{
		Secret: cfg.WebhookSecret(provider),
		Now:    clk.Now,
	}
	switch provider {
	case paymentdomain.ProviderCard:
		out.Tolerance = cfg.Webhooks.CardTolerance
	case paymentdomain.ProviderPayPal:
		out.WebhookID = cfg.Webhooks.PayPalWebhookID
	case paymentdomain.ProviderChain:
		out.MinConfirmations = cfg.Webhooks.ChainMinConfirms
	}
	return out
}

// Normalize authenticates payload and maps it onto PaymentConfirmed.
func (s *Service) Normalize(ctx context.Context, provider string, payload []byte, headers http.Header) (*paymentdomain.PaymentConfirmed, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return nil, paymentdomain.ErrInvalidProvider
	}
	entry, ok := s.adapters[provider]
	if !ok {
		return nil, paymentdomain.ErrProviderNotFound
	}

	if entry.signed {
		if err := entry.adapter.Verify(ctx, payload, headers); err != nil {
			return nil, err
		}
	} else {
		if !s.allowUnsigned {
			return nil, paymentdomain.ErrUnsignedRejected
		}
		s.log.Warn("accepting unsigned webhook",
			zap.String("provider", provider),
			zap.Bool("authenticated", false),
		)
	}

	if !json.Valid(payload) {
		return nil, paymentdomain.ErrInvalidPayload
	}

	confirmed, err := entry.adapter.Parse(ctx, payload)
	if err != nil {
		return nil, err
	}
	confirmed.Provider = provider
	confirmed.Raw = payload
	if confirmed.EventID == "" {
		confirmed.EventID = bodyHash(payload)
	}
	return confirmed, nil
}

// Ingest handles one webhook delivery end to end. Every delivery is
// reconciled, including replays of a journaled event id, so a provider retry
// after a failed attempt still converges.
func (s *Service) Ingest(ctx context.Context, provider string, payload []byte, headers http.Header) (Result, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))

	confirmed, err := s.Normalize(ctx, provider, payload, headers)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventIgnored) {
			s.metrics.RecordWebhook(ctx, provider, OutcomeIgnored)
			s.journal(ctx, provider, "", bodyHash(payload), "", payload, OutcomeIgnored)
			return Result{Outcome: OutcomeIgnored}, nil
		}
		s.metrics.RecordWebhook(ctx, provider, rejectReason(err))
		s.log.Warn("webhook rejected", zap.String("provider", provider), zap.Error(err))
		return Result{}, err
	}

	ctx = obscontext.WithSession(ctx, confirmed.SessionID)
	record := s.journal(ctx, provider, confirmed.SessionID, confirmed.EventID, confirmed.EventType, payload, "")

	res, err := s.reconciler.Reconcile(ctx, *confirmed)
	outcome := string(res.Outcome)
	if err != nil {
		outcome = "error"
	}
	s.metrics.RecordWebhook(ctx, provider, outcome)
	s.markProcessed(ctx, record, outcome)
	if err != nil {
		return Result{SessionID: confirmed.SessionID, EventID: confirmed.EventID}, err
	}

	return Result{
		Outcome:   outcome,
		SessionID: confirmed.SessionID,
		EventID:   confirmed.EventID,
		Reconcile: &res,
	}, nil
}

// journal records the delivery for audit. Failures are logged and swallowed.
func (s *Service) journal(ctx context.Context, provider, sessionID, eventID, eventType string, payload []byte, outcome string) *paymentdomain.EventRecord {
	now := s.clock.Now()
	record := &paymentdomain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        provider,
		ProviderEventID: eventID,
		SessionID:       sessionID,
		EventType:       eventType,
		Outcome:         outcome,
		Payload:         datatypes.JSON(payload),
		ReceivedAt:      now,
	}
	if outcome != "" {
		record.ProcessedAt = &now
	}

	inserted, err := s.repo.InsertEvent(ctx, s.db, record)
	if err != nil {
		s.log.Warn("failed to journal webhook", zap.String("provider", provider), zap.String("event_id", eventID), zap.Error(err))
		return nil
	}
	if inserted {
		return record
	}

	s.log.Info("webhook redelivered", zap.String("provider", provider), zap.String("event_id", eventID))
	existing, err := s.repo.FindEvent(ctx, s.db, provider, eventID)
	if err != nil {
		s.log.Warn("failed to load journaled webhook", zap.String("event_id", eventID), zap.Error(err))
		return nil
	}
	return existing
}

func (s *Service) markProcessed(ctx context.Context, record *paymentdomain.EventRecord, outcome string) {
	if record == nil || record.ID == 0 {
		return
	}
	if err := s.repo.MarkProcessed(context.WithoutCancel(ctx), s.db, record.ID, outcome, s.clock.Now()); err != nil {
		s.log.Warn("failed to mark webhook processed", zap.String("event_id", record.ProviderEventID), zap.Error(err))
	}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, paymentdomain.ErrInvalidSignature), errors.Is(err, paymentdomain.ErrInvalidConfig):
		return "invalid_signature"
	case errors.Is(err, paymentdomain.ErrUnsignedRejected):
		return "unsigned_rejected"
	case errors.Is(err, paymentdomain.ErrProviderNotFound), errors.Is(err, paymentdomain.ErrInvalidProvider):
		return "unknown_provider"
	case errors.Is(err, paymentdomain.ErrMissingSessionID):
		return "missing_session_id"
	default:
		return "invalid_payload"
	}
}

func bodyHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
