package service

import (
	"context"
	"crypto/rand"
	"errors"
	"regexp"
	"strings"

	"github.com/Johanhagos/mijn-api/internal/clock"
	"github.com/Johanhagos/mijn-api/internal/session/domain"
	"github.com/oklog/ulid/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// IDPrefix marks checkout session identifiers.
const IDPrefix = "cs_"

const maxCASAttempts = 8

var (
	currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)
	countryPattern  = regexp.MustCompile(`^[A-Z]{2}$`)
)

type Params struct {
	fx.In

	Log   *zap.Logger
	Store domain.Store
	Clock clock.Clock
}

type Service struct {
	log   *zap.Logger
	store domain.Store
	clock clock.Clock
}

func NewService(p Params) domain.Service {
	return &Service{
		log:   p.Log.Named("session.service"),
		store: p.Store,
		clock: p.Clock,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Session, error) {
	merchantID := strings.TrimSpace(req.MerchantID)
	if merchantID == "" {
		return nil, domain.ErrInvalidMerchant
	}
	if !req.Amount.IsPositive() || !req.Amount.Equal(req.Amount.Round(2)) {
		return nil, domain.ErrInvalidAmount
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if !currencyPattern.MatchString(currency) {
		return nil, domain.ErrInvalidCurrency
	}
	country := strings.ToUpper(strings.TrimSpace(req.BuyerCountry))
	if !countryPattern.MatchString(country) {
		return nil, domain.ErrInvalidCountry
	}
	mode, err := domain.ParseMode(req.Mode)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return nil, err
	}

	session := &domain.Session{
		ID:         IDPrefix + strings.ToLower(id.String()),
		MerchantID: merchantID,
		Amount:     req.Amount,
		Currency:   currency,
		Mode:       mode,
		Status:     domain.StatusCreated,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	session.SetMeta(domain.Metadata{
		BuyerCountry:   country,
		BuyerTaxID:     strings.TrimSpace(req.BuyerTaxID),
		WebhookSources: []string{},
	})

	if err := s.store.Insert(ctx, session); err != nil {
		return nil, err
	}
	s.log.Info("session created",
		zap.String("session_id", session.ID),
		zap.String("merchant_id", merchantID),
		zap.String("currency", currency),
		zap.String("mode", string(mode)),
	)
	return session, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.ErrInvalidID
	}
	return s.store.FindByID(ctx, id)
}

func (s *Service) Status(ctx context.Context, id string) (*domain.StatusView, error) {
	session, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	view := session.View()
	return &view, nil
}

func (s *Service) Apply(ctx context.Context, id string, mutate domain.MutateFunc) (*domain.Session, bool, error) {
	for attempt := 1; attempt <= maxCASAttempts; attempt++ {
		current, err := s.Get(ctx, id)
		if err != nil {
			return nil, false, err
		}

		next := current.Clone()
		changed, err := mutate(next)
		if err != nil {
			return current, false, err
		}
		if !changed {
			return current, false, nil
		}
		if next.Status != current.Status && !domain.CanTransition(current.Status, next.Status) {
			return current, false, domain.ErrInvalidTransition
		}
		next.UpdatedAt = s.clock.Now()

		err = s.store.CompareAndSwap(ctx, next, current.Version)
		if err == nil {
			return next, true, nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			return nil, false, err
		}
		s.log.Debug("session version conflict, retrying",
			zap.String("session_id", id),
			zap.Int64("version", current.Version),
			zap.Int("attempt", attempt),
		)
	}
	return nil, false, domain.ErrStoreUnavailable
}

func (s *Service) MarkPending(ctx context.Context, id string) (*domain.Session, error) {
	session, _, err := s.Apply(ctx, id, func(next *domain.Session) (bool, error) {
		if !domain.CanTransition(next.Status, domain.StatusPending) {
			return false, domain.ErrInvalidTransition
		}
		next.Status = domain.StatusPending
		return true, nil
	})
	return session, err
}

func (s *Service) MarkFailed(ctx context.Context, id string, reason string) (*domain.Session, error) {
	reason = strings.TrimSpace(reason)
	session, _, err := s.Apply(ctx, id, func(next *domain.Session) (bool, error) {
		if !domain.CanTransition(next.Status, domain.StatusFailed) {
			return false, domain.ErrInvalidTransition
		}
		next.Status = domain.StatusFailed
		meta := next.Meta()
		meta.FailureReason = reason
		next.SetMeta(meta)
		return true, nil
	})
	if err == nil {
		s.log.Info("session failed", zap.String("session_id", id), zap.String("reason", reason))
	}
	return session, err
}
