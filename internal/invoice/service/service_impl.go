package service

import (
	"context"
	"errors"
	"strings"

	"github.com/Johanhagos/mijn-api/internal/clock"
	invoicedomain "github.com/Johanhagos/mijn-api/internal/invoice/domain"
	"github.com/Johanhagos/mijn-api/internal/invoice/format"
	merchantdomain "github.com/Johanhagos/mijn-api/internal/merchant/domain"
	paymentdomain "github.com/Johanhagos/mijn-api/internal/payment/domain"
	sessiondomain "github.com/Johanhagos/mijn-api/internal/session/domain"
	taxdomain "github.com/Johanhagos/mijn-api/internal/tax/domain"
	taxservice "github.com/Johanhagos/mijn-api/internal/tax/service"
	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ServiceParam struct {
	fx.In

	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      invoicedomain.Repository
	Tax       taxdomain.Resolver
	Merchants merchantdomain.Directory
	Numbers   format.Template `optional:"true"`
}

type Service struct {
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      invoicedomain.Repository
	tax       taxdomain.Resolver
	merchants merchantdomain.Directory
	numbers   format.Template
}

func NewService(p ServiceParam) invoicedomain.Materializer {
	return &Service{
		log:       p.Log.Named("invoice.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		tax:       p.Tax,
		merchants: p.Merchants,
		numbers:   p.Numbers,
	}
}

func (s *Service) Materialize(ctx context.Context, session *sessiondomain.Session, confirmed paymentdomain.PaymentConfirmed) (*invoicedomain.Invoice, bool, error) {
	if session == nil || session.Status != sessiondomain.StatusPaid {
		return nil, false, invoicedomain.ErrSessionNotPaid
	}

	existing, err := s.repo.FindBySessionID(ctx, session.ID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, invoicedomain.ErrNotFound) {
		return nil, false, err
	}

	sellerCountry, err := s.merchants.SellerCountry(ctx, session.MerchantID)
	if err != nil {
		return nil, false, err
	}
	meta := session.Meta()
	result := s.tax.Resolve(ctx, sellerCountry, meta.BuyerCountry, meta.BuyerTaxID)
	amounts := taxservice.Split(s.grossAmount(session, confirmed), result.Rate)

	now := s.clock.Now()
	id := s.genID.Generate()
	number, err := s.numbers.Render(now, id.Int64())
	if err != nil {
		return nil, false, err
	}

	provider := firstNonEmpty(session.PaymentProvider, confirmed.Provider)
	ref := firstNonEmpty(session.ProviderRef, confirmed.ProviderRef)
	invoice := &invoicedomain.Invoice{
		ID:              id,
		InvoiceNumber:   number,
		SessionID:       session.ID,
		MerchantID:      session.MerchantID,
		Status:          invoicedomain.InvoiceStatusPaid,
		Subtotal:        amounts.Subtotal,
		VATRate:         result.Rate,
		VATAmount:       amounts.VATAmount,
		Total:           amounts.Total,
		Currency:        session.Currency,
		SellerCountry:   sellerCountry,
		BuyerCountry:    meta.BuyerCountry,
		BuyerTaxID:      meta.BuyerTaxID,
		IsReverseCharge: result.ReverseCharge,
		PaymentProvider: provider,
		ProviderRef:     ref,
		Notes:           result.Explanation,
		CreatedAt:       now,
	}

	if err := s.repo.Insert(ctx, invoice); err != nil {
		if !errors.Is(err, invoicedomain.ErrDuplicateInvoice) {
			return nil, false, err
		}
		// Lost the race to another materializer; theirs is the invoice.
		existing, findErr := s.repo.FindBySessionID(ctx, session.ID)
		if findErr != nil {
			return nil, false, findErr
		}
		return existing, false, nil
	}

	s.log.Info("invoice materialized",
		zap.String("session_id", session.ID),
		zap.String("invoice_number", invoice.InvoiceNumber),
		zap.String("treatment", string(result.Treatment)),
		zap.Bool("reverse_charge", result.ReverseCharge),
	)
	return invoice, true, nil
}

// grossAmount prefers what the provider reports. Amounts in another currency
// are not converted; the session amount is used instead.
func (s *Service) grossAmount(session *sessiondomain.Session, confirmed paymentdomain.PaymentConfirmed) decimal.Decimal {
	sameCurrency := strings.EqualFold(strings.TrimSpace(confirmed.Currency), session.Currency)
	if sameCurrency && confirmed.Amount.IsPositive() {
		if !confirmed.Amount.Equal(session.Amount) {
			s.log.Warn("provider amount differs from session amount",
				zap.String("session_id", session.ID),
				zap.String("provider_amount", confirmed.Amount.String()),
				zap.String("session_amount", session.Amount.String()),
			)
		}
		return confirmed.Amount
	}
	s.log.Warn("provider currency differs from session, invoicing session amount",
		zap.String("session_id", session.ID),
		zap.String("provider_currency", confirmed.Currency),
		zap.String("session_currency", session.Currency),
	)
	return session.Amount
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
