package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Johanhagos/mijn-api/internal/clock"
	"github.com/Johanhagos/mijn-api/internal/config"
	invoicedomain "github.com/Johanhagos/mijn-api/internal/invoice/domain"
	invoicerepo "github.com/Johanhagos/mijn-api/internal/invoice/repository"
	merchantdomain "github.com/Johanhagos/mijn-api/internal/merchant/domain"
	merchantrepo "github.com/Johanhagos/mijn-api/internal/merchant/repository"
	paymentdomain "github.com/Johanhagos/mijn-api/internal/payment/domain"
	sessiondomain "github.com/Johanhagos/mijn-api/internal/session/domain"
	taxservice "github.com/Johanhagos/mijn-api/internal/tax/service"
	"github.com/Johanhagos/mijn-api/pkg/db/dbtest"
	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var now = time.Date(2026, 6, 15, 9, 30, 0, 0, time.UTC)

func newTestMaterializer(t *testing.T) (invoicedomain.Materializer, *gorm.DB) {
	t.Helper()
	conn := dbtest.Open(t, &invoicedomain.Invoice{}, &merchantdomain.Merchant{})
	require.NoError(t, conn.Create(&merchantdomain.Merchant{ID: "m_nl", Name: "NL shop", Country: "NL", CreatedAt: now}).Error)

	cfg := config.Config{Tax: config.TaxConfig{DefaultSellerCountry: "NL", RegistryTimeout: time.Second}}
	holder, err := config.NewStaticTaxRatesHolder(config.DefaultTaxRatesConfig())
	require.NoError(t, err)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	log := zap.NewNop()
	svc := NewService(ServiceParam{
		Log:   log,
		GenID: node,
		Clock: clock.NewFakeClock(now),
		Repo:  invoicerepo.NewRepository(conn),
		Tax: taxservice.NewResolver(taxservice.ResolverParams{
			Log:    log,
			Cfg:    cfg,
			Engine: taxservice.NewEngine(holder),
		}),
		Merchants: merchantrepo.NewDirectory(conn, cfg, log),
	})
	return svc, conn
}

func paidSession(id, merchantID, amount, buyerCountry, taxID string) *sessiondomain.Session {
	paidAt := now
	s := &sessiondomain.Session{
		ID:              id,
		MerchantID:      merchantID,
		Amount:          decimal.RequireFromString(amount),
		Currency:        "EUR",
		Mode:            sessiondomain.ModeTest,
		Status:          sessiondomain.StatusPaid,
		PaymentProvider: "card",
		ProviderRef:     "pi_1",
		Version:         2,
		CreatedAt:       now,
		UpdatedAt:       now,
		PaidAt:          &paidAt,
	}
	s.SetMeta(sessiondomain.Metadata{BuyerCountry: buyerCountry, BuyerTaxID: taxID, WebhookSources: []string{"card"}})
	return s
}

func confirmedFor(s *sessiondomain.Session) paymentdomain.PaymentConfirmed {
	return paymentdomain.PaymentConfirmed{
		SessionID:   s.ID,
		Provider:    "card",
		Amount:      s.Amount,
		Currency:    s.Currency,
		ProviderRef: "pi_1",
	}
}

func TestMaterializeDomestic(t *testing.T) {
	svc, _ := newTestMaterializer(t)
	s := paidSession("cs_s1", "m_nl", "99.99", "NL", "")

	inv, created, err := svc.Materialize(context.Background(), s, confirmedFor(s))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "cs_s1", inv.SessionID)
	assert.Equal(t, "card", inv.PaymentProvider)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, inv.Status)
	assert.Regexp(t, `^INV-2026-[0-9A-Z]+$`, inv.InvoiceNumber)
	assert.True(t, inv.VATRate.Equal(decimal.NewFromInt(21)))
	assert.True(t, inv.Subtotal.Equal(decimal.RequireFromString("82.64")), inv.Subtotal.String())
	assert.True(t, inv.VATAmount.Equal(decimal.RequireFromString("17.35")), inv.VATAmount.String())
	assert.True(t, inv.Total.Equal(decimal.RequireFromString("99.99")))
	assert.True(t, inv.Subtotal.Add(inv.VATAmount).Round(2).Equal(inv.Total))
	assert.Equal(t, "Domestic — 21%", inv.Notes)
	assert.False(t, inv.IsReverseCharge)
}

func TestMaterializeReverseChargeAndDefaultSeller(t *testing.T) {
	svc, _ := newTestMaterializer(t)
	s := paidSession("cs_rc", "m_unknown", "250.00", "DE", "DE811907980")

	inv, created, err := svc.Materialize(context.Background(), s, confirmedFor(s))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "NL", inv.SellerCountry)
	assert.True(t, inv.IsReverseCharge)
	assert.True(t, inv.VATRate.IsZero())
	assert.True(t, inv.Subtotal.Equal(inv.Total))
	assert.True(t, inv.VATAmount.IsZero())
}

func TestMaterializeIsIdempotent(t *testing.T) {
	svc, conn := newTestMaterializer(t)
	s := paidSession("cs_dup", "m_nl", "10.00", "NL", "")

	first, created, err := svc.Materialize(context.Background(), s, confirmedFor(s))
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := svc.Materialize(context.Background(), s, confirmedFor(s))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, conn.Model(&invoicedomain.Invoice{}).Where("session_id = ?", "cs_dup").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestMaterializeConcurrentSingleInvoice(t *testing.T) {
	svc, conn := newTestMaterializer(t)
	s := paidSession("cs_race", "m_nl", "42.00", "NL", "")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := svc.Materialize(context.Background(), s, confirmedFor(s))
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	var count int64
	require.NoError(t, conn.Model(&invoicedomain.Invoice{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestMaterializeCurrencyMismatchUsesSessionAmount(t *testing.T) {
	svc, _ := newTestMaterializer(t)
	s := paidSession("cs_eth", "m_nl", "121.00", "NL", "")
	confirmed := confirmedFor(s)
	confirmed.Currency = "ETH"
	confirmed.Amount = decimal.RequireFromString("0.05")

	inv, _, err := svc.Materialize(context.Background(), s, confirmed)
	require.NoError(t, err)
	assert.True(t, inv.Total.Equal(decimal.RequireFromString("121")))
	assert.True(t, inv.Subtotal.Equal(decimal.NewFromInt(100)))
}

func TestMaterializeRequiresPaidSession(t *testing.T) {
	svc, _ := newTestMaterializer(t)
	s := paidSession("cs_open", "m_nl", "1.00", "NL", "")
	s.Status = sessiondomain.StatusCreated

	_, _, err := svc.Materialize(context.Background(), s, confirmedFor(s))
	assert.ErrorIs(t, err, invoicedomain.ErrSessionNotPaid)
}
