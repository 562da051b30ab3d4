package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	accesstokenservice "github.com/Johanhagos/mijn-api/internal/accesstoken/service"
	apikeydomain "github.com/Johanhagos/mijn-api/internal/apikey/domain"
	"github.com/Johanhagos/mijn-api/internal/clock"
	"github.com/Johanhagos/mijn-api/internal/config"
	invoicedomain "github.com/Johanhagos/mijn-api/internal/invoice/domain"
	"github.com/Johanhagos/mijn-api/internal/notify"
	paymentdomain "github.com/Johanhagos/mijn-api/internal/payment/domain"
	"github.com/Johanhagos/mijn-api/internal/provisioning/domain"
	"github.com/Johanhagos/mijn-api/internal/provisioning/keybox"
	"github.com/Johanhagos/mijn-api/internal/provisioning/repository"
	sessiondomain "github.com/Johanhagos/mijn-api/internal/session/domain"
	sessionrepo "github.com/Johanhagos/mijn-api/internal/session/repository"
	sessionservice "github.com/Johanhagos/mijn-api/internal/session/service"
	"github.com/Johanhagos/mijn-api/pkg/db/dbtest"
	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeMaterializer struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (f *fakeMaterializer) Materialize(_ context.Context, session *sessiondomain.Session, _ paymentdomain.PaymentConfirmed) (*invoicedomain.Invoice, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, false, f.err
	}
	return &invoicedomain.Invoice{SessionID: session.ID, InvoiceNumber: "INV-2026-1"}, f.calls == 1, nil
}

func (f *fakeMaterializer) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

type fakeAPIKeys struct {
	mu     sync.Mutex
	issued map[string]bool
}

func (f *fakeAPIKeys) EnsureForMerchant(_ context.Context, merchantID string) (*apikeydomain.APIKey, string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := &apikeydomain.APIKey{MerchantID: merchantID, KeyID: "key_" + merchantID, Scopes: pq.StringArray{"checkout:write"}}
	if f.issued[merchantID] {
		return key, "", false, nil
	}
	f.issued[merchantID] = true
	return key, "mk_live_secret", true, nil
}

func (f *fakeAPIKeys) Authenticate(context.Context, string) (*apikeydomain.APIKey, error) {
	return nil, apikeydomain.ErrInvalidKey
}

type recordingPublisher struct {
	mu      sync.Mutex
	paid    []notify.SessionPaid
	keys    []notify.APIKeyIssued
	paidErr error
	keyErr  error
}

func (p *recordingPublisher) failPaid(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paidErr = err
}

func (p *recordingPublisher) failKeys(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keyErr = err
}

func (p *recordingPublisher) SessionPaid(_ context.Context, event notify.SessionPaid) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paidErr != nil {
		return p.paidErr
	}
	p.paid = append(p.paid, event)
	return nil
}

func (p *recordingPublisher) APIKeyIssued(_ context.Context, event notify.APIKeyIssued) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.keyErr != nil {
		return p.keyErr
	}
	p.keys = append(p.keys, event)
	return nil
}

type fixture struct {
	svc       domain.Service
	repo      domain.Repository
	sessions  sessiondomain.Service
	clock     *clock.FakeClock
	invoices  *fakeMaterializer
	publisher *recordingPublisher
}

func newFixture(t *testing.T, maxAttempts int) *fixture {
	t.Helper()
	conn := dbtest.Open(t, &sessiondomain.Session{}, &domain.Job{})
	clk := clock.NewFakeClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	store := sessionrepo.Provide(conn)
	sessions := sessionservice.NewService(sessionservice.Params{Log: zap.NewNop(), Store: store, Clock: clk})
	node, err := snowflake.NewNode(5)
	require.NoError(t, err)
	tokens, err := accesstokenservice.NewWithSecret([]byte("secret"), 0, clk)
	require.NoError(t, err)
	box, err := keybox.New([]byte("seal"))
	require.NoError(t, err)

	cfg := config.Config{
		Provisioning: config.ProvisioningConfig{
			Timeout:     time.Second,
			MaxAttempts: maxAttempts,
			SweepWindow: 24 * time.Hour,
		},
	}
	f := &fixture{
		repo:      repository.Provide(conn),
		sessions:  sessions,
		clock:     clk,
		invoices:  &fakeMaterializer{},
		publisher: &recordingPublisher{},
	}
	f.svc = New(Params{
		Log:       zap.NewNop(),
		Cfg:       cfg,
		Clock:     clk,
		GenID:     node,
		Repo:      f.repo,
		Sessions:  sessions,
		Store:     store,
		Invoices:  f.invoices,
		APIKeys:   &fakeAPIKeys{issued: map[string]bool{}},
		Tokens:    tokens,
		Publisher: f.publisher,
		Keys:      box,
	})
	return f
}

func (f *fixture) paidSession(t *testing.T, merchantID string) (*sessiondomain.Session, paymentdomain.PaymentConfirmed) {
	t.Helper()
	ctx := context.Background()
	created, err := f.sessions.Create(ctx, sessiondomain.CreateRequest{
		MerchantID:   merchantID,
		Amount:       decimal.RequireFromString("99.99"),
		Currency:     "EUR",
		BuyerCountry: "NL",
	})
	require.NoError(t, err)

	paid, _, err := f.sessions.Apply(ctx, created.ID, func(s *sessiondomain.Session) (bool, error) {
		now := f.clock.Now()
		s.Status = sessiondomain.StatusPaid
		s.PaidAt = &now
		s.PaymentProvider = paymentdomain.ProviderCard
		s.ProviderRef = "pi_1"
		return true, nil
	})
	require.NoError(t, err)

	return paid, paymentdomain.PaymentConfirmed{
		SessionID:   paid.ID,
		Provider:    paymentdomain.ProviderCard,
		Amount:      paid.Amount,
		Currency:    paid.Currency,
		ProviderRef: "pi_1",
		EventID:     "evt_1",
	}
}

func TestProvisionRunsAllSteps(t *testing.T) {
	f := newFixture(t, 10)
	session, confirmed := f.paidSession(t, "m_1")

	report, err := f.svc.Provision(context.Background(), session, confirmed)
	require.NoError(t, err)
	require.NotNil(t, report.Invoice)
	assert.True(t, report.InvoiceCreated)
	assert.True(t, report.APIKeyCreated)
	require.NotNil(t, report.AccessToken)
	assert.Equal(t, f.clock.Now().Add(7*24*time.Hour), report.AccessToken.ExpiresAt)

	job, err := f.repo.FindBySessionID(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobDone, job.Status)
	assert.Equal(t, "evt_1", job.EventID)

	require.Len(t, f.publisher.paid, 1)
	assert.Equal(t, "INV-2026-1", f.publisher.paid[0].InvoiceNumber)
	require.Len(t, f.publisher.keys, 1)
	assert.Equal(t, "mk_live_secret", f.publisher.keys[0].APIKey)

	// a second paid session for the same merchant reuses the key
	second, secondConfirmed := f.paidSession(t, "m_1")
	report, err = f.svc.Provision(context.Background(), second, secondConfirmed)
	require.NoError(t, err)
	assert.False(t, report.APIKeyCreated)
	assert.Len(t, f.publisher.keys, 1)
}

func TestProvisionRejectsUnpaid(t *testing.T) {
	f := newFixture(t, 10)
	_, err := f.svc.Provision(context.Background(), &sessiondomain.Session{Status: sessiondomain.StatusPending}, paymentdomain.PaymentConfirmed{})
	assert.ErrorIs(t, err, invoicedomain.ErrSessionNotPaid)
}

func TestFailedProvisionIsRetried(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	session, confirmed := f.paidSession(t, "m_1")

	f.invoices.fail(errors.New("db down"))
	_, err := f.svc.Provision(ctx, session, confirmed)
	require.Error(t, err)

	job, err := f.repo.FindBySessionID(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobPending, job.Status)
	assert.Equal(t, 1, job.Attempts)
	assert.Contains(t, job.LastError, "db down")
	assert.True(t, job.NextAttemptAt.Equal(f.clock.Now().Add(5*time.Second)))

	// not due yet
	n, err := f.svc.RunDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.invoices.fail(nil)
	f.clock.Advance(5 * time.Second)
	n, err = f.svc.RunDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	job, err = f.repo.FindBySessionID(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobDone, job.Status)
	assert.Len(t, f.publisher.paid, 1)
}

func TestExhaustedJobGoesManual(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	session, confirmed := f.paidSession(t, "m_1")

	f.invoices.fail(errors.New("still down"))
	_, err := f.svc.Provision(ctx, session, confirmed)
	require.Error(t, err)

	f.clock.Advance(5 * time.Second)
	_, err = f.svc.RunDue(ctx)
	require.NoError(t, err)

	job, err := f.repo.FindBySessionID(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobManual, job.Status)
	assert.Equal(t, 2, job.Attempts)

	f.clock.Advance(time.Hour)
	n, err := f.svc.RunDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSweepEnqueuesOrphanedPaidSessions(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	session, _ := f.paidSession(t, "m_1")

	n, err := f.svc.SweepPaid(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	job, err := f.repo.FindBySessionID(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.ProviderCard, job.Provider)
	assert.Equal(t, "pi_1", job.ProviderRef)

	n, err = f.svc.SweepPaid(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	processed, err := f.svc.RunDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
}

func TestUndeliveredKeyIsHeldAndRetried(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	session, confirmed := f.paidSession(t, "m_1")

	f.publisher.failKeys(errors.New("broker down"))
	report, err := f.svc.Provision(ctx, session, confirmed)
	require.Error(t, err)
	assert.True(t, report.APIKeyCreated)
	assert.Empty(t, f.publisher.keys)
	assert.Empty(t, f.publisher.paid)

	job, err := f.repo.FindBySessionID(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobPending, job.Status)
	assert.Contains(t, job.LastError, "broker down")
	assert.Equal(t, "key_m_1", job.PendingKeyID)
	require.NotEmpty(t, job.SealedAPIKey)
	assert.NotContains(t, job.SealedAPIKey, "mk_live_secret")

	// the api key service never returns this plaintext again
	f.publisher.failKeys(nil)
	f.clock.Advance(Backoff(1))
	n, err := f.svc.RunDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Len(t, f.publisher.keys, 1)
	assert.Equal(t, "mk_live_secret", f.publisher.keys[0].APIKey)
	assert.Equal(t, "key_m_1", f.publisher.keys[0].KeyID)
	assert.Len(t, f.publisher.paid, 1)

	job, err = f.repo.FindBySessionID(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobDone, job.Status)
	assert.Empty(t, job.PendingKeyID)
	assert.Empty(t, job.SealedAPIKey)
}

func TestDeliveredKeyIsNotResentOnRetry(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	session, confirmed := f.paidSession(t, "m_1")

	f.publisher.failPaid(errors.New("broker down"))
	_, err := f.svc.Provision(ctx, session, confirmed)
	require.Error(t, err)
	require.Len(t, f.publisher.keys, 1)

	job, err := f.repo.FindBySessionID(ctx, session.ID)
	require.NoError(t, err)
	assert.Empty(t, job.SealedAPIKey)

	f.publisher.failPaid(nil)
	f.clock.Advance(Backoff(1))
	_, err = f.svc.RunDue(ctx)
	require.NoError(t, err)

	assert.Len(t, f.publisher.keys, 1)
	assert.Len(t, f.publisher.paid, 1)
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, 5*time.Second, Backoff(0))
	assert.Equal(t, 5*time.Second, Backoff(1))
	assert.Equal(t, 10*time.Second, Backoff(2))
	assert.Equal(t, 40*time.Second, Backoff(4))
	assert.Equal(t, 2560*time.Second, Backoff(10))
	assert.Equal(t, time.Hour, Backoff(11))
	assert.Equal(t, time.Hour, Backoff(20))
}
