package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Johanhagos/mijn-api/internal/clock"
	paymentdomain "github.com/Johanhagos/mijn-api/internal/payment/domain"
	provisioningdomain "github.com/Johanhagos/mijn-api/internal/provisioning/domain"
	sessiondomain "github.com/Johanhagos/mijn-api/internal/session/domain"
	sessionrepo "github.com/Johanhagos/mijn-api/internal/session/repository"
	sessionservice "github.com/Johanhagos/mijn-api/internal/session/service"
	"github.com/Johanhagos/mijn-api/pkg/db/dbtest"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingProvisioner struct {
	calls atomic.Int32
	err   error
}

func (p *countingProvisioner) Provision(context.Context, *sessiondomain.Session, paymentdomain.PaymentConfirmed) (*provisioningdomain.Report, error) {
	p.calls.Add(1)
	if p.err != nil {
		return nil, p.err
	}
	return &provisioningdomain.Report{APIKeyCreated: true}, nil
}

func (p *countingProvisioner) RunDue(context.Context) (int, error)    { return 0, nil }
func (p *countingProvisioner) SweepPaid(context.Context) (int, error) { return 0, nil }

type unavailableStore struct{}

func (unavailableStore) Insert(context.Context, *sessiondomain.Session) error { return nil }
func (unavailableStore) FindByID(context.Context, string) (*sessiondomain.Session, error) {
	return nil, fmt.Errorf("%w: connection refused", sessiondomain.ErrStoreUnavailable)
}
func (unavailableStore) CompareAndSwap(context.Context, *sessiondomain.Session, int64) error {
	return nil
}
func (unavailableStore) ListPaidSince(context.Context, time.Time, int) ([]sessiondomain.Session, error) {
	return nil, nil
}

func newEngine(t *testing.T) (Reconciler, sessiondomain.Service, *countingProvisioner) {
	t.Helper()
	conn := dbtest.Open(t, &sessiondomain.Session{})
	clk := clock.NewFakeClock(time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC))
	sessions := sessionservice.NewService(sessionservice.Params{
		Log:   zap.NewNop(),
		Store: sessionrepo.Provide(conn),
		Clock: clk,
	})
	prov := &countingProvisioner{}
	engine := NewEngine(Params{Log: zap.NewNop(), Clock: clk, Sessions: sessions, Provisioner: prov})
	return engine, sessions, prov
}

func createSession(t *testing.T, sessions sessiondomain.Service) *sessiondomain.Session {
	t.Helper()
	s, err := sessions.Create(context.Background(), sessiondomain.CreateRequest{
		MerchantID:   "m_1",
		Amount:       decimal.RequireFromString("99.99"),
		Currency:     "EUR",
		BuyerCountry: "NL",
	})
	require.NoError(t, err)
	return s
}

func confirmed(sessionID, provider, ref string) paymentdomain.PaymentConfirmed {
	return paymentdomain.PaymentConfirmed{
		SessionID:   sessionID,
		Provider:    provider,
		Amount:      decimal.RequireFromString("99.99"),
		Currency:    "EUR",
		ProviderRef: ref,
		EventID:     "evt_" + ref,
	}
}

func TestReconcileMarksPaid(t *testing.T) {
	engine, sessions, prov := newEngine(t)
	s := createSession(t, sessions)

	res, err := engine.Reconcile(context.Background(), confirmed(s.ID, "card", "pi_1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomePaid, res.Outcome)
	assert.True(t, res.Winner)
	require.NotNil(t, res.Provisioning)
	assert.Equal(t, int32(1), prov.calls.Load())

	stored, err := sessions.Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, sessiondomain.StatusPaid, stored.Status)
	assert.Equal(t, "card", stored.PaymentProvider)
	assert.Equal(t, "pi_1", stored.ProviderRef)
	require.NotNil(t, stored.PaidAt)
	assert.Equal(t, []string{"card"}, stored.Meta().WebhookSources)
}

func TestFirstConfirmationWins(t *testing.T) {
	engine, sessions, prov := newEngine(t)
	s := createSession(t, sessions)
	ctx := context.Background()

	_, err := engine.Reconcile(ctx, confirmed(s.ID, "card", "pi_1"))
	require.NoError(t, err)

	res, err := engine.Reconcile(ctx, confirmed(s.ID, "coinbase", "CHG1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyTerminal, res.Outcome)
	assert.Equal(t, sessiondomain.StatusPaid, res.Status())
	assert.False(t, res.Winner)

	stored, err := sessions.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "card", stored.PaymentProvider)
	assert.Equal(t, "pi_1", stored.ProviderRef)
	assert.Equal(t, []string{"card", "coinbase"}, stored.Meta().WebhookSources)
	assert.Equal(t, int32(1), prov.calls.Load())
}

func TestDuplicateDeliveriesAreIdempotent(t *testing.T) {
	engine, sessions, prov := newEngine(t)
	s := createSession(t, sessions)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := engine.Reconcile(ctx, confirmed(s.ID, "card", "pi_1"))
		require.NoError(t, err)
	}

	stored, err := sessions.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"card"}, stored.Meta().WebhookSources)
	// one write for paid; duplicates change nothing
	assert.Equal(t, int64(2), stored.Version)
	assert.Equal(t, int32(1), prov.calls.Load())
}

func TestFailedSessionStaysFailed(t *testing.T) {
	engine, sessions, prov := newEngine(t)
	s := createSession(t, sessions)
	ctx := context.Background()

	_, err := sessions.MarkFailed(ctx, s.ID, "card_declined")
	require.NoError(t, err)

	res, err := engine.Reconcile(ctx, confirmed(s.ID, "chain", "0xabc"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyTerminal, res.Outcome)
	assert.Equal(t, sessiondomain.StatusFailed, res.Status())
	assert.Zero(t, prov.calls.Load())
}

func TestUnknownSession(t *testing.T) {
	engine, _, prov := newEngine(t)

	_, err := engine.Reconcile(context.Background(), confirmed("cs_missing", "card", "pi_1"))
	assert.ErrorIs(t, err, ErrUnknownSession)
	assert.ErrorIs(t, err, sessiondomain.ErrNotFound)
	assert.Zero(t, prov.calls.Load())
}

func TestStoreUnavailable(t *testing.T) {
	sessions := sessionservice.NewService(sessionservice.Params{
		Log:   zap.NewNop(),
		Store: unavailableStore{},
		Clock: clock.New(),
	})
	engine := NewEngine(Params{Log: zap.NewNop(), Clock: clock.New(), Sessions: sessions, Provisioner: &countingProvisioner{}})

	_, err := engine.Reconcile(context.Background(), confirmed("cs_1", "card", "pi_1"))
	assert.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, sessiondomain.ErrStoreUnavailable)
}

func TestProvisioningFailureKeepsPaid(t *testing.T) {
	engine, sessions, prov := newEngine(t)
	prov.err = errors.New("invoice store down")
	s := createSession(t, sessions)

	res, err := engine.Reconcile(context.Background(), confirmed(s.ID, "hosted", "txn_1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomePaid, res.Outcome)
	assert.True(t, res.Winner)
	assert.Nil(t, res.Provisioning)
}

func TestConcurrentConfirmationsHaveOneWinner(t *testing.T) {
	engine, sessions, prov := newEngine(t)
	s := createSession(t, sessions)

	providers := []string{"card", "paypal", "coinbase", "hosted", "chain"}
	var (
		wg      sync.WaitGroup
		winners atomic.Int32
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := providers[i%len(providers)]
			res, err := engine.Reconcile(context.Background(), confirmed(s.ID, p, fmt.Sprintf("ref_%d", i)))
			if !assert.NoError(t, err) {
				return
			}
			if res.Winner {
				winners.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
	assert.Equal(t, int32(1), prov.calls.Load())

	stored, err := sessions.Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, sessiondomain.StatusPaid, stored.Status)
	assert.ElementsMatch(t, providers, stored.Meta().WebhookSources)
}
