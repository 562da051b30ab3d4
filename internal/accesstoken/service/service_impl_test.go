package service

import (
	"strings"
	"testing"
	"time"

	"github.com/Johanhagos/mijn-api/internal/accesstoken/domain"
	"github.com/Johanhagos/mijn-api/internal/clock"
	"github.com/Johanhagos/mijn-api/internal/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestIssueAndVerify(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc, err := NewWithSecret([]byte("secret"), 0, clk)
	require.NoError(t, err)

	token, err := svc.Issue("cs_1", "m_1")
	require.NoError(t, err)
	assert.Equal(t, clk.Now().Add(domain.DefaultTTL), token.ExpiresAt)

	claims, err := svc.Verify(token.Value)
	require.NoError(t, err)
	assert.Equal(t, "cs_1", claims.SessionID)
	assert.Equal(t, "m_1", claims.MerchantID)
	assert.Equal(t, token.ExpiresAt, claims.ExpiresAt)
	assert.Equal(t, clk.Now(), claims.IssuedAt)
	assert.NotEmpty(t, claims.Nonce)
	assert.Len(t, strings.Split(token.Value, "."), 3)
}

func TestIssueIsNonUnique(t *testing.T) {
	svc, err := NewWithSecret([]byte("secret"), time.Hour, nil)
	require.NoError(t, err)

	a, err := svc.Issue("cs_1", "m_1")
	require.NoError(t, err)
	b, err := svc.Issue("cs_1", "m_1")
	require.NoError(t, err)
	assert.NotEqual(t, a.Value, b.Value)

	// both links stay valid
	_, err = svc.Verify(a.Value)
	assert.NoError(t, err)
	_, err = svc.Verify(b.Value)
	assert.NoError(t, err)
}

func TestVerifyRejects(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc, err := NewWithSecret([]byte("secret"), time.Hour, clk)
	require.NoError(t, err)
	other, err := NewWithSecret([]byte("other"), time.Hour, clk)
	require.NoError(t, err)

	token, err := svc.Issue("cs_1", "m_1")
	require.NoError(t, err)
	header, _, _ := strings.Cut(token.Value, ".")

	_, err = other.Verify(token.Value)
	assert.ErrorIs(t, err, domain.ErrBadSignature)

	_, err = svc.Verify(header)
	assert.ErrorIs(t, err, domain.ErrMalformed)

	_, err = svc.Verify(header + ".!!")
	assert.ErrorIs(t, err, domain.ErrMalformed)

	clk.Advance(time.Hour)
	_, err = svc.Verify(token.Value)
	assert.ErrorIs(t, err, domain.ErrExpired)
}

func TestVerifyRejectsForeignTokens(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc, err := NewWithSecret([]byte("secret"), time.Hour, clk)
	require.NoError(t, err)

	claims := tokenClaims{
		SessionID:  "cs_1",
		MerchantID: "m_1",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(clk.Now()),
			ExpiresAt: jwt.NewNumericDate(clk.Now().Add(time.Hour)),
		},
	}

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(svc.key)
	require.NoError(t, err)
	_, err = svc.Verify(hs512)
	assert.ErrorIs(t, err, domain.ErrBadSignature)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = svc.Verify(none)
	assert.ErrorIs(t, err, domain.ErrBadSignature)

	noSubject := claims
	noSubject.SessionID = ""
	value, err := jwt.NewWithClaims(jwt.SigningMethodHS256, noSubject).SignedString(svc.key)
	require.NoError(t, err)
	_, err = svc.Verify(value)
	assert.ErrorIs(t, err, domain.ErrMalformed)

	otherIssuer := claims
	otherIssuer.Issuer = "someone-else"
	value, err = jwt.NewWithClaims(jwt.SigningMethodHS256, otherIssuer).SignedString(svc.key)
	require.NoError(t, err)
	_, err = svc.Verify(value)
	assert.ErrorIs(t, err, domain.ErrMalformed)
}

func TestIssueRequiresSubject(t *testing.T) {
	svc, err := NewWithSecret([]byte("secret"), time.Hour, nil)
	require.NoError(t, err)

	_, err = svc.Issue("", "m_1")
	assert.ErrorIs(t, err, domain.ErrInvalidSubject)
}

func TestNewRequiresSecretInProduction(t *testing.T) {
	cfg := config.Config{Environment: "production"}
	_, err := New(Params{Cfg: cfg, Log: zap.NewNop(), Clock: clock.New()})
	assert.ErrorIs(t, err, domain.ErrMissingSecret)

	cfg.Environment = "development"
	svc, err := New(Params{Cfg: cfg, Log: zap.NewNop(), Clock: clock.New()})
	require.NoError(t, err)
	_, err = svc.Issue("cs_1", "m_1")
	assert.NoError(t, err)
}
