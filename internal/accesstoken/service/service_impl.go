package service

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Johanhagos/mijn-api/internal/accesstoken/domain"
	"github.com/Johanhagos/mijn-api/internal/clock"
	"github.com/Johanhagos/mijn-api/internal/config"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/crypto/hkdf"
)

const (
	keyInfo    = "mijn-api/customer-access/v1"
	keySize    = 32
	nonceBytes = 16
	issuer     = "mijn-api"
)

type Params struct {
	fx.In

	Cfg   config.Config
	Log   *zap.Logger
	Clock clock.Clock
}

type Service struct {
	key   []byte
	ttl   time.Duration
	clock clock.Clock
}

func New(p Params) (domain.Service, error) {
	log := p.Log.Named("accesstoken")

	secret := p.Cfg.AccessToken.Secret
	if secret == "" {
		if p.Cfg.IsProduction() {
			return nil, domain.ErrMissingSecret
		}
		ephemeral := make([]byte, keySize)
		if _, err := rand.Read(ephemeral); err != nil {
			return nil, err
		}
		secret = string(ephemeral)
		log.Warn("ACCESS_TOKEN_SECRET not set, using an ephemeral key; issued links break on restart")
	}

	return NewWithSecret([]byte(secret), p.Cfg.AccessToken.TTL, p.Clock)
}

// NewWithSecret derives the signing key from secret.
func NewWithSecret(secret []byte, ttl time.Duration, clk clock.Clock) (*Service, error) {
	if len(secret) == 0 {
		return nil, domain.ErrMissingSecret
	}
	if ttl <= 0 {
		ttl = domain.DefaultTTL
	}
	if clk == nil {
		clk = clock.New()
	}

	key := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(keyInfo)), key); err != nil {
		return nil, err
	}
	return &Service{key: key, ttl: ttl, clock: clk}, nil
}

// tokenClaims is the JWT body. ID carries a random nonce so tokens issued in
// the same second still differ.
type tokenClaims struct {
	SessionID  string `json:"sid"`
	MerchantID string `json:"mid"`
	jwt.RegisteredClaims
}

func (s *Service) Issue(sessionID, merchantID string) (domain.Token, error) {
	sessionID = strings.TrimSpace(sessionID)
	merchantID = strings.TrimSpace(merchantID)
	if sessionID == "" || merchantID == "" {
		return domain.Token{}, domain.ErrInvalidSubject
	}

	nonce := make([]byte, nonceBytes)
	if _, err := rand.Read(nonce); err != nil {
		return domain.Token{}, err
	}

	now := s.clock.Now().UTC().Truncate(time.Second)
	expiresAt := now.Add(s.ttl)
	claims := tokenClaims{
		SessionID:  sessionID,
		MerchantID: merchantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        base64.RawURLEncoding.EncodeToString(nonce),
		},
	}
	value, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return domain.Token{}, err
	}

	return domain.Token{
		Value:      value,
		SessionID:  sessionID,
		MerchantID: merchantID,
		IssuedAt:   now,
		ExpiresAt:  expiresAt,
	}, nil
}

func (s *Service) Verify(value string) (domain.Claims, error) {
	var claims tokenClaims
	_, err := jwt.ParseWithClaims(strings.TrimSpace(value), &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%w: unexpected signing method %v", jwt.ErrTokenSignatureInvalid, token.Header["alg"])
		}
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil {
		return domain.Claims{}, mapParseError(err)
	}
	if claims.SessionID == "" || claims.MerchantID == "" || claims.IssuedAt == nil {
		return domain.Claims{}, domain.ErrMalformed
	}

	return domain.Claims{
		SessionID:  claims.SessionID,
		MerchantID: claims.MerchantID,
		IssuedAt:   claims.IssuedAt.Time.UTC(),
		ExpiresAt:  claims.ExpiresAt.Time.UTC(),
		Nonce:      claims.ID,
	}, nil
}

func mapParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return domain.ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return domain.ErrBadSignature
	default:
		// malformed segments, bad encoding, wrong issuer, missing exp
		return domain.ErrMalformed
	}
}
