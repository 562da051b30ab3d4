package domain

import (
	"errors"
	"time"
)

// DefaultTTL is how long a customer access link stays valid.
const DefaultTTL = 7 * 24 * time.Hour

// Token is a signed customer access credential. Tokens are never stored and
// cannot be revoked; each one stays valid until ExpiresAt.
type Token struct {
	Value      string    `json:"token"`
	SessionID  string    `json:"session_id"`
	MerchantID string    `json:"merchant_id"`
	IssuedAt   time.Time `json:"issued_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Claims is the verified content of a token.
type Claims struct {
	SessionID  string    `json:"sid"`
	MerchantID string    `json:"mid"`
	IssuedAt   time.Time `json:"iat"`
	ExpiresAt  time.Time `json:"exp"`
	Nonce      string    `json:"nonce"`
}

type Service interface {
	Issue(sessionID, merchantID string) (Token, error)
	Verify(value string) (Claims, error)
}

var (
	ErrMissingSecret  = errors.New("access_token_secret_missing")
	ErrInvalidSubject = errors.New("invalid_token_subject")
	ErrMalformed      = errors.New("malformed_token")
	ErrBadSignature   = errors.New("invalid_token_signature")
	ErrExpired        = errors.New("token_expired")
)
