package domain

import "errors"

var (
	ErrProviderNotFound = errors.New("payment_provider_not_found")
	ErrInvalidProvider  = errors.New("invalid_payment_provider")
	ErrInvalidConfig    = errors.New("invalid_provider_config")
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrUnsignedRejected = errors.New("unsigned_webhook_rejected")
	ErrInvalidPayload   = errors.New("invalid_payload")
	ErrMissingSessionID = errors.New("missing_session_id")
	ErrInvalidAmount    = errors.New("invalid_amount")
	ErrEventIgnored     = errors.New("event_ignored")
)
