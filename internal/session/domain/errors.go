package domain

import "errors"

var (
	ErrNotFound          = errors.New("session_not_found")
	ErrStoreUnavailable  = errors.New("session_store_unavailable")
	ErrVersionConflict   = errors.New("session_version_conflict")
	ErrInvalidTransition = errors.New("invalid_transition")
	ErrDuplicateID       = errors.New("duplicate_session_id")

	ErrInvalidID       = errors.New("invalid_session_id")
	ErrInvalidMerchant = errors.New("invalid_merchant_id")
	ErrInvalidAmount   = errors.New("invalid_amount")
	ErrInvalidCurrency = errors.New("invalid_currency")
	ErrInvalidCountry  = errors.New("invalid_buyer_country")
	ErrInvalidMode     = errors.New("invalid_mode")
	ErrInvalidStatus   = errors.New("invalid_status")
)
