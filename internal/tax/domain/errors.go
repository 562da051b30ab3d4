package domain

import "errors"

var (
	ErrInvalidCountry = errors.New("invalid_country")
	ErrInvalidAmount  = errors.New("invalid_amount")
)
