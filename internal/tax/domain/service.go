package domain

import "context"

// Determiner maps a seller/buyer pair onto a tax treatment. Implementations
// must be pure over their rate table.
type Determiner interface {
	Determine(sellerCountry, buyerCountry, buyerTaxID string) Result
}

// TaxIDValidator checks a VAT number against an external registry. The
// registry may be slow or down; callers bound it with a timeout.
type TaxIDValidator interface {
	Validate(ctx context.Context, country, taxID string) (bool, error)
}

// Resolver is Determine preceded by an optional registry check of the tax id.
type Resolver interface {
	Resolve(ctx context.Context, sellerCountry, buyerCountry, buyerTaxID string) Result
}
