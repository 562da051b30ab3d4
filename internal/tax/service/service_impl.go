package service

import (
	"strings"

	"github.com/Johanhagos/mijn-api/internal/config"
	taxdomain "github.com/Johanhagos/mijn-api/internal/tax/domain"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Engine evaluates the current rate table. The table can change between calls
// when tax_rates.yml is reloaded; a single call always sees one snapshot.
type Engine struct {
	rates *config.TaxRatesHolder
}

func NewEngine(rates *config.TaxRatesHolder) *Engine {
	return &Engine{rates: rates}
}

func (e *Engine) Determine(sellerCountry, buyerCountry, buyerTaxID string) taxdomain.Result {
	return Determine(e.rates.Get(), sellerCountry, buyerCountry, buyerTaxID)
}

// Determine applies the jurisdiction rules in order; the first match wins.
func Determine(table config.TaxRatesConfig, sellerCountry, buyerCountry, buyerTaxID string) taxdomain.Result {
	seller := normalizeCountry(sellerCountry)
	buyer := normalizeCountry(buyerCountry)
	b2b := strings.TrimSpace(buyerTaxID) != ""

	_, sellerInBloc := table.Members[seller]
	_, buyerInBloc := table.Members[buyer]

	switch {
	case sellerInBloc && buyerInBloc && seller == buyer:
		rate := rateFor(table, seller)
		return taxdomain.Result{
			Rate:        rate,
			Explanation: taxdomain.DomesticExplanation(rate),
			Treatment:   taxdomain.TreatmentDomestic,
		}
	case sellerInBloc && buyerInBloc:
		if b2b {
			return taxdomain.Result{
				Rate:          decimal.Zero,
				ReverseCharge: true,
				Explanation:   taxdomain.ExplanationReverseCharge,
				Treatment:     taxdomain.TreatmentReverseCharge,
			}
		}
		return taxdomain.Result{
			Rate:        rateFor(table, seller),
			Explanation: taxdomain.ExplanationB2C,
			Treatment:   taxdomain.TreatmentB2C,
		}
	case sellerInBloc:
		return taxdomain.Result{
			Rate:        decimal.Zero,
			Explanation: taxdomain.ExplanationExport,
			Treatment:   taxdomain.TreatmentExport,
		}
	case buyerInBloc:
		return taxdomain.Result{
			Rate:        rateFor(table, buyer),
			Explanation: taxdomain.ExplanationImport,
			Treatment:   taxdomain.TreatmentImport,
		}
	}

	if pair, ok := findSpecialPair(table, seller, buyer); ok {
		return taxdomain.Result{
			Rate:        decimal.RequireFromString(pair.Rate),
			Explanation: pair.Explanation,
			Treatment:   taxdomain.TreatmentSpecialPair,
		}
	}

	if seller == buyer {
		rate := rateFor(table, seller)
		return taxdomain.Result{
			Rate:        rate,
			Explanation: taxdomain.DomesticExplanation(rate),
			Treatment:   taxdomain.TreatmentDomestic,
		}
	}
	return taxdomain.Result{
		Rate:        rateFor(table, seller),
		Explanation: taxdomain.ExplanationInternational,
		Treatment:   taxdomain.TreatmentInternational,
	}
}

// Split divides a tax-inclusive gross amount. Every money split in the
// service goes through here so rounding is identical everywhere: half-up to
// two places on the subtotal, with the VAT taking the remainder so that
// subtotal + vat == gross exactly.
func Split(gross, rate decimal.Decimal) taxdomain.Amounts {
	total := gross.Round(2)
	subtotal := total
	if rate.IsPositive() {
		subtotal = total.Div(decimal.NewFromInt(1).Add(rate.Div(hundred))).Round(2)
	}
	return taxdomain.Amounts{
		Subtotal:  subtotal,
		VATAmount: total.Sub(subtotal).Round(2),
		Total:     total,
	}
}

// rateFor returns the standard rate of a country, zero when unknown.
func rateFor(table config.TaxRatesConfig, country string) decimal.Decimal {
	raw, ok := table.Members[country]
	if !ok {
		raw, ok = table.Standard[country]
	}
	if !ok {
		return decimal.Zero
	}
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero
	}
	return rate
}

func findSpecialPair(table config.TaxRatesConfig, seller, buyer string) (config.SpecialPair, bool) {
	for _, pair := range table.SpecialPairs {
		if pair.Seller == seller && pair.Buyer == buyer {
			return pair, true
		}
		if pair.Bidirectional && pair.Seller == buyer && pair.Buyer == seller {
			return pair, true
		}
	}
	return config.SpecialPair{}, false
}

func normalizeCountry(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
