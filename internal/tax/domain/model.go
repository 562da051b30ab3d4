package domain

import "github.com/shopspring/decimal"

// Treatment names the rule that produced a Result.
type Treatment string

const (
	TreatmentDomestic      Treatment = "domestic"
	TreatmentReverseCharge Treatment = "reverse_charge"
	TreatmentB2C           Treatment = "b2c"
	TreatmentExport        Treatment = "export"
	TreatmentImport        Treatment = "import"
	TreatmentSpecialPair   Treatment = "special_pair"
	TreatmentInternational Treatment = "international"
)

// Result is the tax treatment for one seller/buyer combination.
// Rate is a percentage (21 means 21%).
type Result struct {
	Rate          decimal.Decimal
	ReverseCharge bool
	Explanation   string
	Treatment     Treatment
}

// Amounts is a gross amount split into its net and tax parts.
type Amounts struct {
	Subtotal  decimal.Decimal
	VATAmount decimal.Decimal
	Total     decimal.Decimal
}

// Explanations are printed on invoices and must stay stable.
const (
	ExplanationReverseCharge = "Reverse charge — EU B2B, buyer self-assesses VAT (Art. 196 VAT Directive)"
	ExplanationB2C           = "B2C — seller rate applies"
	ExplanationExport        = "Export — 0%"
	ExplanationImport        = "Import — destination rate"
	ExplanationInternational = "International — origin rate applies"
)

func DomesticExplanation(rate decimal.Decimal) string {
	return "Domestic — " + rate.String() + "%"
}
