// Package domain contains persistence models for invoicing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// InvoiceStatus represents invoice lifecycle states. Invoices are only
// materialized for paid sessions, so PAID is the only state written here;
// corrections go through credit notes.
type InvoiceStatus string

const InvoiceStatusPaid InvoiceStatus = "PAID"

// Invoice is immutable once inserted. SessionID is unique, which is what
// guarantees at most one invoice per session.
type Invoice struct {
	ID              snowflake.ID    `json:"id" gorm:"primaryKey"`
	InvoiceNumber   string          `json:"invoice_number" gorm:"type:text;not null;uniqueIndex"`
	SessionID       string          `json:"session_id" gorm:"type:text;not null;uniqueIndex:ux_invoices_session"`
	MerchantID      string          `json:"merchant_id" gorm:"type:text;not null;index"`
	Status          InvoiceStatus   `json:"status" gorm:"type:text;not null;default:'PAID'"`
	Subtotal        decimal.Decimal `json:"subtotal" gorm:"type:numeric(18,2);not null"`
	VATRate         decimal.Decimal `json:"vat_rate" gorm:"type:numeric(6,3);not null"`
	VATAmount       decimal.Decimal `json:"vat_amount" gorm:"type:numeric(18,2);not null"`
	Total           decimal.Decimal `json:"total" gorm:"type:numeric(18,2);not null"`
	Currency        string          `json:"currency" gorm:"type:text;not null"`
	SellerCountry   string          `json:"seller_country" gorm:"type:text;not null"`
	BuyerCountry    string          `json:"buyer_country" gorm:"type:text;not null"`
	BuyerTaxID      string          `json:"buyer_tax_id" gorm:"type:text;not null;default:''"`
	IsReverseCharge bool            `json:"is_reverse_charge" gorm:"not null;default:false"`
	PaymentProvider string          `json:"payment_provider" gorm:"type:text;not null"`
	ProviderRef     string          `json:"provider_ref" gorm:"type:text;not null;default:''"`
	Notes           string          `json:"notes" gorm:"type:text;not null;default:''"`
	CreatedAt       time.Time       `json:"created_at" gorm:"not null"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }
