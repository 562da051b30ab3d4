package domain

import (
	"time"

	accesstokendomain "github.com/Johanhagos/mijn-api/internal/accesstoken/domain"
	invoicedomain "github.com/Johanhagos/mijn-api/internal/invoice/domain"
	paymentdomain "github.com/Johanhagos/mijn-api/internal/payment/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobDone    JobStatus = "done"
	// JobManual jobs exhausted their attempts and need an operator.
	JobManual JobStatus = "manual"
)

// Job is the outbox row that guarantees a paid session is eventually
// provisioned even if the inline run fails or the process dies.
type Job struct {
	ID            snowflake.ID    `gorm:"primaryKey"`
	SessionID     string          `gorm:"type:text;not null;uniqueIndex:ux_provisioning_jobs_session"`
	MerchantID    string          `gorm:"type:text;not null"`
	Provider      string          `gorm:"type:text;not null"`
	ProviderRef   string          `gorm:"type:text;not null;default:''"`
	EventID       string          `gorm:"type:text;not null;default:''"`
	Amount        decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	Currency      string          `gorm:"type:text;not null"`
	Status        JobStatus       `gorm:"type:text;not null;index:ix_provisioning_jobs_due,priority:1"`
	Attempts      int             `gorm:"not null;default:0"`
	NextAttemptAt time.Time       `gorm:"not null;index:ix_provisioning_jobs_due,priority:2"`
	LastError     string          `gorm:"type:text;not null;default:''"`
	// A created API key waits here, sealed, until its delivery succeeds.
	PendingKeyID string    `gorm:"type:text;not null;default:''"`
	SealedAPIKey string    `gorm:"type:text;not null;default:''"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

func (Job) TableName() string { return "provisioning_jobs" }

// Confirmed rebuilds the payment event the job was enqueued for.
func (j Job) Confirmed() paymentdomain.PaymentConfirmed {
	return paymentdomain.PaymentConfirmed{
		SessionID:   j.SessionID,
		Provider:    j.Provider,
		Amount:      j.Amount,
		Currency:    j.Currency,
		ProviderRef: j.ProviderRef,
		EventID:     j.EventID,
	}
}

// Report describes what a provisioning run produced.
type Report struct {
	Invoice        *invoicedomain.Invoice
	InvoiceCreated bool
	APIKeyID       string
	APIKeyCreated  bool
	AccessToken    *accesstokendomain.Token
}
