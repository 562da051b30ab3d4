package server

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	paymentdomain "github.com/Johanhagos/mijn-api/internal/payment/domain"
	provisioningdomain "github.com/Johanhagos/mijn-api/internal/provisioning/domain"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

const maxWebhookBody = 1 << 20

type webhookResponse struct {
	Status          string          `json:"status"`
	Outcome         string          `json:"outcome"`
	SessionID       string          `json:"session_id"`
	Invoice         *invoiceSummary `json:"invoice,omitempty"`
	APIKeyGenerated bool            `json:"api_key_generated,omitempty"`
	CustomerAccess  *customerAccess `json:"customer_access,omitempty"`
}

type invoiceSummary struct {
	InvoiceNumber   string          `json:"invoice_number"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	VATRate         decimal.Decimal `json:"vat_rate"`
	VATAmount       decimal.Decimal `json:"vat_amount"`
	Total           decimal.Decimal `json:"total"`
	Currency        string          `json:"currency"`
	IsReverseCharge bool            `json:"is_reverse_charge"`
}

type customerAccess struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	provider := strings.ToLower(strings.TrimSpace(c.Param("provider")))
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody+1))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if len(payload) > maxWebhookBody {
		AbortWithError(c, fmt.Errorf("%w: body exceeds %d bytes", paymentdomain.ErrInvalidPayload, maxWebhookBody))
		return
	}

	result, err := s.webhooks.Ingest(c.Request.Context(), provider, payload, c.Request.Header)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := webhookResponse{
		Status:    "ok",
		Outcome:   result.Outcome,
		SessionID: result.SessionID,
	}
	if result.Reconcile != nil && result.Reconcile.Winner {
		applyProvisioningReport(&resp, result.Reconcile.Provisioning)
	}

	c.JSON(http.StatusOK, resp)
}

// applyProvisioningReport copies whatever the inline provisioning run produced.
// A partial report still yields a 200; the remaining steps are retried in the
// background.
func applyProvisioningReport(resp *webhookResponse, report *provisioningdomain.Report) {
	if report == nil {
		return
	}
	if inv := report.Invoice; inv != nil {
		resp.Invoice = &invoiceSummary{
			InvoiceNumber:   inv.InvoiceNumber,
			Subtotal:        inv.Subtotal,
			VATRate:         inv.VATRate,
			VATAmount:       inv.VATAmount,
			Total:           inv.Total,
			Currency:        inv.Currency,
			IsReverseCharge: inv.IsReverseCharge,
		}
	}
	resp.APIKeyGenerated = report.APIKeyCreated
	if token := report.AccessToken; token != nil {
		resp.CustomerAccess = &customerAccess{
			Token:     token.Value,
			ExpiresAt: token.ExpiresAt,
		}
	}
}
