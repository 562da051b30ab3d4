package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	paymentdomain "github.com/Johanhagos/mijn-api/internal/payment/domain"
	sessiondomain "github.com/Johanhagos/mijn-api/internal/session/domain"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const devProvider = "dev"

type completeSessionRequest struct {
	Provider    string `json:"provider"`
	ProviderRef string `json:"provider_ref"`
}

type failSessionRequest struct {
	Reason string `json:"reason"`
}

type sessionTransitionResponse struct {
	Status    string               `json:"status"`
	SessionID string               `json:"session_id"`
	Session   sessiondomain.Status `json:"session_status"`
}

// CompleteSession confirms a payment without a provider. It goes through the
// same reconciliation as a signed webhook.
func (s *Server) CompleteSession(c *gin.Context) {
	var req completeSessionRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	id := strings.TrimSpace(c.Param("id"))
	session, err := s.sessions.Get(ctx, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	provider := strings.ToLower(strings.TrimSpace(req.Provider))
	if provider == "" {
		provider = devProvider
	}
	providerRef := strings.TrimSpace(req.ProviderRef)
	if providerRef == "" {
		providerRef = devProvider + "_" + session.ID
	}

	result, err := s.reconciler.Reconcile(ctx, paymentdomain.PaymentConfirmed{
		SessionID:   session.ID,
		Provider:    provider,
		Amount:      session.Amount,
		Currency:    session.Currency,
		ProviderRef: providerRef,
		EventID:     "manual_" + session.ID,
		EventType:   "manual.complete",
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.log.Warn("session completed manually",
		zap.String("session_id", session.ID),
		zap.String("provider", provider),
		zap.String("outcome", string(result.Outcome)),
	)

	resp := webhookResponse{
		Status:    "ok",
		Outcome:   string(result.Outcome),
		SessionID: session.ID,
	}
	if result.Winner {
		applyProvisioningReport(&resp, result.Provisioning)
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) MarkSessionPending(c *gin.Context) {
	session, err := s.sessions.MarkPending(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionTransitionResponse{
		Status:    "ok",
		SessionID: session.ID,
		Session:   session.Status,
	})
}

func (s *Server) FailSession(c *gin.Context) {
	var req failSessionRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	session, err := s.sessions.MarkFailed(c.Request.Context(), strings.TrimSpace(c.Param("id")), req.Reason)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionTransitionResponse{
		Status:    "ok",
		SessionID: session.ID,
		Session:   session.Status,
	})
}

// bindOptionalJSON accepts an empty body.
func bindOptionalJSON(c *gin.Context, out any) error {
	if err := c.ShouldBindJSON(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
