package server

import (
	"net/http"
	"strings"
	"time"

	sessiondomain "github.com/Johanhagos/mijn-api/internal/session/domain"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type createSessionResponse struct {
	ID         string                 `json:"id"`
	MerchantID string                 `json:"merchant_id"`
	Status     sessiondomain.Status   `json:"status"`
	Mode       sessiondomain.Mode     `json:"mode"`
	Amount     decimal.Decimal        `json:"amount"`
	Currency   string                 `json:"currency"`
	Metadata   sessiondomain.Metadata `json:"metadata"`
	CreatedAt  time.Time              `json:"created_at"`
}

func (s *Server) CreateSession(c *gin.Context) {
	var req sessiondomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	session, err := s.sessions.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, createSessionResponse{
		ID:         session.ID,
		MerchantID: session.MerchantID,
		Status:     session.Status,
		Mode:       session.Mode,
		Amount:     session.Amount,
		Currency:   session.Currency,
		Metadata:   session.Meta(),
		CreatedAt:  session.CreatedAt,
	})
}

func (s *Server) GetSessionStatus(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	view, err := s.sessions.Status(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}
