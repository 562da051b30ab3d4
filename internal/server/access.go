package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

type accessTokenResponse struct {
	SessionID  string    `json:"session_id"`
	MerchantID string    `json:"merchant_id"`
	ExpiresAt  time.Time `json:"expires_at"`
}

func (s *Server) VerifyAccessToken(c *gin.Context) {
	claims, err := s.tokens.Verify(strings.TrimSpace(c.Param("token")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, accessTokenResponse{
		SessionID:  claims.SessionID,
		MerchantID: claims.MerchantID,
		ExpiresAt:  claims.ExpiresAt,
	})
}
