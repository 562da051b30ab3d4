package server

import (
	"context"
	"math"
	"strconv"

	"github.com/Johanhagos/mijn-api/internal/observability/logger"
	obsmetrics "github.com/Johanhagos/mijn-api/internal/observability/metrics"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	statusEndpoint             = "session_status"
	rateLimitReasonClientLimit = "client_limit"
)

// StatusRateLimit throttles status polling per client IP. Limiter errors
// fail open so a redis outage never hides a paid session from the buyer.
func (s *Server) StatusRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.statusLimiter == nil {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		result, err := s.statusLimiter.Allow(ctx, c.ClientIP())
		if err != nil {
			logger.FromContext(ctx).Warn("status rate limit check failed", zap.Error(err))
			c.Next()
			return
		}

		if result.Limit > 0 {
			c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		}
		if !result.Allowed {
			denyStatusRateLimit(c, retryAfterSeconds(result.RetryAfter.Seconds()), s.obsMetrics)
			return
		}

		recordRateLimitAllowed(ctx, statusEndpoint, s.obsMetrics)
		c.Next()
	}
}

func denyStatusRateLimit(c *gin.Context, retryAfter int, metrics *obsmetrics.Metrics) {
	ctx := c.Request.Context()
	logger.FromContext(ctx).Debug("status rate limit exceeded",
		zap.String("endpoint", statusEndpoint),
		zap.String("client_ip", c.ClientIP()),
	)
	recordRateLimitDenied(ctx, statusEndpoint, rateLimitReasonClientLimit, metrics)

	c.Header("Retry-After", strconv.Itoa(retryAfter))
	c.Header("X-Rate-Limited-Reason", rateLimitReasonClientLimit)
	AbortWithError(c, ErrRateLimited)
}

func retryAfterSeconds(seconds float64) int {
	if seconds <= 1 {
		return 1
	}
	return int(math.Ceil(seconds))
}

func recordRateLimitAllowed(ctx context.Context, endpoint string, metrics *obsmetrics.Metrics) {
	if metrics == nil {
		return
	}
	metrics.RecordRateLimitAllowed(ctx, endpoint)
}

func recordRateLimitDenied(ctx context.Context, endpoint, reason string, metrics *obsmetrics.Metrics) {
	if metrics == nil {
		return
	}
	metrics.RecordRateLimitDenied(ctx, endpoint, reason)
}
