package ratelimit

import (
	"context"
	"fmt"
	"strings"

	"github.com/Johanhagos/mijn-api/internal/config"
)

const keyStatusClient = "session:status:client:%s"

// StatusLimiter throttles the public session status endpoint per client.
type StatusLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewStatusLimiter(cfg config.Config, bucket *TokenBucket) *StatusLimiter {
	return &StatusLimiter{
		bucket: bucket,
		rate:   cfg.Redis.StatusRate,
		burst:  cfg.Redis.StatusBurst,
	}
}

func (l *StatusLimiter) Enabled() bool {
	return l != nil && l.bucket != nil && l.rate > 0 && l.burst > 0
}

// Allow always admits when the limiter is disabled.
func (l *StatusLimiter) Allow(ctx context.Context, clientID string) (Result, error) {
	if !l.Enabled() {
		return Result{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyStatusClient, strings.TrimSpace(clientID)), l.rate, l.burst)
}
