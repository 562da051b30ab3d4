package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Johanhagos/mijn-api/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilLockerRunsInline(t *testing.T) {
	var l *Locker

	ran, err := l.WithLock(context.Background(), "job:1", time.Second, func(context.Context) error {
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)

	boom := errors.New("boom")
	ran, err = l.WithLock(context.Background(), "job:1", time.Second, func(context.Context) error {
		return boom
	})
	assert.True(t, ran)
	assert.ErrorIs(t, err, boom)
}

func TestNilTokenBucket(t *testing.T) {
	var b *TokenBucket
	_, err := b.Allow(context.Background(), "k", 1, 1)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestStatusLimiterDisabledAdmits(t *testing.T) {
	l := NewStatusLimiter(config.Config{Redis: config.RedisConfig{StatusRate: 5, StatusBurst: 20}}, nil)
	assert.False(t, l.Enabled())

	res, err := l.Allow(context.Background(), "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestEvaluate(t *testing.T) {
	res := evaluate(true, 4.5, 5, 20)
	assert.True(t, res.Allowed)
	assert.Equal(t, 4, res.Remaining)
	assert.Zero(t, res.RetryAfter)

	res = evaluate(false, 0.5, 5, 20)
	assert.False(t, res.Allowed)
	assert.Equal(t, 100*time.Millisecond, res.RetryAfter)
}

func TestBucketTTL(t *testing.T) {
	assert.Equal(t, 8*time.Second, bucketTTL(5, 20))
	assert.Equal(t, time.Second, bucketTTL(100, 1))
	assert.Equal(t, time.Second, bucketTTL(0, 1))
}

func TestScriptValueConversion(t *testing.T) {
	assert.Equal(t, int64(1), toInt(int64(1)))
	assert.Equal(t, int64(1), toInt("1"))
	assert.Equal(t, 2.75, toFloat("2.75"))
	assert.Equal(t, 3.0, toFloat(int64(3)))
	assert.Zero(t, toFloat(nil))
}
