package ratelimit

import (
	"context"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/quicksearch/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func limiterConfig(enabled bool, r float64, burst int) config.Config {
	return config.Config{RateLimit: config.RateLimitConfig{Enabled: enabled, SuggestRate: r, SuggestBurst: burst}}
}

func TestSuggestLimiterDisabled(t *testing.T) {
	l, err := NewSuggestLimiter(limiterConfig(false, 1, 1), nil, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, l)
	assert.False(t, l.Enabled())

	res, err := l.Allow(context.Background(), "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestSuggestLimiterRejectsInvalidConfig(t *testing.T) {
	_, err := NewSuggestLimiter(limiterConfig(true, 0, 5), nil, nil)
	assert.Error(t, err)
}

func TestSuggestLimiterLocalBurst(t *testing.T) {
	l, err := NewSuggestLimiter(limiterConfig(true, 0.01, 2), nil, zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := l.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d", i)
	}

	res, err := l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Greater(t, res.RetryAfter, time.Duration(0))

	other, err := l.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, other.Allowed)
}

func TestSuggestLimiterFailsOpenWhenRedisDown(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	l, err := NewSuggestLimiter(limiterConfig(true, 5, 5), client, zap.NewNop())
	require.NoError(t, err)

	res, err := l.Allow(context.Background(), "10.0.0.1")
	assert.Error(t, err)
	assert.True(t, res.Allowed)
}

func TestTokenBucketValidation(t *testing.T) {
	var nilBucket *TokenBucket
	_, err := nilBucket.Allow(context.Background(), "k", 1, 1)
	assert.Error(t, err)
	assert.Nil(t, NewTokenBucket(nil))

	bucket := NewTokenBucket(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}))
	_, err = bucket.Allow(context.Background(), "", 1, 1)
	assert.Error(t, err)
	_, err = bucket.Allow(context.Background(), "k", 0, 1)
	assert.Error(t, err)
}

func TestBucketHelpers(t *testing.T) {
	assert.Equal(t, 4*time.Second, bucketTTL(20, 40))
	assert.Equal(t, 2*time.Second, bucketTTL(100, 1))
	assert.Equal(t, time.Second, bucketTTL(0, 1))

	assert.Equal(t, time.Duration(0), retryAfter(true, 0, 1))
	assert.Equal(t, 500*time.Millisecond, retryAfter(false, 0, 2))

	assert.Equal(t, int64(1), toInt(int64(1)))
	assert.Equal(t, int64(3), toInt("3"))
	assert.Equal(t, 2.5, toFloat("2.5"))
	assert.Equal(t, 0.0, toFloat(nil))
}

func TestRunLockWithoutRedis(t *testing.T) {
	assert.Nil(t, NewRunLock(nil))

	var l *RunLock
	_, _, err := l.TryLock(context.Background(), "k", time.Second)
	assert.ErrorIs(t, err, ErrRunLockUnavailable)
	_, err = l.Holder(context.Background(), "k")
	assert.ErrorIs(t, err, ErrRunLockUnavailable)
	assert.NoError(t, l.Release(context.Background(), "k", "token"))
}

func TestRunLockRejectsBadKeyBeforeDialing(t *testing.T) {
	l := NewRunLock(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}))
	require.NotNil(t, l)

	_, _, err := l.TryLock(context.Background(), " ", time.Second)
	assert.ErrorIs(t, err, ErrRunLockKey)
	_, _, err = l.TryLock(context.Background(), "quicksearch:lock:normalize", 0)
	assert.ErrorIs(t, err, ErrRunLockKey)
}

func TestHolderOf(t *testing.T) {
	assert.Equal(t, "worker-1", holderOf("worker-1/6f1c"))
	assert.Equal(t, "a/b", holderOf("a/b/6f1c"))
	assert.Equal(t, "legacy", holderOf("legacy"))
}
