package ratelimit

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/quicksearch/internal/config"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	keySuggestClient = "quicksearch:ratelimit:suggest:%s"

	localClientCapacity = 4096
	localClientIdleTTL  = 10 * time.Minute
)

// SuggestLimiter throttles typeahead requests per client key (usually the
// client IP). A nil limiter allows everything.
type SuggestLimiter struct {
	bucket *TokenBucket
	local  *expirable.LRU[string, *rate.Limiter]
	rate   float64
	burst  int
	log    *zap.Logger
}

// NewSuggestLimiter returns nil when limiting is disabled. With a redis client
// the bucket is shared between instances, otherwise each process keeps its own.
func NewSuggestLimiter(cfg config.Config, client *redis.Client, log *zap.Logger) (*SuggestLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}
	if limitCfg.SuggestRate <= 0 || limitCfg.SuggestBurst <= 0 {
		return nil, fmt.Errorf("suggest rate limit must be positive, got rate=%v burst=%d", limitCfg.SuggestRate, limitCfg.SuggestBurst)
	}
	if log == nil {
		log = zap.NewNop()
	}

	l := &SuggestLimiter{
		rate:  limitCfg.SuggestRate,
		burst: limitCfg.SuggestBurst,
		log:   log.Named("ratelimit"),
	}
	if client != nil {
		l.bucket = NewTokenBucket(client)
	} else {
		l.local = expirable.NewLRU[string, *rate.Limiter](localClientCapacity, nil, localClientIdleTTL)
	}
	return l, nil
}

func (l *SuggestLimiter) Enabled() bool {
	return l != nil
}

// Allow consumes one token for clientKey. Redis failures fail open.
func (l *SuggestLimiter) Allow(ctx context.Context, clientKey string) (Result, error) {
	if !l.Enabled() {
		return Result{Allowed: true}, nil
	}
	clientKey = strings.TrimSpace(clientKey)
	if clientKey == "" {
		clientKey = "anonymous"
	}

	if l.bucket != nil {
		res, err := l.bucket.Allow(ctx, fmt.Sprintf(keySuggestClient, clientKey), l.rate, l.burst)
		if err != nil {
			l.log.Warn("suggest rate limit check failed", zap.Error(err))
			return Result{Allowed: true, Limit: l.burst}, err
		}
		return res, nil
	}

	limiter, ok := l.local.Get(clientKey)
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(l.rate), l.burst)
		l.local.Add(clientKey, limiter)
	}
	now := time.Now()
	reservation := limiter.ReserveN(now, 1)
	delay := reservation.DelayFrom(now)
	if delay > 0 {
		reservation.CancelAt(now)
		return Result{Allowed: false, Limit: l.burst, RetryAfter: delay}, nil
	}
	return Result{
		Allowed:   true,
		Limit:     l.burst,
		Remaining: int(math.Max(0, math.Floor(limiter.TokensAt(now)))),
	}, nil
}
