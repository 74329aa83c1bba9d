package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
	searchdomain "github.com/smallbiznis/quicksearch/internal/search/domain"
	"go.uber.org/zap"
)

const (
	defaultPrefix  = "quicksearch:suggest:"
	scanBatchCount = 500
)

// Redis shares suggestions between instances. Failures are logged and
// reported as misses.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	log    *zap.Logger
}

func NewRedis(client *redis.Client, prefix string, ttl time.Duration, log *zap.Logger) *Redis {
	if prefix == "" {
		prefix = defaultPrefix
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl, log: log}
}

func (r *Redis) Get(ctx context.Context, key string) ([]searchdomain.Suggestion, bool) {
	raw, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.log.Warn("suggestion cache get failed", zap.Error(err))
		}
		return nil, false
	}
	var out []searchdomain.Suggestion
	if err := json.Unmarshal(raw, &out); err != nil {
		r.log.Warn("suggestion cache entry corrupt", zap.Error(err))
		return nil, false
	}
	return out, true
}

func (r *Redis) Set(ctx context.Context, key string, value []searchdomain.Suggestion) {
	if key == "" || len(value) == 0 {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := r.client.Set(ctx, r.prefix+key, raw, r.ttl).Err(); err != nil {
		r.log.Warn("suggestion cache set failed", zap.Error(err))
	}
}

// Clear deletes every key under the prefix.
func (r *Redis) Clear(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, r.prefix+"*", scanBatchCount).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
