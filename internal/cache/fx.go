package cache

import (
	"context"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/quicksearch/internal/config"
	searchdomain "github.com/smallbiznis/quicksearch/internal/search/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("cache",
	fx.Provide(NewRedisClient),
	fx.Provide(NewSuggestionCache),
)

const (
	defaultSize = 1024
	defaultTTL  = 60 * time.Second
)

// NewRedisClient returns nil when no redis address is configured.
func NewRedisClient(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) *redis.Client {
	addr := strings.TrimSpace(cfg.Cache.RedisAddr)
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.Cache.RedisPassword),
		DB:       cfg.Cache.RedisDB,
	})
	if lc != nil {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				if err := client.Ping(ctx).Err(); err != nil {
					log.Warn("redis unreachable", zap.String("addr", addr), zap.Error(err))
				}
				return nil
			},
			OnStop: func(ctx context.Context) error {
				return client.Close()
			},
		})
	}
	return client
}

type Params struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
	Redis  *redis.Client `optional:"true"`
}

// NewSuggestionCache picks the backend named by the cache driver. A redis
// driver without a client degrades to the in-memory cache.
func NewSuggestionCache(p Params) searchdomain.SuggestionCache {
	cfg := p.Config.Cache
	log := p.Log.Named("cache")

	size := cfg.Size
	if size <= 0 {
		size = defaultSize
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case config.CacheDriverOff:
		log.Info("suggestion cache disabled")
		return Noop{}
	case config.CacheDriverRedis:
		if p.Redis != nil {
			return NewRedis(p.Redis, cfg.RedisPrefix, ttl, log)
		}
		log.Warn("redis cache requested without REDIS_ADDR, using memory")
	}
	return NewMemory(size, ttl)
}
