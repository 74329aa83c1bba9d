package ratelimit

import (
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/quicksearch/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("rate.limit",
	fx.Provide(provideSuggestLimiter),
	fx.Provide(NewRunLock),
)

type limiterParams struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
	Redis  *redis.Client `optional:"true"`
}

func provideSuggestLimiter(p limiterParams) (*SuggestLimiter, error) {
	return NewSuggestLimiter(p.Config, p.Redis, p.Log)
}
