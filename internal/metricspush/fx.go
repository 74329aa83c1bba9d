package metricspush

import (
	"context"
	"time"

	"github.com/smallbiznis/quicksearch/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultPushInterval = 5 * time.Minute

var Module = fx.Module("metrics.push",
	fx.Provide(NewPusher),
	fx.Provide(func(cfg config.Config) *CatalogStats {
		return NewCatalogStats(cfg.AppName, cfg.Environment)
	}),
	fx.Invoke(startWorker),
)

// pushOnce refreshes the gauges and pushes them. Refresh errors are logged so
// the gauges that did update still go out.
func pushOnce(ctx context.Context, stats *CatalogStats, pusher Pusher, db *gorm.DB, log *zap.Logger) error {
	if err := stats.Refresh(ctx, db); err != nil {
		log.Warn("catalog stats refresh failed", zap.Error(err))
	}
	return pusher.Push(ctx, stats.Registry())
}

func startWorker(lc fx.Lifecycle, cfg config.Config, stats *CatalogStats, pusher Pusher, db *gorm.DB, log *zap.Logger) {
	if pusher == nil {
		return
	}
	log = log.Named("metricspush")
	interval := cfg.Push.Interval
	if interval <= 0 {
		interval = defaultPushInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			log.Info("starting metrics push worker", zap.Duration("interval", interval))
			go func() {
				ticker := time.NewTicker(interval)
				defer ticker.Stop()

				for {
					if err := pushOnce(ctx, stats, pusher, db, log); err != nil {
						log.Error("metrics push failed", zap.Error(err))
					}
					select {
					case <-ticker.C:
					case <-ctx.Done():
						log.Info("stopping metrics push worker")
						return
					}
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}
