package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	canonicaldomain "github.com/smallbiznis/quicksearch/internal/canonical/domain"
	"github.com/smallbiznis/quicksearch/internal/clock"
	obsmetrics "github.com/smallbiznis/quicksearch/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const jobNormalizeCatalog = "normalize_catalog"

var ErrInvalidConfig = errors.New("scheduler: invalid config")

type Params struct {
	fx.In

	Log        *zap.Logger
	Normalizer canonicaldomain.Service
	GenID      *snowflake.Node
	Clock      clock.Clock
	Config     Config `optional:"true"`
}

type Scheduler struct {
	log        *zap.Logger
	cfg        Config
	genID      *snowflake.Node
	clock      clock.Clock
	normalizer canonicaldomain.Service
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Normalizer == nil || p.GenID == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        p.Config.withDefaults(),
		genID:      p.GenID,
		clock:      p.Clock,
		normalizer: p.Normalizer,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	log := s.log.With(
		zap.String("job", name),
		zap.String("run_id", s.genID.Generate().String()),
	)
	log.Info("job started")

	err := fn(ctx)
	duration := s.clock.Now().Sub(start)
	if err == nil {
		log.Info("job finished", zap.Duration("duration", duration))
		return nil
	}

	// a timed out run committed what it finished and the next run resumes it
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	log.Error("job failed", zap.Duration("duration", duration), zap.Error(err))
	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce runs every job a single time.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	return s.runJob(ctx, jobNormalizeCatalog, s.cfg.JobTimeout, s.NormalizeCatalogJob)
}

func (s *Scheduler) NormalizeCatalogJob(ctx context.Context) error {
	report, err := s.normalizer.NormalizeCatalog(ctx)
	if errors.Is(err, obsmetrics.ErrNormalizeLocked) {
		s.log.Info("catalog normalization already running elsewhere, skipping")
		return nil
	}
	if err != nil {
		return err
	}
	s.log.Info("catalog normalized",
		zap.Int("products_visited", report.ProductsVisited),
		zap.Int("offers_moved", report.OffersMoved),
		zap.Int("canonical_created", report.CanonicalCreated),
		zap.Int("orphans_deleted", report.OrphansDeleted),
	)
	return nil
}

// RunForever runs on startup when configured, then on every interval until
// ctx is done. Without an interval it returns after the startup run.
func (s *Scheduler) RunForever(ctx context.Context) {
	if s.cfg.RunOnStartup {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("startup run failed", zap.Error(err))
		}
	}
	if s.cfg.RunInterval <= 0 {
		return
	}

	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
	}
}
