package service

import (
	"context"
	"math"
	"strings"

	"github.com/smallbiznis/quicksearch/internal/clock"
	"github.com/smallbiznis/quicksearch/internal/config"
	"github.com/smallbiznis/quicksearch/pkg/db"
	"github.com/smallbiznis/quicksearch/internal/pricing"
	"github.com/smallbiznis/quicksearch/internal/settings/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Config config.Config
	Clock  clock.Clock
	Repo   domain.Repository
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	repo     domain.Repository
	clock    clock.Clock
	defaults config.PricingConfig
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("settings.service"),
		repo:     p.Repo,
		clock:    p.Clock,
		defaults: p.Config.Pricing,
	}
}

// Get returns the settings row, creating it from configuration on first use.
func (s *Service) Get(ctx context.Context) (*domain.Settings, error) {
	current, err := s.repo.Find(ctx, s.db)
	if err != nil {
		return nil, err
	}
	if current != nil {
		return current, nil
	}

	created := &domain.Settings{
		ID:                      domain.SettingsID,
		DefaultIVA:              factorOrOne(s.defaults.IVA),
		DefaultIIBB:             factorOrOne(s.defaults.IIBB),
		DefaultProfit:           factorOrOne(s.defaults.Profit),
		DefaultMarginMultiplier: factorOrOne(s.defaults.Margin),
		RoundingStrategy:        string(pricing.ParseRoundingStrategy(s.defaults.Rounding)),
		UpdatedAt:               s.clock.Now(),
	}
	if err := s.repo.Create(ctx, s.db, created); err != nil {
		// Another request created the row first.
		if db.IsDuplicateKeyErr(err) {
			return s.repo.Find(ctx, s.db)
		}
		return nil, err
	}
	s.log.Info("settings initialized from configuration")
	return created, nil
}

func (s *Service) Update(ctx context.Context, req domain.UpdateRequest) (*domain.Settings, error) {
	current, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}

	next := *current
	for _, f := range []struct {
		in  *float64
		out *float64
	}{
		{req.DefaultIVA, &next.DefaultIVA},
		{req.DefaultIIBB, &next.DefaultIIBB},
		{req.DefaultProfit, &next.DefaultProfit},
		{req.DefaultMarginMultiplier, &next.DefaultMarginMultiplier},
	} {
		if f.in == nil {
			continue
		}
		if !validFactor(*f.in) {
			return nil, domain.ErrInvalidFactor
		}
		*f.out = *f.in
	}
	if req.RoundingStrategy != nil {
		strategy := pricing.RoundingStrategy(strings.ToLower(strings.TrimSpace(*req.RoundingStrategy)))
		if !strategy.Valid() {
			return nil, domain.ErrInvalidRounding
		}
		next.RoundingStrategy = string(strategy)
	}
	next.UpdatedAt = s.clock.Now()

	if err := s.repo.Update(ctx, s.db, &next); err != nil {
		return nil, err
	}
	return &next, nil
}

func (s *Service) Factors(ctx context.Context) (pricing.Factors, error) {
	current, err := s.Get(ctx)
	if err != nil {
		return pricing.Factors{}, err
	}
	return pricing.Factors{
		IVA:    current.DefaultIVA,
		IIBB:   current.DefaultIIBB,
		Profit: current.DefaultProfit,
	}, nil
}

func validFactor(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}

func factorOrOne(v float64) float64 {
	if !validFactor(v) {
		return 1
	}
	return v
}
