package service

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/quicksearch/internal/catalog/domain"
	"github.com/smallbiznis/quicksearch/internal/config"
	"github.com/smallbiznis/quicksearch/internal/fuzzy"
	"github.com/smallbiznis/quicksearch/internal/observability/metrics"
	"github.com/smallbiznis/quicksearch/internal/pricing"
	"github.com/smallbiznis/quicksearch/internal/search/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultCandidatePool = 5000
	defaultMinScore      = 60.0
	defaultVariantBonus  = 15.0
	defaultSuggestLimit  = 20
	stageFetchFactor     = 5
	minCachedQueryLen    = 2
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Config  config.Config
	Repo    catalogdomain.Repository
	Cache   domain.SuggestionCache `optional:"true"`
	Metrics *metrics.Metrics       `optional:"true"`
	Rules   []domain.VariantRule   `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	repo    catalogdomain.Repository
	cache   domain.SuggestionCache
	metrics *metrics.Metrics
	tracer  trace.Tracer
	rules   []domain.VariantRule

	candidatePool int
	minScore      float64
	variantBonus  float64
	suggestLimit  int
}

func New(p Params) domain.Service {
	rules := p.Rules
	if rules == nil {
		rules = domain.DefaultVariantRules()
	}
	cfg := p.Config.Search
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("search.service"),
		repo:          p.Repo,
		cache:         p.Cache,
		metrics:       p.Metrics,
		tracer:        otel.Tracer("quicksearch/search"),
		rules:         rules,
		candidatePool: positiveInt(cfg.CandidatePool, defaultCandidatePool),
		minScore:      positiveFloat(cfg.MinScore, defaultMinScore),
		variantBonus:  positiveFloat(cfg.VariantBonus, defaultVariantBonus),
		suggestLimit:  positiveInt(cfg.SuggestLimit, defaultSuggestLimit),
	}
}

type stage struct {
	name string
	run  func(ctx context.Context, q domain.Query, fetch int) ([]catalogdomain.Product, error)
}

func (s *Service) Search(ctx context.Context, query string, limit int) ([]domain.Hit, error) {
	q := domain.ParseQuery(query, s.rules)
	if q.Empty() || limit <= 0 {
		return []domain.Hit{}, nil
	}

	ctx, span := s.tracer.Start(ctx, "search.Search")
	defer span.End()

	// variant adjustments rank after the fetch, so the recency window must not
	// cut off the requested variant
	fetch := limit * stageFetchFactor
	if len(q.Variants) > 0 {
		fetch = s.candidatePool
	}
	if fetch > s.candidatePool {
		fetch = s.candidatePool
	}
	if fetch < limit {
		fetch = limit
	}

	var stages []stage
	if len(q.Tokens) > 0 {
		stages = append(stages,
			stage{name: domain.StageFullText, run: s.fullText},
			stage{name: domain.StageSubstringAll, run: s.substring(true)},
			stage{name: domain.StageSubstringAny, run: s.substring(false)},
		)
	}

	for _, st := range stages {
		products, err := st.run(ctx, q, fetch)
		if err != nil {
			if !errors.Is(err, catalogdomain.ErrFullTextUnavailable) {
				s.log.Warn("search stage failed",
					zap.String("stage", st.name),
					zap.Error(err),
				)
			}
			continue
		}
		if len(products) == 0 {
			continue
		}
		hits := s.rankExact(q, products, st.name, limit)
		return s.finish(ctx, span, st.name, hits)
	}

	hits, err := s.fuzzyStage(ctx, q, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fuzzy stage failed")
		return nil, err
	}
	return s.finish(ctx, span, domain.StageFuzzy, hits)
}

func (s *Service) finish(ctx context.Context, span trace.Span, stageName string, hits []domain.Hit) ([]domain.Hit, error) {
	span.SetAttributes(
		attribute.String("search.stage", stageName),
		attribute.Int("search.hits", len(hits)),
	)
	if len(hits) == 0 {
		return []domain.Hit{}, nil
	}
	s.metrics.RecordSearchStage(ctx, stageName)

	products := make([]catalogdomain.Product, len(hits))
	for i := range hits {
		products[i] = hits[i].Product
	}
	prices, err := s.repo.ListPricesByProducts(ctx, s.db, catalogdomain.IDs(products))
	if err != nil {
		return nil, err
	}
	catalogdomain.AttachPrices(products, prices)
	for i := range hits {
		hits[i].Product = products[i]
	}
	return hits, nil
}

func (s *Service) fullText(ctx context.Context, q domain.Query, fetch int) ([]catalogdomain.Product, error) {
	return s.repo.SearchFullText(ctx, s.db, q.Tokens, fetch)
}

func (s *Service) substring(matchAll bool) func(context.Context, domain.Query, int) ([]catalogdomain.Product, error) {
	return func(ctx context.Context, q domain.Query, fetch int) ([]catalogdomain.Product, error) {
		return s.repo.SearchSubstring(ctx, s.db, q.Tokens, matchAll, fetch)
	}
}

func (s *Service) rankExact(q domain.Query, products []catalogdomain.Product, stageName string, limit int) []domain.Hit {
	hits := make([]domain.Hit, 0, len(products))
	for _, p := range products {
		hits = append(hits, domain.Hit{
			Product: p,
			Score:   domain.MaxScore + q.VariantAdjustment(p.NormalizedName, s.variantBonus),
			Stage:   stageName,
		})
	}
	sortHits(hits)
	return truncate(hits, limit)
}

func (s *Service) fuzzyStage(ctx context.Context, q domain.Query, limit int) ([]domain.Hit, error) {
	candidates, err := s.repo.ListRecentProducts(ctx, s.db, s.candidatePool)
	if err != nil {
		return nil, err
	}

	hits := make([]domain.Hit, 0)
	for _, p := range candidates {
		haystack := p.NormalizedName
		if p.Keywords != nil && strings.TrimSpace(*p.Keywords) != "" {
			haystack += " " + strings.TrimSpace(*p.Keywords)
		}
		score := fuzzy.TokenSetRatio(q.Normalized, haystack)
		if score < s.minScore {
			continue
		}
		hits = append(hits, domain.Hit{
			Product: p,
			Score:   score + q.VariantAdjustment(p.NormalizedName, s.variantBonus),
			Stage:   domain.StageFuzzy,
		})
	}
	sortHits(hits)
	return truncate(hits, limit), nil
}

// sortHits orders by score, then most recently updated, then id.
func sortHits(hits []domain.Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Product.UpdatedAt.Equal(b.Product.UpdatedAt) {
			return a.Product.UpdatedAt.After(b.Product.UpdatedAt)
		}
		return a.Product.ID > b.Product.ID
	})
}

func truncate(hits []domain.Hit, limit int) []domain.Hit {
	if len(hits) > limit {
		return hits[:limit]
	}
	return hits
}

func (s *Service) Suggest(ctx context.Context, query string) ([]domain.Suggestion, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return []domain.Suggestion{}, nil
	}

	key := domain.CacheKey(query)
	cacheable := len([]rune(trimmed)) >= minCachedQueryLen && s.cache != nil
	if cacheable {
		if cached, ok := s.cache.Get(ctx, key); ok {
			s.metrics.RecordSuggestCache(ctx, "hit")
			return cached, nil
		}
		s.metrics.RecordSuggestCache(ctx, "miss")
	}

	hits, err := s.Search(ctx, query, s.suggestLimit)
	if err != nil {
		return nil, err
	}

	suggestions := make([]domain.Suggestion, 0, len(hits))
	for _, hit := range hits {
		suggestions = append(suggestions, toSuggestion(hit.Product))
	}

	if cacheable && len(suggestions) > 0 {
		s.cache.Set(ctx, key, suggestions)
	}
	return suggestions, nil
}

func toSuggestion(p catalogdomain.Product) domain.Suggestion {
	out := domain.Suggestion{
		ID:            snowflake.ID(p.ID).String(),
		Name:          p.Name,
		PriceLabel:    "Sin precio",
		ProviderCount: len(p.Prices),
		Currency:      catalogdomain.DefaultCurrency,
	}
	if len(p.Prices) == 0 {
		return out
	}

	cheapest := p.Prices[0].UnitPrice
	for _, price := range p.Prices[1:] {
		if price.UnitPrice.LessThan(cheapest) {
			cheapest = price.UnitPrice
		}
	}
	value := cheapest.InexactFloat64()
	out.CheapestPrice = &value
	out.PriceLabel = pricing.FormatAmount(value)
	if out.ProviderCount > 1 {
		out.PriceLabel += " (" + strconv.Itoa(out.ProviderCount) + " proveedores)"
	}
	if currency := strings.TrimSpace(p.Prices[0].Currency); currency != "" {
		out.Currency = currency
	}
	return out
}

func positiveInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func positiveFloat(v, def float64) float64 {
	if v <= 0 {
		return def
	}
	return v
}
