package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/quicksearch/internal/canonical/domain"
	catalogdomain "github.com/smallbiznis/quicksearch/internal/catalog/domain"
	"github.com/smallbiznis/quicksearch/internal/clock"
	"github.com/smallbiznis/quicksearch/internal/observability/metrics"
	"github.com/smallbiznis/quicksearch/internal/ratelimit"
	"github.com/smallbiznis/quicksearch/internal/textnorm"
	"github.com/smallbiznis/quicksearch/internal/vendordict"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	lockKey = "quicksearch:lock:normalize"
	lockTTL = 10 * time.Minute
)

type locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
	Holder(ctx context.Context, key string) (string, error)
}

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	GenID    *snowflake.Node
	Repo     catalogdomain.Repository
	Resolver vendordict.Resolver
	Metrics  *metrics.CatalogMetrics `optional:"true"`
	Locker   *ratelimit.RunLock      `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	genID    *snowflake.Node
	repo     catalogdomain.Repository
	resolver vendordict.Resolver
	metrics  *metrics.CatalogMetrics
	locker   locker
	tracer   trace.Tracer

	// one run at a time per process; the redis lock covers other replicas
	mu sync.Mutex
}

func New(p Params) domain.Service {
	s := &Service{
		db:       p.DB,
		log:      p.Log.Named("canonical.service"),
		clock:    p.Clock,
		genID:    p.GenID,
		repo:     p.Repo,
		resolver: p.Resolver,
		metrics:  p.Metrics,
		tracer:   otel.Tracer("quicksearch/canonical"),
	}
	if p.Locker != nil {
		s.locker = p.Locker
	}
	return s
}

func (s *Service) NormalizeCatalog(ctx context.Context) (report *domain.Report, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, span := s.tracer.Start(ctx, "canonical.NormalizeCatalog")
	start := time.Now()
	defer func() {
		if err != nil {
			s.metrics.IncNormalizeError(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	ids, err := s.repo.ListProductIDs(ctx, s.db)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	report = &domain.Report{}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return s.normalizeProduct(ctx, tx, id, report)
		})
		if err != nil {
			report.Failed++
			s.log.Warn("normalize product failed", zap.Int64("product_id", id), zap.Error(err))
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		deleted, err := s.repo.DeleteOrphanProducts(ctx, tx)
		if err != nil {
			return err
		}
		report.OrphansDeleted = int(deleted)
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("delete orphan products: %w", err)
	}

	s.record(report, time.Since(start))
	span.SetAttributes(
		attribute.Int("normalize.products_visited", report.ProductsVisited),
		attribute.Int("normalize.offers_moved", report.OffersMoved),
		attribute.Int("normalize.canonical_created", report.CanonicalCreated),
		attribute.Int("normalize.orphans_deleted", report.OrphansDeleted),
	)
	s.log.Info("catalog normalized",
		zap.Int("products_visited", report.ProductsVisited),
		zap.Int("offers_moved", report.OffersMoved),
		zap.Int("canonical_created", report.CanonicalCreated),
		zap.Int("orphans_deleted", report.OrphansDeleted),
		zap.Int("unmatched", report.Unmatched),
		zap.Int("failed", report.Failed),
		zap.Duration("duration", time.Since(start)),
	)
	return report, nil
}

func (s *Service) acquire(ctx context.Context) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	token, ok, err := s.locker.TryLock(ctx, lockKey, lockTTL)
	if err != nil {
		// Redis unavailable: the process mutex still serializes local runs.
		s.log.Warn("normalize lock unavailable", zap.Error(err))
		return func() {}, nil
	}
	if !ok {
		if holder, herr := s.locker.Holder(ctx, lockKey); herr == nil && holder != "" {
			s.log.Info("normalize already running", zap.String("holder", holder))
		}
		return nil, metrics.ErrNormalizeLocked
	}
	return func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), lockKey, token); err != nil {
			s.log.Warn("release normalize lock", zap.Error(err))
		}
	}, nil
}

func (s *Service) record(report *domain.Report, d time.Duration) {
	s.metrics.ObserveNormalizeRun(d)
	s.metrics.AddNormalizeItems(metrics.NormalizeItemProductsVisited, report.ProductsVisited)
	s.metrics.AddNormalizeItems(metrics.NormalizeItemOffersMoved, report.OffersMoved)
	s.metrics.AddNormalizeItems(metrics.NormalizeItemCanonicalCreated, report.CanonicalCreated)
	s.metrics.AddNormalizeItems(metrics.NormalizeItemOrphansDeleted, report.OrphansDeleted)
	s.metrics.AddNormalizeItems(metrics.NormalizeItemUnmatched, report.Unmatched)
	s.metrics.AddNormalizeItems(metrics.NormalizeItemFailed, report.Failed)
}

func (s *Service) normalizeProduct(ctx context.Context, tx *gorm.DB, id int64, report *domain.Report) error {
	product, err := s.repo.FindProductByID(ctx, tx, id)
	if err != nil {
		return err
	}
	if product == nil {
		// absorbed earlier in this run
		return nil
	}
	report.ProductsVisited++

	if product.NormalizedName != textnorm.Normalize(product.Name) {
		product.UpdatedAt = s.clock.Now()
		if err := s.repo.UpdateProduct(ctx, tx, product); err != nil {
			return err
		}
	}

	prices, err := s.repo.ListPricesByProducts(ctx, tx, []int64{product.ID})
	if err != nil {
		return err
	}

	for i := range prices {
		price := &prices[i]
		match := s.resolver.Resolve(price.ProviderName, sourceName(product, price), sourceSKU(product, price))
		if match == nil {
			report.Unmatched++
			continue
		}
		err := tx.Transaction(func(sp *gorm.DB) error {
			return s.applyMatch(ctx, sp, product, price, match, report)
		})
		if err != nil {
			report.Failed++
			s.log.Warn("normalize offer failed",
				zap.Int64("product_id", product.ID),
				zap.Int64("price_id", price.ID),
				zap.String("canonical_key", match.Key),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (s *Service) applyMatch(ctx context.Context, tx *gorm.DB, product *catalogdomain.Product, price *catalogdomain.ProductPrice, match *vendordict.Match, report *domain.Report) error {
	canonical, err := s.ensureCanonical(ctx, tx, product, match, report)
	if err != nil {
		return err
	}

	if price.ProductID == canonical.ID {
		if stringValue(price.CanonicalKey) == match.Key {
			return nil
		}
		price.CanonicalKey = stringPtr(match.Key)
		price.UpdatedAt = s.clock.Now()
		return s.repo.UpdatePrice(ctx, tx, price)
	}

	existing, err := s.repo.FindPrice(ctx, tx, canonical.ID, price.ProviderName)
	if err != nil {
		return err
	}
	if existing != nil {
		if keepExisting(existing, price) {
			if err := s.repo.DeletePrice(ctx, tx, price.ID); err != nil {
				return err
			}
			report.OffersMoved++
			if stringValue(existing.CanonicalKey) == match.Key {
				return nil
			}
			existing.CanonicalKey = stringPtr(match.Key)
			existing.UpdatedAt = s.clock.Now()
			return s.repo.UpdatePrice(ctx, tx, existing)
		}
		if err := s.repo.DeletePrice(ctx, tx, existing.ID); err != nil {
			return err
		}
	}

	price.ProductID = canonical.ID
	price.CanonicalKey = stringPtr(match.Key)
	price.UpdatedAt = s.clock.Now()
	if err := s.repo.UpdatePrice(ctx, tx, price); err != nil {
		return err
	}
	report.OffersMoved++
	return nil
}

// ensureCanonical finds the product for match by key, then by normalized
// name, else creates it, and backfills its identity fields.
func (s *Service) ensureCanonical(ctx context.Context, tx *gorm.DB, visited *catalogdomain.Product, match *vendordict.Match, report *domain.Report) (*catalogdomain.Product, error) {
	now := s.clock.Now()

	canonical, err := s.repo.FindProductByCanonicalKey(ctx, tx, match.Key)
	if err != nil {
		return nil, err
	}
	if canonical == nil {
		canonical, err = s.repo.FindProductByNormalizedName(ctx, tx, textnorm.Normalize(match.CanonicalName))
		if err != nil {
			return nil, err
		}
	}
	if canonical == nil {
		canonical = &catalogdomain.Product{
			ID:           s.genID.Generate().Int64(),
			SKU:          nonEmpty(visited.SKU),
			Name:         match.CanonicalName,
			DisplayName:  stringPtr(match.CanonicalName),
			CanonicalKey: stringPtr(match.Key),
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.repo.CreateProduct(ctx, tx, canonical); err != nil {
			return nil, err
		}
		report.CanonicalCreated++
		return canonical, nil
	}

	// Keep the caller's copy current when the visited product is the canonical one.
	if canonical.ID == visited.ID {
		canonical = visited
	}

	changed := false
	if stringValue(canonical.CanonicalKey) != match.Key {
		canonical.CanonicalKey = stringPtr(match.Key)
		changed = true
	}
	if canonical.Name != match.CanonicalName {
		canonical.Name = match.CanonicalName
		changed = true
	}
	if strings.TrimSpace(stringValue(canonical.DisplayName)) == "" {
		canonical.DisplayName = stringPtr(match.CanonicalName)
		changed = true
	}
	if nonEmpty(canonical.SKU) == nil && nonEmpty(visited.SKU) != nil {
		canonical.SKU = nonEmpty(visited.SKU)
		changed = true
	}
	if !changed {
		return canonical, nil
	}
	canonical.UpdatedAt = now
	if err := s.repo.UpdateProduct(ctx, tx, canonical); err != nil {
		return nil, err
	}
	return canonical, nil
}

// keepExisting decides a (product, provider) collision. Offers from
// different uploads keep the most recently seen; otherwise the cheaper one.
func keepExisting(existing, incoming *catalogdomain.ProductPrice) bool {
	if int64Value(existing.UploadID) != int64Value(incoming.UploadID) {
		return !incoming.LastSeenAt.After(existing.LastSeenAt)
	}
	return !incoming.UnitPrice.LessThan(existing.UnitPrice)
}

func sourceName(product *catalogdomain.Product, price *catalogdomain.ProductPrice) string {
	if v := nonEmpty(price.ProviderProductName); v != nil {
		return *v
	}
	return product.Label()
}

func sourceSKU(product *catalogdomain.Product, price *catalogdomain.ProductPrice) string {
	if v := nonEmpty(price.ProviderSKU); v != nil {
		return *v
	}
	return stringValue(product.SKU)
}

func nonEmpty(v *string) *string {
	if v == nil || strings.TrimSpace(*v) == "" {
		return nil
	}
	return v
}

func stringPtr(v string) *string { return &v }

func stringValue(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func int64Value(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
