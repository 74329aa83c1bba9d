// Package catalogtest opens migrated in-memory catalogs for tests.
package catalogtest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/quicksearch/internal/catalog/domain"
	"github.com/smallbiznis/quicksearch/internal/catalog/repository"
	"gorm.io/gorm"
)

var dbSeq atomic.Int64

// NewDB opens a private shared-cache memory database with the catalog schema.
func NewDB(t *testing.T, models ...any) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared&_loc=auto", name, dbSeq.Add(1))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	all := append([]any{&domain.Product{}, &domain.ProductPrice{}, &domain.Upload{}}, models...)
	if err := conn.AutoMigrate(all...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

var (
	nodeOnce sync.Once
	node     *snowflake.Node
	nodeErr  error
)

// MustNode returns the process-wide test snowflake node. Services under test
// must use it too, otherwise ids collide with seeded rows.
func MustNode(t *testing.T) *snowflake.Node {
	t.Helper()
	nodeOnce.Do(func() {
		node, nodeErr = snowflake.NewNode(1)
	})
	if nodeErr != nil {
		t.Fatalf("snowflake: %v", nodeErr)
	}
	return node
}

// Seeder inserts products and offers through the real repository.
type Seeder struct {
	t    *testing.T
	db   *gorm.DB
	repo domain.Repository
	node *snowflake.Node
	now  time.Time
}

func NewSeeder(t *testing.T, db *gorm.DB) *Seeder {
	return &Seeder{
		t:    t,
		db:   db,
		repo: repository.Provide(),
		node: MustNode(t),
		now:  time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

// Tick advances the seeder clock so later rows sort as more recent.
func (s *Seeder) Tick() time.Time {
	s.now = s.now.Add(time.Minute)
	return s.now
}

// Product inserts a product named name and returns it.
func (s *Seeder) Product(name string, opts ...func(*domain.Product)) domain.Product {
	s.t.Helper()
	now := s.Tick()
	p := domain.Product{
		ID:        s.node.Generate().Int64(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, opt := range opts {
		opt(&p)
	}
	if err := s.repo.CreateProduct(context.Background(), s.db, &p); err != nil {
		s.t.Fatalf("create product %q: %v", name, err)
	}
	return p
}

// Price inserts an offer for product from provider.
func (s *Seeder) Price(product domain.Product, provider string, amount string, opts ...func(*domain.ProductPrice)) domain.ProductPrice {
	s.t.Helper()
	now := s.Tick()
	price := domain.ProductPrice{
		ID:           s.node.Generate().Int64(),
		ProductID:    product.ID,
		ProviderName: provider,
		UnitPrice:    decimal.RequireFromString(amount),
		Currency:     domain.DefaultCurrency,
		CanonicalKey: product.CanonicalKey,
		LastSeenAt:   now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for _, opt := range opts {
		opt(&price)
	}
	if err := s.repo.CreatePrice(context.Background(), s.db, &price); err != nil {
		s.t.Fatalf("create price %s/%s: %v", product.Name, provider, err)
	}
	return price
}

func WithSKU(sku string) func(*domain.Product) {
	return func(p *domain.Product) { p.SKU = &sku }
}

func WithCanonicalKey(key string) func(*domain.Product) {
	return func(p *domain.Product) { p.CanonicalKey = &key }
}

func WithKeywords(keywords string) func(*domain.Product) {
	return func(p *domain.Product) { p.Keywords = &keywords }
}

func WithProviderSKU(sku string) func(*domain.ProductPrice) {
	return func(p *domain.ProductPrice) { p.ProviderSKU = &sku }
}

func WithProviderProductName(name string) func(*domain.ProductPrice) {
	return func(p *domain.ProductPrice) { p.ProviderProductName = &name }
}

func WithUpload(id int64) func(*domain.ProductPrice) {
	return func(p *domain.ProductPrice) { p.UploadID = &id }
}
