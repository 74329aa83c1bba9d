package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/smallbiznis/quicksearch/internal/canonical/domain"
	"github.com/smallbiznis/quicksearch/internal/catalog/catalogtest"
	catalogdomain "github.com/smallbiznis/quicksearch/internal/catalog/domain"
	"github.com/smallbiznis/quicksearch/internal/catalog/repository"
	"github.com/smallbiznis/quicksearch/internal/clock"
	"github.com/smallbiznis/quicksearch/internal/observability/metrics"
	"github.com/smallbiznis/quicksearch/internal/vendordict"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const hoseKey = "MANGUERA_CON_SELLO_1_1/2"

type fixture struct {
	db    *gorm.DB
	seed  *catalogtest.Seeder
	repo  catalogdomain.Repository
	clock *clock.FakeClock
	svc   *Service
}

func newFixture(t *testing.T, m *metrics.CatalogMetrics) *fixture {
	t.Helper()
	db := catalogtest.NewDB(t)
	dict, err := vendordict.Default()
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC))
	repo := repository.Provide()
	svc := New(Params{
		DB:       db,
		Log:      zap.NewNop(),
		Clock:    clk,
		GenID:    catalogtest.MustNode(t),
		Repo:     repo,
		Resolver: dict,
		Metrics:  m,
	}).(*Service)
	return &fixture{db: db, seed: catalogtest.NewSeeder(t, db), repo: repo, clock: clk, svc: svc}
}

func (f *fixture) products(t *testing.T) []catalogdomain.Product {
	t.Helper()
	ids, err := f.repo.ListProductIDs(context.Background(), f.db)
	require.NoError(t, err)
	items, err := f.repo.FindProductsByIDs(context.Background(), f.db, ids)
	require.NoError(t, err)
	return items
}

func TestNormalizeCatalogMergesSiblings(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	a := f.seed.Product("MANG RYIJET 1 1/2 X 15", catalogtest.WithSKU("48921"))
	f.seed.Price(a, "ARD", "1000.00", catalogtest.WithProviderSKU("48921"))
	b := f.seed.Product("MANGUERA C/SELLO ROT.45Kg.38.1x15 COMPLETA", catalogtest.WithSKU("2215"))
	f.seed.Price(b, "LACAR", "950.00", catalogtest.WithProviderSKU("2215"))

	report, err := f.svc.NormalizeCatalog(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Report{
		ProductsVisited:  2,
		OffersMoved:      2,
		CanonicalCreated: 1,
		OrphansDeleted:   2,
	}, *report)

	products := f.products(t)
	require.Len(t, products, 1)
	merged := products[0]
	require.NotNil(t, merged.CanonicalKey)
	assert.Equal(t, hoseKey, *merged.CanonicalKey)
	assert.Equal(t, "Manguera CON SELLO IRAM 1 1/2″ (≈ 38.1 mm)", merged.Name)
	require.NotNil(t, merged.DisplayName)
	assert.Equal(t, merged.Name, *merged.DisplayName)
	require.NotNil(t, merged.SKU)
	assert.Equal(t, "48921", *merged.SKU)

	prices, err := f.repo.ListPricesByCanonicalKey(ctx, f.db, hoseKey)
	require.NoError(t, err)
	require.Len(t, prices, 2)
	for _, p := range prices {
		assert.Equal(t, merged.ID, p.ProductID)
	}
}

func TestNormalizeCatalogIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	a := f.seed.Product("MANG RYIJET 1 1/2 X 15", catalogtest.WithSKU("48921"))
	f.seed.Price(a, "ARD", "1000.00", catalogtest.WithProviderSKU("48921"))
	b := f.seed.Product("MANGUERA C/SELLO ROT.45Kg.38.1x15 COMPLETA")
	f.seed.Price(b, "LACAR", "950.00", catalogtest.WithProviderSKU("2215"))
	f.seed.Product("Balde de arena")

	_, err := f.svc.NormalizeCatalog(ctx)
	require.NoError(t, err)
	before := f.products(t)

	f.clock.Advance(time.Hour)
	report, err := f.svc.NormalizeCatalog(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Report{ProductsVisited: 1}, *report)

	after := f.products(t)
	require.Len(t, after, 1)
	assert.True(t, before[0].UpdatedAt.Equal(after[0].UpdatedAt))
}

func TestNormalizeCatalogLeavesUnmatchedOffers(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	p := f.seed.Product("Balde de arena")
	f.seed.Price(p, "FERRETERIA CENTRAL", "300.00")

	report, err := f.svc.NormalizeCatalog(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Unmatched)
	assert.Equal(t, 0, report.OffersMoved)

	products := f.products(t)
	require.Len(t, products, 1)
	assert.Equal(t, p.ID, products[0].ID)
	assert.Nil(t, products[0].CanonicalKey)
}

func TestNormalizeCatalogSyncsNormalizedName(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	p := f.seed.Product("Matafuego Acuoso")
	f.seed.Price(p, "FERRETERIA CENTRAL", "300.00")
	require.NoError(t, f.db.Exec(`UPDATE products SET normalized_name = ? WHERE id = ?`, "stale", p.ID).Error)

	_, err := f.svc.NormalizeCatalog(ctx)
	require.NoError(t, err)

	got, err := f.repo.FindProductByID(ctx, f.db, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "matafuego acuoso", got.NormalizedName)
}

func TestNormalizeCatalogBackfillsProductFoundByName(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	existing := f.seed.Product("Manguera CON SELLO IRAM 1 1/2″ (≈ 38.1 mm)", func(p *catalogdomain.Product) {
		display := "Manguera 1 1/2 propia"
		p.DisplayName = &display
	})
	f.seed.Price(existing, "SUR", "1200.00")
	a := f.seed.Product("MANG RYIJET 1 1/2 X 15", catalogtest.WithSKU("48921"))
	f.seed.Price(a, "ARD", "1000.00")

	report, err := f.svc.NormalizeCatalog(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.CanonicalCreated)
	assert.Equal(t, 1, report.OffersMoved)

	got, err := f.repo.FindProductByID(ctx, f.db, existing.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CanonicalKey)
	assert.Equal(t, hoseKey, *got.CanonicalKey)
	assert.Equal(t, "Manguera 1 1/2 propia", *got.DisplayName)
	require.NotNil(t, got.SKU)
	assert.Equal(t, "48921", *got.SKU)

	prices, err := f.repo.ListPricesByProducts(ctx, f.db, []int64{existing.ID})
	require.NoError(t, err)
	assert.Len(t, prices, 2)
}

func TestNormalizeCatalogCollisionKeepsCheaperOffer(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	a := f.seed.Product("MANG RYIJET 1 1/2 X 15")
	f.seed.Price(a, "ARD", "1000.00", catalogtest.WithProviderSKU("48921"))
	b := f.seed.Product("MANG RYIJET 1 1/2 X 20")
	cheaper := f.seed.Price(b, "ARD", "900.00", catalogtest.WithProviderSKU("48922"))

	_, err := f.svc.NormalizeCatalog(ctx)
	require.NoError(t, err)

	prices, err := f.repo.ListPricesByCanonicalKey(ctx, f.db, hoseKey)
	require.NoError(t, err)
	require.Len(t, prices, 1)
	assert.Equal(t, cheaper.ID, prices[0].ID)
	assert.Len(t, f.products(t), 1)
}

func TestNormalizeCatalogCollisionAcrossUploadsKeepsNewest(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	a := f.seed.Product("MANG RYIJET 1 1/2 X 15")
	f.seed.Price(a, "ARD", "900.00", catalogtest.WithProviderSKU("48921"), catalogtest.WithUpload(1))
	b := f.seed.Product("MANG RYIJET 1 1/2 X 20")
	newer := f.seed.Price(b, "ARD", "1000.00", catalogtest.WithProviderSKU("48922"), catalogtest.WithUpload(2))

	_, err := f.svc.NormalizeCatalog(ctx)
	require.NoError(t, err)

	prices, err := f.repo.ListPricesByCanonicalKey(ctx, f.db, hoseKey)
	require.NoError(t, err)
	require.Len(t, prices, 1)
	assert.Equal(t, newer.ID, prices[0].ID)
}

func TestNormalizeCatalogRecordsMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := metrics.NewCatalogMetrics(registry, metrics.Config{ServiceName: "test"})
	f := newFixture(t, m)

	a := f.seed.Product("MANG RYIJET 1 1/2 X 15")
	f.seed.Price(a, "ARD", "1000.00", catalogtest.WithProviderSKU("48921"))

	_, err := f.svc.NormalizeCatalog(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1.0, itemCount(t, registry, metrics.NormalizeItemOffersMoved))
	assert.Equal(t, 1.0, itemCount(t, registry, metrics.NormalizeItemOrphansDeleted))
	runs, err := testutil.GatherAndCount(registry, "quicksearch_catalog_normalize_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 1, runs)
}

func itemCount(t *testing.T, registry *prometheus.Registry, kind string) float64 {
	t.Helper()
	families, err := registry.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != "quicksearch_catalog_normalize_items_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "kind" && label.GetValue() == kind {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

type stubLocker struct {
	acquired bool
	err      error
	released []string
	holder   string
	asked    int
}

func (l *stubLocker) Holder(context.Context, string) (string, error) {
	l.asked++
	return l.holder, nil
}

func (l *stubLocker) TryLock(context.Context, string, time.Duration) (string, bool, error) {
	return "token", l.acquired, l.err
}

func (l *stubLocker) Release(_ context.Context, _ string, token string) error {
	l.released = append(l.released, token)
	return nil
}

func TestNormalizeCatalogLocked(t *testing.T) {
	f := newFixture(t, nil)
	l := &stubLocker{acquired: false, holder: "worker-2"}
	f.svc.locker = l

	_, err := f.svc.NormalizeCatalog(context.Background())
	assert.ErrorIs(t, err, metrics.ErrNormalizeLocked)
	assert.Equal(t, 1, l.asked)
	assert.Empty(t, l.released)
}

func TestNormalizeCatalogReleasesLock(t *testing.T) {
	f := newFixture(t, nil)
	l := &stubLocker{acquired: true}
	f.svc.locker = l

	_, err := f.svc.NormalizeCatalog(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"token"}, l.released)
}

func TestNormalizeCatalogRunsWhenLockBackendFails(t *testing.T) {
	f := newFixture(t, nil)
	f.svc.locker = &stubLocker{err: errors.New("dial tcp: refused")}

	_, err := f.svc.NormalizeCatalog(context.Background())
	assert.NoError(t, err)
}
