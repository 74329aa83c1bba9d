package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/smallbiznis/quicksearch/internal/catalog/catalogtest"
	catalogdomain "github.com/smallbiznis/quicksearch/internal/catalog/domain"
	"github.com/smallbiznis/quicksearch/internal/catalog/repository"
	"github.com/smallbiznis/quicksearch/internal/config"
	"github.com/smallbiznis/quicksearch/internal/search/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newService(t *testing.T, db *gorm.DB, repo catalogdomain.Repository, cache domain.SuggestionCache) domain.Service {
	t.Helper()
	return New(Params{
		DB:     db,
		Log:    zap.NewNop(),
		Config: config.Config{},
		Repo:   repo,
		Cache:  cache,
	})
}

func TestSearchEmptyQuery(t *testing.T) {
	db := catalogtest.NewDB(t)
	catalogtest.NewSeeder(t, db).Product("Manguera")
	svc := newService(t, db, repository.Provide(), nil)

	for _, q := range []string{"", "   ", "?!"} {
		hits, err := svc.Search(context.Background(), q, 10)
		require.NoError(t, err)
		assert.NotNil(t, hits)
		assert.Empty(t, hits)
	}
}

func TestSearchSubstringStageWithOffers(t *testing.T) {
	db := catalogtest.NewDB(t)
	seed := catalogtest.NewSeeder(t, db)
	hose := seed.Product("Manguera Ryijet 1 1/2 x 15")
	seed.Price(hose, "ARD", "1000")
	seed.Price(hose, "LACAR", "900")
	seed.Product("Boquilla niebla")

	svc := newService(t, db, repository.Provide(), nil)
	hits, err := svc.Search(context.Background(), "ryijet", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, hose.ID, hits[0].Product.ID)
	assert.Equal(t, domain.StageSubstringAll, hits[0].Stage)
	assert.Equal(t, domain.MaxScore, hits[0].Score)
	assert.Len(t, hits[0].Product.Prices, 2)
}

func TestSearchFallsBackToAnyToken(t *testing.T) {
	db := catalogtest.NewDB(t)
	seed := catalogtest.NewSeeder(t, db)
	nozzle := seed.Product("Boquilla niebla")

	svc := newService(t, db, repository.Provide(), nil)
	hits, err := svc.Search(context.Background(), "boquilla chorro", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, nozzle.ID, hits[0].Product.ID)
	assert.Equal(t, domain.StageSubstringAny, hits[0].Stage)
}

func TestSearchFuzzyFallback(t *testing.T) {
	db := catalogtest.NewDB(t)
	seed := catalogtest.NewSeeder(t, db)
	stored := seed.Product("Extinguidor")

	svc := newService(t, db, repository.Provide(), nil)
	hits, err := svc.Search(context.Background(), "extintor", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, stored.ID, hits[0].Product.ID)
	assert.Equal(t, domain.StageFuzzy, hits[0].Stage)
	assert.GreaterOrEqual(t, hits[0].Score, defaultMinScore)
	assert.InDelta(t, 73.68, hits[0].Score, 0.01)
}

func TestSearchFuzzyUsesKeywords(t *testing.T) {
	db := catalogtest.NewDB(t)
	seed := catalogtest.NewSeeder(t, db)
	seed.Product("Matafuego", catalogtest.WithKeywords("extintor"))

	svc := newService(t, db, repository.Provide(), nil)
	hits, err := svc.Search(context.Background(), "extintor", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, domain.StageFuzzy, hits[0].Stage)
	assert.Equal(t, 100.0, hits[0].Score)
}

func TestSearchNoCandidates(t *testing.T) {
	db := catalogtest.NewDB(t)
	catalogtest.NewSeeder(t, db).Product("Boquilla niebla")

	svc := newService(t, db, repository.Provide(), nil)
	hits, err := svc.Search(context.Background(), "zzzz qqqq", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearchVariantBoostKeepsVariantsApart(t *testing.T) {
	db := catalogtest.NewDB(t)
	seed := catalogtest.NewSeeder(t, db)
	with := seed.Product("Manguera con sello 1 1/2")
	without := seed.Product("Manguera sin sello 1 1/2")

	svc := newService(t, db, repository.Provide(), nil)

	hits, err := svc.Search(context.Background(), "manguera c/sello 1 1/2", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, with.ID, hits[0].Product.ID)
	assert.Equal(t, domain.MaxScore+defaultVariantBonus, hits[0].Score)
	assert.Equal(t, domain.MaxScore-defaultVariantBonus, hits[1].Score)

	hits, err = svc.Search(context.Background(), "manguera s/sello", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, without.ID, hits[0].Product.ID)
}

func TestSearchVariantOutsideRecencyWindowStillWins(t *testing.T) {
	db := catalogtest.NewDB(t)
	seed := catalogtest.NewSeeder(t, db)
	with := seed.Product("Manguera CON SELLO 1 1/2")
	for i := 0; i < stageFetchFactor+1; i++ {
		seed.Product(fmt.Sprintf("Manguera SIN SELLO modelo %d", i))
	}

	svc := newService(t, db, repository.Provide(), nil)
	hits, err := svc.Search(context.Background(), "manguera c/sello", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, with.ID, hits[0].Product.ID)
	assert.Equal(t, domain.MaxScore+defaultVariantBonus, hits[0].Score)
}

func TestSearchTiesPreferRecent(t *testing.T) {
	db := catalogtest.NewDB(t)
	seed := catalogtest.NewSeeder(t, db)
	seed.Product("Sprinkler 1/2 colgante")
	recent := seed.Product("Sprinkler 1/2 montante")

	svc := newService(t, db, repository.Provide(), nil)
	hits, err := svc.Search(context.Background(), "sprinkler", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, recent.ID, hits[0].Product.ID)
}

type stubRepo struct {
	catalogdomain.Repository
	fullTextErr  error
	substringErr error
	substring    []catalogdomain.Product
	recentErr    error
}

func (s *stubRepo) SearchFullText(context.Context, *gorm.DB, []string, int) ([]catalogdomain.Product, error) {
	return nil, s.fullTextErr
}

func (s *stubRepo) SearchSubstring(_ context.Context, _ *gorm.DB, _ []string, matchAll bool, _ int) ([]catalogdomain.Product, error) {
	if matchAll && s.substringErr != nil {
		return nil, s.substringErr
	}
	if matchAll {
		return nil, nil
	}
	return s.substring, nil
}

func (s *stubRepo) ListRecentProducts(context.Context, *gorm.DB, int) ([]catalogdomain.Product, error) {
	return nil, s.recentErr
}

func (s *stubRepo) ListPricesByProducts(context.Context, *gorm.DB, []int64) ([]catalogdomain.ProductPrice, error) {
	return nil, nil
}

func TestSearchStageErrorsFallThrough(t *testing.T) {
	repo := &stubRepo{
		fullTextErr:  errors.New("syntax error in tsquery"),
		substringErr: errors.New("connection reset"),
		substring:    []catalogdomain.Product{{ID: 7, Name: "Boquilla", NormalizedName: "boquilla"}},
	}
	svc := newService(t, nil, repo, nil)

	hits, err := svc.Search(context.Background(), "boquilla", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, domain.StageSubstringAny, hits[0].Stage)
}

func TestSearchFuzzyErrorIsReturned(t *testing.T) {
	boom := errors.New("db down")
	repo := &stubRepo{fullTextErr: catalogdomain.ErrFullTextUnavailable, recentErr: boom}
	svc := newService(t, nil, repo, nil)

	_, err := svc.Search(context.Background(), "boquilla", 10)
	assert.ErrorIs(t, err, boom)
}

type mapCache struct {
	mu    sync.Mutex
	items map[string][]domain.Suggestion
	sets  int
}

func newMapCache() *mapCache {
	return &mapCache{items: map[string][]domain.Suggestion{}}
}

func (c *mapCache) Get(_ context.Context, key string) ([]domain.Suggestion, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.items[key]
	return v, ok
}

func (c *mapCache) Set(_ context.Context, key string, value []domain.Suggestion) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	c.items[key] = value
}

func (c *mapCache) Clear(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = map[string][]domain.Suggestion{}
	return nil
}

func TestSuggestLabelsAndCache(t *testing.T) {
	db := catalogtest.NewDB(t)
	seed := catalogtest.NewSeeder(t, db)
	priced := seed.Product("Boquilla niebla R1")
	seed.Price(priced, "ARD", "1500")
	seed.Price(priced, "LACAR", "1234.5")
	seed.Product("Boquilla chorro pleno")

	cache := newMapCache()
	svc := newService(t, db, repository.Provide(), cache)

	got, err := svc.Suggest(context.Background(), " Boquilla ")
	require.NoError(t, err)
	require.Len(t, got, 2)

	byName := map[string]domain.Suggestion{}
	for _, s := range got {
		byName[s.Name] = s
	}
	assert.Equal(t, "1.234,50 (2 proveedores)", byName["Boquilla niebla R1"].PriceLabel)
	require.NotNil(t, byName["Boquilla niebla R1"].CheapestPrice)
	assert.Equal(t, 1234.5, *byName["Boquilla niebla R1"].CheapestPrice)
	assert.Equal(t, 2, byName["Boquilla niebla R1"].ProviderCount)
	assert.Equal(t, "Sin precio", byName["Boquilla chorro pleno"].PriceLabel)
	assert.Nil(t, byName["Boquilla chorro pleno"].CheapestPrice)
	assert.Equal(t, "ARS", byName["Boquilla chorro pleno"].Currency)
	assert.Equal(t, 1, cache.sets)

	require.NoError(t, db.Exec("DELETE FROM products").Error)
	again, err := svc.Suggest(context.Background(), "boquilla")
	require.NoError(t, err)
	assert.Len(t, again, 2)
}

func TestSuggestSkipsCacheForShortOrEmptyResults(t *testing.T) {
	db := catalogtest.NewDB(t)
	seed := catalogtest.NewSeeder(t, db)
	seed.Product("X1 válvula")

	cache := newMapCache()
	svc := newService(t, db, repository.Provide(), cache)

	_, err := svc.Suggest(context.Background(), "x")
	require.NoError(t, err)
	_, err = svc.Suggest(context.Background(), "zzzzzz")
	require.NoError(t, err)
	empty, err := svc.Suggest(context.Background(), "   ")
	require.NoError(t, err)

	assert.Empty(t, empty)
	assert.Equal(t, 0, cache.sets)
}
