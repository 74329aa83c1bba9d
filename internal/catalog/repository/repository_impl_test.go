package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/quicksearch/internal/catalog/catalogtest"
	"github.com/smallbiznis/quicksearch/internal/catalog/domain"
	"github.com/smallbiznis/quicksearch/internal/catalog/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestProductLookups(t *testing.T) {
	db := catalogtest.NewDB(t)
	seed := catalogtest.NewSeeder(t, db)
	repo := repository.Provide()
	ctx := context.Background()

	p := seed.Product("Manguera  Ryíjet 1 1/2", catalogtest.WithCanonicalKey("MANGUERA_CON_SELLO_1_1/2"))
	assert.Equal(t, "manguera ryijet 1 1 2", p.NormalizedName)

	got, err := repo.FindProductByID(ctx, db, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Manguera  Ryíjet 1 1/2", got.Name)

	got, err = repo.FindProductByNormalizedName(ctx, db, "manguera ryijet 1 1 2")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, p.ID, got.ID)

	got, err = repo.FindProductByCanonicalKey(ctx, db, "MANGUERA_CON_SELLO_1_1/2")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, p.ID, got.ID)

	missing, err := repo.FindProductByID(ctx, db, 1)
	require.NoError(t, err)
	assert.Nil(t, missing)

	missing, err = repo.FindProductByCanonicalKey(ctx, db, "")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUpdateProductKeepsNormalizedNameInSync(t *testing.T) {
	db := catalogtest.NewDB(t)
	seed := catalogtest.NewSeeder(t, db)
	repo := repository.Provide()
	ctx := context.Background()

	p := seed.Product("Extintor ABC")
	p.Name = "Extintor Polvo ABC 5 Kg"
	p.NormalizedName = "stale"
	require.NoError(t, repo.UpdateProduct(ctx, db, &p))

	got, err := repo.FindProductByID(ctx, db, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "extintor polvo abc 5 kg", got.NormalizedName)
}

func TestSearchSubstringAndOr(t *testing.T) {
	db := catalogtest.NewDB(t)
	seed := catalogtest.NewSeeder(t, db)
	repo := repository.Provide()
	ctx := context.Background()

	hose := seed.Product("Manguera con sello 1 1/2")
	seed.Product("Manguera sin sello 1 1/2")
	nozzle := seed.Product("Boquilla niebla")

	all, err := repo.SearchSubstring(ctx, db, []string{"manguera", "con"}, true, 10)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, hose.ID, all[0].ID)

	some, err := repo.SearchSubstring(ctx, db, []string{"boquilla", "extintor"}, false, 10)
	require.NoError(t, err)
	require.Len(t, some, 1)
	assert.Equal(t, nozzle.ID, some[0].ID)

	none, err := repo.SearchSubstring(ctx, db, nil, true, 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSearchFullTextUnavailableOnSQLite(t *testing.T) {
	db := catalogtest.NewDB(t)
	_, err := repository.Provide().SearchFullText(context.Background(), db, []string{"manguera"}, 10)
	assert.ErrorIs(t, err, domain.ErrFullTextUnavailable)
}

func TestListRecentProductsOrdersByUpdatedAt(t *testing.T) {
	db := catalogtest.NewDB(t)
	seed := catalogtest.NewSeeder(t, db)

	first := seed.Product("Primero")
	second := seed.Product("Segundo")

	items, err := repository.Provide().ListRecentProducts(context.Background(), db, 1)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, second.ID, items[0].ID)
	assert.NotEqual(t, first.ID, items[0].ID)
}

func TestPricesAndOrphans(t *testing.T) {
	db := catalogtest.NewDB(t)
	seed := catalogtest.NewSeeder(t, db)
	repo := repository.Provide()
	ctx := context.Background()

	kept := seed.Product("Boquilla niebla", catalogtest.WithCanonicalKey("BOQUILLA_NIEBLA_R1"))
	orphan := seed.Product("Boquilla vieja")
	price := seed.Price(kept, "ARD", "1500.50")

	found, err := repo.FindPrice(ctx, db, kept.ID, "ARD")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.True(t, decimal.RequireFromString("1500.50").Equal(found.UnitPrice))

	missing, err := repo.FindPrice(ctx, db, kept.ID, "LACAR")
	require.NoError(t, err)
	assert.Nil(t, missing)

	byKey, err := repo.ListPricesByCanonicalKey(ctx, db, "BOQUILLA_NIEBLA_R1")
	require.NoError(t, err)
	require.Len(t, byKey, 1)
	assert.Equal(t, price.ID, byKey[0].ID)

	found.UnitPrice = decimal.RequireFromString("1400")
	require.NoError(t, repo.UpdatePrice(ctx, db, found))
	prices, err := repo.ListPricesByProducts(ctx, db, []int64{kept.ID, orphan.ID})
	require.NoError(t, err)
	require.Len(t, prices, 1)
	assert.True(t, decimal.NewFromInt(1400).Equal(prices[0].UnitPrice))

	deleted, err := repo.DeleteOrphanProducts(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	gone, err := repo.FindProductByID(ctx, db, orphan.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestUploadLifecycle(t *testing.T) {
	db := catalogtest.NewDB(t)
	seed := catalogtest.NewSeeder(t, db)
	repo := repository.Provide()
	ctx := context.Background()
	node := catalogtest.MustNode(t)

	base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	older := domain.Upload{ID: node.Generate().Int64(), Filename: "ard.xlsx", UploadedAt: base}
	newer := domain.Upload{
		ID:         node.Generate().Int64(),
		Filename:   "lacar.csv",
		UploadedAt: base.Add(time.Hour),
		Metadata:   datatypes.JSONMap{"files": []any{"lacar.csv"}},
	}
	require.NoError(t, repo.CreateUpload(ctx, db, &older))
	require.NoError(t, repo.CreateUpload(ctx, db, &newer))

	newer.ProcessedRows = 3
	require.NoError(t, repo.UpdateUpload(ctx, db, &newer))

	page, err := repo.ListUploads(ctx, db, 1, nil)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, newer.ID, page[0].ID)
	assert.Equal(t, 3, page[0].ProcessedRows)

	page, err = repo.ListUploads(ctx, db, 10, &domain.UploadCursor{ID: page[0].ID, UploadedAt: page[0].UploadedAt})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, older.ID, page[0].ID)

	p := seed.Product("Sprinkler colgante")
	seed.Price(p, "INCEN-SANIT", "10", catalogtest.WithUpload(newer.ID))
	seed.Price(p, "ARD", "11")

	removed, err := repo.DeleteUpload(ctx, db, newer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	left, err := repo.ListPricesByProducts(ctx, db, []int64{p.ID})
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "ARD", left[0].ProviderName)

	_, err = repo.DeleteUpload(ctx, db, newer.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	gone, err := repo.FindUpload(ctx, db, newer.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestAttachPrices(t *testing.T) {
	products := []domain.Product{{ID: 1}, {ID: 2}}
	domain.AttachPrices(products, []domain.ProductPrice{{ID: 10, ProductID: 2}, {ID: 11, ProductID: 2}})
	assert.Empty(t, products[0].Prices)
	assert.Len(t, products[1].Prices, 2)
	assert.Equal(t, []int64{1, 2}, domain.IDs(products))
}
