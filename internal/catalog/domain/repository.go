package domain

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// ErrFullTextUnavailable is returned by SearchFullText on dialects without an
// indexed full-text search.
var ErrFullTextUnavailable = errors.New("full_text_unavailable")

var ErrNotFound = errors.New("not_found")

// UploadCursor positions ListUploads after the given row.
type UploadCursor struct {
	ID         int64
	UploadedAt time.Time
}

type Repository interface {
	FindProductByID(ctx context.Context, db *gorm.DB, id int64) (*Product, error)
	FindProductByNormalizedName(ctx context.Context, db *gorm.DB, normalizedName string) (*Product, error)
	FindProductByCanonicalKey(ctx context.Context, db *gorm.DB, key string) (*Product, error)
	FindProductsByIDs(ctx context.Context, db *gorm.DB, ids []int64) ([]Product, error)
	ListProductIDs(ctx context.Context, db *gorm.DB) ([]int64, error)
	ListRecentProducts(ctx context.Context, db *gorm.DB, limit int) ([]Product, error)
	SearchFullText(ctx context.Context, db *gorm.DB, tokens []string, limit int) ([]Product, error)
	SearchSubstring(ctx context.Context, db *gorm.DB, tokens []string, matchAll bool, limit int) ([]Product, error)
	CreateProduct(ctx context.Context, db *gorm.DB, product *Product) error
	UpdateProduct(ctx context.Context, db *gorm.DB, product *Product) error
	DeleteProduct(ctx context.Context, db *gorm.DB, id int64) error
	DeleteOrphanProducts(ctx context.Context, db *gorm.DB) (int64, error)

	FindPrice(ctx context.Context, db *gorm.DB, productID int64, providerName string) (*ProductPrice, error)
	ListPricesByProducts(ctx context.Context, db *gorm.DB, productIDs []int64) ([]ProductPrice, error)
	ListPricesByCanonicalKey(ctx context.Context, db *gorm.DB, key string) ([]ProductPrice, error)
	CreatePrice(ctx context.Context, db *gorm.DB, price *ProductPrice) error
	UpdatePrice(ctx context.Context, db *gorm.DB, price *ProductPrice) error
	DeletePrice(ctx context.Context, db *gorm.DB, id int64) error

	CreateUpload(ctx context.Context, db *gorm.DB, upload *Upload) error
	UpdateUpload(ctx context.Context, db *gorm.DB, upload *Upload) error
	FindUpload(ctx context.Context, db *gorm.DB, id int64) (*Upload, error)
	ListUploads(ctx context.Context, db *gorm.DB, limit int, after *UploadCursor) ([]Upload, error)
	DeleteUpload(ctx context.Context, db *gorm.DB, id int64) (int64, error)
}
