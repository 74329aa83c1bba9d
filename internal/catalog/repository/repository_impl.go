package repository

import (
	"context"
	"strings"

	"github.com/smallbiznis/quicksearch/internal/catalog/domain"
	"github.com/smallbiznis/quicksearch/internal/textnorm"
	"github.com/smallbiznis/quicksearch/pkg/db"
	"gorm.io/gorm"
)

const productColumns = `id, sku, name, display_name, normalized_name, keywords, canonical_key, created_at, updated_at`

const priceColumns = `id, product_id, provider_name, provider_product_name, provider_sku, unit_price, currency,
	canonical_key, upload_id, last_seen_at, created_at, updated_at`

const uploadColumns = `id, filename, uploaded_at, sheet_count, processed_rows, skipped_rows, metadata`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindProductByID(ctx context.Context, db *gorm.DB, id int64) (*domain.Product, error) {
	return r.findProduct(ctx, db, `SELECT `+productColumns+` FROM products WHERE id = ?`, id)
}

func (r *repo) FindProductByNormalizedName(ctx context.Context, db *gorm.DB, normalizedName string) (*domain.Product, error) {
	if normalizedName == "" {
		return nil, nil
	}
	return r.findProduct(ctx, db,
		`SELECT `+productColumns+` FROM products WHERE normalized_name = ? ORDER BY created_at ASC, id ASC LIMIT 1`,
		normalizedName,
	)
}

func (r *repo) FindProductByCanonicalKey(ctx context.Context, db *gorm.DB, key string) (*domain.Product, error) {
	if key == "" {
		return nil, nil
	}
	return r.findProduct(ctx, db, `SELECT `+productColumns+` FROM products WHERE canonical_key = ?`, key)
}

func (r *repo) findProduct(ctx context.Context, db *gorm.DB, query string, args ...any) (*domain.Product, error) {
	var p domain.Product
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&p).Error; err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, nil
	}
	return &p, nil
}

func (r *repo) FindProductsByIDs(ctx context.Context, db *gorm.DB, ids []int64) ([]domain.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var items []domain.Product
	err := db.WithContext(ctx).Raw(
		`SELECT `+productColumns+` FROM products WHERE id IN ?`,
		ids,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListProductIDs(ctx context.Context, db *gorm.DB) ([]int64, error) {
	var ids []int64
	err := db.WithContext(ctx).Raw(`SELECT id FROM products ORDER BY created_at ASC, id ASC`).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repo) ListRecentProducts(ctx context.Context, db *gorm.DB, limit int) ([]domain.Product, error) {
	var items []domain.Product
	err := db.WithContext(ctx).Raw(
		`SELECT `+productColumns+` FROM products ORDER BY updated_at DESC, id DESC LIMIT ?`,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// SearchFullText runs in its own savepoint so a rejected tsquery does not
// poison an enclosing transaction.
func (r *repo) SearchFullText(ctx context.Context, conn *gorm.DB, tokens []string, limit int) ([]domain.Product, error) {
	if !db.IsPostgres(conn) {
		return nil, domain.ErrFullTextUnavailable
	}
	if len(tokens) == 0 {
		return nil, nil
	}

	var items []domain.Product
	err := conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Raw(
			`SELECT `+productColumns+` FROM products
			 WHERE to_tsvector('simple', normalized_name) @@ plainto_tsquery('simple', ?)
			 ORDER BY updated_at DESC, id DESC LIMIT ?`,
			strings.Join(tokens, " "),
			limit,
		).Scan(&items).Error
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) SearchSubstring(ctx context.Context, db *gorm.DB, tokens []string, matchAll bool, limit int) ([]domain.Product, error) {
	if len(tokens) == 0 {
		return nil, nil
	}

	joiner := " OR "
	if matchAll {
		joiner = " AND "
	}
	clauses := make([]string, 0, len(tokens))
	args := make([]any, 0, len(tokens)+1)
	for _, token := range tokens {
		clauses = append(clauses, "normalized_name LIKE ?")
		args = append(args, "%"+token+"%")
	}
	args = append(args, limit)

	var items []domain.Product
	err := db.WithContext(ctx).Raw(
		`SELECT `+productColumns+` FROM products WHERE (`+strings.Join(clauses, joiner)+`)
		 ORDER BY updated_at DESC, id DESC LIMIT ?`,
		args...,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) CreateProduct(ctx context.Context, db *gorm.DB, product *domain.Product) error {
	if product == nil {
		return gorm.ErrInvalidData
	}
	product.NormalizedName = textnorm.Normalize(product.Name)
	return db.WithContext(ctx).Exec(
		`INSERT INTO products (`+productColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		product.ID,
		product.SKU,
		product.Name,
		product.DisplayName,
		product.NormalizedName,
		product.Keywords,
		product.CanonicalKey,
		product.CreatedAt,
		product.UpdatedAt,
	).Error
}

func (r *repo) UpdateProduct(ctx context.Context, db *gorm.DB, product *domain.Product) error {
	if product == nil {
		return gorm.ErrInvalidData
	}
	product.NormalizedName = textnorm.Normalize(product.Name)
	return db.WithContext(ctx).Exec(
		`UPDATE products
		 SET sku = ?, name = ?, display_name = ?, normalized_name = ?, keywords = ?, canonical_key = ?, updated_at = ?
		 WHERE id = ?`,
		product.SKU,
		product.Name,
		product.DisplayName,
		product.NormalizedName,
		product.Keywords,
		product.CanonicalKey,
		product.UpdatedAt,
		product.ID,
	).Error
}

func (r *repo) DeleteProduct(ctx context.Context, db *gorm.DB, id int64) error {
	return db.WithContext(ctx).Exec(`DELETE FROM products WHERE id = ?`, id).Error
}

func (r *repo) DeleteOrphanProducts(ctx context.Context, db *gorm.DB) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`DELETE FROM products
		 WHERE NOT EXISTS (SELECT 1 FROM product_prices pp WHERE pp.product_id = products.id)`,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *repo) FindPrice(ctx context.Context, db *gorm.DB, productID int64, providerName string) (*domain.ProductPrice, error) {
	var p domain.ProductPrice
	err := db.WithContext(ctx).Raw(
		`SELECT `+priceColumns+` FROM product_prices WHERE product_id = ? AND provider_name = ?`,
		productID,
		providerName,
	).Scan(&p).Error
	if err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, nil
	}
	return &p, nil
}

func (r *repo) ListPricesByProducts(ctx context.Context, db *gorm.DB, productIDs []int64) ([]domain.ProductPrice, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}
	var items []domain.ProductPrice
	err := db.WithContext(ctx).Raw(
		`SELECT `+priceColumns+` FROM product_prices WHERE product_id IN ? ORDER BY product_id ASC, id ASC`,
		productIDs,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListPricesByCanonicalKey(ctx context.Context, db *gorm.DB, key string) ([]domain.ProductPrice, error) {
	if key == "" {
		return nil, nil
	}
	var items []domain.ProductPrice
	err := db.WithContext(ctx).Raw(
		`SELECT `+priceColumns+` FROM product_prices WHERE canonical_key = ? ORDER BY id ASC`,
		key,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) CreatePrice(ctx context.Context, db *gorm.DB, price *domain.ProductPrice) error {
	if price == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO product_prices (`+priceColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		price.ID,
		price.ProductID,
		price.ProviderName,
		price.ProviderProductName,
		price.ProviderSKU,
		price.UnitPrice,
		price.Currency,
		price.CanonicalKey,
		price.UploadID,
		price.LastSeenAt,
		price.CreatedAt,
		price.UpdatedAt,
	).Error
}

func (r *repo) UpdatePrice(ctx context.Context, db *gorm.DB, price *domain.ProductPrice) error {
	if price == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`UPDATE product_prices
		 SET product_id = ?, provider_name = ?, provider_product_name = ?, provider_sku = ?, unit_price = ?,
		     currency = ?, canonical_key = ?, upload_id = ?, last_seen_at = ?, updated_at = ?
		 WHERE id = ?`,
		price.ProductID,
		price.ProviderName,
		price.ProviderProductName,
		price.ProviderSKU,
		price.UnitPrice,
		price.Currency,
		price.CanonicalKey,
		price.UploadID,
		price.LastSeenAt,
		price.UpdatedAt,
		price.ID,
	).Error
}

func (r *repo) DeletePrice(ctx context.Context, db *gorm.DB, id int64) error {
	return db.WithContext(ctx).Exec(`DELETE FROM product_prices WHERE id = ?`, id).Error
}

func (r *repo) CreateUpload(ctx context.Context, db *gorm.DB, upload *domain.Upload) error {
	if upload == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO uploads (`+uploadColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		upload.ID,
		upload.Filename,
		upload.UploadedAt,
		upload.SheetCount,
		upload.ProcessedRows,
		upload.SkippedRows,
		upload.Metadata,
	).Error
}

func (r *repo) UpdateUpload(ctx context.Context, db *gorm.DB, upload *domain.Upload) error {
	if upload == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`UPDATE uploads SET filename = ?, sheet_count = ?, processed_rows = ?, skipped_rows = ?, metadata = ?
		 WHERE id = ?`,
		upload.Filename,
		upload.SheetCount,
		upload.ProcessedRows,
		upload.SkippedRows,
		upload.Metadata,
		upload.ID,
	).Error
}

func (r *repo) FindUpload(ctx context.Context, db *gorm.DB, id int64) (*domain.Upload, error) {
	var u domain.Upload
	err := db.WithContext(ctx).Raw(`SELECT `+uploadColumns+` FROM uploads WHERE id = ?`, id).Scan(&u).Error
	if err != nil {
		return nil, err
	}
	if u.ID == 0 {
		return nil, nil
	}
	return &u, nil
}

func (r *repo) ListUploads(ctx context.Context, db *gorm.DB, limit int, after *domain.UploadCursor) ([]domain.Upload, error) {
	var items []domain.Upload
	stmt := db.WithContext(ctx)
	var err error
	if after == nil {
		err = stmt.Raw(
			`SELECT `+uploadColumns+` FROM uploads ORDER BY uploaded_at DESC, id DESC LIMIT ?`,
			limit,
		).Scan(&items).Error
	} else {
		err = stmt.Raw(
			`SELECT `+uploadColumns+` FROM uploads
			 WHERE uploaded_at < ? OR (uploaded_at = ? AND id < ?)
			 ORDER BY uploaded_at DESC, id DESC LIMIT ?`,
			after.UploadedAt,
			after.UploadedAt,
			after.ID,
			limit,
		).Scan(&items).Error
	}
	if err != nil {
		return nil, err
	}
	return items, nil
}

// DeleteUpload removes the upload and every offer it created, returning the
// number of offers removed. It runs in one transaction.
func (r *repo) DeleteUpload(ctx context.Context, db *gorm.DB, id int64) (int64, error) {
	var removed int64
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Exec(`DELETE FROM product_prices WHERE upload_id = ?`, id)
		if res.Error != nil {
			return res.Error
		}
		removed = res.RowsAffected

		res = tx.Exec(`DELETE FROM uploads WHERE id = ?`, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}
