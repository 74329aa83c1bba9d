package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const DefaultCurrency = "ARS"

// Product is a canonical or provisional catalog entry. NormalizedName always
// equals textnorm.Normalize(Name).
type Product struct {
	ID             int64     `json:"id" gorm:"primaryKey;autoIncrement:false"`
	SKU            *string   `json:"sku,omitempty" gorm:"type:varchar(128)"`
	Name           string    `json:"name" gorm:"type:varchar(512);not null"`
	DisplayName    *string   `json:"display_name,omitempty" gorm:"type:varchar(512)"`
	NormalizedName string    `json:"normalized_name" gorm:"type:varchar(512);not null;index:idx_products_normalized_name"`
	Keywords       *string   `json:"keywords,omitempty" gorm:"type:text"`
	CanonicalKey   *string   `json:"canonical_key,omitempty" gorm:"type:varchar(128);uniqueIndex:ux_products_canonical_key"`
	CreatedAt      time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt      time.Time `json:"updated_at" gorm:"not null;index:idx_products_updated_at"`

	Prices []ProductPrice `json:"prices,omitempty" gorm:"-"`
}

func (Product) TableName() string { return "products" }

// Label is the display name when set, else the raw name.
func (p Product) Label() string {
	if p.DisplayName != nil && strings.TrimSpace(*p.DisplayName) != "" {
		return *p.DisplayName
	}
	return p.Name
}

// ProductPrice is one provider's offer for a product. There is at most one row
// per (product_id, provider_name).
type ProductPrice struct {
	ID                  int64           `json:"id" gorm:"primaryKey;autoIncrement:false"`
	ProductID           int64           `json:"product_id" gorm:"not null;uniqueIndex:ux_product_prices_product_provider,priority:1"`
	ProviderName        string          `json:"provider_name" gorm:"type:varchar(255);not null;uniqueIndex:ux_product_prices_product_provider,priority:2"`
	ProviderProductName *string         `json:"provider_product_name,omitempty" gorm:"type:varchar(512)"`
	ProviderSKU         *string         `json:"provider_sku,omitempty" gorm:"type:varchar(128)"`
	UnitPrice           decimal.Decimal `json:"unit_price" gorm:"type:decimal(14,2);not null"`
	Currency            string          `json:"currency" gorm:"type:varchar(8);not null;default:ARS"`
	CanonicalKey        *string         `json:"canonical_key,omitempty" gorm:"type:varchar(128);index:idx_product_prices_canonical_key"`
	UploadID            *int64          `json:"upload_id,omitempty" gorm:"index:idx_product_prices_upload_id"`
	LastSeenAt          time.Time       `json:"last_seen_at" gorm:"not null"`
	CreatedAt           time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt           time.Time       `json:"updated_at" gorm:"not null"`
}

func (ProductPrice) TableName() string { return "product_prices" }

// Upload is one ingestion batch. Deleting it deletes the offers it created.
type Upload struct {
	ID            int64             `json:"id" gorm:"primaryKey;autoIncrement:false"`
	Filename      string            `json:"filename" gorm:"type:varchar(512);not null"`
	UploadedAt    time.Time         `json:"uploaded_at" gorm:"not null;index:idx_uploads_uploaded_at"`
	SheetCount    int               `json:"sheet_count" gorm:"not null;default:0"`
	ProcessedRows int               `json:"processed_rows" gorm:"not null;default:0"`
	SkippedRows   int               `json:"skipped_rows" gorm:"not null;default:0"`
	Metadata      datatypes.JSONMap `json:"metadata,omitempty"`
}

func (Upload) TableName() string { return "uploads" }

// AttachPrices assigns each price to its product's Prices slice, replacing
// whatever was loaded before.
func AttachPrices(products []Product, prices []ProductPrice) {
	byProduct := make(map[int64][]ProductPrice, len(products))
	for _, price := range prices {
		byProduct[price.ProductID] = append(byProduct[price.ProductID], price)
	}
	for i := range products {
		products[i].Prices = byProduct[products[i].ID]
	}
}

// IDs returns the product ids in order.
func IDs(products []Product) []int64 {
	ids := make([]int64, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.ID)
	}
	return ids
}
