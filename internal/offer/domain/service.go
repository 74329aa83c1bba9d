package domain

import (
	"context"
	"time"

	catalogdomain "github.com/smallbiznis/quicksearch/internal/catalog/domain"
	"github.com/smallbiznis/quicksearch/internal/pricing"
)

const UnknownProvider = "Proveedor desconocido"

type Service interface {
	// CollectOffers gathers one offer per provider for product and its
	// siblings, priced with factors and sorted cheapest first. Prices already
	// attached to product are merged in.
	CollectOffers(ctx context.Context, product *catalogdomain.Product, req Request) (*Result, error)
	// ListOffers prices the offers already attached to product, without
	// looking up siblings.
	ListOffers(product *catalogdomain.Product, factors pricing.Factors) *Result
	// CollectOffersByID loads the product first. A missing product is
	// catalogdomain.ErrNotFound.
	CollectOffersByID(ctx context.Context, productID int64, req Request) (*Result, error)
}

type Request struct {
	Factors pricing.Factors
	// Query, when set, replaces the product label as the sibling search text.
	Query string
}

type Result struct {
	Offers       []Offer `json:"offers"`
	CanonicalKey *string `json:"canonical_key"`
}

type Offer struct {
	PriceID             string    `json:"price_id"`
	ProviderName        string    `json:"provider_name"`
	ProviderProductName string    `json:"provider_product_name"`
	UnitPrice           float64   `json:"unit_price"`
	UnitPriceFmt        string    `json:"unit_price_fmt"`
	FinalPrice          float64   `json:"final_price"`
	FinalPriceFmt       string    `json:"final_price_fmt"`
	Currency            string    `json:"currency"`
	LastSeenAt          time.Time `json:"last_seen_at"`
	SourceProductID     string    `json:"source_product_id"`
	SourceProductName   string    `json:"source_product_name"`
	CanonicalKey        *string   `json:"canonical_key,omitempty"`
	IsBest              bool      `json:"is_best"`
}
