package domain

import (
	"context"

	catalogdomain "github.com/smallbiznis/quicksearch/internal/catalog/domain"
)

const (
	StageFullText     = "full_text"
	StageSubstringAll = "substring_all"
	StageSubstringAny = "substring_any"
	StageFuzzy        = "fuzzy"
)

// MaxScore is the relevance given to every exact stage hit before variant bonuses.
const MaxScore = 100.0

type Service interface {
	// Search returns at most limit products, highest relevance first, with
	// their offers attached. An empty query yields no hits.
	Search(ctx context.Context, query string, limit int) ([]Hit, error)
	Suggest(ctx context.Context, query string) ([]Suggestion, error)
}

type Hit struct {
	Product catalogdomain.Product `json:"product"`
	Score   float64               `json:"score"`
	Stage   string                `json:"stage"`
}

// Suggestion is one typeahead entry. CheapestPrice is the lowest unit price
// across providers, nil when the product has no offers.
type Suggestion struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	PriceLabel    string   `json:"cheapest_price_fmt"`
	CheapestPrice *float64 `json:"cheapest_price,omitempty"`
	ProviderCount int      `json:"provider_count"`
	Currency      string   `json:"currency"`
}

// SuggestionCache is a best-effort cache of suggestion lists keyed by CacheKey.
type SuggestionCache interface {
	Get(ctx context.Context, key string) ([]Suggestion, bool)
	Set(ctx context.Context, key string, value []Suggestion)
	Clear(ctx context.Context) error
}
