package domain

import "context"

type Service interface {
	// NormalizeCatalog merges offers that resolve to the same canonical
	// identity into one product and deletes products left without offers.
	// Running it twice in a row makes no changes the second time.
	NormalizeCatalog(ctx context.Context) (*Report, error)
}

// Report counts what one normalization run did.
type Report struct {
	ProductsVisited  int `json:"products_visited"`
	OffersMoved      int `json:"offers_moved"`
	CanonicalCreated int `json:"canonical_created"`
	OrphansDeleted   int `json:"orphans_deleted"`
	Unmatched        int `json:"unmatched"`
	Failed           int `json:"failed"`
}
