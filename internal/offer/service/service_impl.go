package service

import (
	"context"
	"sort"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	catalogdomain "github.com/smallbiznis/quicksearch/internal/catalog/domain"
	"github.com/smallbiznis/quicksearch/internal/offer/domain"
	"github.com/smallbiznis/quicksearch/internal/pricing"
	searchdomain "github.com/smallbiznis/quicksearch/internal/search/domain"
	"github.com/smallbiznis/quicksearch/internal/textnorm"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	siblingSearchLimit = 40
	minSiblingScore    = 65.0
)

var (
	dedupEpsilon = decimal.RequireFromString("0.005")
	bestEpsilon  = decimal.RequireFromString("0.01")
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Repo   catalogdomain.Repository
	Search searchdomain.Service
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	repo   catalogdomain.Repository
	search searchdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("offer.service"),
		repo:   p.Repo,
		search: p.Search,
	}
}

func (s *Service) CollectOffersByID(ctx context.Context, productID int64, req domain.Request) (*domain.Result, error) {
	product, err := s.repo.FindProductByID(ctx, s.db, productID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, catalogdomain.ErrNotFound
	}
	return s.CollectOffers(ctx, product, req)
}

func (s *Service) CollectOffers(ctx context.Context, product *catalogdomain.Product, req domain.Request) (*domain.Result, error) {
	canonicalKey := nonEmpty(product.CanonicalKey)

	var hits []searchdomain.Hit
	if canonicalKey == nil {
		basis := strings.TrimSpace(req.Query)
		if basis == "" {
			basis = product.Label()
		}
		var err error
		hits, err = s.search.Search(ctx, basis, siblingSearchLimit)
		if err != nil {
			return nil, err
		}
		for _, hit := range hits {
			if key := nonEmpty(hit.Product.CanonicalKey); key != nil {
				canonicalKey = key
				break
			}
		}
	}

	var (
		rows []catalogdomain.ProductPrice
		err  error
	)
	if canonicalKey != nil {
		rows, err = s.repo.ListPricesByCanonicalKey(ctx, s.db, *canonicalKey)
	} else {
		ids := []int64{product.ID}
		for _, hit := range hits {
			if hit.Product.ID != product.ID && hit.Score >= minSiblingScore {
				ids = append(ids, hit.Product.ID)
			}
		}
		rows, err = s.repo.ListPricesByProducts(ctx, s.db, ids)
	}
	if err != nil {
		return nil, err
	}

	rows = mergePrices(rows, product.Prices)
	if canonicalKey == nil {
		for _, row := range rows {
			if key := nonEmpty(row.CanonicalKey); key != nil {
				canonicalKey = key
				break
			}
		}
	}

	names, err := s.productNames(ctx, product, rows)
	if err != nil {
		return nil, err
	}

	offers := buildOffers(rows, names, req.Factors)
	s.log.Debug("offers collected",
		zap.Int64("product_id", product.ID),
		zap.Int("rows", len(rows)),
		zap.Int("offers", len(offers)),
	)
	return &domain.Result{Offers: offers, CanonicalKey: canonicalKey}, nil
}

// ListOffers prices only the offers attached to product. Search results use it
// so each hit lists its own providers; sibling resolution stays on
// CollectOffers.
func (s *Service) ListOffers(product *catalogdomain.Product, factors pricing.Factors) *domain.Result {
	names := map[int64]string{product.ID: product.Label()}
	rows := make([]catalogdomain.ProductPrice, 0, len(product.Prices))
	for _, row := range product.Prices {
		if row.ProductID != product.ID {
			continue
		}
		rows = append(rows, row)
	}
	return &domain.Result{
		Offers:       buildOffers(rows, names, factors),
		CanonicalKey: nonEmpty(product.CanonicalKey),
	}
}

// productNames maps every product referenced by rows to its label.
func (s *Service) productNames(ctx context.Context, product *catalogdomain.Product, rows []catalogdomain.ProductPrice) (map[int64]string, error) {
	names := map[int64]string{product.ID: product.Label()}
	var missing []int64
	for _, row := range rows {
		if _, ok := names[row.ProductID]; ok {
			continue
		}
		names[row.ProductID] = ""
		missing = append(missing, row.ProductID)
	}
	if len(missing) == 0 {
		return names, nil
	}
	products, err := s.repo.FindProductsByIDs(ctx, s.db, missing)
	if err != nil {
		return nil, err
	}
	for _, p := range products {
		names[p.ID] = p.Label()
	}
	return names, nil
}

// mergePrices adds in-memory rows that the store did not return.
func mergePrices(stored, attached []catalogdomain.ProductPrice) []catalogdomain.ProductPrice {
	seen := make(map[int64]struct{}, len(stored))
	out := make([]catalogdomain.ProductPrice, 0, len(stored)+len(attached))
	for _, row := range stored {
		seen[row.ID] = struct{}{}
		out = append(out, row)
	}
	for _, row := range attached {
		if row.ID != 0 {
			if _, ok := seen[row.ID]; ok {
				continue
			}
			seen[row.ID] = struct{}{}
		}
		out = append(out, row)
	}
	return out
}

type candidate struct {
	offer domain.Offer
	final decimal.Decimal
}

func buildOffers(rows []catalogdomain.ProductPrice, names map[int64]string, factors pricing.Factors) []domain.Offer {
	byProvider := make(map[string]*candidate)
	order := make([]string, 0, len(rows))

	for _, row := range rows {
		provider := strings.TrimSpace(row.ProviderName)
		if provider == "" {
			provider = domain.UnknownProvider
		}
		currency := strings.TrimSpace(row.Currency)
		if currency == "" {
			currency = catalogdomain.DefaultCurrency
		}
		base := row.UnitPrice.Round(2).InexactFloat64()
		final := pricing.FinalPrice(row.UnitPrice.InexactFloat64(), factors)

		source := names[row.ProductID]
		providerName := source
		if row.ProviderProductName != nil && strings.TrimSpace(*row.ProviderProductName) != "" {
			providerName = *row.ProviderProductName
		}

		next := &candidate{
			final: decimal.NewFromFloat(final),
			offer: domain.Offer{
				PriceID:             idString(row.ID),
				ProviderName:        provider,
				ProviderProductName: providerName,
				UnitPrice:           base,
				UnitPriceFmt:        pricing.FormatAmount(base),
				FinalPrice:          final,
				FinalPriceFmt:       pricing.FormatAmount(final),
				Currency:            currency,
				LastSeenAt:          row.UpdatedAt,
				SourceProductID:     idString(row.ProductID),
				SourceProductName:   source,
				CanonicalKey:        row.CanonicalKey,
			},
		}

		key := textnorm.Normalize(provider)
		current, ok := byProvider[key]
		if !ok {
			byProvider[key] = next
			order = append(order, key)
			continue
		}
		if replaces(next, current) {
			byProvider[key] = next
		}
	}

	kept := make([]*candidate, 0, len(order))
	for _, key := range order {
		kept = append(kept, byProvider[key])
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if !kept[i].final.Equal(kept[j].final) {
			return kept[i].final.LessThan(kept[j].final)
		}
		return kept[i].offer.ProviderName < kept[j].offer.ProviderName
	})

	offers := make([]domain.Offer, 0, len(kept))
	for _, c := range kept {
		if c.final.Sub(kept[0].final).Abs().LessThanOrEqual(bestEpsilon) {
			c.offer.IsBest = true
		}
		offers = append(offers, c.offer)
	}
	return offers
}

// replaces reports whether next should win over current for the same
// provider: strictly cheaper, or equal within epsilon and more recent.
func replaces(next, current *candidate) bool {
	diff := next.final.Sub(current.final)
	if diff.LessThan(dedupEpsilon.Neg()) {
		return true
	}
	return diff.Abs().LessThanOrEqual(dedupEpsilon) && next.offer.LastSeenAt.After(current.offer.LastSeenAt)
}

func nonEmpty(v *string) *string {
	if v == nil || strings.TrimSpace(*v) == "" {
		return nil
	}
	return v
}

func idString(id int64) string {
	if id == 0 {
		return ""
	}
	return snowflake.ID(id).String()
}
