package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	catalogdomain "github.com/smallbiznis/quicksearch/internal/catalog/domain"
	offerdomain "github.com/smallbiznis/quicksearch/internal/offer/domain"
	searchdomain "github.com/smallbiznis/quicksearch/internal/search/domain"
)

const defaultSearchLimit = 50

type searchResult struct {
	Product      catalogdomain.Product `json:"product"`
	Score        float64               `json:"score"`
	Stage        string                `json:"stage"`
	CanonicalKey *string               `json:"canonical_key,omitempty"`
	Offers       []offerdomain.Offer   `json:"offers"`
}

type searchResponse struct {
	Query   string         `json:"query"`
	Results []searchResult `json:"results"`
}

func (s *Server) Search(c *gin.Context) {
	var query struct {
		Q     string `form:"q"`
		Limit string `form:"limit"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	limit, err := parseOptionalInt(query.Limit)
	if err != nil {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
		return
	}
	factors, ok := s.requestFactors(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	s.obsMetrics.RecordSearch(ctx, "search")

	q := strings.TrimSpace(query.Q)
	hits, err := s.searchSvc.Search(ctx, q, clampLimit(limit, s.searchLimit()))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := searchResponse{Query: q, Results: make([]searchResult, 0, len(hits))}
	for _, hit := range hits {
		product := hit.Product
		offers := s.offerSvc.ListOffers(&product, factors)
		product.Prices = nil
		resp.Results = append(resp.Results, searchResult{
			Product:      product,
			Score:        hit.Score,
			Stage:        hit.Stage,
			CanonicalKey: offers.CanonicalKey,
			Offers:       offers.Offers,
		})
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) Suggest(c *gin.Context) {
	ctx := c.Request.Context()
	s.obsMetrics.RecordSearch(ctx, "suggest")

	suggestions, err := s.searchSvc.Suggest(ctx, strings.TrimSpace(c.Query("q")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if suggestions == nil {
		suggestions = []searchdomain.Suggestion{}
	}

	c.JSON(http.StatusOK, gin.H{"data": suggestions})
}

func (s *Server) searchLimit() int {
	if s.cfg.Search.DefaultLimit > 0 {
		return s.cfg.Search.DefaultLimit
	}
	return defaultSearchLimit
}
