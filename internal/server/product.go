package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	offerdomain "github.com/smallbiznis/quicksearch/internal/offer/domain"
)

func (s *Server) ListProductOffers(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}
	factors, ok := s.requestFactors(c)
	if !ok {
		return
	}

	resp, err := s.offerSvc.CollectOffersByID(c.Request.Context(), id, offerdomain.Request{
		Factors: factors,
		Query:   strings.TrimSpace(c.Query("q")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) NormalizeCatalog(c *gin.Context) {
	report, err := s.normalizer.NormalizeCatalog(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": report})
}
