package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/quicksearch/internal/pricing"
	settingsdomain "github.com/smallbiznis/quicksearch/internal/settings/domain"
)

type priceResponse struct {
	Base             float64                  `json:"base"`
	Mode             string                   `json:"mode"`
	Factors          *pricing.Factors         `json:"factors,omitempty"`
	MarginMultiplier *float64                 `json:"margin_multiplier,omitempty"`
	RoundingStrategy pricing.RoundingStrategy `json:"rounding_strategy,omitempty"`
	FinalPrice       float64                  `json:"final_price"`
	FinalPriceFmt    string                   `json:"final_price_fmt"`
}

// requestFactors overlays iva, iibb and profit query values on the stored
// defaults. It aborts the request and returns false on bad input.
func (s *Server) requestFactors(c *gin.Context) (pricing.Factors, bool) {
	factors, err := s.settingsSvc.Factors(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return pricing.Factors{}, false
	}

	overrides := []struct {
		name   string
		target *float64
	}{
		{name: "iva", target: &factors.IVA},
		{name: "iibb", target: &factors.IIBB},
		{name: "profit", target: &factors.Profit},
	}
	for _, o := range overrides {
		value, err := parseOptionalFloat(c.Query(o.name))
		if err != nil || (value != nil && *value <= 0) {
			AbortWithError(c, newValidationError(o.name, "invalid_"+o.name, "invalid "+o.name))
			return pricing.Factors{}, false
		}
		if value != nil {
			*o.target = *value
		}
	}
	return factors, true
}

// CalculatePrice prices a single base amount. Passing margin selects the
// legacy margin and rounding mode; otherwise the multiplier mode is used.
func (s *Server) CalculatePrice(c *gin.Context) {
	base, err := parseOptionalFloat(c.Query("base"))
	if err != nil || base == nil || *base < 0 {
		AbortWithError(c, newValidationError("base", "invalid_base", "invalid base"))
		return
	}

	calc, resp, ok := s.priceCalculator(c)
	if !ok {
		return
	}
	resp.Base = *base
	resp.FinalPrice = calc.FinalPrice(*base)
	resp.FinalPriceFmt = pricing.FormatAmount(resp.FinalPrice)
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// priceCalculator picks the calculator for the request and fills the mode
// fields of the response.
func (s *Server) priceCalculator(c *gin.Context) (pricing.Calculator, priceResponse, bool) {
	margin, err := parseOptionalFloat(c.Query("margin"))
	if err != nil || (margin != nil && *margin <= 0) {
		AbortWithError(c, newValidationError("margin", "invalid_margin", "invalid margin"))
		return nil, priceResponse{}, false
	}

	if margin != nil {
		strategy, ok := s.requestRounding(c)
		if !ok {
			return nil, priceResponse{}, false
		}
		return pricing.LegacyCalculator{Margin: *margin, Rounding: strategy}, priceResponse{
			Mode:             "legacy",
			MarginMultiplier: margin,
			RoundingStrategy: strategy,
		}, true
	}

	factors, ok := s.requestFactors(c)
	if !ok {
		return nil, priceResponse{}, false
	}
	return pricing.MultiplierCalculator{Factors: factors}, priceResponse{
		Mode:    "multiplier",
		Factors: &factors,
	}, true
}

func (s *Server) requestRounding(c *gin.Context) (pricing.RoundingStrategy, bool) {
	raw := strings.ToLower(strings.TrimSpace(c.Query("rounding")))
	if raw == "" {
		current, err := s.settingsSvc.Get(c.Request.Context())
		if err != nil {
			AbortWithError(c, err)
			return "", false
		}
		return pricing.ParseRoundingStrategy(current.RoundingStrategy), true
	}
	strategy := pricing.RoundingStrategy(raw)
	if !strategy.Valid() {
		AbortWithError(c, settingsdomain.ErrInvalidRounding)
		return "", false
	}
	return strategy, true
}

func (s *Server) GetSettings(c *gin.Context) {
	resp, err := s.settingsSvc.Get(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateSettings(c *gin.Context) {
	var req settingsdomain.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.settingsSvc.Update(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
