package pricing

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Factors are the multiplicative pricing factors applied to a vendor unit price.
// A zero factor is treated as unset and defaults to 1.
type Factors struct {
	IVA    float64 `json:"iva"`
	IIBB   float64 `json:"iibb"`
	Profit float64 `json:"profit"`
}

// RoundingStrategy selects how the legacy margin mode rounds its result.
type RoundingStrategy string

const (
	RoundNone      RoundingStrategy = "none"
	RoundNearest10 RoundingStrategy = "nearest_10"
	RoundCeil10    RoundingStrategy = "ceil_10"
	RoundFloor10   RoundingStrategy = "floor_10"
)

// ParseRoundingStrategy maps free-form input to a known strategy, falling back to RoundNone.
func ParseRoundingStrategy(value string) RoundingStrategy {
	switch RoundingStrategy(strings.ToLower(strings.TrimSpace(value))) {
	case RoundNearest10:
		return RoundNearest10
	case RoundCeil10:
		return RoundCeil10
	case RoundFloor10:
		return RoundFloor10
	default:
		return RoundNone
	}
}

// Valid reports whether s names one of the four strategies.
func (s RoundingStrategy) Valid() bool {
	switch s {
	case RoundNone, RoundNearest10, RoundCeil10, RoundFloor10:
		return true
	default:
		return false
	}
}

// Calculator turns a vendor unit price into a final price.
type Calculator interface {
	FinalPrice(base float64) float64
}

// MultiplierCalculator applies base × IVA × IIBB × profit.
type MultiplierCalculator struct {
	Factors Factors
}

// LegacyCalculator applies base × margin followed by a rounding strategy.
type LegacyCalculator struct {
	Margin   float64
	Rounding RoundingStrategy
}

func (c MultiplierCalculator) FinalPrice(base float64) float64 {
	return FinalPrice(base, c.Factors)
}

func (c LegacyCalculator) FinalPrice(base float64) float64 {
	return LegacyFinalPrice(base, c.Margin, c.Rounding)
}

var (
	ten = decimal.NewFromInt(10)
	one = decimal.NewFromInt(1)
)

// WithDefaults replaces unset factors with 1.
func (f Factors) WithDefaults() Factors {
	return Factors{
		IVA:    factorOrOne(f.IVA),
		IIBB:   factorOrOne(f.IIBB),
		Profit: factorOrOne(f.Profit),
	}
}

// FinalPrice computes base × IVA × IIBB × profit rounded half-up to two decimals.
func FinalPrice(base float64, factors Factors) float64 {
	if !isFinite(base) {
		return base
	}
	f := factors.WithDefaults()
	result := decimal.NewFromFloat(base).
		Mul(decimal.NewFromFloat(f.IVA)).
		Mul(decimal.NewFromFloat(f.IIBB)).
		Mul(decimal.NewFromFloat(f.Profit)).
		Round(2)
	return result.InexactFloat64()
}

// LegacyFinalPrice computes base × margin and applies strategy to the candidate.
func LegacyFinalPrice(base, margin float64, strategy RoundingStrategy) float64 {
	if !isFinite(base) {
		return base
	}
	m := one
	if margin != 0 && isFinite(margin) {
		m = decimal.NewFromFloat(margin)
	}
	candidate := decimal.NewFromFloat(base).Mul(m)

	switch strategy {
	case RoundNearest10:
		return candidate.Div(ten).Round(0).Mul(ten).InexactFloat64()
	case RoundCeil10:
		return candidate.Div(ten).Ceil().Mul(ten).InexactFloat64()
	case RoundFloor10:
		return candidate.Div(ten).Floor().Mul(ten).InexactFloat64()
	default:
		return candidate.Round(2).InexactFloat64()
	}
}

func factorOrOne(v float64) float64 {
	if v == 0 || !isFinite(v) {
		return 1
	}
	return v
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
