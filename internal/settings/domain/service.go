package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/quicksearch/internal/pricing"
)

type Service interface {
	Get(ctx context.Context) (*Settings, error)
	Update(ctx context.Context, req UpdateRequest) (*Settings, error)
	// Factors returns the default multipliers for the new-style calculator.
	Factors(ctx context.Context) (pricing.Factors, error)
}

// UpdateRequest changes only the fields that are set.
type UpdateRequest struct {
	DefaultIVA              *float64 `json:"default_iva"`
	DefaultIIBB             *float64 `json:"default_iibb"`
	DefaultProfit           *float64 `json:"default_profit"`
	DefaultMarginMultiplier *float64 `json:"default_margin_multiplier"`
	RoundingStrategy        *string  `json:"rounding_strategy"`
}

var (
	ErrInvalidFactor   = errors.New("invalid_factor")
	ErrInvalidRounding = errors.New("invalid_rounding_strategy")
)
