package domain

import (
	"context"
	"errors"
	"math"
)

const unitsPerK = 1000.0

// StandardCostCalculator implements unit-based cost calculation with a
// configurable margin multiplier.
type StandardCostCalculator struct {
	pricingRegistry PricingRegistry
	margin          float64
}

// NewStandardCostCalculator creates a new cost calculator. A margin of 0 is
// treated as 1.0 (pass-through pricing).
func NewStandardCostCalculator(registry PricingRegistry, margin float64) *StandardCostCalculator {
	if margin <= 0 {
		margin = 1.0
	}
	return &StandardCostCalculator{
		pricingRegistry: registry,
		margin:          margin,
	}
}

// Calculate computes the cost in minor units. The whole expression is rounded
// exactly once at the end; intermediate terms are never rounded.
func (c *StandardCostCalculator) Calculate(
	ctx context.Context,
	capability string,
	usage Usage,
) (int64, error) {
	if capability == "" {
		return 0, errors.New("capability cannot be empty")
	}

	pricing, err := c.pricingRegistry.GetPricing(ctx, capability)
	if err != nil {
		return 0, err
	}

	inputCost := float64(usage.PromptTokens) / unitsPerK * pricing.InputMinorPer1K
	outputCost := float64(usage.CompletionTokens) / unitsPerK * pricing.OutputMinorPer1K

	return int64(math.Round((inputCost + outputCost) * c.margin)), nil
}
