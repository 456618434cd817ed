package domain

import "context"

// PricingConfig contains capability pricing in minor units (tenths of a cent)
// per 1K usage units. Numerically identical to USD per 1M tokens.
type PricingConfig struct {
	InputMinorPer1K  float64
	OutputMinorPer1K float64
}

// CostCalculator computes the charge for one capability call.
type CostCalculator interface {
	// Calculate returns the cost in minor units for a capability and usage.
	Calculate(ctx context.Context, capability string, usage Usage) (int64, error)
}

// PricingRegistry maintains pricing information for capabilities.
type PricingRegistry interface {
	// GetPricing returns pricing config for a capability.
	GetPricing(ctx context.Context, capability string) (PricingConfig, error)

	// RegisterPricing adds pricing for a capability.
	RegisterPricing(ctx context.Context, capability string, config PricingConfig) error
}
