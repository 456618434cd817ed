package domain

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// InMemoryPricingRegistry stores pricing configs in memory.
type InMemoryPricingRegistry struct {
	mu      sync.RWMutex
	pricing map[string]PricingConfig
}

// NewInMemoryPricingRegistry creates a new in-memory pricing registry.
func NewInMemoryPricingRegistry() *InMemoryPricingRegistry {
	return &InMemoryPricingRegistry{
		mu:      sync.RWMutex{},
		pricing: make(map[string]PricingConfig),
	}
}

// NewDefaultPricingRegistry creates a registry seeded with the default
// pricing table (minor units per 1K tokens).
func NewDefaultPricingRegistry() *InMemoryPricingRegistry {
	r := NewInMemoryPricingRegistry()

	defaults := map[string]PricingConfig{
		"gpt-4o-mini":   {InputMinorPer1K: 3.0, OutputMinorPer1K: 6.0},
		"gpt-4o":        {InputMinorPer1K: 5.0, OutputMinorPer1K: 15.0},
		"gpt-4":         {InputMinorPer1K: 30.0, OutputMinorPer1K: 60.0},
		"gpt-3.5-turbo": {InputMinorPer1K: 1.0, OutputMinorPer1K: 1.0},
		// Deterministic dev/test capability.
		"echo4": {InputMinorPer1K: 10.0, OutputMinorPer1K: 10.0},
	}

	for capability, cfg := range defaults {
		r.pricing[capability] = cfg
	}

	return r
}

// GetPricing retrieves pricing for a capability.
func (r *InMemoryPricingRegistry) GetPricing(
	_ context.Context,
	capability string,
) (PricingConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	config, exists := r.pricing[capability]
	if !exists {
		return PricingConfig{}, fmt.Errorf("%w: %s", ErrUnknownPricing, capability)
	}

	return config, nil
}

// RegisterPricing adds pricing for a capability.
func (r *InMemoryPricingRegistry) RegisterPricing(
	_ context.Context,
	capability string,
	config PricingConfig,
) error {
	if capability == "" {
		return errors.New("capability cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.pricing[capability] = config
	return nil
}
