package council_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/symposium/internal/config"
	"github.com/davidbz/symposium/internal/council"
	"github.com/davidbz/symposium/internal/domain"
	ledgermem "github.com/davidbz/symposium/internal/ledger/memory"
	"github.com/davidbz/symposium/internal/metering"
	"github.com/davidbz/symposium/internal/provider/registry"
)

const (
	selectorModel = "selector-model"
	voiceModel    = "voice-model"
)

// fakeProvider scripts completions per model.
type fakeProvider struct {
	name     string
	models   []string
	complete func(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error)
}

func (p *fakeProvider) Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
	return p.complete(ctx, req)
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) IsModelSupported(_ context.Context, model string) bool {
	for _, m := range p.models {
		if m == model {
			return true
		}
	}
	return false
}

func (p *fakeProvider) SupportedModels(_ context.Context) []string { return p.models }

// respondWith scripts a provider that always answers content with fixed
// reported usage, so costs are deterministic.
func respondWith(content string, promptTokens, completionTokens int) func(context.Context, *domain.CompletionRequest) (*domain.CompletionResponse, error) {
	return func(_ context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
		return &domain.CompletionResponse{
			ID:      "resp-1",
			Model:   req.Model,
			Content: content,
			Usage: domain.Usage{
				PromptTokens:     promptTokens,
				CompletionTokens: completionTokens,
				TotalTokens:      promptTokens + completionTokens,
			},
		}, nil
	}
}

func testCouncilConfig() *config.CouncilConfig {
	return &config.CouncilConfig{
		MaxVoices:         5,
		TurnTimeout:       5,
		HistoryDepth:      5,
		SanitizerEnabled:  false,
		SelectorModel:     selectorModel,
		VoiceModel:        voiceModel,
		ConsolidatorModel: voiceModel,
	}
}

func testBillingConfig(startingBalance int64) *config.BillingConfig {
	return &config.BillingConfig{
		StartingBalanceMinorUnits: startingBalance,
		FloorMinorUnits:           -10,
		MarginMultiplier:          1.0,
	}
}

// newTestRegistry registers scripted providers for the selector and voice
// models.
func newTestRegistry(
	t *testing.T,
	selectorFn func(context.Context, *domain.CompletionRequest) (*domain.CompletionResponse, error),
	voiceFn func(context.Context, *domain.CompletionRequest) (*domain.CompletionResponse, error),
) *registry.Registry {
	t.Helper()

	reg := registry.NewRegistry()
	ctx := context.Background()

	if selectorFn != nil {
		require.NoError(t, reg.Register(ctx, &fakeProvider{
			name:     "fake-selector",
			models:   []string{selectorModel},
			complete: selectorFn,
		}))
	}
	if voiceFn != nil {
		require.NoError(t, reg.Register(ctx, &fakeProvider{
			name:     "fake-voice",
			models:   []string{voiceModel},
			complete: voiceFn,
		}))
	}

	return reg
}

// newTestProxy builds a real metering stack over an in-memory ledger with the
// voice model priced at 100 minor units per 1K tokens on both sides. A call
// reporting 100 prompt and 200 completion tokens costs exactly 30.
func newTestProxy(t *testing.T, startingBalance int64) (*metering.Proxy, *ledgermem.Store) {
	t.Helper()

	ledger := ledgermem.NewStore(startingBalance)
	pricing := domain.NewInMemoryPricingRegistry()
	require.NoError(t, pricing.RegisterPricing(context.Background(), voiceModel, domain.PricingConfig{
		InputMinorPer1K:  100.0,
		OutputMinorPer1K: 100.0,
	}))

	proxy := metering.NewProxy(
		ledger,
		pricing,
		domain.NewStandardCostCalculator(pricing, 1.0),
		domain.NewUsageEstimator(),
		nil,
		testBillingConfig(startingBalance),
	)
	return proxy, ledger
}

func mustCatalog(t *testing.T) *council.Catalog {
	t.Helper()
	catalog, err := council.LoadCatalog()
	require.NoError(t, err)
	return catalog
}

// selectionJSON builds a selector response picking the given catalog keys.
func selectionJSON(rationale string, keys ...string) string {
	voices := ""
	for i, key := range keys {
		if i > 0 {
			voices += ","
		}
		voices += fmt.Sprintf(`{"source":"catalog","key":%q}`, key)
	}
	return fmt.Sprintf(`{"voices":[%s],"rationale":%q}`, voices, rationale)
}
