package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/dig"

	"github.com/davidbz/symposium/internal/config"
	"github.com/davidbz/symposium/internal/conversation/memory"
	convredis "github.com/davidbz/symposium/internal/conversation/redis"
	"github.com/davidbz/symposium/internal/council"
	"github.com/davidbz/symposium/internal/domain"
	"github.com/davidbz/symposium/internal/http"
	"github.com/davidbz/symposium/internal/http/middleware"
	ledgermem "github.com/davidbz/symposium/internal/ledger/memory"
	ledgerredis "github.com/davidbz/symposium/internal/ledger/redis"
	"github.com/davidbz/symposium/internal/metering"
	"github.com/davidbz/symposium/internal/observability"
	"github.com/davidbz/symposium/internal/provider/echo"
	"github.com/davidbz/symposium/internal/provider/openai"
	"github.com/davidbz/symposium/internal/provider/registry"
)

// ErrProviderNotConfigured indicates that a provider is not configured and should be skipped.
var ErrProviderNotConfigured = errors.New("provider not configured")

func main() {
	container := buildContainer()

	err := container.Invoke(func(server *http.Server) {
		if err := server.Start(); err != nil {
			log.Fatalf("Server failed to start: %v", err)
		}
	})
	if err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}
}

func buildContainer() *dig.Container {
	container := dig.New()

	provide := func(constructor interface{}) {
		if err := container.Provide(constructor); err != nil {
			log.Fatalf("Failed to provide dependency: %v", err)
		}
	}

	// Configuration
	provide(config.Load)
	provide(config.ParseDependenciesConfig)

	// Observability
	provide(observability.InitLogger)
	provide(slog.Default)
	provide(func(bus *observability.EventBus) domain.EventPublisher { return bus })
	provide(observability.NewEventBus)

	// Redis (optional; an empty REDIS_ADDR selects the in-memory backends)
	provide(func(cfg *config.RedisConfig) *goredis.Client {
		if cfg.Addr == "" {
			return nil
		}
		return goredis.NewClient(&goredis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
	})

	// Stores
	provide(func(client *goredis.Client, billing *config.BillingConfig) domain.UsageLedger {
		if client != nil {
			return ledgerredis.NewStore(client, billing.StartingBalanceMinorUnits)
		}
		return ledgermem.NewStore(billing.StartingBalanceMinorUnits)
	})
	provide(func(client *goredis.Client) domain.ConversationStore {
		if client != nil {
			return convredis.NewStore(client)
		}
		return memory.NewStore()
	})

	// Pricing and cost model
	provide(func() domain.PricingRegistry { return domain.NewDefaultPricingRegistry() })
	provide(func(pricing domain.PricingRegistry, billing *config.BillingConfig) domain.CostCalculator {
		return domain.NewStandardCostCalculator(pricing, billing.MarginMultiplier)
	})
	provide(domain.NewUsageEstimator)

	// Provider Registry
	provide(func() domain.ProviderRegistry {
		return registry.NewRegistry()
	})

	// OpenAI Provider
	provide(func(cfg *config.Config) (*openai.Provider, error) {
		if cfg.OpenAI.APIKey == "" {
			return nil, ErrProviderNotConfigured
		}

		return openai.NewProvider(openai.Config{
			APIKey:     cfg.OpenAI.APIKey,
			BaseURL:    cfg.OpenAI.BaseURL,
			Timeout:    cfg.OpenAI.Timeout,
			MaxRetries: cfg.OpenAI.MaxRetries,
		})
	})

	// Register providers with registry (invoked for side effects).
	// Echo serves development and testing without an upstream; it registers
	// in its own Invoke so an unconfigured optional provider cannot abort it.
	if err := container.Invoke(func(reg domain.ProviderRegistry) error {
		if err := reg.Register(context.Background(), echo.NewProvider()); err != nil {
			return fmt.Errorf("failed to register echo provider: %w", err)
		}
		return nil
	}); err != nil {
		log.Fatalf("Failed to register providers: %v", err)
	}

	// Register OpenAI if enabled
	if err := container.Invoke(func(
		reg domain.ProviderRegistry,
		openaiProvider *openai.Provider,
	) error {
		return reg.Register(context.Background(), openaiProvider)
	}); err != nil {
		// Ignore ErrProviderNotConfigured as it's expected for optional providers
		if !errors.Is(err, ErrProviderNotConfigured) {
			log.Fatalf("Failed to register OpenAI provider: %v", err)
		}
	}

	// Metering
	provide(metering.NewProxy)
	provide(func(p *metering.Proxy) council.MeteredCaller { return p })

	// Council
	provide(council.LoadCatalog)
	provide(council.NewSelector)
	provide(council.NewSanitizer)
	provide(council.NewResponder)
	provide(council.NewConsolidator)
	provide(council.NewOrchestrator)

	// HTTP Layer
	provide(func() domain.AccountResolver { return middleware.NewPassthroughResolver() })
	provide(middleware.BuildMiddlewareChain)
	provide(http.NewHandler)
	provide(http.NewServer)

	return container
}
