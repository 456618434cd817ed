package council

import (
	"context"
	"strings"

	"github.com/davidbz/symposium/internal/config"
	"github.com/davidbz/symposium/internal/domain"
	"github.com/davidbz/symposium/internal/observability"
)

// Sanitizer rewrites the raw query for clarity before it reaches the voices.
// Like the selector it calls the provider directly and is never metered, and
// any failure degrades to the raw query untouched.
type Sanitizer struct {
	registry domain.ProviderRegistry
	model    string
	enabled  bool
}

// NewSanitizer creates a new sanitizer.
func NewSanitizer(registry domain.ProviderRegistry, cfg *config.CouncilConfig) *Sanitizer {
	return &Sanitizer{
		registry: registry,
		model:    cfg.SelectorModel,
		enabled:  cfg.SanitizerEnabled,
	}
}

// Sanitize returns the cleaned query, or the raw query when disabled or on
// any failure.
func (s *Sanitizer) Sanitize(ctx context.Context, query string) string {
	if !s.enabled {
		return query
	}

	logger := observability.FromContext(ctx)

	provider, err := s.registry.GetByModel(ctx, s.model)
	if err != nil {
		logger.Warn("sanitizer unavailable, using raw query", observability.Error(err))
		return query
	}

	resp, err := provider.Complete(ctx, &domain.CompletionRequest{
		Model: s.model,
		Messages: []domain.Message{
			{Role: "system", Content: sanitizerSystemPrompt},
			{Role: "user", Content: query},
		},
		Temperature: 0,
	})
	if err != nil {
		logger.Warn("sanitization failed, using raw query", observability.Error(err))
		return query
	}

	cleaned := strings.TrimSpace(resp.Content)
	if cleaned == "" {
		return query
	}
	return cleaned
}
