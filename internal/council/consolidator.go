package council

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/davidbz/symposium/internal/config"
	"github.com/davidbz/symposium/internal/domain"
	"github.com/davidbz/symposium/internal/observability"
)

// Consolidator weaves the voice outcomes into one final answer. The model
// call is metered; when it fails, or when no proxy is configured, the
// deterministic weave keeps the turn producible as long as at least one
// voice answered.
type Consolidator struct {
	registry domain.ProviderRegistry
	proxy    MeteredCaller
	model    string
}

// NewConsolidator creates a new consolidator. A nil proxy selects the
// deterministic weave unconditionally.
func NewConsolidator(registry domain.ProviderRegistry, proxy MeteredCaller, cfg *config.CouncilConfig) *Consolidator {
	return &Consolidator{
		registry: registry,
		proxy:    proxy,
		model:    cfg.ConsolidatorModel,
	}
}

// Consolidate produces the final answer for a turn. Picks align with
// outcomes by index. It returns ErrConsolidationFailed only when every voice
// failed and nothing can be woven.
func (c *Consolidator) Consolidate(
	ctx context.Context,
	accountID string,
	query string,
	picks []Pick,
	outcomes []domain.Outcome,
	history []domain.TurnSummary,
) (string, error) {
	succeeded := 0
	for _, o := range outcomes {
		if !o.Failed() {
			succeeded++
		}
	}
	if succeeded == 0 {
		return "", fmt.Errorf("%w: no voice produced an answer", domain.ErrConsolidationFailed)
	}

	if c.proxy != nil {
		answer, err := c.consolidateWithModel(ctx, accountID, query, picks, outcomes, history)
		if err == nil {
			return answer, nil
		}
		observability.FromContext(ctx).Warn("model consolidation failed, weaving deterministically",
			observability.Error(err))
	}

	return weave(outcomes), nil
}

func (c *Consolidator) consolidateWithModel(
	ctx context.Context,
	accountID string,
	query string,
	picks []Pick,
	outcomes []domain.Outcome,
	history []domain.TurnSummary,
) (string, error) {
	messages := renderConsolidatorMessages(query, picks, outcomes, history)
	input := concatContents(messages)

	requestID := uuid.NewString()
	resp, _, err := c.proxy.MeteredCall(ctx, accountID, requestID, c.model, input,
		func(callCtx context.Context) (*domain.CompletionResponse, error) {
			provider, provErr := c.registry.GetByModel(callCtx, c.model)
			if provErr != nil {
				return nil, provErr
			}
			return provider.Complete(callCtx, &domain.CompletionRequest{
				Model:    c.model,
				Messages: messages,
			})
		})
	if err != nil {
		return "", err
	}

	answer := strings.TrimSpace(resp.Content)
	if answer == "" {
		return "", fmt.Errorf("empty consolidation output")
	}
	return answer, nil
}

// weave assembles the final answer mechanically: each successful voice's
// answer under its name, plus a degraded-mode note for every failed voice.
func weave(outcomes []domain.Outcome) string {
	var b strings.Builder
	for _, o := range outcomes {
		if o.Failed() {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "%s:\n%s", o.Voice, o.Answer)
	}
	for _, o := range outcomes {
		if o.Failed() {
			fmt.Fprintf(&b, "\n\n(%s could not respond.)", o.Voice)
		}
	}
	return b.String()
}
