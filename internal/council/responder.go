package council

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/davidbz/symposium/internal/config"
	"github.com/davidbz/symposium/internal/domain"
	"github.com/davidbz/symposium/internal/metering"
	"github.com/davidbz/symposium/internal/observability"
)

// MeteredCaller is the slice of the metering proxy the council needs. Every
// voice and consolidation call goes through it so each one is billed at most
// once per request ID.
type MeteredCaller interface {
	MeteredCall(
		ctx context.Context,
		accountID string,
		requestID string,
		capability string,
		input string,
		call metering.Call,
	) (*domain.CompletionResponse, domain.Account, error)
}

// Responder runs one persona against the query as a metered capability call.
type Responder struct {
	registry domain.ProviderRegistry
	proxy    MeteredCaller
	model    string
}

// NewResponder creates a new responder.
func NewResponder(registry domain.ProviderRegistry, proxy MeteredCaller, cfg *config.CouncilConfig) *Responder {
	return &Responder{
		registry: registry,
		proxy:    proxy,
		model:    cfg.VoiceModel,
	}
}

// Respond invokes one voice and returns its outcome. A failed invocation is
// captured in the outcome rather than returned, so one voice's failure never
// propagates as an error to the caller.
func (r *Responder) Respond(
	ctx context.Context,
	accountID string,
	persona Persona,
	query string,
	history []domain.TurnSummary,
) domain.Outcome {
	ctx = observability.WithVoice(ctx, persona.Spec.Key)
	logger := observability.FromContext(ctx)

	messages := renderVoiceMessages(persona, query, history)
	input := concatContents(messages)

	requestID := uuid.NewString()
	resp, _, err := r.proxy.MeteredCall(ctx, accountID, requestID, r.model, input,
		func(callCtx context.Context) (*domain.CompletionResponse, error) {
			provider, provErr := r.registry.GetByModel(callCtx, r.model)
			if provErr != nil {
				return nil, provErr
			}
			return provider.Complete(callCtx, &domain.CompletionRequest{
				Model:    r.model,
				Messages: messages,
			})
		})
	if err != nil {
		logger.Warn("voice failed", observability.Error(err))
		return domain.Outcome{
			Voice: persona.Spec.Name,
			Err:   fmt.Sprintf("%v", err),
		}
	}

	answer, summary := splitAnswerSummary(resp.Content)
	logger.Debug("voice answered",
		observability.Int("answer_len", len(answer)))

	return domain.Outcome{
		Voice:   persona.Spec.Name,
		Answer:  answer,
		Summary: summary,
	}
}

func concatContents(messages []domain.Message) string {
	out := ""
	for _, m := range messages {
		out += m.Content
	}
	return out
}
