package council

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/davidbz/symposium/internal/config"
	"github.com/davidbz/symposium/internal/domain"
	"github.com/davidbz/symposium/internal/observability"
)

// Pick is one selected voice plus the focused sub-query the selector crafted
// for it. An empty SubQuery means the voice answers the turn's query as-is.
type Pick struct {
	Spec     domain.VoiceSpec
	SubQuery string
}

// Selection is the selector's output: the voices to convene plus the
// reasoning that later surfaces in the turn rationale.
type Selection struct {
	Picks     []Pick
	Rationale string
}

// Selector picks the council composition for a query. Selection calls go
// straight to the provider and are never metered; a selection failure can
// therefore never incur a charge, it degrades to the fallback voice instead.
type Selector struct {
	registry  domain.ProviderRegistry
	catalog   *Catalog
	model     string
	maxVoices int
}

// NewSelector creates a new selector.
func NewSelector(registry domain.ProviderRegistry, catalog *Catalog, cfg *config.CouncilConfig) *Selector {
	return &Selector{
		registry:  registry,
		catalog:   catalog,
		model:     cfg.SelectorModel,
		maxVoices: cfg.MaxVoices,
	}
}

type selectionPayload struct {
	Voices []struct {
		Source      string `json:"source"`
		Key         string `json:"key"`
		Name        string `json:"name"`
		Description string `json:"description"`
		Query       string `json:"query"`
	} `json:"voices"`
	Rationale string `json:"rationale"`
}

// Select determines the voices for one turn. It never returns an error: any
// failure, from the provider being down to unparseable output, degrades to
// the fallback persona with the failure noted in the rationale.
func (s *Selector) Select(ctx context.Context, query string, history []domain.TurnSummary) Selection {
	logger := observability.FromContext(ctx)

	sel, err := s.trySelect(ctx, query, history)
	if err != nil {
		logger.Warn("voice selection failed, using fallback",
			observability.Error(err))
		return Selection{
			Picks:     []Pick{{Spec: s.catalog.Fallback().Spec}},
			Rationale: fmt.Sprintf("fallback selection due to error: %v", err),
		}
	}

	logger.Debug("voices selected",
		observability.Int("count", len(sel.Picks)),
		observability.String("rationale", sel.Rationale))
	return sel
}

func (s *Selector) trySelect(ctx context.Context, query string, history []domain.TurnSummary) (Selection, error) {
	provider, err := s.registry.GetByModel(ctx, s.model)
	if err != nil {
		return Selection{}, fmt.Errorf("%w: %v", domain.ErrSelectionFailed, err)
	}

	messages := []domain.Message{
		{Role: "system", Content: renderSelectorSystem(s.catalog, s.maxVoices)},
	}
	if h := renderHistory(history); h != "" {
		messages = append(messages, domain.Message{Role: "system", Content: h})
	}
	messages = append(messages, domain.Message{Role: "user", Content: query})

	resp, err := provider.Complete(ctx, &domain.CompletionRequest{
		Model:       s.model,
		Messages:    messages,
		Temperature: 0.2,
	})
	if err != nil {
		return Selection{}, fmt.Errorf("%w: %v", domain.ErrSelectionFailed, err)
	}

	return s.parseSelection(resp.Content)
}

// parseSelection validates the model's composition against the catalog.
// Unknown catalog keys and malformed ad hoc entries invalidate the whole
// selection rather than being silently dropped.
func (s *Selector) parseSelection(content string) (Selection, error) {
	var payload selectionPayload
	if err := json.Unmarshal([]byte(stripCodeFences(content)), &payload); err != nil {
		return Selection{}, fmt.Errorf("%w: unparseable selection: %v", domain.ErrSelectionFailed, err)
	}

	if len(payload.Voices) == 0 {
		return Selection{}, fmt.Errorf("%w: empty selection", domain.ErrSelectionFailed)
	}
	if len(payload.Voices) > s.maxVoices {
		payload.Voices = payload.Voices[:s.maxVoices]
	}

	seen := make(map[string]bool, len(payload.Voices))
	picks := make([]Pick, 0, len(payload.Voices))
	for _, v := range payload.Voices {
		switch v.Source {
		case domain.VoiceSourceCatalog:
			persona, exists := s.catalog.Get(v.Key)
			if !exists || v.Key == fallbackKey {
				return Selection{}, fmt.Errorf("%w: unknown voice %q", domain.ErrSelectionFailed, v.Key)
			}
			if seen[persona.Spec.Key] {
				continue
			}
			seen[persona.Spec.Key] = true
			picks = append(picks, Pick{Spec: persona.Spec, SubQuery: v.Query})
		case domain.VoiceSourceAdHoc:
			if v.Name == "" {
				return Selection{}, fmt.Errorf("%w: ad hoc voice without a name", domain.ErrSelectionFailed)
			}
			key := "adhoc:" + v.Name
			if seen[key] {
				continue
			}
			seen[key] = true
			picks = append(picks, Pick{
				Spec: domain.VoiceSpec{
					Source:      domain.VoiceSourceAdHoc,
					Key:         key,
					Name:        v.Name,
					Description: v.Description,
				},
				SubQuery: v.Query,
			})
		default:
			return Selection{}, fmt.Errorf("%w: unknown voice source %q", domain.ErrSelectionFailed, v.Source)
		}
	}

	return Selection{Picks: picks, Rationale: payload.Rationale}, nil
}

// persona resolves a spec back to a runnable persona. Ad hoc specs become
// transient personas that live only for the turn.
func (s *Selector) persona(spec domain.VoiceSpec) Persona {
	if spec.Source == domain.VoiceSourceCatalog {
		if p, exists := s.catalog.Get(spec.Key); exists {
			return p
		}
	}
	return Persona{Spec: spec}
}
