package council_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/symposium/internal/config"
	"github.com/davidbz/symposium/internal/council"
	convmem "github.com/davidbz/symposium/internal/conversation/memory"
	"github.com/davidbz/symposium/internal/domain"
	ledgermem "github.com/davidbz/symposium/internal/ledger/memory"
	"github.com/davidbz/symposium/internal/provider/registry"
)

// newOrchestrator wires a full turn graph over in-memory stores with a
// deterministic consolidator. Each successful voice call costs exactly 30
// minor units.
func newOrchestrator(
	t *testing.T,
	reg *registry.Registry,
	startingBalance int64,
	cfg *config.CouncilConfig,
) (*council.Orchestrator, *ledgermem.Store, *convmem.Store) {
	t.Helper()

	proxy, ledger := newTestProxy(t, startingBalance)
	conversations := convmem.NewStore()
	catalog := mustCatalog(t)

	orch := council.NewOrchestrator(
		ledger,
		conversations,
		council.NewSelector(reg, catalog, cfg),
		council.NewSanitizer(reg, cfg),
		council.NewResponder(reg, proxy, cfg),
		council.NewConsolidator(nil, nil, cfg),
		nil,
		testBillingConfig(startingBalance),
		cfg,
	)
	return orch, ledger, conversations
}

// voiceByPersona answers per persona, keyed off the persona system prompt.
// Personas named in failFor fail instead.
func voiceByPersona(failFor ...string) func(context.Context, *domain.CompletionRequest) (*domain.CompletionResponse, error) {
	return func(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
		system := req.Messages[0].Content
		for _, marker := range failFor {
			if strings.Contains(system, marker) {
				return nil, errors.New("voice unavailable")
			}
		}
		return respondWith("A considered answer.\nSUMMARY: Considered.", 100, 200)(ctx, req)
	}
}

func TestOrchestrator_RunTurn(t *testing.T) {
	ctx := context.Background()

	t.Run("full council turn", func(t *testing.T) {
		reg := newTestRegistry(t,
			func(_ context.Context, _ *domain.CompletionRequest) (*domain.CompletionResponse, error) {
				return &domain.CompletionResponse{
					Content: selectionJSON("diverse takes", "empiricist", "stoic", "strategist"),
				}, nil
			},
			voiceByPersona())
		orch, _, conversations := newOrchestrator(t, reg, 1000, testCouncilConfig())

		result, err := orch.RunTurn(ctx, "acc_1", "conv_1", "should I quit my job?")
		require.NoError(t, err)
		require.NotEmpty(t, result.TurnID)
		require.Equal(t, "conv_1", result.ConversationID)
		require.Equal(t, "diverse takes", result.Rationale)

		// Outcomes keep selection order regardless of finish order.
		require.Len(t, result.Outcomes, 3)
		require.Equal(t, "The Empiricist", result.Outcomes[0].Voice)
		require.Equal(t, "The Stoic", result.Outcomes[1].Voice)
		require.Equal(t, "The Strategist", result.Outcomes[2].Voice)
		for _, o := range result.Outcomes {
			require.False(t, o.Failed())
			require.Equal(t, "A considered answer.", o.Answer)
			require.Equal(t, "Considered.", o.Summary)
		}

		// Three metered voice calls at 30 each.
		require.Equal(t, int64(910), result.BalanceMinorUnits)

		// The turn is persisted with its outcomes.
		history, err := conversations.History(ctx, "conv_1", 10)
		require.NoError(t, err)
		require.Len(t, history, 1)
		require.Equal(t, "should I quit my job?", history[0].Query)
	})

	t.Run("one failing voice never sinks the turn", func(t *testing.T) {
		reg := newTestRegistry(t,
			func(_ context.Context, _ *domain.CompletionRequest) (*domain.CompletionResponse, error) {
				return &domain.CompletionResponse{
					Content: selectionJSON("r", "stoic", "empiricist", "strategist"),
				}, nil
			},
			voiceByPersona("empiricist"))
		orch, _, _ := newOrchestrator(t, reg, 1000, testCouncilConfig())

		result, err := orch.RunTurn(ctx, "acc_1", "conv_1", "q")
		require.NoError(t, err)
		require.Len(t, result.Outcomes, 3)
		require.False(t, result.Outcomes[0].Failed())
		require.True(t, result.Outcomes[1].Failed())
		require.False(t, result.Outcomes[2].Failed())

		// The final answer carries the survivors plus a degraded note.
		require.Contains(t, result.FinalAnswer, "The Stoic:")
		require.Contains(t, result.FinalAnswer, "(The Empiricist could not respond.)")

		// Only the two successful calls are billed.
		require.Equal(t, int64(940), result.BalanceMinorUnits)
	})

	t.Run("selector failure degrades to the fallback voice", func(t *testing.T) {
		reg := newTestRegistry(t,
			func(_ context.Context, _ *domain.CompletionRequest) (*domain.CompletionResponse, error) {
				return nil, errors.New("selector down")
			},
			voiceByPersona())
		orch, _, _ := newOrchestrator(t, reg, 1000, testCouncilConfig())

		result, err := orch.RunTurn(ctx, "acc_1", "conv_1", "q")
		require.NoError(t, err)
		require.Len(t, result.Outcomes, 1)
		require.Equal(t, "The Generalist", result.Outcomes[0].Voice)
		require.Contains(t, result.Rationale, "fallback selection due to error:")
		// Selection itself is unmetered, so only the single voice call bills.
		require.Equal(t, int64(970), result.BalanceMinorUnits)
	})

	t.Run("exhausted balance fails before any work", func(t *testing.T) {
		selectorCalled := false
		reg := newTestRegistry(t,
			func(_ context.Context, _ *domain.CompletionRequest) (*domain.CompletionResponse, error) {
				selectorCalled = true
				return nil, errors.New("must not be reached")
			},
			voiceByPersona())
		orch, ledger, conversations := newOrchestrator(t, reg, -10, testCouncilConfig())

		_, err := orch.RunTurn(ctx, "acc_1", "conv_1", "q")
		require.ErrorIs(t, err, domain.ErrInsufficientBalance)
		require.False(t, selectorCalled)

		// No usage, no persisted turn.
		acct, err := ledger.GetOrCreateAccount(ctx, "acc_1")
		require.NoError(t, err)
		require.Equal(t, int64(-10), acct.BalanceMinorUnits)
		history, err := conversations.History(ctx, "conv_1", 10)
		require.NoError(t, err)
		require.Empty(t, history)
	})

	t.Run("all voices failed still completes the turn", func(t *testing.T) {
		reg := newTestRegistry(t,
			func(_ context.Context, _ *domain.CompletionRequest) (*domain.CompletionResponse, error) {
				return &domain.CompletionResponse{
					Content: selectionJSON("r", "stoic", "empiricist"),
				}, nil
			},
			voiceByPersona("Stoic", "empiricist"))
		orch, _, conversations := newOrchestrator(t, reg, 1000, testCouncilConfig())

		result, err := orch.RunTurn(ctx, "acc_1", "conv_1", "q")
		require.NoError(t, err)
		require.Contains(t, result.FinalAnswer, "could not answer")
		require.Equal(t, int64(1000), result.BalanceMinorUnits)

		history, err := conversations.History(ctx, "conv_1", 10)
		require.NoError(t, err)
		require.Len(t, history, 1)
	})

	t.Run("a hung voice times out without blocking the turn", func(t *testing.T) {
		reg := newTestRegistry(t,
			func(_ context.Context, _ *domain.CompletionRequest) (*domain.CompletionResponse, error) {
				return &domain.CompletionResponse{
					Content: selectionJSON("r", "stoic", "strategist"),
				}, nil
			},
			func(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
				if strings.Contains(req.Messages[0].Content, "strategist") {
					<-ctx.Done()
					return nil, ctx.Err()
				}
				return respondWith("Quick answer.\nSUMMARY: Quick.", 100, 200)(ctx, req)
			})

		cfg := testCouncilConfig()
		cfg.TurnTimeout = 1
		orch, _, _ := newOrchestrator(t, reg, 1000, cfg)

		result, err := orch.RunTurn(ctx, "acc_1", "conv_1", "q")
		require.NoError(t, err)
		require.Len(t, result.Outcomes, 2)
		require.False(t, result.Outcomes[0].Failed())
		require.True(t, result.Outcomes[1].Failed())
		require.Equal(t, "timed out", result.Outcomes[1].Err)
		require.Contains(t, result.FinalAnswer, "Quick answer.")
	})

	t.Run("sub-queries route to their voices", func(t *testing.T) {
		var stoicSaw string
		reg := newTestRegistry(t,
			func(_ context.Context, _ *domain.CompletionRequest) (*domain.CompletionResponse, error) {
				return &domain.CompletionResponse{
					Content: `{"voices":[{"source":"catalog","key":"stoic","query":"What can you control?"}],"rationale":"r"}`,
				}, nil
			},
			func(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
				stoicSaw = req.Messages[len(req.Messages)-1].Content
				return respondWith("ok\nSUMMARY: ok", 100, 200)(ctx, req)
			})
		orch, _, _ := newOrchestrator(t, reg, 1000, testCouncilConfig())

		_, err := orch.RunTurn(ctx, "acc_1", "conv_1", "should I quit my job?")
		require.NoError(t, err)
		require.Equal(t, "What can you control?", stoicSaw)
	})

	t.Run("a panicking voice becomes an error outcome", func(t *testing.T) {
		reg := newTestRegistry(t,
			func(_ context.Context, _ *domain.CompletionRequest) (*domain.CompletionResponse, error) {
				return &domain.CompletionResponse{
					Content: selectionJSON("r", "stoic", "strategist"),
				}, nil
			},
			func(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
				if strings.Contains(req.Messages[0].Content, "strategist") {
					panic("responder blew up")
				}
				return respondWith("ok\nSUMMARY: ok", 100, 200)(ctx, req)
			})
		orch, _, _ := newOrchestrator(t, reg, 1000, testCouncilConfig())

		result, err := orch.RunTurn(ctx, "acc_1", "conv_1", "q")
		require.NoError(t, err)
		require.Len(t, result.Outcomes, 2)
		require.False(t, result.Outcomes[0].Failed())
		require.True(t, result.Outcomes[1].Failed())
		require.Contains(t, result.Outcomes[1].Err, "panic")
	})

	t.Run("sanitized query reaches the voices", func(t *testing.T) {
		var voiceSaw string
		reg := newTestRegistry(t,
			func(_ context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
				// Same model serves selection and sanitization; tell them
				// apart by the system prompt.
				if strings.Contains(req.Messages[0].Content, "rewrite user questions") ||
					strings.Contains(req.Messages[0].Content, "You rewrite") {
					return &domain.CompletionResponse{Content: "Should I quit my job?"}, nil
				}
				return &domain.CompletionResponse{
					Content: selectionJSON("r", "stoic"),
				}, nil
			},
			func(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
				voiceSaw = req.Messages[len(req.Messages)-1].Content
				return respondWith("ok\nSUMMARY: ok", 100, 200)(ctx, req)
			})

		cfg := testCouncilConfig()
		cfg.SanitizerEnabled = true
		orch, _, _ := newOrchestrator(t, reg, 1000, cfg)

		_, err := orch.RunTurn(ctx, "acc_1", "conv_1", "um, shuld i quit??")
		require.NoError(t, err)
		require.Equal(t, "Should I quit my job?", voiceSaw)
	})
}
