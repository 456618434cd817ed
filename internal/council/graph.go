// Package council orchestrates one conversational turn: a selector picks the
// responding personas, the responders run concurrently with per-voice failure
// isolation, and a consolidator weaves their outcomes into the final answer.
package council

import (
	"context"
	"fmt"
	"time"

	"github.com/davidbz/symposium/internal/config"
	"github.com/davidbz/symposium/internal/domain"
	"github.com/davidbz/symposium/internal/observability"
)

// Turn phases, in order. A turn fails outright only in the init phase;
// from selection onward every failure degrades instead.
const (
	phaseInit          = "init"
	phaseSelecting     = "selecting"
	phaseDispatched    = "dispatched"
	phaseJoining       = "joining"
	phaseConsolidating = "consolidating"
	phaseDone          = "done"
	phaseFailed        = "failed"
)

// TurnResult is what a completed turn hands back to the transport layer.
type TurnResult struct {
	TurnID            string           `json:"turn_id"`
	ConversationID    string           `json:"conversation_id"`
	FinalAnswer       string           `json:"final_answer"`
	Rationale         string           `json:"rationale,omitempty"`
	Outcomes          []domain.Outcome `json:"outcomes"`
	BalanceMinorUnits int64            `json:"balance_minor_units"`
}

// Orchestrator drives the turn graph.
type Orchestrator struct {
	ledger        domain.UsageLedger
	conversations domain.ConversationStore
	selector      *Selector
	sanitizer     *Sanitizer
	responder     *Responder
	consolidator  *Consolidator
	events        domain.EventPublisher
	floor         int64
	turnTimeout   time.Duration
	historyDepth  int
}

// NewOrchestrator creates a new orchestrator (DI constructor).
func NewOrchestrator(
	ledger domain.UsageLedger,
	conversations domain.ConversationStore,
	selector *Selector,
	sanitizer *Sanitizer,
	responder *Responder,
	consolidator *Consolidator,
	events domain.EventPublisher,
	billingCfg *config.BillingConfig,
	councilCfg *config.CouncilConfig,
) *Orchestrator {
	return &Orchestrator{
		ledger:        ledger,
		conversations: conversations,
		selector:      selector,
		sanitizer:     sanitizer,
		responder:     responder,
		consolidator:  consolidator,
		events:        events,
		floor:         billingCfg.FloorMinorUnits,
		turnTimeout:   time.Duration(councilCfg.TurnTimeout) * time.Second,
		historyDepth:  councilCfg.HistoryDepth,
	}
}

// RunTurn executes one full turn. The only hard failure modes are an
// exhausted balance at entry and a turn where every voice failed; anything
// else degrades into the outcomes.
func (o *Orchestrator) RunTurn(
	ctx context.Context,
	accountID string,
	conversationID string,
	query string,
) (*TurnResult, error) {
	turnID := observability.GenerateTurnID()
	ctx = observability.WithTurnID(ctx, turnID)
	ctx = observability.WithAccountID(ctx, accountID)
	logger := observability.FromContext(ctx)

	// Init: one balance check gates the whole turn. Per-call checks in the
	// metering proxy still apply, but a turn that cannot afford its first
	// call spawns no work and writes no usage records.
	acct, err := o.ledger.GetOrCreateAccount(ctx, accountID)
	if err != nil {
		o.publishPhase(ctx, turnID, phaseFailed)
		return nil, fmt.Errorf("failed to resolve account: %w", err)
	}
	if acct.BalanceMinorUnits <= o.floor {
		o.publishPhase(ctx, turnID, phaseFailed)
		return nil, fmt.Errorf("%w: balance %d at or below floor %d",
			domain.ErrInsufficientBalance, acct.BalanceMinorUnits, o.floor)
	}
	o.publishPhase(ctx, turnID, phaseInit)

	history, err := o.conversations.History(ctx, conversationID, o.historyDepth)
	if err != nil {
		logger.Warn("history unavailable, proceeding without it",
			observability.Error(err))
		history = nil
	}

	// The deadline bounds model work only. Persistence and the final
	// balance read below run on the parent context so a timed-out fan-out
	// still leaves a recorded turn.
	tctx, cancel := context.WithTimeout(ctx, o.turnTimeout)
	defer cancel()

	// Selection: sanitizer and selector run concurrently against the raw
	// query. Both are unmetered and both degrade on failure, so this phase
	// cannot fail the turn.
	o.publishPhase(ctx, turnID, phaseSelecting)
	cleanedCh := make(chan string, 1)
	go func() {
		cleanedCh <- o.sanitizer.Sanitize(tctx, query)
	}()
	selection := o.selector.Select(tctx, query, history)
	cleaned := <-cleanedCh

	// Dispatch: one goroutine per voice, outcomes land at their own index
	// so result order matches selection order regardless of finish order.
	o.publishPhase(ctx, turnID, phaseDispatched)
	outcomes := o.fanOut(tctx, accountID, selection.Picks, cleaned, history)
	o.publishPhase(ctx, turnID, phaseJoining)

	// Consolidation.
	o.publishPhase(ctx, turnID, phaseConsolidating)
	finalAnswer, err := o.consolidator.Consolidate(tctx, accountID, cleaned, selection.Picks, outcomes, history)
	if err != nil {
		finalAnswer = allFailedAnswer(outcomes)
	}

	turn := &domain.Turn{
		TurnID:         turnID,
		ConversationID: conversationID,
		AccountID:      accountID,
		Query:          query,
		FinalAnswer:    finalAnswer,
		Rationale:      selection.Rationale,
		Outcomes:       outcomes,
		CreatedAt:      time.Now().UTC(),
	}
	if appendErr := o.conversations.AppendTurn(ctx, conversationID, turn); appendErr != nil {
		logger.Warn("failed to persist turn", observability.Error(appendErr))
	}

	balance := acct.BalanceMinorUnits
	if after, balErr := o.ledger.GetOrCreateAccount(ctx, accountID); balErr == nil {
		balance = after.BalanceMinorUnits
	}

	o.publishPhase(ctx, turnID, phaseDone)
	logger.Info("turn completed",
		observability.Int("voices", len(outcomes)),
		observability.Int64("balance", balance))

	return &TurnResult{
		TurnID:            turnID,
		ConversationID:    conversationID,
		FinalAnswer:       finalAnswer,
		Rationale:         selection.Rationale,
		Outcomes:          outcomes,
		BalanceMinorUnits: balance,
	}, nil
}

type indexedOutcome struct {
	index   int
	outcome domain.Outcome
}

// fanOut runs every voice concurrently and joins their outcomes. The result
// channel is buffered to the voice count so late finishers after a timeout
// send without blocking and get collected by GC, never leaked. A panicking
// voice becomes an in-band error outcome like any other failure.
func (o *Orchestrator) fanOut(
	ctx context.Context,
	accountID string,
	picks []Pick,
	query string,
	history []domain.TurnSummary,
) []domain.Outcome {
	results := make(chan indexedOutcome, len(picks))
	for i, pick := range picks {
		go func(i int, pick Pick) {
			defer func() {
				if r := recover(); r != nil {
					results <- indexedOutcome{
						index: i,
						outcome: domain.Outcome{
							Voice: pick.Spec.Name,
							Err:   fmt.Sprintf("panic: %v", r),
						},
					}
				}
			}()

			voiceQuery := pick.SubQuery
			if voiceQuery == "" {
				voiceQuery = query
			}

			persona := o.selector.persona(pick.Spec)
			results <- indexedOutcome{
				index:   i,
				outcome: o.responder.Respond(ctx, accountID, persona, voiceQuery, history),
			}
		}(i, pick)
	}

	outcomes := make([]domain.Outcome, len(picks))
	filled := make([]bool, len(picks))
	collected := 0
	for collected < len(picks) {
		select {
		case r := <-results:
			outcomes[r.index] = r.outcome
			filled[r.index] = true
			collected++
		case <-ctx.Done():
			for i, pick := range picks {
				if !filled[i] {
					outcomes[i] = domain.Outcome{
						Voice: pick.Spec.Name,
						Err:   "timed out",
					}
				}
			}
			return outcomes
		}
	}
	return outcomes
}

// allFailedAnswer is the turn's answer when consolidation had nothing to
// weave. The turn still completes so the failure narrative reaches the user
// and the conversation record.
func allFailedAnswer(outcomes []domain.Outcome) string {
	return fmt.Sprintf("The council could not answer: all %d voices failed. Please try again.",
		len(outcomes))
}

func (o *Orchestrator) publishPhase(ctx context.Context, turnID, phase string) {
	if o.events == nil {
		return
	}
	o.events.Publish(ctx, "turn.phase", map[string]interface{}{
		"turn_id": turnID,
		"phase":   phase,
	})
}
