// Package metering wraps every model-call capability with balance pre-checks,
// usage accounting and an idempotent atomic charge. Nothing else in the
// system mutates account balances.
package metering

import (
	"context"
	"fmt"
	"time"

	"github.com/davidbz/symposium/internal/config"
	"github.com/davidbz/symposium/internal/domain"
	"github.com/davidbz/symposium/internal/observability"
)

// Call is the wrapped capability invocation.
type Call func(ctx context.Context) (*domain.CompletionResponse, error)

// Proxy meters capability calls against the usage ledger.
type Proxy struct {
	ledger     domain.UsageLedger
	pricing    domain.PricingRegistry
	calculator domain.CostCalculator
	estimator  *domain.UsageEstimator
	events     domain.EventPublisher
	floor      int64
}

// NewProxy creates a new metering proxy (DI constructor).
func NewProxy(
	ledger domain.UsageLedger,
	pricing domain.PricingRegistry,
	calculator domain.CostCalculator,
	estimator *domain.UsageEstimator,
	events domain.EventPublisher,
	cfg *config.BillingConfig,
) *Proxy {
	return &Proxy{
		ledger:     ledger,
		pricing:    pricing,
		calculator: calculator,
		estimator:  estimator,
		events:     events,
		floor:      cfg.FloorMinorUnits,
	}
}

// MeteredCall invokes call and charges accountID for it exactly once per
// requestID. Replays of an already-processed request return the stored output
// without charging. The callable's own error propagates unchanged; a failed
// call is never billed.
func (p *Proxy) MeteredCall(
	ctx context.Context,
	accountID string,
	requestID string,
	capability string,
	input string,
	call Call,
) (*domain.CompletionResponse, domain.Account, error) {
	logger := observability.FromContext(ctx)

	acct, err := p.ledger.GetOrCreateAccount(ctx, accountID)
	if err != nil {
		return nil, domain.Account{}, fmt.Errorf("failed to resolve account: %w", err)
	}

	// Idempotent replay: a succeeded record for this key means the call was
	// already processed; hand back the stored result without charging.
	if existing, findErr := p.ledger.FindUsage(ctx, accountID, requestID); findErr == nil {
		if existing.Status == domain.UsageSucceeded {
			logger.Info("replaying already-processed request",
				observability.String("request_id", requestID))
			return replayResponse(existing), acct, nil
		}
	}

	if _, pricingErr := p.pricing.GetPricing(ctx, capability); pricingErr != nil {
		return nil, acct, pricingErr
	}

	// The floor is deliberately negative: small race-induced overdraws are
	// tolerated instead of serializing every call behind a lock.
	if acct.BalanceMinorUnits <= p.floor {
		return nil, acct, fmt.Errorf("%w: balance %d at or below floor %d",
			domain.ErrInsufficientBalance, acct.BalanceMinorUnits, p.floor)
	}

	resp, callErr := call(ctx)
	if callErr != nil {
		p.logFailedUsage(ctx, accountID, requestID, capability, callErr)
		return nil, acct, callErr
	}

	usage := p.estimator.Estimate(input, resp)

	cost, costErr := p.calculator.Calculate(ctx, capability, usage)
	if costErr != nil {
		return nil, acct, costErr
	}

	stored, applied, acct, err := p.ledger.ApplyUsage(ctx, &domain.UsageRecord{
		AccountID:      accountID,
		RequestID:      requestID,
		Capability:     capability,
		InputUnits:     usage.PromptTokens,
		OutputUnits:    usage.CompletionTokens,
		CostMinorUnits: cost,
		Status:         domain.UsageSucceeded,
		Output:         resp.Content,
		CreatedAt:      time.Time{},
	})
	if err != nil {
		return nil, acct, fmt.Errorf("failed to apply usage: %w", err)
	}

	if !applied {
		// Lost the race against a concurrent call for the same key; the
		// winner's record is authoritative and we charge nothing.
		logger.Info("duplicate request detected at apply time",
			observability.String("request_id", requestID))
		return replayResponse(stored), acct, nil
	}

	logger.Debug("usage charged",
		observability.String("capability", capability),
		observability.Int("input_units", usage.PromptTokens),
		observability.Int("output_units", usage.CompletionTokens),
		observability.Int64("cost_minor_units", cost))

	if p.events != nil {
		p.events.Publish(ctx, "usage.recorded", map[string]interface{}{
			"account_id":       accountID,
			"request_id":       requestID,
			"capability":       capability,
			"input_units":      usage.PromptTokens,
			"output_units":     usage.CompletionTokens,
			"cost_minor_units": cost,
			"balance":          acct.BalanceMinorUnits,
		})
	}

	return resp, acct, nil
}

// logFailedUsage appends a zero-cost failed record. Best effort: a ledger
// error here must not mask the callable's error.
func (p *Proxy) logFailedUsage(ctx context.Context, accountID, requestID, capability string, callErr error) {
	err := p.ledger.RecordFailure(ctx, &domain.UsageRecord{
		AccountID:  accountID,
		RequestID:  requestID,
		Capability: capability,
	})
	if err != nil {
		observability.FromContext(ctx).Warn("failed to record failed usage",
			observability.Error(err))
		return
	}

	observability.FromContext(ctx).Info("logged failed usage event",
		observability.String("request_id", requestID),
		observability.Error(callErr))
}

// replayResponse rebuilds a response from a stored usage record.
func replayResponse(rec *domain.UsageRecord) *domain.CompletionResponse {
	return &domain.CompletionResponse{
		ID:       rec.RequestID,
		Model:    rec.Capability,
		Provider: "",
		Content:  rec.Output,
		Usage: domain.Usage{
			PromptTokens:     rec.InputUnits,
			CompletionTokens: rec.OutputUnits,
			TotalTokens:      rec.InputUnits + rec.OutputUnits,
		},
		FinishTime: rec.CreatedAt,
	}
}
