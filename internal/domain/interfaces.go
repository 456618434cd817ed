package domain

import "context"

// Provider represents a model-call capability.
type Provider interface {
	// Complete sends a completion request and returns the full response.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// Name returns the provider identifier.
	Name() string

	// IsModelSupported checks if the provider supports the given model.
	IsModelSupported(ctx context.Context, model string) bool

	// SupportedModels returns all models this provider supports.
	SupportedModels(ctx context.Context) []string
}

// ProviderRegistry manages available providers.
type ProviderRegistry interface {
	// Register adds a provider to the registry.
	Register(ctx context.Context, provider Provider) error

	// Get retrieves a provider by name.
	Get(ctx context.Context, providerName string) (Provider, error)

	// GetByModel retrieves a provider that supports the given model.
	GetByModel(ctx context.Context, model string) (Provider, error)

	// List returns all available providers.
	List(ctx context.Context) ([]string, error)
}

// UsageLedger persists account balances and usage records. ApplyUsage is the
// system's single point of genuine mutual exclusion: the record insert and the
// balance decrement happen in one conditional operation keyed by
// (AccountID, RequestID).
type UsageLedger interface {
	// GetOrCreateAccount resolves an account, creating it lazily with the
	// configured starting balance on first reference.
	GetOrCreateAccount(ctx context.Context, accountID string) (Account, error)

	// FindUsage returns the record for (accountID, requestID) or
	// ErrUsageNotFound.
	FindUsage(ctx context.Context, accountID, requestID string) (*UsageRecord, error)

	// ApplyUsage atomically inserts rec and decrements the account balance by
	// rec.CostMinorUnits. If a record for the key already exists, the stored
	// record is returned with applied=false and the balance is untouched.
	ApplyUsage(ctx context.Context, rec *UsageRecord) (stored *UsageRecord, applied bool, acct Account, err error)

	// RecordFailure appends a zero-cost failed record without touching the
	// balance. Duplicate keys are a no-op.
	RecordFailure(ctx context.Context, rec *UsageRecord) error

	// Credit adds amountMinorUnits to the account balance. Credits are
	// strictly additive and never interleave non-atomically with debits.
	Credit(ctx context.Context, accountID string, amountMinorUnits int64) (Account, error)
}

// ConversationStore is the append-only home of turns. History reads return
// summaries only, so prior-turn detail never re-enters prompts.
type ConversationStore interface {
	// AppendTurn appends one turn (the human entry plus every voice outcome)
	// to the conversation.
	AppendTurn(ctx context.Context, conversationID string, turn *Turn) error

	// History fetches the last K turns of the conversation, summaries only,
	// oldest first.
	History(ctx context.Context, conversationID string, lastK int) ([]TurnSummary, error)
}

// AccountResolver supplies a verified account ID for a presented credential.
// The core never trusts a caller-supplied identity.
type AccountResolver interface {
	Resolve(ctx context.Context, token string) (string, error)
}

// EventPublisher publishes events for observability.
type EventPublisher interface {
	// Publish publishes an event with the given type and data.
	Publish(ctx context.Context, eventType string, data map[string]interface{})
}
