package domain

import "errors"

var (
	// ErrInsufficientBalance is returned by the metering pre-check when the
	// account balance is at or below the configured negative floor. No
	// capability call is made and no usage record is written.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrUnknownPricing is returned when a capability has no pricing entry.
	ErrUnknownPricing = errors.New("no pricing for capability")

	// ErrDuplicateRequest marks an idempotent replay of an already-processed
	// (account, request) pair. It is internal bookkeeping, never surfaced as
	// a failure.
	ErrDuplicateRequest = errors.New("request already processed")

	// ErrUsageNotFound is returned by ledger lookups for unknown records.
	ErrUsageNotFound = errors.New("usage record not found")

	// ErrSelectionFailed marks a selector failure. It is always recovered
	// internally via the fallback voice and never crosses the boundary.
	ErrSelectionFailed = errors.New("voice selection failed")

	// ErrConsolidationFailed is returned when no consolidated narrative can
	// be produced at all.
	ErrConsolidationFailed = errors.New("consolidation failed")

	// ErrEmptyCatalog is returned when the persona catalog has no entries.
	ErrEmptyCatalog = errors.New("persona catalog is empty")
)
