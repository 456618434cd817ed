// Package memory provides an in-memory usage ledger. It mirrors the Redis
// ledger's semantics and backs tests and single-process development runs.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/davidbz/symposium/internal/domain"
)

// Store implements domain.UsageLedger in memory.
type Store struct {
	mu              sync.Mutex
	startingBalance int64
	accounts        map[string]domain.Account
	records         map[string]domain.UsageRecord
}

// NewStore creates a new in-memory ledger. New accounts start with
// startingBalance minor units.
func NewStore(startingBalance int64) *Store {
	return &Store{
		mu:              sync.Mutex{},
		startingBalance: startingBalance,
		accounts:        make(map[string]domain.Account),
		records:         make(map[string]domain.UsageRecord),
	}
}

func recordKey(accountID, requestID string) string {
	return accountID + "\x00" + requestID
}

// GetOrCreateAccount resolves an account, creating it lazily.
func (s *Store) GetOrCreateAccount(_ context.Context, accountID string) (domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.getOrCreateLocked(accountID), nil
}

func (s *Store) getOrCreateLocked(accountID string) domain.Account {
	if acct, exists := s.accounts[accountID]; exists {
		return acct
	}

	now := time.Now().UTC()
	acct := domain.Account{
		ID:                accountID,
		BalanceMinorUnits: s.startingBalance,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	s.accounts[accountID] = acct
	return acct
}

// FindUsage returns the record for (accountID, requestID) or ErrUsageNotFound.
func (s *Store) FindUsage(_ context.Context, accountID, requestID string) (*domain.UsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.records[recordKey(accountID, requestID)]
	if !exists {
		return nil, domain.ErrUsageNotFound
	}

	copied := rec
	return &copied, nil
}

// ApplyUsage atomically inserts the record and decrements the balance. A
// duplicate key returns the stored record untouched with applied=false.
// Only a succeeded record counts as a duplicate: a failed record for the
// key is an earlier attempt's tombstone and gets overwritten, so a retry
// of the same request can still be charged and stored.
func (s *Store) ApplyUsage(
	_ context.Context,
	rec *domain.UsageRecord,
) (*domain.UsageRecord, bool, domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := recordKey(rec.AccountID, rec.RequestID)
	if existing, exists := s.records[key]; exists && existing.Status == domain.UsageSucceeded {
		copied := existing
		return &copied, false, s.getOrCreateLocked(rec.AccountID), nil
	}

	acct := s.getOrCreateLocked(rec.AccountID)
	acct.BalanceMinorUnits -= rec.CostMinorUnits
	acct.UpdatedAt = time.Now().UTC()
	s.accounts[rec.AccountID] = acct

	stored := *rec
	stored.Status = domain.UsageSucceeded
	stored.CreatedAt = time.Now().UTC()
	s.records[key] = stored

	copied := stored
	return &copied, true, acct, nil
}

// RecordFailure appends a zero-cost failed record. Duplicates are a no-op.
func (s *Store) RecordFailure(_ context.Context, rec *domain.UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := recordKey(rec.AccountID, rec.RequestID)
	if _, exists := s.records[key]; exists {
		return nil
	}

	s.getOrCreateLocked(rec.AccountID)

	stored := *rec
	stored.Status = domain.UsageFailed
	stored.CostMinorUnits = 0
	stored.CreatedAt = time.Now().UTC()
	s.records[key] = stored

	return nil
}

// Credit adds amountMinorUnits to the account balance.
func (s *Store) Credit(_ context.Context, accountID string, amountMinorUnits int64) (domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct := s.getOrCreateLocked(accountID)
	acct.BalanceMinorUnits += amountMinorUnits
	acct.UpdatedAt = time.Now().UTC()
	s.accounts[accountID] = acct

	return acct, nil
}
