// Package redis provides a Redis-backed usage ledger. The usage record insert
// and the balance decrement run inside one Lua script, so two concurrent
// metered calls for the same account never both observe a stale balance.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/davidbz/symposium/internal/domain"
	"github.com/davidbz/symposium/internal/observability"
)

const (
	accountKeyPrefix = "account:"
	usageKeyPrefix   = "usage:"
)

// applyUsageScript inserts the usage record unless a succeeded record already
// exists and decrements the account balance in the same atomic step. A failed
// record for the key is an earlier attempt's tombstone and gets overwritten,
// so a retry of the same request can still be charged and stored. Returns
// {applied, recordJSON, balance}.
//
//nolint:gochecknoglobals // Compiled once, shared across calls
var applyUsageScript = redis.NewScript(`
local existing = redis.call('GET', KEYS[1])
if existing and cjson.decode(existing)['status'] == 'succeeded' then
	return {0, existing, redis.call('HGET', KEYS[2], 'balance')}
end
redis.call('SET', KEYS[1], ARGV[1])
local balance = redis.call('HINCRBY', KEYS[2], 'balance', -ARGV[2])
redis.call('HSET', KEYS[2], 'updated_at', ARGV[3])
return {1, ARGV[1], tostring(balance)}
`)

// Store implements domain.UsageLedger on Redis.
type Store struct {
	client          *redis.Client
	startingBalance int64
}

// NewStore creates a new Redis-backed ledger.
func NewStore(client *redis.Client, startingBalance int64) *Store {
	return &Store{
		client:          client,
		startingBalance: startingBalance,
	}
}

func accountKey(accountID string) string {
	return accountKeyPrefix + accountID
}

func usageKey(accountID, requestID string) string {
	return usageKeyPrefix + accountID + ":" + requestID
}

// GetOrCreateAccount resolves an account, creating it lazily with the
// starting balance. Creation races are benign: HSETNX writes each field at
// most once.
func (s *Store) GetOrCreateAccount(ctx context.Context, accountID string) (domain.Account, error) {
	key := accountKey(accountID)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	pipe := s.client.Pipeline()
	pipe.HSetNX(ctx, key, "balance", strconv.FormatInt(s.startingBalance, 10))
	pipe.HSetNX(ctx, key, "created_at", now)
	pipe.HSetNX(ctx, key, "updated_at", now)
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.Account{}, fmt.Errorf("failed to ensure account: %w", err)
	}

	return s.readAccount(ctx, accountID)
}

func (s *Store) readAccount(ctx context.Context, accountID string) (domain.Account, error) {
	fields, err := s.client.HGetAll(ctx, accountKey(accountID)).Result()
	if err != nil {
		return domain.Account{}, fmt.Errorf("failed to read account: %w", err)
	}

	return parseAccount(accountID, fields)
}

func parseAccount(accountID string, fields map[string]string) (domain.Account, error) {
	balance, err := strconv.ParseInt(fields["balance"], 10, 64)
	if err != nil {
		return domain.Account{}, fmt.Errorf("malformed account balance: %w", err)
	}

	createdAt, _ := time.Parse(time.RFC3339Nano, fields["created_at"])
	updatedAt, _ := time.Parse(time.RFC3339Nano, fields["updated_at"])

	return domain.Account{
		ID:                accountID,
		BalanceMinorUnits: balance,
		CreatedAt:         createdAt,
		UpdatedAt:         updatedAt,
	}, nil
}

// FindUsage returns the record for (accountID, requestID) or ErrUsageNotFound.
func (s *Store) FindUsage(ctx context.Context, accountID, requestID string) (*domain.UsageRecord, error) {
	data, err := s.client.Get(ctx, usageKey(accountID, requestID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrUsageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read usage record: %w", err)
	}

	var rec domain.UsageRecord
	if unmarshalErr := json.Unmarshal([]byte(data), &rec); unmarshalErr != nil {
		return nil, fmt.Errorf("malformed usage record: %w", unmarshalErr)
	}

	return &rec, nil
}

// ApplyUsage atomically inserts the record and decrements the balance via the
// Lua script. A lost race on the unique key returns the stored record with
// applied=false.
func (s *Store) ApplyUsage(
	ctx context.Context,
	rec *domain.UsageRecord,
) (*domain.UsageRecord, bool, domain.Account, error) {
	if _, err := s.GetOrCreateAccount(ctx, rec.AccountID); err != nil {
		return nil, false, domain.Account{}, err
	}

	stored := *rec
	stored.Status = domain.UsageSucceeded
	stored.CreatedAt = time.Now().UTC()

	payload, err := json.Marshal(&stored)
	if err != nil {
		return nil, false, domain.Account{}, fmt.Errorf("failed to marshal usage record: %w", err)
	}

	now := stored.CreatedAt.Format(time.RFC3339Nano)
	result, err := applyUsageScript.Run(ctx, s.client,
		[]string{usageKey(rec.AccountID, rec.RequestID), accountKey(rec.AccountID)},
		string(payload), strconv.FormatInt(rec.CostMinorUnits, 10), now,
	).Result()
	if err != nil {
		return nil, false, domain.Account{}, fmt.Errorf("apply usage script failed: %w", err)
	}

	applied, storedRec, balance, err := parseApplyResult(result)
	if err != nil {
		return nil, false, domain.Account{}, err
	}

	acct, err := s.readAccount(ctx, rec.AccountID)
	if err != nil {
		return nil, false, domain.Account{}, err
	}
	acct.BalanceMinorUnits = balance

	if !applied {
		observability.FromContext(ctx).Info("usage record already exists, skipping charge",
			observability.String("request_id", rec.RequestID))
	}

	return storedRec, applied, acct, nil
}

func parseApplyResult(result interface{}) (bool, *domain.UsageRecord, int64, error) {
	values, ok := result.([]interface{})
	if !ok || len(values) != 3 {
		return false, nil, 0, fmt.Errorf("unexpected script result: %v", result)
	}

	appliedFlag, ok := values[0].(int64)
	if !ok {
		return false, nil, 0, fmt.Errorf("unexpected applied flag: %v", values[0])
	}

	payload, ok := values[1].(string)
	if !ok {
		return false, nil, 0, fmt.Errorf("unexpected record payload: %v", values[1])
	}

	var rec domain.UsageRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return false, nil, 0, fmt.Errorf("malformed stored record: %w", err)
	}

	balanceStr, ok := values[2].(string)
	if !ok {
		return false, nil, 0, fmt.Errorf("unexpected balance: %v", values[2])
	}

	balance, err := strconv.ParseInt(balanceStr, 10, 64)
	if err != nil {
		return false, nil, 0, fmt.Errorf("malformed balance: %w", err)
	}

	return appliedFlag == 1, &rec, balance, nil
}

// RecordFailure appends a zero-cost failed record. Duplicates are a no-op.
func (s *Store) RecordFailure(ctx context.Context, rec *domain.UsageRecord) error {
	if _, err := s.GetOrCreateAccount(ctx, rec.AccountID); err != nil {
		return err
	}

	stored := *rec
	stored.Status = domain.UsageFailed
	stored.CostMinorUnits = 0
	stored.CreatedAt = time.Now().UTC()

	payload, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("failed to marshal usage record: %w", err)
	}

	if err := s.client.SetNX(ctx, usageKey(rec.AccountID, rec.RequestID), string(payload), 0).Err(); err != nil {
		return fmt.Errorf("failed to record failure: %w", err)
	}

	return nil
}

// Credit adds amountMinorUnits to the account balance. HINCRBY is atomic, so
// credits never interleave non-atomically with the apply script's debits.
func (s *Store) Credit(ctx context.Context, accountID string, amountMinorUnits int64) (domain.Account, error) {
	if _, err := s.GetOrCreateAccount(ctx, accountID); err != nil {
		return domain.Account{}, err
	}

	key := accountKey(accountID)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	pipe := s.client.Pipeline()
	incr := pipe.HIncrBy(ctx, key, "balance", amountMinorUnits)
	pipe.HSet(ctx, key, "updated_at", now)
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.Account{}, fmt.Errorf("failed to credit account: %w", err)
	}

	acct, err := s.readAccount(ctx, accountID)
	if err != nil {
		return domain.Account{}, err
	}
	acct.BalanceMinorUnits = incr.Val()

	return acct, nil
}
