// Package redis provides a Redis-backed conversation store. Turns are
// appended to a per-conversation list; history reads return summaries only.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/davidbz/symposium/internal/domain"
	"github.com/davidbz/symposium/internal/observability"
)

const conversationKeyPrefix = "conversation:"

// Store implements domain.ConversationStore on Redis.
type Store struct {
	client *redis.Client
}

// NewStore creates a new Redis-backed conversation store.
func NewStore(client *redis.Client) *Store {
	return &Store{
		client: client,
	}
}

func conversationKey(conversationID string) string {
	return conversationKeyPrefix + conversationID + ":turns"
}

// AppendTurn appends one turn to the conversation. RPUSH keeps the list in
// turn order without read-modify-write.
func (s *Store) AppendTurn(ctx context.Context, conversationID string, turn *domain.Turn) error {
	stored := *turn
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("failed to marshal turn: %w", err)
	}

	if err := s.client.RPush(ctx, conversationKey(conversationID), string(payload)).Err(); err != nil {
		return fmt.Errorf("failed to append turn: %w", err)
	}

	observability.FromContext(ctx).Debug("turn appended",
		observability.String("conversation_id", conversationID),
		observability.Int("outcomes", len(stored.Outcomes)))

	return nil
}

// History fetches the last K turns, summaries only, oldest first.
func (s *Store) History(ctx context.Context, conversationID string, lastK int) ([]domain.TurnSummary, error) {
	start := int64(0)
	if lastK > 0 {
		start = int64(-lastK)
	}

	items, err := s.client.LRange(ctx, conversationKey(conversationID), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	summaries := make([]domain.TurnSummary, 0, len(items))
	for _, item := range items {
		var turn domain.Turn
		if unmarshalErr := json.Unmarshal([]byte(item), &turn); unmarshalErr != nil {
			return nil, fmt.Errorf("malformed stored turn: %w", unmarshalErr)
		}
		summaries = append(summaries, turn.Summary())
	}

	return summaries, nil
}
