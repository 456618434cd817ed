// Package memory provides an in-memory conversation store for tests and
// single-process development runs.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/davidbz/symposium/internal/domain"
)

// Store implements domain.ConversationStore in memory.
type Store struct {
	mu    sync.RWMutex
	turns map[string][]domain.Turn
}

// NewStore creates a new in-memory conversation store.
func NewStore() *Store {
	return &Store{
		mu:    sync.RWMutex{},
		turns: make(map[string][]domain.Turn),
	}
}

// AppendTurn appends one turn to the conversation.
func (s *Store) AppendTurn(_ context.Context, conversationID string, turn *domain.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *turn
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	s.turns[conversationID] = append(s.turns[conversationID], stored)

	return nil
}

// History fetches the last K turns, summaries only, oldest first.
func (s *Store) History(_ context.Context, conversationID string, lastK int) ([]domain.TurnSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := s.turns[conversationID]
	if lastK > 0 && len(turns) > lastK {
		turns = turns[len(turns)-lastK:]
	}

	summaries := make([]domain.TurnSummary, 0, len(turns))
	for i := range turns {
		summaries = append(summaries, turns[i].Summary())
	}

	return summaries, nil
}
