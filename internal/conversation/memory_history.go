package conversation

import (
	"context"
	"sync"
)

// MemoryHistoryStore keeps transcripts in process. Used by the local simulator.
type MemoryHistoryStore struct {
	mu      sync.Mutex
	limit   int
	entries map[string][]ChatMessage
}

// NewMemoryHistoryStore keeps at most the newest limit messages per sender;
// limit <= 0 keeps the same number as the Redis store.
func NewMemoryHistoryStore(limit int) *MemoryHistoryStore {
	if limit <= 0 {
		limit = historyMaxTurns
	}
	return &MemoryHistoryStore{limit: limit, entries: make(map[string][]ChatMessage)}
}

func (s *MemoryHistoryStore) Append(_ context.Context, sender string, msg ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := append(s.entries[sender], msg)
	if len(history) > s.limit {
		history = append([]ChatMessage(nil), history[len(history)-s.limit:]...)
	}
	s.entries[sender] = history
	return nil
}

// Recent returns up to n of the newest messages, oldest first.
func (s *MemoryHistoryStore) Recent(_ context.Context, sender string, n int) ([]ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := s.entries[sender]
	if n <= 0 || n > len(history) {
		n = len(history)
	}
	return append([]ChatMessage(nil), history[len(history)-n:]...), nil
}

func (s *MemoryHistoryStore) Clear(_ context.Context, sender string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, sender)
	return nil
}
