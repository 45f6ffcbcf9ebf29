package drafts

import (
	"context"
	"sync"
	"time"

	"github.com/shliew97/frappe-whatsapp/internal/booking"
)

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStore keeps drafts in process memory. Values are stored encoded so
// callers never share a draft pointer with the store.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry), now: time.Now}
}

func (s *MemoryStore) Get(_ context.Context, sender string) (*booking.Draft, error) {
	s.mu.Lock()
	entry, ok := s.entries[sender]
	if ok && !entry.expiresAt.IsZero() && !s.now().Before(entry.expiresAt) {
		delete(s.entries, sender)
		ok = false
	}
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return decodeDraft(entry.data)
}

func (s *MemoryStore) Set(_ context.Context, sender string, draft *booking.Draft, ttl time.Duration) error {
	data, err := encodeDraft(draft)
	if err != nil {
		return err
	}
	entry := memoryEntry{data: data}
	if ttl > 0 {
		entry.expiresAt = s.now().Add(ttl)
	}
	s.mu.Lock()
	s.entries[sender] = entry
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, sender string) error {
	s.mu.Lock()
	delete(s.entries, sender)
	s.mu.Unlock()
	return nil
}
