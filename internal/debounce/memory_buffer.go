package debounce

import (
	"context"
	"sync"
	"time"

	"github.com/shliew97/frappe-whatsapp/internal/conversation"
)

type memoryBatch struct {
	messages  []conversation.InboundMessage
	ids       map[string]struct{}
	expiresAt time.Time
}

// MemoryBuffer is a single-process Buffer. All operations hold one mutex, so
// the guard check-and-set is atomic.
type MemoryBuffer struct {
	mu      sync.Mutex
	batches map[string]*memoryBatch
	guards  map[string]time.Time
	now     func() time.Time
}

// NewMemoryBuffer creates an empty buffer.
func NewMemoryBuffer() *MemoryBuffer {
	return &MemoryBuffer{
		batches: make(map[string]*memoryBatch),
		guards:  make(map[string]time.Time),
		now:     time.Now,
	}
}

func (b *MemoryBuffer) Append(_ context.Context, sender string, msg conversation.InboundMessage, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	batch, ok := b.batches[sender]
	if !ok || !now.Before(batch.expiresAt) {
		batch = &memoryBatch{ids: make(map[string]struct{})}
		b.batches[sender] = batch
	}
	if msg.ID != "" {
		if _, dup := batch.ids[msg.ID]; dup {
			return nil
		}
		batch.ids[msg.ID] = struct{}{}
	}
	batch.messages = append(batch.messages, msg)
	batch.expiresAt = now.Add(ttl)
	return nil
}

func (b *MemoryBuffer) AcquireGuard(_ context.Context, sender string, ttl time.Duration) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if exp, ok := b.guards[sender]; ok && now.Before(exp) {
		return false, nil
	}
	b.guards[sender] = now.Add(ttl)
	return true, nil
}

func (b *MemoryBuffer) ReleaseGuard(_ context.Context, sender string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.guards, sender)
	return nil
}

func (b *MemoryBuffer) Drain(_ context.Context, sender string) ([]conversation.InboundMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	batch, ok := b.batches[sender]
	delete(b.batches, sender)
	delete(b.guards, sender)
	if !ok || !b.now().Before(batch.expiresAt) {
		return nil, nil
	}
	return batch.messages, nil
}
