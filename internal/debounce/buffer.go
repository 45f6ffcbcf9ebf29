// Package debounce coalesces rapid inbound messages from one sender into a
// single processing pass per debounce window.
package debounce

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shliew97/frappe-whatsapp/internal/conversation"
)

// Buffer holds each sender's pending batch and scheduling guard.
type Buffer interface {
	// Append adds msg to the sender's batch and refreshes its expiry to ttl.
	// A message whose ID is already in the batch is not added again.
	Append(ctx context.Context, sender string, msg conversation.InboundMessage, ttl time.Duration) error
	// AcquireGuard sets the scheduling guard if absent. It reports whether
	// this caller set it and therefore owns scheduling the next pass.
	AcquireGuard(ctx context.Context, sender string, ttl time.Duration) (bool, error)
	// ReleaseGuard clears the guard without touching the batch.
	ReleaseGuard(ctx context.Context, sender string) error
	// Drain atomically returns and clears the batch and clears the guard.
	Drain(ctx context.Context, sender string) ([]conversation.InboundMessage, error)
}

func encodeEntry(msg conversation.InboundMessage) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("debounce: encode message: %w", err)
	}
	return data, nil
}
