// Package drafts persists the in-flight booking draft of each sender.
package drafts

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shliew97/frappe-whatsapp/internal/booking"
)

// DefaultTTL bounds how long a cached draft survives without activity.
const DefaultTTL = 24 * time.Hour

// Store is the per-sender draft persistence contract. Get returns (nil, nil)
// when the sender has no draft. A ttl of zero means the backend default.
type Store interface {
	Get(ctx context.Context, sender string) (*booking.Draft, error)
	Set(ctx context.Context, sender string, draft *booking.Draft, ttl time.Duration) error
	Delete(ctx context.Context, sender string) error
}

func encodeDraft(draft *booking.Draft) ([]byte, error) {
	if draft == nil {
		return nil, fmt.Errorf("drafts: draft cannot be nil")
	}
	data, err := json.Marshal(draft)
	if err != nil {
		return nil, fmt.Errorf("drafts: encode draft: %w", err)
	}
	return data, nil
}

func decodeDraft(data []byte) (*booking.Draft, error) {
	var draft booking.Draft
	if err := json.Unmarshal(data, &draft); err != nil {
		return nil, fmt.Errorf("drafts: decode draft: %w", err)
	}
	return &draft, nil
}
