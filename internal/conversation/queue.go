package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type queueClient interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

type queueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

type jobType string

const jobTypeInbound jobType = "inbound_message"

type queuePayload struct {
	ID         string          `json:"id"`
	Kind       jobType         `json:"kind"`
	Inbound    *InboundMessage `json:"inbound,omitempty"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

func encodePayload(payload queuePayload) (queuePayload, string, error) {
	if payload.ID == "" {
		payload.ID = uuid.NewString()
	}
	if payload.EnqueuedAt.IsZero() {
		payload.EnqueuedAt = time.Now().UTC()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return queuePayload{}, "", fmt.Errorf("conversation: failed to encode payload: %w", err)
	}
	return payload, string(body), nil
}
