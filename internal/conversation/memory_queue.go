package conversation

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// MemoryQueue is a queueClient backed by a buffered channel, for single-process deployments.
type MemoryQueue struct {
	ch chan queueMessage
}

// NewMemoryQueue creates a MemoryQueue with the provided buffer capacity.
func NewMemoryQueue(buffer int) *MemoryQueue {
	if buffer <= 0 {
		buffer = 256
	}
	return &MemoryQueue{ch: make(chan queueMessage, buffer)}
}

// Send enqueues a payload or blocks until ctx is done.
func (q *MemoryQueue) Send(ctx context.Context, body string) error {
	msg := queueMessage{ID: uuid.NewString(), Body: body}
	select {
	case q.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive waits up to waitSeconds for the first message, then drains
// whatever else is immediately available up to maxMessages.
func (q *MemoryQueue) Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error) {
	if maxMessages <= 0 {
		maxMessages = 1
	}
	var timeout <-chan time.Time
	if waitSeconds > 0 {
		timer := time.NewTimer(time.Duration(waitSeconds) * time.Second)
		defer timer.Stop()
		timeout = timer.C
	}

	var first queueMessage
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timeout:
		return nil, nil
	case first = <-q.ch:
	}

	messages := []queueMessage{first}
	for len(messages) < maxMessages {
		select {
		case msg := <-q.ch:
			messages = append(messages, msg)
		default:
			return messages, nil
		}
	}
	return messages, nil
}

// Delete is a no-op; receiving already removed the message.
func (q *MemoryQueue) Delete(context.Context, string) error {
	return nil
}

// Len reports buffered messages.
func (q *MemoryQueue) Len() int {
	return len(q.ch)
}
