package conversation

import (
	"context"
	"fmt"

	"github.com/shliew97/frappe-whatsapp/pkg/logging"
)

// Publisher hands inbound messages to the worker queue.
type Publisher struct {
	queue  queueClient
	logger *logging.Logger
}

// NewPublisher creates a queue-backed publisher.
func NewPublisher(queue queueClient, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{queue: queue, logger: logger}
}

// PublishInbound enqueues one inbound message.
func (p *Publisher) PublishInbound(ctx context.Context, msg InboundMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	payload, body, err := encodePayload(queuePayload{Kind: jobTypeInbound, Inbound: &msg})
	if err != nil {
		return err
	}
	if err := p.queue.Send(ctx, body); err != nil {
		return fmt.Errorf("conversation: failed to enqueue inbound message: %w", err)
	}
	p.logger.Debug("inbound message queued", "job_id", payload.ID, "sender", msg.Sender, "kind", msg.Kind)
	return nil
}
