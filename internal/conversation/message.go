package conversation

import (
	"errors"
	"strings"
	"time"
)

// MessageKind classifies an inbound WhatsApp message.
type MessageKind string

const (
	KindText        MessageKind = "text"
	KindButton      MessageKind = "button"
	KindInteractive MessageKind = "interactive"
	KindFlow        MessageKind = "flow"
	KindReaction    MessageKind = "reaction"
	KindMedia       MessageKind = "media"
)

// InboundMessage is one customer message as received from the channel.
type InboundMessage struct {
	ID         string      `json:"id"`
	Sender     string      `json:"sender"`
	SenderName string      `json:"sender_name,omitempty"`
	Kind       MessageKind `json:"kind"`
	Text       string      `json:"text,omitempty"`
	// Payload carries the button payload, interactive reply id or flow response JSON.
	Payload   string    `json:"payload,omitempty"`
	ReplyTo   string    `json:"reply_to,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrInvalidMessage is returned for messages that cannot be routed.
var ErrInvalidMessage = errors.New("conversation: invalid inbound message")

// IsText reports whether the message is free text that can be coalesced.
func (m InboundMessage) IsText() bool {
	return m.Kind == KindText || m.Kind == ""
}

// Validate checks the minimum fields required for routing.
func (m InboundMessage) Validate() error {
	if strings.TrimSpace(m.Sender) == "" {
		return errors.Join(ErrInvalidMessage, errors.New("sender is required"))
	}
	if m.IsText() && strings.TrimSpace(m.Text) == "" {
		return errors.Join(ErrInvalidMessage, errors.New("text message has no body"))
	}
	return nil
}
