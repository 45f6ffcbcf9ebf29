package conversation

import (
	"strings"
	"time"
)

// Turn is one logical customer turn: contiguous text messages from one
// sender joined with newlines in arrival order.
type Turn struct {
	Sender     string
	SenderName string
	Text       string
	MessageIDs []string
	ReceivedAt time.Time
}

// NewTurn joins text messages into a turn. The latest non-empty sender name wins.
func NewTurn(messages []InboundMessage) Turn {
	var (
		turn  Turn
		parts = make([]string, 0, len(messages))
	)
	for _, msg := range messages {
		turn.Sender = msg.Sender
		if name := strings.TrimSpace(msg.SenderName); name != "" {
			turn.SenderName = name
		}
		if msg.ID != "" {
			turn.MessageIDs = append(turn.MessageIDs, msg.ID)
		}
		if msg.Timestamp.After(turn.ReceivedAt) {
			turn.ReceivedAt = msg.Timestamp
		}
		parts = append(parts, strings.TrimSpace(msg.Text))
	}
	turn.Text = strings.Join(parts, "\n")
	return turn
}
