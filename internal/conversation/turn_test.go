package conversation

import (
	"testing"
	"time"
)

func TestNewTurnJoinsInOrder(t *testing.T) {
	base := time.Date(2024, 5, 31, 10, 0, 0, 0, time.UTC)
	turn := NewTurn([]InboundMessage{
		{ID: "m1", Sender: "6011", SenderName: "Jo", Text: "book foot massage tomorrow 2pm for 2 pax ", Timestamp: base},
		{ID: "m2", Sender: "6011", Text: "John, 0123456789", Timestamp: base.Add(2 * time.Second)},
		{ID: "m3", Sender: "6011", SenderName: "John", Text: "SOMA KD", Timestamp: base.Add(time.Second)},
	})

	want := "book foot massage tomorrow 2pm for 2 pax\nJohn, 0123456789\nSOMA KD"
	if turn.Text != want {
		t.Fatalf("unexpected text %q", turn.Text)
	}
	if turn.SenderName != "John" {
		t.Fatalf("expected latest sender name, got %q", turn.SenderName)
	}
	if len(turn.MessageIDs) != 3 || turn.MessageIDs[2] != "m3" {
		t.Fatalf("unexpected ids %v", turn.MessageIDs)
	}
	if !turn.ReceivedAt.Equal(base.Add(2 * time.Second)) {
		t.Fatalf("expected latest timestamp, got %s", turn.ReceivedAt)
	}
}
