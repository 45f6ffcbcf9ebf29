// Package intent classifies customer replies into a closed set of intents
// and holds the keyword heuristics the booking workflow relies on when no
// language model is available.
package intent

import (
	"context"
	"strings"

	"github.com/shliew97/frappe-whatsapp/internal/booking"
)

// Intent is the closed classification of a customer turn.
type Intent string

const (
	Confirm  Intent = "confirm"
	Reject   Intent = "reject"
	Cancel   Intent = "cancel"
	Update   Intent = "update"
	Question Intent = "question"
	Other    Intent = "other"
)

var allIntents = []Intent{Confirm, Reject, Cancel, Update, Question, Other}

// Parse maps a label such as "Confirm" or "general-question" onto an Intent.
func Parse(label string) (Intent, bool) {
	value := strings.ToLower(strings.TrimSpace(label))
	value = strings.Trim(value, `"'.`)
	switch value {
	case "reject/change", "change", "reject_change":
		return Reject, true
	case "general-question", "general_question", "general question":
		return Question, true
	}
	for _, in := range allIntents {
		if value == string(in) {
			return in, true
		}
	}
	return "", false
}

// Context is what a classifier may know about the conversation.
type Context struct {
	State booking.State
	// LastPrompt is the most recent message sent to the customer.
	LastPrompt string
}

// Classifier assigns an Intent to a customer message.
type Classifier interface {
	Classify(ctx context.Context, text string, c Context) (Intent, error)
}
