package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shliew97/frappe-whatsapp/internal/conversation"
)

const classifierSystemPrompt = `You classify a customer's WhatsApp reply for a massage outlet booking assistant.
Choose exactly one intent:
- confirm: agrees to the booking or change that was shown
- reject: says the details are wrong or wants something different
- cancel: wants to cancel the booking
- update: asks to change a specific detail of the booking
- question: asks a general question that is not a yes/no answer
- other: anything else
Return JSON only: {"intent": "<intent>"}`

// LLMClassifier asks a language model for the intent.
type LLMClassifier struct {
	llm   conversation.LLMClient
	model string
}

// NewLLMClassifier builds a model-backed classifier.
func NewLLMClassifier(llm conversation.LLMClient, model string) *LLMClassifier {
	if llm == nil {
		panic("intent: llm client cannot be nil")
	}
	return &LLMClassifier{llm: llm, model: model}
}

func (c *LLMClassifier) Classify(ctx context.Context, text string, cc Context) (Intent, error) {
	if strings.TrimSpace(text) == "" {
		return Other, nil
	}

	var prompt strings.Builder
	if cc.State != "" {
		fmt.Fprintf(&prompt, "Conversation state: %s\n", cc.State)
	}
	if cc.LastPrompt != "" {
		fmt.Fprintf(&prompt, "Assistant's last message:\n%s\n\n", cc.LastPrompt)
	}
	fmt.Fprintf(&prompt, "Customer reply:\n%s", text)

	resp, err := c.llm.Complete(ctx, conversation.LLMRequest{
		Model:       c.model,
		System:      []string{classifierSystemPrompt},
		Messages:    []conversation.ChatMessage{{Role: conversation.ChatRoleUser, Content: prompt.String()}},
		MaxTokens:   50,
		Temperature: 0,
	})
	if err != nil {
		return "", fmt.Errorf("intent: classify: %w", err)
	}
	return parseIntentJSON(resp.Text)
}

func parseIntentJSON(text string) (Intent, error) {
	raw, err := conversation.ExtractJSONObject(text)
	if err != nil {
		// Some models answer with the bare label.
		if in, ok := Parse(text); ok {
			return in, nil
		}
		return "", fmt.Errorf("intent: classify: %w", err)
	}
	var out struct {
		Intent string `json:"intent"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return "", fmt.Errorf("intent: decode classification: %w", err)
	}
	in, ok := Parse(out.Intent)
	if !ok {
		return "", errors.New("intent: unknown label " + out.Intent)
	}
	return in, nil
}
