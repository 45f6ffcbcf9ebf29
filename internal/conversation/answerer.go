package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shliew97/frappe-whatsapp/pkg/logging"
)

// Answerer produces a free-form reply to a customer question.
type Answerer interface {
	Answer(ctx context.Context, history []ChatMessage, question string) (string, error)
}

const (
	answerMaxDocs   = 6
	answerMaxTokens = 500
)

const answerSystemPrompt = `You are the WhatsApp assistant for SOMA wellness outlets in Malaysia.
Answer the customer's question using only the reference notes below. Keep replies short and friendly,
suitable for WhatsApp. If the notes do not cover the question, say a team member will follow up.
Never invent prices, promotions or opening hours.`

// LLMAnswerer answers questions with retrieved knowledge snippets as context.
type LLMAnswerer struct {
	llm       LLMClient
	knowledge KnowledgeRepository
	model     string
	logger    *logging.Logger
}

// NewLLMAnswerer builds an answerer; knowledge may be nil.
func NewLLMAnswerer(llm LLMClient, knowledge KnowledgeRepository, model string, logger *logging.Logger) *LLMAnswerer {
	if llm == nil {
		panic("conversation: llm client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &LLMAnswerer{llm: llm, knowledge: knowledge, model: model, logger: logger}
}

func (a *LLMAnswerer) Answer(ctx context.Context, history []ChatMessage, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", errors.New("conversation: empty question")
	}

	system := []string{answerSystemPrompt}
	if notes := a.notes(ctx, question); notes != "" {
		system = append(system, "Reference notes:\n"+notes)
	}

	messages := make([]ChatMessage, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, ChatMessage{Role: ChatRoleUser, Content: question})

	resp, err := a.llm.Complete(ctx, LLMRequest{
		Model:       a.model,
		System:      system,
		Messages:    messages,
		MaxTokens:   answerMaxTokens,
		Temperature: 0.3,
	})
	if err != nil {
		return "", fmt.Errorf("conversation: answer question: %w", err)
	}
	if strings.TrimSpace(resp.Text) == "" {
		return "", errors.New("conversation: empty answer")
	}
	return resp.Text, nil
}

func (a *LLMAnswerer) notes(ctx context.Context, question string) string {
	if a.knowledge == nil {
		return ""
	}
	docs, err := a.knowledge.GetDocuments(ctx, GlobalTopic)
	if err != nil {
		a.logger.Warn("knowledge lookup failed", "error", err)
		return ""
	}
	ranked := RankDocuments(docs, question, answerMaxDocs)
	return strings.Join(ranked, "\n---\n")
}
