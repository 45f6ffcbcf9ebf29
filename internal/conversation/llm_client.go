package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shliew97/frappe-whatsapp/pkg/logging"
)

const (
	ChatRoleSystem    = "system"
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

// ChatMessage is one turn of conversation history.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type TokenUsage struct {
	InputTokens  int32
	OutputTokens int32
	TotalTokens  int32
}

type LLMRequest struct {
	Model       string
	System      []string
	Messages    []ChatMessage
	MaxTokens   int32
	Temperature float32
	TopP        float32
}

type LLMResponse struct {
	Text       string
	Usage      TokenUsage
	StopReason string
}

type LLMClient interface {
	Complete(ctx context.Context, req LLMRequest) (LLMResponse, error)
}

const maxLLMTimeout = 30 * time.Second

// RetryingLLMClient bounds every attempt with a timeout and retries a small
// number of times with linear backoff.
type RetryingLLMClient struct {
	inner      LLMClient
	timeout    time.Duration
	maxRetries int
	backoff    time.Duration
	logger     *logging.Logger
}

// NewRetryingLLMClient wraps inner. Timeouts above 30s are capped.
func NewRetryingLLMClient(inner LLMClient, timeout time.Duration, maxRetries int, logger *logging.Logger) *RetryingLLMClient {
	if inner == nil {
		panic("conversation: llm client cannot be nil")
	}
	if timeout <= 0 || timeout > maxLLMTimeout {
		timeout = maxLLMTimeout
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RetryingLLMClient{
		inner:      inner,
		timeout:    timeout,
		maxRetries: maxRetries,
		backoff:    500 * time.Millisecond,
		logger:     logger,
	}
}

func (c *RetryingLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		resp, err := c.inner.Complete(attemptCtx, req)
		cancel()
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return LLMResponse{}, ctx.Err()
		}
		if attempt == c.maxRetries {
			break
		}
		c.logger.Warn("llm call failed, retrying", "attempt", attempt+1, "error", err)
		timer := time.NewTimer(c.backoff * time.Duration(attempt+1))
		select {
		case <-ctx.Done():
			timer.Stop()
			return LLMResponse{}, ctx.Err()
		case <-timer.C:
		}
	}
	return LLMResponse{}, fmt.Errorf("conversation: llm unavailable after %d attempts: %w", c.maxRetries+1, lastErr)
}

// ErrNoJSON is returned when a completion carries no JSON object.
var ErrNoJSON = errors.New("conversation: no json object in completion")

// ExtractJSONObject returns the text between the first '{' and the last '}'.
// Models often wrap JSON in prose or code fences.
func ExtractJSONObject(text string) (string, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return "", ErrNoJSON
	}
	return text[start : end+1], nil
}

// FormatHistory renders history as "Customer:"/"Agent:" lines for prompts.
func FormatHistory(history []ChatMessage) string {
	var b strings.Builder
	for _, msg := range history {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		switch msg.Role {
		case ChatRoleUser:
			b.WriteString("Customer: ")
		case ChatRoleAssistant:
			b.WriteString("Agent: ")
		default:
			continue
		}
		b.WriteString(content)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
