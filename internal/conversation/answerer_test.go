package conversation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shliew97/frappe-whatsapp/pkg/logging"
)

type staticKnowledge struct {
	docs []string
	err  error
}

func (s *staticKnowledge) AppendDocuments(context.Context, string, []string) error  { return nil }
func (s *staticKnowledge) ReplaceDocuments(context.Context, string, []string) error { return nil }
func (s *staticKnowledge) GetDocuments(context.Context, string) ([]string, error) {
	return s.docs, s.err
}

func TestLLMAnswerer_IncludesRankedNotes(t *testing.T) {
	llm := &scriptedLLM{responses: []LLMResponse{{Text: "We open 11am to 11.30pm."}}}
	knowledge := &staticKnowledge{docs: []string{
		"Parking is at basement level B2.",
		"Opening hours: 11am to 11.30pm daily.",
	}}
	answerer := NewLLMAnswerer(llm, knowledge, "model-x", logging.Discard())

	history := []ChatMessage{{Role: ChatRoleAssistant, Content: "Hi!"}}
	answer, err := answerer.Answer(context.Background(), history, "What are your opening hours?")
	require.NoError(t, err)
	require.Equal(t, "We open 11am to 11.30pm.", answer)

	req := llm.requests[0]
	require.Equal(t, "model-x", req.Model)
	require.Len(t, req.System, 2)
	require.True(t, strings.Contains(req.System[1], "Opening hours"))
	require.False(t, strings.Contains(req.System[1], "Parking"))
	require.Len(t, req.Messages, 2)
	require.Equal(t, ChatRoleUser, req.Messages[1].Role)
}

func TestLLMAnswerer_Failures(t *testing.T) {
	failing := NewLLMAnswerer(&scriptedLLM{errs: []error{errors.New("down")}}, nil, "", logging.Discard())
	_, err := failing.Answer(context.Background(), nil, "price?")
	require.Error(t, err)

	_, err = failing.Answer(context.Background(), nil, "   ")
	require.Error(t, err)

	blank := NewLLMAnswerer(&scriptedLLM{responses: []LLMResponse{{Text: " "}}}, &staticKnowledge{err: errors.New("redis")}, "", logging.Discard())
	_, err = blank.Answer(context.Background(), nil, "price?")
	require.Error(t, err)
}
