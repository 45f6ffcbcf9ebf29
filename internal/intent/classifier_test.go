package intent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shliew97/frappe-whatsapp/internal/booking"
	"github.com/shliew97/frappe-whatsapp/internal/conversation"
	"github.com/shliew97/frappe-whatsapp/pkg/logging"
)

type stubLLM struct {
	text string
	err  error
	last conversation.LLMRequest
}

func (s *stubLLM) Complete(_ context.Context, req conversation.LLMRequest) (conversation.LLMResponse, error) {
	s.last = req
	if s.err != nil {
		return conversation.LLMResponse{}, s.err
	}
	return conversation.LLMResponse{Text: s.text}, nil
}

func TestLLMClassifier(t *testing.T) {
	llm := &stubLLM{text: "```json\n{\"intent\": \"question\"}\n```"}
	classifier := NewLLMClassifier(llm, "m")

	in, err := classifier.Classify(context.Background(), "is parking free", Context{
		State:      booking.StateAwaitingConfirmation,
		LastPrompt: "Please confirm your booking",
	})
	require.NoError(t, err)
	require.Equal(t, Question, in)
	require.Contains(t, llm.last.Messages[0].Content, "AWAITING_CONFIRMATION")
	require.Contains(t, llm.last.Messages[0].Content, "Please confirm your booking")

	llm.text = "confirm"
	in, err = classifier.Classify(context.Background(), "sure", Context{})
	require.NoError(t, err)
	require.Equal(t, Confirm, in)

	llm.text = `{"intent": "banana"}`
	_, err = classifier.Classify(context.Background(), "sure", Context{})
	require.Error(t, err)
}

func TestResolverFallsBackToKeywords(t *testing.T) {
	failing := NewLLMClassifier(&stubLLM{err: errors.New("timeout")}, "m")
	resolver := NewResolver(failing, logging.Discard())

	res := resolver.Resolve(context.Background(), "yes", Context{})
	assert.Equal(t, Confirm, res.Intent)
	assert.Equal(t, SourceKeywords, res.Source)
	assert.True(t, res.Fallback())

	working := NewResolver(NewLLMClassifier(&stubLLM{text: `{"intent":"reject"}`}, "m"), logging.Discard())
	res = working.Resolve(context.Background(), "yes", Context{})
	assert.Equal(t, Reject, res.Intent)
	assert.Equal(t, SourceModel, res.Source)
	assert.False(t, res.Fallback())

	keywordsOnly := NewResolver(nil, nil)
	res = keywordsOnly.Resolve(context.Background(), "what time do you close?", Context{})
	assert.Equal(t, Question, res.Intent)
	assert.False(t, res.Fallback())
}

type mapParser map[string]booking.Partial

func (m mapParser) Parse(text string) booking.Partial {
	return m[text].Clone()
}

func TestKeywordUpdateDetector(t *testing.T) {
	parser := mapParser{
		"change time to 3pm":               {booking.FieldTimeslot: "15:00"},
		"change to 2 pax please":           {booking.FieldPax: "2"},
		"move it to friday 4pm at puchong": {booking.FieldBookingDate: "2024-06-07", booking.FieldTimeslot: "16:00", booking.FieldOutlet: "SOMA Puchong"},
	}
	detector := NewKeywordUpdateDetector(parser)
	ctx := context.Background()

	res, err := detector.DetectUpdate(ctx, nil, "change time to 3pm", nil)
	require.NoError(t, err)
	assert.True(t, res.IsUpdate)
	assert.Equal(t, UpdateReschedule, res.Type)
	assert.Equal(t, "15:00", res.Fields[booking.FieldTimeslot])

	res, _ = detector.DetectUpdate(ctx, nil, "change to 2 pax please", nil)
	assert.Equal(t, UpdateModify, res.Type)

	res, _ = detector.DetectUpdate(ctx, nil, "move it to friday 4pm at puchong", nil)
	assert.Equal(t, UpdateGeneral, res.Type)

	res, _ = detector.DetectUpdate(ctx, nil, "I want to update my booking", nil)
	assert.True(t, res.IsUpdate)
	assert.Empty(t, res.Fields.Fields())

	res, _ = detector.DetectUpdate(ctx, nil, "thanks see you", nil)
	assert.False(t, res.IsUpdate)

	res, _ = detector.DetectUpdate(ctx, nil, "please change, actually cancel it", nil)
	assert.False(t, res.IsUpdate)
}

func TestLLMUpdateDetector(t *testing.T) {
	llm := &stubLLM{text: `{"is_update": true, "update_type": "reschedule", "updated_fields": {"timeslot": "15:00:00", "pax": 2, "bogus": "x", "outlet": null}, "reasoning": "asks for 3pm"}`}
	detector := NewLLMUpdateDetector(llm, "m", time.UTC)
	detector.now = func() time.Time { return time.Date(2024, 5, 30, 9, 0, 0, 0, time.UTC) }

	d := booking.NewDraft("601")
	d.Merge(booking.Partial{booking.FieldBookingDate: "2024-06-01"})

	history := []conversation.ChatMessage{{Role: conversation.ChatRoleAssistant, Content: "Your booking is confirmed"}}
	res, err := detector.DetectUpdate(context.Background(), history, "change time to 3pm", d)
	require.NoError(t, err)
	assert.True(t, res.IsUpdate)
	assert.Equal(t, UpdateReschedule, res.Type)
	assert.Equal(t, booking.Partial{booking.FieldTimeslot: "15:00:00", booking.FieldPax: "2"}, res.Fields)

	prompt := llm.last.Messages[0].Content
	assert.True(t, strings.Contains(prompt, "Today is 2024-05-30"))
	assert.True(t, strings.Contains(prompt, "booking_date: 2024-06-01"))
	assert.True(t, strings.Contains(prompt, "Agent: Your booking is confirmed"))

	llm.text = "no idea"
	_, err = detector.DetectUpdate(context.Background(), nil, "hi", nil)
	require.Error(t, err)
}

func TestFallbackUpdateDetector(t *testing.T) {
	primary := NewLLMUpdateDetector(&stubLLM{err: errors.New("down")}, "m", nil)
	fallback := NewKeywordUpdateDetector(mapParser{"reschedule to 4pm": {booking.FieldTimeslot: "16:00"}})
	detector := NewFallbackUpdateDetector(primary, fallback, logging.Discard())

	res, err := detector.DetectUpdate(context.Background(), nil, "reschedule to 4pm", nil)
	require.NoError(t, err)
	assert.True(t, res.IsUpdate)
	assert.Equal(t, "16:00", res.Fields[booking.FieldTimeslot])

	noPrimary := NewFallbackUpdateDetector(nil, fallback, nil)
	res, err = noPrimary.DetectUpdate(context.Background(), nil, "hello", nil)
	require.NoError(t, err)
	assert.False(t, res.IsUpdate)
}
