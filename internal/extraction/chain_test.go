package extraction

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shliew97/frappe-whatsapp/internal/booking"
	"github.com/shliew97/frappe-whatsapp/internal/conversation"
	"github.com/shliew97/frappe-whatsapp/pkg/logging"
)

type stubExtractor struct {
	out booking.Partial
	err error
}

func (s stubExtractor) Extract(context.Context, Request) (booking.Partial, error) {
	return s.out, s.err
}

type recordingObserver struct {
	calls []string
}

func (r *recordingObserver) ObserveExternalCall(capability, outcome string) {
	r.calls = append(r.calls, capability+":"+outcome)
}

func TestChainExtractor_ModelWinsParserFills(t *testing.T) {
	primary := stubExtractor{out: booking.Partial{
		booking.FieldOutlet:   "SOMA PJ",
		booking.FieldTimeslot: "",
		booking.FieldPax:      "null",
	}}
	obs := &recordingObserver{}
	chain := NewChainExtractor(primary, newTestParser(t), logging.Discard(), WithCallObserver(obs))

	got, err := chain.Extract(context.Background(), Request{Message: "tomorrow 3pm at kd for 2 pax"})
	require.NoError(t, err)
	assert.Equal(t, "SOMA PJ", got[booking.FieldOutlet])
	assert.Equal(t, "15:00", got[booking.FieldTimeslot])
	assert.Equal(t, "2024-06-01", got[booking.FieldBookingDate])
	assert.Equal(t, "2", got[booking.FieldPax])
	assert.Equal(t, []string{"extract:ok"}, obs.calls)
}

func TestChainExtractor_ModelFailureDegrades(t *testing.T) {
	obs := &recordingObserver{}
	chain := NewChainExtractor(stubExtractor{err: errors.New("timeout")}, newTestParser(t), logging.Discard(), WithCallObserver(obs))

	got, err := chain.Extract(context.Background(), Request{Message: "soma kd 3pm"})
	require.NoError(t, err)
	assert.Equal(t, booking.Partial{booking.FieldOutlet: "SOMA KD", booking.FieldTimeslot: "15:00"}, got)
	assert.Equal(t, []string{"extract:fallback"}, obs.calls)

	parserOnly := NewChainExtractor(nil, newTestParser(t), nil)
	got, err = parserOnly.Extract(context.Background(), Request{Message: "soma kd"})
	require.NoError(t, err)
	assert.Equal(t, booking.Partial{booking.FieldOutlet: "SOMA KD"}, got)
}

type stubLLM struct {
	text string
	err  error
	req  conversation.LLMRequest
}

func (s *stubLLM) Complete(_ context.Context, req conversation.LLMRequest) (conversation.LLMResponse, error) {
	s.req = req
	return conversation.LLMResponse{Text: s.text}, s.err
}

func TestLLMExtractor(t *testing.T) {
	llm := &stubLLM{text: `Here you go: {"customer_name": "John", "phone": null, "outlet": "SOMA KD", "pax": 2, "session": 90, "using_package": null, "notes": "x"}`}
	e := NewLLMExtractor(llm, "model-x", nil)

	got, err := e.Extract(context.Background(), Request{
		History:  []conversation.ChatMessage{{Role: conversation.ChatRoleUser, Content: "hi"}},
		Message:  "John here, kd for 2",
		Existing: booking.Partial{booking.FieldBookingDate: "2024-06-01"},
	})
	require.NoError(t, err)
	assert.Equal(t, booking.Partial{
		booking.FieldCustomerName: "John",
		booking.FieldOutlet:       "SOMA KD",
		booking.FieldPax:          "2",
		booking.FieldSession:      "90",
	}, got)

	prompt := llm.req.Messages[0].Content
	assert.True(t, strings.Contains(prompt, "Customer: hi"))
	assert.True(t, strings.Contains(prompt, `"booking_date":"2024-06-01"`))
	assert.Equal(t, "model-x", llm.req.Model)

	llm.text = "sorry, cannot help"
	_, err = e.Extract(context.Background(), Request{Message: "x"})
	require.Error(t, err)
}
