package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shliew97/frappe-whatsapp/internal/booking"
	"github.com/shliew97/frappe-whatsapp/internal/conversation"
)

const extractionSystemPrompt = `You extract booking information for SOMA massage outlets from a WhatsApp conversation.
Look through the whole conversation and the current message for:
customer_name, phone (Malaysian numbers starting with 01 or +601), outlet (SOMA KD, SOMA Puchong, SOMA PJ,
SOMA Cheras, SOMA Setapak, SOMA Sunway, SOMA Velocity), booking_date (YYYY-MM-DD), timeslot (HH:MM:SS, 24-hour),
pax (1-10), treatment_type (Thai Massage, Oil Massage, Aromatherapy, Foot Massage, Thera-P, Massage),
session (60, 90 or 120 minutes), preferred_masseur (Male or Female), third_party_voucher (yes or no),
using_package (yes or no).
Keep an existing value unless the customer explicitly changes it in the current message.
Only extract what is explicitly mentioned or clearly implied; use null otherwise.
Return JSON only with exactly those eleven keys.`

// LLMExtractor asks a language model for the booking fields.
type LLMExtractor struct {
	llm   conversation.LLMClient
	model string
	loc   *time.Location
	now   func() time.Time
}

// NewLLMExtractor builds a model-backed extractor; relative dates resolve in loc.
func NewLLMExtractor(llm conversation.LLMClient, model string, loc *time.Location) *LLMExtractor {
	if llm == nil {
		panic("extraction: llm client cannot be nil")
	}
	if loc == nil {
		loc = time.UTC
	}
	return &LLMExtractor{llm: llm, model: model, loc: loc, now: time.Now}
}

func (e *LLMExtractor) Extract(ctx context.Context, req Request) (booking.Partial, error) {
	history := conversation.FormatHistory(req.History)
	if history == "" {
		history = "No previous conversation."
	}
	existing, err := json.Marshal(req.Existing)
	if err != nil {
		return nil, fmt.Errorf("extraction: encode existing fields: %w", err)
	}
	prompt := fmt.Sprintf("Today is %s.\n\nCONVERSATION HISTORY:\n%s\n\nCURRENT MESSAGE:\n%s\n\nEXISTING EXTRACTED DATA:\n%s",
		e.now().In(e.loc).Format(booking.DateLayout+" (Monday)"), history, req.Message, existing)

	resp, err := e.llm.Complete(ctx, conversation.LLMRequest{
		Model:       e.model,
		System:      []string{extractionSystemPrompt},
		Messages:    []conversation.ChatMessage{{Role: conversation.ChatRoleUser, Content: prompt}},
		MaxTokens:   400,
		Temperature: 0,
	})
	if err != nil {
		return nil, fmt.Errorf("extraction: model call: %w", err)
	}
	raw, err := conversation.ExtractJSONObject(resp.Text)
	if err != nil {
		return nil, fmt.Errorf("extraction: %w", err)
	}
	var values map[string]any
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, fmt.Errorf("extraction: decode fields: %w", err)
	}
	return booking.PartialFromValues(values), nil
}
