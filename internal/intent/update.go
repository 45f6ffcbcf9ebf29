package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shliew97/frappe-whatsapp/internal/booking"
	"github.com/shliew97/frappe-whatsapp/internal/conversation"
	"github.com/shliew97/frappe-whatsapp/pkg/logging"
)

// UpdateType describes the scope of a requested change.
type UpdateType string

const (
	UpdateReschedule UpdateType = "reschedule"
	UpdateModify     UpdateType = "modify_details"
	UpdateGeneral    UpdateType = "general_update"
)

// UpdateResult is the outcome of update-intent detection.
type UpdateResult struct {
	IsUpdate  bool
	Type      UpdateType
	Fields    booking.Partial
	Reasoning string
}

// UpdateDetector decides whether a message asks to change an existing booking.
type UpdateDetector interface {
	DetectUpdate(ctx context.Context, history []conversation.ChatMessage, text string, draft *booking.Draft) (UpdateResult, error)
}

// FieldParser pulls field values out of free text without a model.
type FieldParser interface {
	Parse(text string) booking.Partial
}

// KeywordUpdateDetector treats change wording as an update and parses the
// new values with a deterministic parser.
type KeywordUpdateDetector struct {
	parser FieldParser
}

// NewKeywordUpdateDetector builds the deterministic detector.
func NewKeywordUpdateDetector(parser FieldParser) *KeywordUpdateDetector {
	if parser == nil {
		panic("intent: field parser cannot be nil")
	}
	return &KeywordUpdateDetector{parser: parser}
}

func (d *KeywordUpdateDetector) DetectUpdate(_ context.Context, _ []conversation.ChatMessage, text string, _ *booking.Draft) (UpdateResult, error) {
	if !HasUpdateKeyword(text) || HasCancelIntent(text) {
		return UpdateResult{}, nil
	}
	fields := d.parser.Parse(text)
	return UpdateResult{IsUpdate: true, Type: classifyUpdate(fields), Fields: fields}, nil
}

func classifyUpdate(fields booking.Partial) UpdateType {
	present := fields.Fields()
	if len(present) == 0 {
		return UpdateGeneral
	}
	schedule := 0
	for _, f := range present {
		if f == booking.FieldBookingDate || f == booking.FieldTimeslot {
			schedule++
		}
	}
	switch {
	case schedule == len(present):
		return UpdateReschedule
	case schedule == 0 && len(present) == 1:
		return UpdateModify
	default:
		return UpdateGeneral
	}
}

const updateSystemPrompt = `You detect whether a customer wants to UPDATE an existing confirmed massage booking
or is talking about something else.
Update wording includes "update", "modify", "change my booking", "reschedule", "move my booking",
"different time", "different date". A brand new booking request is NOT an update.
Extract ONLY the fields the customer wants to change, using these keys:
customer_name, phone, outlet, booking_date (YYYY-MM-DD), timeslot (HH:MM:SS, 24-hour), pax,
treatment_type, session (60, 90 or 120), preferred_masseur, third_party_voucher, using_package.
Return JSON only:
{"is_update": true|false, "update_type": "reschedule"|"modify_details"|"general_update"|null,
 "updated_fields": {"field": "value"}, "reasoning": "short explanation"}`

// LLMUpdateDetector asks a language model whether the turn is an update.
type LLMUpdateDetector struct {
	llm   conversation.LLMClient
	model string
	loc   *time.Location
	now   func() time.Time
}

// NewLLMUpdateDetector builds a model-backed detector; dates are resolved in loc.
func NewLLMUpdateDetector(llm conversation.LLMClient, model string, loc *time.Location) *LLMUpdateDetector {
	if llm == nil {
		panic("intent: llm client cannot be nil")
	}
	if loc == nil {
		loc = time.UTC
	}
	return &LLMUpdateDetector{llm: llm, model: model, loc: loc, now: time.Now}
}

func (d *LLMUpdateDetector) DetectUpdate(ctx context.Context, history []conversation.ChatMessage, text string, draft *booking.Draft) (UpdateResult, error) {
	formatted := conversation.FormatHistory(history)
	if formatted == "" {
		formatted = "No previous conversation."
	}
	prompt := fmt.Sprintf("Today is %s.\n\nCONVERSATION HISTORY:\n%s\n\nCURRENT MESSAGE:\n%s\n\nEXISTING BOOKING:\n%s",
		d.now().In(d.loc).Format(booking.DateLayout), formatted, text, DraftSummary(draft))

	resp, err := d.llm.Complete(ctx, conversation.LLMRequest{
		Model:       d.model,
		System:      []string{updateSystemPrompt},
		Messages:    []conversation.ChatMessage{{Role: conversation.ChatRoleUser, Content: prompt}},
		MaxTokens:   400,
		Temperature: 0,
	})
	if err != nil {
		return UpdateResult{}, fmt.Errorf("intent: detect update: %w", err)
	}
	raw, err := conversation.ExtractJSONObject(resp.Text)
	if err != nil {
		return UpdateResult{}, fmt.Errorf("intent: detect update: %w", err)
	}

	var out struct {
		IsUpdate      bool           `json:"is_update"`
		UpdateType    *string        `json:"update_type"`
		UpdatedFields map[string]any `json:"updated_fields"`
		Reasoning     string         `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return UpdateResult{}, fmt.Errorf("intent: decode update detection: %w", err)
	}

	result := UpdateResult{IsUpdate: out.IsUpdate, Reasoning: out.Reasoning, Fields: booking.PartialFromValues(out.UpdatedFields)}
	if out.UpdateType != nil {
		result.Type = UpdateType(*out.UpdateType)
	}
	if result.IsUpdate && result.Type == "" {
		result.Type = classifyUpdate(result.Fields)
	}
	return result, nil
}

// FallbackUpdateDetector uses the model detector and falls back to keywords
// when it fails.
type FallbackUpdateDetector struct {
	primary  UpdateDetector
	fallback UpdateDetector
	logger   *logging.Logger
}

// NewFallbackUpdateDetector wires the pair; primary may be nil.
func NewFallbackUpdateDetector(primary, fallback UpdateDetector, logger *logging.Logger) *FallbackUpdateDetector {
	if fallback == nil {
		panic("intent: fallback update detector cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &FallbackUpdateDetector{primary: primary, fallback: fallback, logger: logger}
}

// DetectUpdate only returns an error when the fallback itself fails.
func (d *FallbackUpdateDetector) DetectUpdate(ctx context.Context, history []conversation.ChatMessage, text string, draft *booking.Draft) (UpdateResult, error) {
	if d.primary != nil {
		res, err := d.primary.DetectUpdate(ctx, history, text, draft)
		if err == nil {
			return res, nil
		}
		d.logger.Warn("update detector unavailable, using keywords", "error", err)
	}
	return d.fallback.DetectUpdate(ctx, history, text, draft)
}
