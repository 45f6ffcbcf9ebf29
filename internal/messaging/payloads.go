package messaging

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shliew97/frappe-whatsapp/internal/conversation"
)

// WebhookPayload is the Cloud API notification envelope.
type WebhookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string      `json:"field"`
			Value ChangeValue `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// ChangeValue carries the messages, contacts and statuses of one change.
type ChangeValue struct {
	MessagingProduct string `json:"messaging_product"`
	Metadata         struct {
		DisplayPhoneNumber string `json:"display_phone_number"`
		PhoneNumberID      string `json:"phone_number_id"`
	} `json:"metadata"`
	Contacts []struct {
		Profile struct {
			Name string `json:"name"`
		} `json:"profile"`
		WaID string `json:"wa_id"`
	} `json:"contacts"`
	Messages []WebhookMessage `json:"messages"`
	Statuses []json.RawMessage `json:"statuses"`
}

type mediaRef struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Caption  string `json:"caption"`
}

// WebhookMessage is one inbound message as the Cloud API delivers it.
type WebhookMessage struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Context   *struct {
		From string `json:"from"`
		ID   string `json:"id"`
	} `json:"context,omitempty"`
	Text *struct {
		Body string `json:"body"`
	} `json:"text,omitempty"`
	Button *struct {
		Payload string `json:"payload"`
		Text    string `json:"text"`
	} `json:"button,omitempty"`
	Interactive *struct {
		Type        string `json:"type"`
		ButtonReply *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"button_reply,omitempty"`
		ListReply *struct {
			ID          string `json:"id"`
			Title       string `json:"title"`
			Description string `json:"description"`
		} `json:"list_reply,omitempty"`
		NfmReply *struct {
			Name         string `json:"name"`
			Body         string `json:"body"`
			ResponseJSON string `json:"response_json"`
		} `json:"nfm_reply,omitempty"`
	} `json:"interactive,omitempty"`
	Reaction *struct {
		MessageID string `json:"message_id"`
		Emoji     string `json:"emoji"`
	} `json:"reaction,omitempty"`
	Image    *mediaRef `json:"image,omitempty"`
	Audio    *mediaRef `json:"audio,omitempty"`
	Video    *mediaRef `json:"video,omitempty"`
	Document *mediaRef `json:"document,omitempty"`
	Sticker  *mediaRef `json:"sticker,omitempty"`
}

// Skipped describes a webhook message that could not be converted.
type Skipped struct {
	ID     string
	Reason string
}

// ParseWebhook converts every message in the payload. Status updates are ignored.
func ParseWebhook(payload WebhookPayload) ([]conversation.InboundMessage, []Skipped) {
	var (
		out     []conversation.InboundMessage
		skipped []Skipped
	)
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			names := make(map[string]string, len(change.Value.Contacts))
			for _, c := range change.Value.Contacts {
				names[NormalizeWaID(c.WaID)] = strings.TrimSpace(c.Profile.Name)
			}
			for _, raw := range change.Value.Messages {
				msg, reason := convertMessage(raw)
				if reason != "" {
					skipped = append(skipped, Skipped{ID: raw.ID, Reason: reason})
					continue
				}
				msg.SenderName = names[msg.Sender]
				if msg.SenderName == "" && len(change.Value.Contacts) == 1 {
					msg.SenderName = strings.TrimSpace(change.Value.Contacts[0].Profile.Name)
				}
				out = append(out, msg)
			}
		}
	}
	return out, skipped
}

func convertMessage(raw WebhookMessage) (conversation.InboundMessage, string) {
	msg := conversation.InboundMessage{
		ID:        raw.ID,
		Sender:    NormalizeWaID(raw.From),
		Timestamp: parseUnix(raw.Timestamp),
	}
	if msg.Sender == "" {
		return msg, "missing_sender"
	}
	if raw.Context != nil {
		msg.ReplyTo = raw.Context.ID
	}

	switch raw.Type {
	case "text":
		if raw.Text == nil || strings.TrimSpace(raw.Text.Body) == "" {
			return msg, "empty_text"
		}
		msg.Kind = conversation.KindText
		msg.Text = raw.Text.Body
	case "button":
		if raw.Button == nil {
			return msg, "malformed_button"
		}
		msg.Kind = conversation.KindButton
		msg.Text = raw.Button.Text
		msg.Payload = raw.Button.Payload
	case "interactive":
		if raw.Interactive == nil {
			return msg, "malformed_interactive"
		}
		switch {
		case raw.Interactive.ButtonReply != nil:
			msg.Kind = conversation.KindInteractive
			msg.Text = raw.Interactive.ButtonReply.Title
			msg.Payload = raw.Interactive.ButtonReply.ID
		case raw.Interactive.ListReply != nil:
			msg.Kind = conversation.KindInteractive
			msg.Text = raw.Interactive.ListReply.Title
			msg.Payload = raw.Interactive.ListReply.ID
		case raw.Interactive.NfmReply != nil:
			msg.Kind = conversation.KindFlow
			msg.Text = raw.Interactive.NfmReply.Body
			msg.Payload = raw.Interactive.NfmReply.ResponseJSON
		default:
			return msg, "unknown_interactive"
		}
	case "reaction":
		if raw.Reaction == nil {
			return msg, "malformed_reaction"
		}
		msg.Kind = conversation.KindReaction
		msg.Payload = raw.Reaction.Emoji
		msg.ReplyTo = raw.Reaction.MessageID
	case "image", "audio", "video", "document", "sticker":
		ref := mediaOf(raw)
		if ref == nil {
			return msg, "malformed_media"
		}
		msg.Kind = conversation.KindMedia
		msg.Text = ref.Caption
		msg.Payload = ref.ID
	default:
		return msg, "unsupported_type"
	}
	return msg, ""
}

func mediaOf(raw WebhookMessage) *mediaRef {
	switch raw.Type {
	case "image":
		return raw.Image
	case "audio":
		return raw.Audio
	case "video":
		return raw.Video
	case "document":
		return raw.Document
	case "sticker":
		return raw.Sticker
	}
	return nil
}

func parseUnix(value string) time.Time {
	sec, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || sec <= 0 {
		return time.Now().UTC()
	}
	return time.Unix(sec, 0).UTC()
}
