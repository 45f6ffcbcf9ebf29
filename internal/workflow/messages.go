package workflow

import (
	"fmt"
	"strings"

	"github.com/shliew97/frappe-whatsapp/internal/booking"
)

const (
	msgAnswerUnavailable = "Thanks for your message! Our team will get back to you shortly. 🙏"
	msgTemporaryFailure  = "Sorry, something went wrong on our side. Please try again in a moment. 🙏"
	msgDraftDiscarded    = "No problem, I've cancelled your booking request. Let me know whenever you'd like to book again. 😊"
	msgAskWhatToChange   = "Sure! What would you like to change? You can send me the new date, time, outlet or number of pax."
	msgUpdateDiscarded   = "No problem, your booking remains unchanged. Let me know if there's anything else you'd like to change."
	msgNothingToUpdate   = "Your booking already has those details, so nothing needs to change. 😊"
	msgCommitFailed      = "Sorry, we couldn't complete your booking just now. Please send your booking details again and we'll try once more. 🙏"
)

func confirmationPrompt(d *booking.Draft) string {
	return fmt.Sprintf(
		"Please confirm your booking details:\n\n%s\n\nReply *YES* to confirm, or tell me what you'd like to change.",
		d.Summary(),
	)
}

func confirmedMessage(d *booking.Draft) string {
	return fmt.Sprintf(
		"✅ Your booking is confirmed!\n\nBooking Reference: %s\n\n%s\n\nWe look forward to seeing you. 😊",
		d.BookingReference, d.Summary(),
	)
}

func missingFieldsMessage(missing []booking.Field, thank bool) string {
	var b strings.Builder
	if thank {
		b.WriteString("Thank you for providing your booking details!\n\nWe still need the following information to complete your booking:\n\n")
	} else {
		b.WriteString("I'd be happy to help you book. Please send me the following information:\n\n")
	}
	for _, f := range missing {
		b.WriteString("- ")
		b.WriteString(f.Label())
		b.WriteString("\n")
	}
	b.WriteString("\nPlease provide the missing information so we can process your booking. 🙏")
	return b.String()
}

func invalidFieldsMessage(invalid map[booking.Field]error) string {
	var fields []booking.Field
	for _, f := range booking.AllFields {
		if _, ok := invalid[f]; ok {
			fields = append(fields, f)
		}
	}
	if len(fields) == 0 {
		return ""
	}
	verb := "doesn't"
	if len(fields) > 1 {
		verb = "don't"
	}
	return fmt.Sprintf("Sorry, the %s you sent %s look right. Please check and send it again.", booking.LabelList(fields), verb)
}

func updatePrompt(changes []booking.Change) string {
	var b strings.Builder
	b.WriteString("You'd like to make these changes to your booking:\n\n")
	for _, c := range changes {
		fmt.Fprintf(&b, "%s: %s ➡️ %s\n", c.Field.Label(), booking.DisplayValue(c.Field, c.From), booking.DisplayValue(c.Field, c.To))
	}
	b.WriteString("\nReply *YES* to confirm the change or *NO* to keep your booking as it is.")
	return b.String()
}

func updateReprompt(d *booking.Draft) string {
	changes, _, _ := d.Diff(d.PendingUpdateFields)
	if len(changes) == 0 {
		return "Please reply *YES* to confirm the change or *NO* to keep your booking as it is."
	}
	return "Sorry, I didn't catch that. " + updatePrompt(changes)
}

func updatedMessage(d *booking.Draft) string {
	return fmt.Sprintf(
		"✅ Your booking has been updated!\n\nBooking Reference: %s\n\n%s",
		d.BookingReference, d.Summary(),
	)
}

func updateFailedMessage(reference string) string {
	return fmt.Sprintf(
		"Sorry, we couldn't update booking %s just now. Your booking is unchanged. Please reply *YES* to try again in a moment. 🙏",
		reference,
	)
}

func cancelledMessage(reference string) string {
	return fmt.Sprintf("Your booking %s has been cancelled. We hope to see you again soon. 😊", reference)
}

func cancelFailedMessage(reference string) string {
	return fmt.Sprintf(
		"Sorry, we couldn't cancel booking %s just now. Your booking is still active. Please try again in a moment. 🙏",
		reference,
	)
}
