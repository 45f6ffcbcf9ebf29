package intent

import (
	"context"
	"regexp"
	"strings"

	"github.com/shliew97/frappe-whatsapp/internal/booking"
)

var cancelPhrases = append([]string{"cancel"}, explicitCancelPhrases...)

var explicitCancelPhrases = []string{
	"delete booking", "remove booking", "delete appointment",
	"can't make it", "cant make it", "cannot make it", "unable to make it",
	"won't be able", "will not make it", "have to skip",
	"batalkan", "batal booking", "batal appointment",
}

var cancelWordRe = regexp.MustCompile(`\bcancel(?:l?ed)?\b`)

var rejectWords = map[string]struct{}{
	"no": {}, "nope": {}, "nah": {}, "wrong": {}, "incorrect": {},
	"tak": {}, "tidak": {}, "bukan": {},
}

var confirmWords = map[string]struct{}{
	"yes": {}, "y": {}, "ya": {}, "yeah": {}, "yep": {}, "yup": {}, "yea": {},
	"ok": {}, "okay": {}, "k": {}, "sure": {}, "confirm": {}, "confirmed": {},
	"correct": {}, "betul": {}, "boleh": {}, "proceed": {}, "alright": {},
}

var confirmPhrases = []string{
	"go ahead", "sounds good", "that's right", "thats right", "looks good",
	"all good", "please proceed", "can proceed",
}

var updatePhrases = []string{
	"change", "reschedule", "update", "modify", "move", "postpone",
	"instead", "different time", "different date", "another time",
	"tukar",
}

var questionStarters = map[string]struct{}{
	"what": {}, "when": {}, "where": {}, "which": {}, "who": {}, "why": {}, "how": {},
}

var questionPhrases = []string{"do you", "is there", "are you", "can i know", "may i know"}

var unrelatedPhrases = []string{
	"operating hours", "opening hours", "business hours", "open until", "what time do you open",
	"what time do you close", "price", "how much", "cost", "promotion", "promo",
	"address", "location", "parking", "membership", "directions", "menu",
}

var bookingIntentPhrases = []string{
	"want to book", "want book", "wanna book", "would like to book",
	"need to book", "need book", "make a booking", "make booking",
	"book appointment", "book a slot", "book slot",
	"can i book", "can book", "how to book", "how do i book",
	"make appointment", "make an appointment",
	"reserve", "reservation", "schedule",
}

var treatmentWords = []string{
	"massage", "aromatherapy", "reflexology", "thera-p", "treatment", "spa",
}

var dateTimeWords = []string{
	"tomorrow", "today", "tonight", "tmr", "tmrw", "tdy",
	"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
	"next week", "this week", "morning", "afternoon", "evening", "night",
}

var intentVerbs = []string{"want", "need", "would like", "looking for", "get"}

var outletWords = []string{"soma", "kota damansara", "puchong", "cheras", "setapak", "sunway", "velocity", "petaling jaya"}

var templateLabels = []string{
	"Name:", "Outlet:", "Preferred Date:", "Preferred Time:", "No. of Pax:", "Treatment Type:", "Duration",
}

var (
	wordRe        = regexp.MustCompile(`[a-z0-9']+`)
	meridiemRe    = regexp.MustCompile(`\b\d{1,2}(?:[:.]\d{2})?\s*(?:am|pm)\b`)
	clockRe       = regexp.MustCompile(`\b\d{1,2}:\d{2}\b`)
	dayMonthRe    = regexp.MustCompile(`\b\d{1,2}[-/]\d{1,2}(?:[-/]\d{2,4})?\b`)
	localPhoneRe  = regexp.MustCompile(`\b\+?6?01\d{8,9}\b`)
	paxRe         = regexp.MustCompile(`\b\d+\s*(?:people|pax|person|persons|guests?)\b`)
	shortOutletRe = regexp.MustCompile(`\b(?:kd|pj)\b`)
)

func words(lower string) []string {
	return wordRe.FindAllString(lower, -1)
}

func containsAny(lower string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func containsWord(lower string, set []string) bool {
	for _, w := range words(lower) {
		for _, s := range set {
			if w == s {
				return true
			}
		}
	}
	return false
}

// HasCancelIntent reports whether text mentions cancelling at all. Any
// occurrence of "cancel" counts, including "cancellation".
func HasCancelIntent(text string) bool {
	return containsAny(strings.ToLower(text), cancelPhrases)
}

// HasExplicitCancel is the stricter form: "cancel" must stand as a word
// ("cancel", "cancelled"), so "cancellation policy" does not match.
func HasExplicitCancel(text string) bool {
	lower := strings.ToLower(text)
	return cancelWordRe.MatchString(lower) || containsAny(lower, explicitCancelPhrases)
}

// HasUpdateKeyword reports change/reschedule style wording.
func HasUpdateKeyword(text string) bool {
	return containsAny(strings.ToLower(text), updatePhrases)
}

// IsUnrelatedTopic reports questions about prices, hours, location and
// similar topics that are not an answer to a confirmation prompt.
func IsUnrelatedTopic(text string) bool {
	return containsAny(strings.ToLower(text), unrelatedPhrases)
}

// LooksLikeQuestion reports a question mark or an interrogative opening.
func LooksLikeQuestion(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	if strings.Contains(lower, "?") {
		return true
	}
	ws := words(lower)
	if len(ws) > 0 {
		if _, ok := questionStarters[ws[0]]; ok {
			return true
		}
	}
	for _, p := range questionPhrases {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

func mentionsTreatment(lower string) bool {
	return containsAny(lower, treatmentWords)
}

func mentionsDateOrTime(lower string) bool {
	return containsWord(lower, dateTimeWords) ||
		meridiemRe.MatchString(lower) ||
		dayMonthRe.MatchString(lower)
}

func mentionsOutlet(lower string) bool {
	return containsAny(lower, outletWords) || shortOutletRe.MatchString(lower)
}

// HasBookingIntent reports explicit booking phrases, or a treatment mentioned
// together with a date, time or wanting verb.
func HasBookingIntent(text string) bool {
	lower := strings.ToLower(text)
	if containsAny(lower, bookingIntentPhrases) || containsWord(lower, []string{"book", "booking"}) {
		return true
	}
	if !mentionsTreatment(lower) {
		return false
	}
	return mentionsDateOrTime(lower) || containsAny(lower, intentVerbs)
}

// LooksLikeBookingDetails reports messages carrying booking data: the
// labelled template, several booking indicators, or booking intent with
// specifics.
func LooksLikeBookingDetails(text string) bool {
	labelled := 0
	for _, label := range templateLabels {
		if strings.Contains(text, label) {
			labelled++
		}
	}
	if labelled >= 5 {
		return true
	}

	lower := strings.ToLower(text)
	hasOutlet := mentionsOutlet(lower)
	hasDate := containsWord(lower, []string{"tomorrow", "today", "tmr", "tmrw", "tdy"}) || dayMonthRe.MatchString(lower)
	hasTime := meridiemRe.MatchString(lower) || clockRe.MatchString(lower)
	hasPhone := localPhoneRe.MatchString(lower)

	if hasOutlet && (hasDate || hasTime || hasPhone) {
		return true
	}
	indicators := 0
	for _, ok := range []bool{hasOutlet, hasDate, hasTime, hasPhone} {
		if ok {
			indicators++
		}
	}
	if indicators >= 2 {
		return true
	}

	if HasBookingIntent(text) {
		return hasDate || hasTime || hasOutlet || paxRe.MatchString(lower)
	}
	return false
}

// KeywordClassifier is the deterministic classifier. It never fails.
type KeywordClassifier struct{}

func (KeywordClassifier) Classify(_ context.Context, text string, _ Context) (Intent, error) {
	return ClassifyKeywords(text), nil
}

// ClassifyKeywords applies, in order: cancel wording that is not a question, a rejecting first word,
// change wording, an affirmative reply, a question, and otherwise Other.
func ClassifyKeywords(text string) Intent {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return Other
	}
	if HasExplicitCancel(lower) && !LooksLikeQuestion(lower) {
		return Cancel
	}

	ws := words(lower)
	if len(ws) > 0 {
		if _, ok := rejectWords[ws[0]]; ok {
			return Reject
		}
	}
	if HasUpdateKeyword(lower) {
		return Update
	}
	if isAffirmative(lower, ws) {
		return Confirm
	}
	if LooksLikeQuestion(lower) {
		return Question
	}
	return Other
}

func isAffirmative(lower string, ws []string) bool {
	if lower == "👍" || lower == "👌" {
		return true
	}
	if strings.Contains(lower, "?") || len(ws) == 0 {
		return false
	}
	if _, ok := confirmWords[ws[0]]; ok && len(ws) <= 6 {
		return true
	}
	for _, p := range confirmPhrases {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

// DraftSummary renders the fields a model needs to reason about a booking.
func DraftSummary(d *booking.Draft) string {
	if d == nil || !d.HasAnyField() {
		return "none"
	}
	var b strings.Builder
	for _, f := range booking.AllFields {
		if v := d.Fields.Value(f); v != "" {
			b.WriteString(string(f))
			b.WriteString(": ")
			b.WriteString(v)
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
