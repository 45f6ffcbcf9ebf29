package extraction

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/shliew97/frappe-whatsapp/internal/booking"
)

// RegexExtractor is the deterministic field parser. It understands labelled
// templates ("Outlet: SOMA KD"), free text ("book tomorrow 2pm at kd for 2")
// and the unlabelled line-per-field template.
type RegexExtractor struct {
	loc *time.Location
	now func() time.Time
}

// NewRegexExtractor builds a parser that resolves relative dates in loc.
func NewRegexExtractor(loc *time.Location) *RegexExtractor {
	if loc == nil {
		loc = time.UTC
	}
	return &RegexExtractor{loc: loc, now: time.Now}
}

func (e *RegexExtractor) Extract(_ context.Context, req Request) (booking.Partial, error) {
	return e.Parse(req.Message), nil
}

// Parse returns raw field values; normalisation happens when they are merged
// into a draft.
func (e *RegexExtractor) Parse(text string) booking.Partial {
	out := e.parseLabelled(text)
	fill(out, e.parseNatural(text))
	if len(nonEmptyLines(text)) >= 4 {
		fill(out, e.parseLineTemplate(text))
	}
	return out
}

func (e *RegexExtractor) today() time.Time {
	now := e.now().In(e.loc)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, e.loc)
}

func fill(dst, src booking.Partial) {
	for f, v := range src {
		if !dst.Present(f) && strings.TrimSpace(v) != "" {
			dst[f] = v
		}
	}
}

func nonEmptyLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// Labelled template.

var (
	labelLineRe = regexp.MustCompile(`^\s*([A-Za-z0-9 .()/'&-]+?)\s*[:：]\s*(.+?)\s*$`)
	parenRe     = regexp.MustCompile(`\([^)]*\)`)
)

var labelFields = map[string]booking.Field{
	"name":                booking.FieldCustomerName,
	"customer name":       booking.FieldCustomerName,
	"full name":           booking.FieldCustomerName,
	"phone":               booking.FieldPhone,
	"phone number":        booking.FieldPhone,
	"phone no":            booking.FieldPhone,
	"contact":             booking.FieldPhone,
	"contact number":      booking.FieldPhone,
	"mobile":              booking.FieldPhone,
	"hp":                  booking.FieldPhone,
	"outlet":              booking.FieldOutlet,
	"branch":              booking.FieldOutlet,
	"preferred date":      booking.FieldBookingDate,
	"date":                booking.FieldBookingDate,
	"preferred time":      booking.FieldTimeslot,
	"time":                booking.FieldTimeslot,
	"timeslot":            booking.FieldTimeslot,
	"no. of pax":          booking.FieldPax,
	"no of pax":           booking.FieldPax,
	"number of pax":       booking.FieldPax,
	"pax":                 booking.FieldPax,
	"treatment type":      booking.FieldTreatmentType,
	"treatment":           booking.FieldTreatmentType,
	"duration":            booking.FieldSession,
	"session":             booking.FieldSession,
	"preferred masseur":   booking.FieldPreferredMasseur,
	"masseur":             booking.FieldPreferredMasseur,
	"3rd party voucher":   booking.FieldThirdPartyVoucher,
	"third party voucher": booking.FieldThirdPartyVoucher,
	"voucher":             booking.FieldThirdPartyVoucher,
	"using package":       booking.FieldUsingPackage,
	"package":             booking.FieldUsingPackage,
}

func (e *RegexExtractor) parseLabelled(text string) booking.Partial {
	out := booking.Partial{}
	for _, line := range strings.Split(text, "\n") {
		m := labelLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		label := strings.ToLower(parenRe.ReplaceAllString(m[1], ""))
		label = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(label), "?"))
		f, ok := labelFields[label]
		if !ok || out.Present(f) {
			continue
		}
		value := m[2]
		switch f {
		case booking.FieldBookingDate:
			if d, ok := e.parseDate(value); ok {
				value = d
			}
		case booking.FieldOutlet:
			value = booking.CanonicalOutlet(value)
		}
		out[f] = value
	}
	return out
}

// Free text.

type keywordValue struct {
	re    *regexp.Regexp
	value string
}

var (
	outletAliasRes = func() []keywordValue {
		out := make([]keywordValue, 0, len(booking.OutletAliases))
		for _, a := range booking.OutletAliases {
			out = append(out, keywordValue{
				re:    regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(a.Alias) + `\b`),
				value: a.Outlet,
			})
		}
		return out
	}()
	outletLabelRe = regexp.MustCompile(`(?i)\boutlet\s*[:\-]\s*([^\n,.!?]+)`)
	somaWordRe    = regexp.MustCompile(`(?i)\b(?:soma|healthland)\s+([a-z]+)\b`)

	dayAfterRe  = regexp.MustCompile(`(?i)\bday after (?:tomorrow|tmr|tmrw)\b`)
	todayRe     = regexp.MustCompile(`(?i)\b(?:today|tdy|tonight)\b`)
	tomorrowRe  = regexp.MustCompile(`(?i)\b(?:tomorrow|tmr|tmrw|tmrow)\b`)
	weekdayRe   = regexp.MustCompile(`(?i)\b(next\s+|this\s+)?(monday|tuesday|wednesday|thursday|friday|saturday|sunday|mon|tues|tue|wed|thurs|thur|thu|fri|sat|sun)\b`)
	numDateRe   = regexp.MustCompile(`\b(\d{4}-\d{1,2}-\d{1,2}|\d{1,2}[-/.]\d{1,2}[-/.]\d{2,4})\b`)
	time12MinRe = regexp.MustCompile(`(?i)\b(\d{1,2})[:.](\d{2})\s*([ap])\.?m\b`)
	time12Re    = regexp.MustCompile(`(?i)\b(\d{1,2})\s*([ap])\.?m\b`)
	time24Re    = regexp.MustCompile(`\b([01]?\d|2[0-3]):([0-5]\d)\b`)
	noonRe      = regexp.MustCompile(`(?i)\b(?:12\s*)?noon\b`)

	paxUnitRe  = regexp.MustCompile(`(?i)\b(\d+)\s*(?:people|persons?|pax|guests?|pple|ppl)\b`)
	paxForRe   = regexp.MustCompile(`(?i)\bfor\s+(\d+)\b(\s*(?:h|hr|hrs|hour|hours|min|mins|minutes?)\b)?`)
	paxLabelRe = regexp.MustCompile(`(?i)\bpax\s*[:\-]?\s*(\d+)\b`)

	sessionMinRe  = regexp.MustCompile(`(?i)\b(60|90|120)\s*(?:min|mins|minute|minutes)\b`)
	sessionHourRe = regexp.MustCompile(`(?i)\b(1\.5|1|2)\s*(?:hour|hours|hr|hrs)\b`)

	maleRe   = regexp.MustCompile(`(?i)\b(?:male|man|men)\b`)
	femaleRe = regexp.MustCompile(`(?i)\b(?:female|woman|women|lady|ladies)\b`)

	introNameRe = regexp.MustCompile(`(?im)\b(?:my name is|name is|i am|i'm|im)\s+([a-z][a-z ]*?)\s*(?:[.,!\n]|$|\s+\d|\s+and\b)`)
	leadNameRe  = regexp.MustCompile(`(?m)^\s*([A-Za-z][A-Za-z ]{1,29}?)\s*(?:,|\s+want|\s+would|\s+need)`)

	phoneRe = regexp.MustCompile(`\b((?:\+?6)?01\d(?:[\s-]?\d){7,8})\b`)
)

var treatments = []keywordValue{
	{regexp.MustCompile(`(?i)\bthai massage\b`), "Thai Massage"},
	{regexp.MustCompile(`(?i)\bthai\b`), "Thai Massage"},
	{regexp.MustCompile(`(?i)\boil massage\b`), "Oil Massage"},
	{regexp.MustCompile(`(?i)\boil\b`), "Oil Massage"},
	{regexp.MustCompile(`(?i)\baromatherapy\b`), "Aromatherapy"},
	{regexp.MustCompile(`(?i)\baroma\b`), "Aromatherapy"},
	{regexp.MustCompile(`(?i)\bfoot (?:massage|reflexology)\b`), "Foot Massage"},
	{regexp.MustCompile(`(?i)\bfoot\b`), "Foot Massage"},
	{regexp.MustCompile(`(?i)\bthera-?p\b`), "Thera-P"},
	{regexp.MustCompile(`(?i)\bmassage\b`), "Massage"},
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday, "tues": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

// nameStopWords rule out phrases that are not names.
var nameStopWords = []string{
	"book", "want", "make", "appointment", "massage", "outlet", "free", "looking",
	"available", "interested", "coming", "going", "not", "here", "tomorrow", "today",
	"hi", "hello", "ok", "yes", "no", "sorry", "thanks", "soma", "please",
}

func (e *RegexExtractor) parseNatural(text string) booking.Partial {
	out := booking.Partial{}

	if outlet := parseOutlet(text); outlet != "" {
		out[booking.FieldOutlet] = outlet
	}
	if d, ok := e.parseDate(text); ok {
		out[booking.FieldBookingDate] = d
	}
	if t := parseTime(text); t != "" {
		out[booking.FieldTimeslot] = t
	}
	if pax := parsePax(text); pax != "" {
		out[booking.FieldPax] = pax
	}
	for _, kv := range treatments {
		if kv.re.MatchString(text) {
			out[booking.FieldTreatmentType] = kv.value
			break
		}
	}
	if session := parseSession(text); session != "" {
		out[booking.FieldSession] = session
	}
	switch {
	case maleRe.MatchString(text):
		out[booking.FieldPreferredMasseur] = "Male"
	case femaleRe.MatchString(text):
		out[booking.FieldPreferredMasseur] = "Female"
	}
	if name := parseName(text); name != "" {
		out[booking.FieldCustomerName] = name
	}
	if m := phoneRe.FindStringSubmatch(text); m != nil {
		out[booking.FieldPhone] = m[1]
	}
	return out
}

func parseOutlet(text string) string {
	if m := outletLabelRe.FindStringSubmatch(text); m != nil {
		if v := strings.TrimSpace(m[1]); v != "" {
			return booking.CanonicalOutlet(v)
		}
	}
	for _, kv := range outletAliasRes {
		if kv.re.MatchString(text) {
			return kv.value
		}
	}
	if m := somaWordRe.FindStringSubmatch(text); m != nil {
		word := strings.ToLower(m[1])
		if _, day := weekdays[word]; !day && !todayRe.MatchString(word) && !tomorrowRe.MatchString(word) && word != "outlet" {
			return "SOMA " + strings.ToUpper(word[:1]) + word[1:]
		}
	}
	return ""
}

func (e *RegexExtractor) parseDate(text string) (string, bool) {
	today := e.today()
	switch {
	case dayAfterRe.MatchString(text):
		return today.AddDate(0, 0, 2).Format(booking.DateLayout), true
	case todayRe.MatchString(text):
		return today.Format(booking.DateLayout), true
	case tomorrowRe.MatchString(text):
		return today.AddDate(0, 0, 1).Format(booking.DateLayout), true
	}
	if m := numDateRe.FindStringSubmatch(text); m != nil {
		if d, err := booking.ParseDate(m[1]); err == nil {
			return d.Format(booking.DateLayout), true
		}
	}
	if m := weekdayRe.FindStringSubmatch(text); m != nil {
		target := weekdays[strings.ToLower(m[2])]
		ahead := (int(target) - int(today.Weekday()) + 7) % 7
		if ahead == 0 && strings.HasPrefix(strings.ToLower(m[1]), "next") {
			ahead = 7
		}
		return today.AddDate(0, 0, ahead).Format(booking.DateLayout), true
	}
	if d, err := booking.ParseDate(text); err == nil {
		return d.Format(booking.DateLayout), true
	}
	return "", false
}

// parseTime checks "1:30pm" before "1pm" so minutes are not lost.
func parseTime(text string) string {
	for _, re := range []*regexp.Regexp{time12MinRe, time12Re, time24Re, noonRe} {
		m := re.FindString(text)
		if m == "" {
			continue
		}
		if t, err := booking.ParseTimeOfDay(m); err == nil {
			return t.String()
		}
	}
	return ""
}

func parsePax(text string) string {
	for _, m := range paxUnitRe.FindAllStringSubmatch(text, -1) {
		if validPax(m[1]) {
			return m[1]
		}
	}
	for _, m := range paxForRe.FindAllStringSubmatch(text, -1) {
		if m[2] == "" && validPax(m[1]) {
			return m[1]
		}
	}
	if m := paxLabelRe.FindStringSubmatch(text); m != nil && validPax(m[1]) {
		return m[1]
	}
	return ""
}

func validPax(raw string) bool {
	_, err := booking.Normalize(booking.FieldPax, raw)
	return err == nil
}

func parseSession(text string) string {
	if m := sessionMinRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if m := sessionHourRe.FindStringSubmatch(text); m != nil {
		switch m[1] {
		case "1":
			return "60"
		case "1.5":
			return "90"
		case "2":
			return "120"
		}
	}
	return ""
}

func parseName(text string) string {
	for _, re := range []*regexp.Regexp{introNameRe, leadNameRe} {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			name := strings.TrimSpace(m[1])
			if looksLikeName(name) {
				return name
			}
		}
	}
	return ""
}

func looksLikeName(name string) bool {
	if len(name) < 2 {
		return false
	}
	for _, w := range strings.Fields(strings.ToLower(name)) {
		for _, stop := range nameStopWords {
			if w == stop {
				return false
			}
		}
		if _, day := weekdays[w]; day {
			return false
		}
	}
	for _, kv := range outletAliasRes {
		if kv.re.MatchString(name) {
			return false
		}
	}
	return true
}

// Unlabelled template: name, phone, outlet, date, time, pax, treatment,
// duration, masseur, voucher, package; one per line.

var (
	startsWithDigitRe = regexp.MustCompile(`^\d`)
	longDigitsRe      = regexp.MustCompile(`\d{8,}`)
	digitsOnlyRe      = regexp.MustCompile(`^\d{1,2}$`)
)

func (e *RegexExtractor) parseLineTemplate(text string) booking.Partial {
	lines := nonEmptyLines(text)
	out := booking.Partial{}
	idx := 0
	next := func(ok func(string) bool, f booking.Field, value func(string) string) {
		if idx < len(lines) && ok(lines[idx]) {
			out[f] = value(lines[idx])
			idx++
		}
	}
	same := func(s string) string { return s }
	upperHasAny := func(words ...string) func(string) bool {
		return func(s string) bool {
			upper := strings.ToUpper(s)
			for _, w := range words {
				if strings.Contains(upper, w) {
					return true
				}
			}
			return false
		}
	}

	next(func(s string) bool {
		return !startsWithDigitRe.MatchString(s) && !upperHasAny("SOMA", "HEALTHLAND")(s)
	}, booking.FieldCustomerName, same)
	next(longDigitsRe.MatchString, booking.FieldPhone, same)
	next(func(s string) bool {
		return upperHasAny("SOMA", "HEALTHLAND")(s) || parseOutlet(s) != ""
	}, booking.FieldOutlet, same)

	var date string
	next(func(s string) bool {
		d, ok := e.parseDate(s)
		date = d
		return ok
	}, booking.FieldBookingDate, func(string) string { return date })

	next(func(s string) bool { return parseTime(s) != "" || digitsOnlyRe.MatchString(s) && !validPax(s) },
		booking.FieldTimeslot, func(s string) string {
			if t := parseTime(s); t != "" {
				return t
			}
			return s + ":00"
		})
	next(func(s string) bool { return digitsOnlyRe.MatchString(s) && validPax(s) }, booking.FieldPax, same)
	next(upperHasAny("MASSAGE", "THERA", "OIL", "THAI", "TREATMENT", "SPA", "AROMA", "FOOT"), booking.FieldTreatmentType, same)
	next(func(s string) bool {
		_, err := booking.ParseSession(s)
		return err == nil
	}, booking.FieldSession, same)
	next(func(s string) bool {
		_, err := booking.Normalize(booking.FieldPreferredMasseur, s)
		lower := strings.ToLower(s)
		return err == nil && (maleRe.MatchString(s) || femaleRe.MatchString(s) || lower == "m" || lower == "f" || lower == "any")
	}, booking.FieldPreferredMasseur, same)
	isYesNo := func(s string) bool {
		_, err := booking.Normalize(booking.FieldUsingPackage, s)
		return err == nil
	}
	next(isYesNo, booking.FieldThirdPartyVoucher, same)
	next(isYesNo, booking.FieldUsingPackage, same)
	return out
}
