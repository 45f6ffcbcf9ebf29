package booking

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Field names a recognised booking draft field.
type Field string

const (
	FieldCustomerName      Field = "customer_name"
	FieldPhone             Field = "phone"
	FieldOutlet            Field = "outlet"
	FieldBookingDate       Field = "booking_date"
	FieldTimeslot          Field = "timeslot"
	FieldPax               Field = "pax"
	FieldTreatmentType     Field = "treatment_type"
	FieldSession           Field = "session"
	FieldPreferredMasseur  Field = "preferred_masseur"
	FieldThirdPartyVoucher Field = "third_party_voucher"
	FieldUsingPackage      Field = "using_package"
)

// DateLayout is the canonical stored form of booking_date.
const DateLayout = "2006-01-02"

// AllFields lists every field in display order.
var AllFields = []Field{
	FieldCustomerName,
	FieldPhone,
	FieldOutlet,
	FieldBookingDate,
	FieldTimeslot,
	FieldPax,
	FieldTreatmentType,
	FieldSession,
	FieldPreferredMasseur,
	FieldThirdPartyVoucher,
	FieldUsingPackage,
}

// RequiredFields must all be present before a draft may be confirmed.
var RequiredFields = []Field{
	FieldOutlet,
	FieldBookingDate,
	FieldTimeslot,
	FieldCustomerName,
	FieldPhone,
}

// MaterialFields are compared against the last confirmation prompt.
var MaterialFields = []Field{
	FieldBookingDate,
	FieldTimeslot,
	FieldOutlet,
	FieldPax,
	FieldTreatmentType,
	FieldSession,
}

type fieldDefault struct {
	field Field
	value string
}

// defaults are applied in this order once the required fields are satisfied.
var defaults = []fieldDefault{
	{FieldPax, "1"},
	{FieldSession, "90"},
	{FieldTreatmentType, "select at outlet"},
	{FieldUsingPackage, "no"},
}

var labels = map[Field]string{
	FieldCustomerName:      "Name",
	FieldPhone:             "Phone Number (linked to package)",
	FieldOutlet:            "Outlet",
	FieldBookingDate:       "Preferred Date",
	FieldTimeslot:          "Preferred Time",
	FieldPax:               "No. of Pax",
	FieldTreatmentType:     "Treatment Type",
	FieldSession:           "Duration",
	FieldPreferredMasseur:  "Preferred Masseur",
	FieldThirdPartyVoucher: "3rd Party Voucher",
	FieldUsingPackage:      "Using Package",
}

// Label returns the customer-facing name of a field.
func (f Field) Label() string {
	if l, ok := labels[f]; ok {
		return l
	}
	return string(f)
}

// Known reports whether f is one of the recognised fields.
func (f Field) Known() bool {
	_, ok := labels[f]
	return ok
}

// Partial is a loosely typed field map as produced by an extractor.
// Empty values mean "not supplied".
type Partial map[Field]string

// Clone returns a copy of p.
func (p Partial) Clone() Partial {
	if p == nil {
		return nil
	}
	out := make(Partial, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Present reports whether p carries a non-empty value for f.
func (p Partial) Present(f Field) bool {
	return strings.TrimSpace(p[f]) != ""
}

// Fields returns the non-empty fields of p in display order.
func (p Partial) Fields() []Field {
	var out []Field
	for _, f := range AllFields {
		if p.Present(f) {
			out = append(out, f)
		}
	}
	return out
}

// PartialFromValues converts decoded JSON into a Partial. Unknown keys and
// nulls are dropped; numbers and booleans are rendered as strings.
func PartialFromValues(values map[string]any) Partial {
	out := Partial{}
	for key, v := range values {
		f := Field(strings.ToLower(strings.TrimSpace(key)))
		if !f.Known() || v == nil {
			continue
		}
		var s string
		switch typed := v.(type) {
		case string:
			s = typed
		case float64:
			s = strconv.FormatFloat(typed, 'f', -1, 64)
		case bool:
			s = "no"
			if typed {
				s = "yes"
			}
		default:
			s = fmt.Sprint(typed)
		}
		s = strings.TrimSpace(s)
		if s == "" || strings.EqualFold(s, "null") {
			continue
		}
		out[f] = s
	}
	return out
}

var (
	errEmptyValue   = errors.New("booking: empty value")
	sessionOptions  = []int{60, 90, 120}
	nonPhoneChars   = regexp.MustCompile(`[^\d+]`)
	whitespaceRun   = regexp.MustCompile(`\s+`)
	sessionNumberRe = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(h|hr|hrs|hour|hours|m|min|mins|minute|minutes)?`)
)

// Normalize converts a raw value to the canonical stored form for f.
func Normalize(f Field, raw string) (string, error) {
	value := strings.TrimSpace(whitespaceRun.ReplaceAllString(raw, " "))
	if value == "" || strings.EqualFold(value, "null") || strings.EqualFold(value, "none") {
		return "", errEmptyValue
	}

	switch f {
	case FieldCustomerName:
		if len(value) > 80 || !strings.ContainsAny(strings.ToLower(value), "abcdefghijklmnopqrstuvwxyz") {
			return "", fmt.Errorf("booking: %q does not look like a name", value)
		}
		return value, nil
	case FieldPhone:
		return NormalizePhone(value)
	case FieldOutlet:
		return CanonicalOutlet(value), nil
	case FieldBookingDate:
		d, err := ParseDate(value)
		if err != nil {
			return "", err
		}
		return d.Format(DateLayout), nil
	case FieldTimeslot:
		t, err := ParseTimeOfDay(value)
		if err != nil {
			return "", err
		}
		return t.String(), nil
	case FieldPax:
		n, err := strconv.Atoi(strings.TrimSuffix(strings.ToLower(value), " pax"))
		if err != nil {
			return "", fmt.Errorf("booking: pax %q is not a number", value)
		}
		if n < 1 || n > 10 {
			return "", fmt.Errorf("booking: pax %d outside 1-10", n)
		}
		return strconv.Itoa(n), nil
	case FieldSession:
		minutes, err := ParseSession(value)
		if err != nil {
			return "", err
		}
		return strconv.Itoa(minutes), nil
	case FieldPreferredMasseur:
		switch strings.ToLower(value) {
		case "male", "m", "man", "men":
			return "Male", nil
		case "female", "f", "woman", "women", "lady":
			return "Female", nil
		case "any", "no preference", "either", "anyone":
			return "Any", nil
		}
		return value, nil
	case FieldThirdPartyVoucher, FieldUsingPackage:
		return normalizeYesNo(value)
	case FieldTreatmentType:
		return value, nil
	}
	return "", fmt.Errorf("booking: unknown field %q", f)
}

// NormalizePhone strips formatting and checks the digit count.
func NormalizePhone(raw string) (string, error) {
	cleaned := nonPhoneChars.ReplaceAllString(raw, "")
	plus := strings.HasPrefix(cleaned, "+")
	digits := strings.ReplaceAll(cleaned, "+", "")
	if len(digits) < 9 || len(digits) > 15 {
		return "", fmt.Errorf("booking: phone %q has %d digits", raw, len(digits))
	}
	if plus {
		return "+" + digits, nil
	}
	return digits, nil
}

// ParseSession maps a duration phrase onto one of the offered session lengths.
func ParseSession(raw string) (int, error) {
	m := sessionNumberRe.FindStringSubmatch(strings.ToLower(raw))
	if m == nil {
		switch strings.ToLower(strings.TrimSpace(raw)) {
		case "one hour":
			return 60, nil
		case "ninety minutes":
			return 90, nil
		case "two hours":
			return 120, nil
		}
		return 0, fmt.Errorf("booking: duration %q not recognised", raw)
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("booking: duration %q not recognised", raw)
	}
	if strings.HasPrefix(m[2], "h") {
		n *= 60
	}
	minutes := int(n)
	for _, opt := range sessionOptions {
		if minutes == opt {
			return minutes, nil
		}
	}
	return 0, fmt.Errorf("booking: duration %d minutes is not offered", minutes)
}

var dateLayouts = []string{
	DateLayout,
	"2-1-2006",
	"2/1/2006",
	"2.1.2006",
	"2-1-06",
	"2/1/06",
	"2 Jan 2006",
	"2 January 2006",
	"Jan 2 2006",
	"January 2 2006",
}

// ParseDate parses the absolute date formats customers use.
func ParseDate(raw string) (time.Time, error) {
	value := strings.TrimSpace(strings.ReplaceAll(raw, ",", ""))
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, value); err == nil {
			return d, nil
		}
	}
	return time.Time{}, fmt.Errorf("booking: date %q not recognised", raw)
}

func normalizeYesNo(value string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "yes", "y", "ya", "yup", "true", "ada":
		return "yes", nil
	case "no", "n", "nope", "false", "tak", "tiada", "tidak":
		return "no", nil
	}
	return "", fmt.Errorf("booking: expected yes or no, got %q", value)
}
