package booking

import (
	"fmt"
	"strings"
	"time"
)

// DisplayValue renders a stored value the way customers read it.
func DisplayValue(f Field, value string) string {
	if value == "" {
		return "-"
	}
	switch f {
	case FieldBookingDate:
		if d, err := time.Parse(DateLayout, value); err == nil {
			return d.Format("Mon, 02 Jan 2006")
		}
	case FieldTimeslot:
		if t, err := ParseTimeOfDay(value); err == nil {
			return t.Display()
		}
	case FieldSession:
		return value + " minutes"
	case FieldThirdPartyVoucher, FieldUsingPackage:
		if value != "" {
			return strings.ToUpper(value[:1]) + value[1:]
		}
	}
	return value
}

// Summary renders every set field as "Label: value" lines.
func (d *Draft) Summary() string {
	var b strings.Builder
	for _, f := range AllFields {
		v := d.Fields.Value(f)
		if v == "" {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", f.Label(), DisplayValue(f, v))
	}
	return strings.TrimRight(b.String(), "\n")
}

// LabelList joins field labels for a sentence, e.g. "Name, Outlet and Preferred Time".
func LabelList(fields []Field) string {
	labels := make([]string, 0, len(fields))
	for _, f := range fields {
		labels = append(labels, f.Label())
	}
	switch len(labels) {
	case 0:
		return ""
	case 1:
		return labels[0]
	}
	return strings.Join(labels[:len(labels)-1], ", ") + " and " + labels[len(labels)-1]
}
