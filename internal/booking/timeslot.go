package booking

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// TimeOfDay is minutes since midnight.
type TimeOfDay int

// Hour returns the hour component.
func (t TimeOfDay) Hour() int { return int(t) / 60 }

// Minute returns the minute component.
func (t TimeOfDay) Minute() int { return int(t) % 60 }

// String renders the canonical 24-hour form, e.g. "14:30".
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// Display renders a 12-hour clock time, e.g. "2:30 PM".
func (t TimeOfDay) Display() string {
	h := t.Hour()
	suffix := "AM"
	if h >= 12 {
		suffix = "PM"
	}
	h12 := h % 12
	if h12 == 0 {
		h12 = 12
	}
	return fmt.Sprintf("%d:%02d %s", h12, t.Minute(), suffix)
}

var (
	clock24Re = regexp.MustCompile(`^(\d{1,2})[:.](\d{2})(?::(\d{2}))?$`)
	clock12Re = regexp.MustCompile(`^(\d{1,2})(?:[:.](\d{2}))?\s*([ap])\.?\s*m\.?$`)
)

// ParseTimeOfDay accepts "14:00", "14:00:00", "2pm", "2:30 pm" and "2.30pm".
func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == "" {
		return 0, fmt.Errorf("booking: empty time")
	}
	switch value {
	case "noon", "12 noon":
		return 12 * 60, nil
	case "midnight":
		return 0, nil
	}

	if m := clock12Re.FindStringSubmatch(value); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute := 0
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		if hour < 1 || hour > 12 || minute > 59 {
			return 0, fmt.Errorf("booking: time %q out of range", raw)
		}
		if m[3] == "p" && hour != 12 {
			hour += 12
		} else if m[3] == "a" && hour == 12 {
			hour = 0
		}
		return TimeOfDay(hour*60 + minute), nil
	}

	if m := clock24Re.FindStringSubmatch(value); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		if hour > 23 || minute > 59 {
			return 0, fmt.Errorf("booking: time %q out of range", raw)
		}
		return TimeOfDay(hour*60 + minute), nil
	}
	return 0, fmt.Errorf("booking: time %q not recognised", raw)
}

// OperatingHours is an inclusive opening window within a single day.
type OperatingHours struct {
	Open  TimeOfDay
	Close TimeOfDay
}

// DefaultOperatingHours is 11:00 AM to 11:30 PM daily.
var DefaultOperatingHours = OperatingHours{Open: 11 * 60, Close: 23*60 + 30}

// ParseOperatingHours builds hours from two clock strings.
func ParseOperatingHours(open, close string) (OperatingHours, error) {
	o, err := ParseTimeOfDay(open)
	if err != nil {
		return OperatingHours{}, err
	}
	c, err := ParseTimeOfDay(close)
	if err != nil {
		return OperatingHours{}, err
	}
	if c <= o {
		return OperatingHours{}, fmt.Errorf("booking: closing time %s must be after opening time %s", c, o)
	}
	return OperatingHours{Open: o, Close: c}, nil
}

// Contains reports whether t falls inside the window.
func (h OperatingHours) Contains(t TimeOfDay) bool {
	return t >= h.Open && t <= h.Close
}

// earlyMorningBand is the range of hours likely typed as AM when PM was meant.
const (
	earlyMorningFirst = 1
	earlyMorningLast  = 10
)

// TimeslotResult is the outcome of validating a proposed time.
type TimeslotResult struct {
	Valid bool
	// Normalized is the canonical "HH:MM" form when the input parsed.
	Normalized string
	// Suggestion is the in-hours PM equivalent for an early-morning time.
	Suggestion string
	Message    string
}

// ValidateTimeslot checks raw against the operating window. It never fails:
// malformed input comes back invalid with a format hint.
func ValidateTimeslot(h OperatingHours, raw string) TimeslotResult {
	if strings.TrimSpace(raw) == "" {
		return TimeslotResult{Message: "Please provide a preferred time for your booking."}
	}
	t, err := ParseTimeOfDay(raw)
	if err != nil {
		return TimeslotResult{
			Message: fmt.Sprintf("Sorry, I couldn't read %q as a time. Please send it like 2:30pm or 14:30.", strings.TrimSpace(raw)),
		}
	}
	if h.Contains(t) {
		return TimeslotResult{Valid: true, Normalized: t.String()}
	}

	res := TimeslotResult{Normalized: t.String()}
	if hour := t.Hour(); hour >= earlyMorningFirst && hour <= earlyMorningLast {
		pm := t + 12*60
		if h.Contains(pm) {
			res.Suggestion = pm.String()
			res.Message = fmt.Sprintf(
				"We're closed at %s. ⏰\n\nDid you mean %s?\n\nOur operating hours are:\n🕐 %s - %s daily\n\nPlease confirm or choose a different time. 😊",
				t.Display(), pm.Display(), h.Open.Display(), h.Close.Display(),
			)
			return res
		}
	}
	res.Message = fmt.Sprintf(
		"Sorry, %s is outside our operating hours. ⏰\n\nOur operating hours are:\n🕐 %s - %s daily\n\nPlease choose a time within our operating hours. 😊",
		t.Display(), h.Open.Display(), h.Close.Display(),
	)
	return res
}

// Validate is shorthand for ValidateTimeslot(h, raw).
func (h OperatingHours) Validate(raw string) TimeslotResult {
	return ValidateTimeslot(h, raw)
}
