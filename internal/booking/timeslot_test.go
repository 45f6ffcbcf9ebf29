package booking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTimeslot(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		valid      bool
		normalized string
		suggestion string
		contains   string
	}{
		{name: "afternoon inside window", input: "14:00", valid: true, normalized: "14:00"},
		{name: "opening time inclusive", input: "11:00", valid: true, normalized: "11:00"},
		{name: "closing time inclusive", input: "23:30", valid: true, normalized: "23:30"},
		{name: "seconds accepted", input: "15:30:00", valid: true, normalized: "15:30"},
		{name: "twelve hour input", input: "2:30pm", valid: true, normalized: "14:30"},
		{name: "early morning suggests pm", input: "09:00", normalized: "09:00", suggestion: "21:00", contains: "Did you mean 9:00 PM?"},
		{name: "ten am suggests ten pm", input: "10:45", normalized: "10:45", suggestion: "22:45", contains: "Did you mean"},
		{name: "late night has no suggestion", input: "23:45", normalized: "23:45", contains: "outside our operating hours"},
		{name: "midnight hour has no suggestion", input: "00:30", normalized: "00:30", contains: "outside our operating hours"},
		{name: "eleven pm ok", input: "11pm", valid: true, normalized: "23:00"},
		{name: "malformed", input: "teatime", contains: "couldn't read"},
		{name: "out of range digits", input: "25:00", contains: "couldn't read"},
		{name: "empty", input: "  ", contains: "provide a preferred time"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ValidateTimeslot(DefaultOperatingHours, tt.input)
			assert.Equal(t, tt.valid, res.Valid)
			assert.Equal(t, tt.normalized, res.Normalized)
			assert.Equal(t, tt.suggestion, res.Suggestion)
			if tt.contains != "" {
				assert.Contains(t, res.Message, tt.contains)
			}
			if tt.valid {
				assert.Empty(t, res.Message)
			}
		})
	}
}

func TestParseTimeOfDay(t *testing.T) {
	tests := map[string]string{
		"2pm":     "14:00",
		"2 PM":    "14:00",
		"12pm":    "12:00",
		"12am":    "00:00",
		"1:30 pm": "13:30",
		"7.15pm":  "19:15",
		"9 a.m.":  "09:00",
		"noon":    "12:00",
		"18:05":   "18:05",
	}
	for input, want := range tests {
		got, err := ParseTimeOfDay(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got.String(), input)
	}

	for _, bad := range []string{"13pm", "", "tomorrow", "9:75"} {
		_, err := ParseTimeOfDay(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseOperatingHours(t *testing.T) {
	h, err := ParseOperatingHours("10:00", "22:00")
	require.NoError(t, err)
	assert.True(t, h.Contains(10*60))
	assert.False(t, h.Contains(22*60+1))

	_, err = ParseOperatingHours("22:00", "10:00")
	assert.Error(t, err)
}

func TestCustomHoursSuggestion(t *testing.T) {
	h := OperatingHours{Open: 12 * 60, Close: 20 * 60}
	res := h.Validate("9am")
	assert.False(t, res.Valid)
	assert.Empty(t, res.Suggestion, "21:00 is past an 8pm close")
	assert.Equal(t, "3:00 PM", TimeOfDay(15*60).Display())
}
