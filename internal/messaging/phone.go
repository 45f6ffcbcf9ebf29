package messaging

import "strings"

// NormalizeWaID reduces a WhatsApp id or phone number to its digits.
func NormalizeWaID(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
