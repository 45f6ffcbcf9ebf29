package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// flowAliases maps form field names used by the booking flow screens to
// draft field names.
var flowAliases = map[string]string{
	"name":         "customer_name",
	"mobile":       "phone",
	"phone_number": "phone",
	"date":         "booking_date",
	"time":         "timeslot",
	"duration":     "session",
	"treatment":    "treatment_type",
	"masseur":      "preferred_masseur",
	"voucher":      "third_party_voucher",
	"package":      "using_package",
}

// decodeFlowResponse reads the response_json of a flow submission.
func decodeFlowResponse(payload string) (map[string]any, error) {
	if strings.TrimSpace(payload) == "" {
		return nil, errors.New("workflow: empty flow response")
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return nil, fmt.Errorf("workflow: decode flow response: %w", err)
	}
	out := make(map[string]any, len(raw))
	for key, value := range raw {
		key = strings.ToLower(strings.TrimSpace(key))
		if alias, ok := flowAliases[key]; ok {
			key = alias
		}
		out[key] = value
	}
	return out, nil
}
