package booking

import "strings"

// OutletAlias maps a customer spelling to the canonical outlet name.
type OutletAlias struct {
	Alias  string
	Outlet string
}

// OutletAliases is ordered longest phrase first so "kota damansara" wins over "damansara".
var OutletAliases = []OutletAlias{
	{"kota damansara", "SOMA KD"},
	{"petaling jaya", "SOMA PJ"},
	{"damansara", "SOMA KD"},
	{"puchong", "SOMA Puchong"},
	{"setapak", "SOMA Setapak"},
	{"velocity", "SOMA Velocity"},
	{"cheras", "SOMA Cheras"},
	{"sunway", "SOMA Sunway"},
	{"kd", "SOMA KD"},
	{"pj", "SOMA PJ"},
}

// CanonicalOutlet resolves aliases such as "kd" or "SOMA kota damansara".
// Unknown outlets are returned trimmed, as the customer wrote them.
func CanonicalOutlet(raw string) string {
	value := strings.TrimSpace(raw)
	lower := strings.ToLower(value)
	for _, prefix := range []string{"soma ", "healthland "} {
		lower = strings.TrimPrefix(lower, prefix)
	}
	lower = strings.TrimSpace(strings.TrimSuffix(lower, " outlet"))
	for _, a := range OutletAliases {
		if lower == a.Alias {
			return a.Outlet
		}
	}
	for _, a := range OutletAliases {
		if strings.EqualFold(value, a.Outlet) {
			return a.Outlet
		}
	}
	return value
}
