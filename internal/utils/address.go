package utils

import "strings"

// NormalizeAddress returns the canonical form of a wallet address. Every
// address comparison in the service goes through this function.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// SameAddress reports whether two addresses refer to the same wallet.
func SameAddress(a, b string) bool {
	na := NormalizeAddress(a)
	return na != "" && na == NormalizeAddress(b)
}

// NormalizeAddresses normalizes a list of addresses, dropping blanks and duplicates.
func NormalizeAddresses(addresses []string) []string {
	seen := make(map[string]struct{}, len(addresses))
	out := make([]string, 0, len(addresses))
	for _, a := range addresses {
		n := NormalizeAddress(a)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
