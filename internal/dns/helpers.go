package dns

import (
	"strings"
)

// SplitHostname splits an FQDN into subdomain and domain parts.
// e.g. "app.example.com" → ("app", "example.com")
// e.g. "sub.app.example.com" → ("sub.app", "example.com")
func SplitHostname(fqdn string) (hostname, domain string) {
	fqdn = strings.TrimSuffix(fqdn, ".")
	parts := strings.SplitN(fqdn, ".", 2)
	if len(parts) < 2 {
		return fqdn, ""
	}
	return parts[0], parts[1]
}

// ParentSuffixes returns the fqdn followed by each suffix produced by
// stripping one leftmost label at a time, down to the last two labels.
// e.g. "a.b.example.com" → ["a.b.example.com", "b.example.com", "example.com"]
// Zone resolution probes these in order.
func ParentSuffixes(fqdn string) []string {
	fqdn = strings.TrimSuffix(fqdn, ".")
	var suffixes []string
	for s := fqdn; strings.Count(s, ".") >= 1; {
		suffixes = append(suffixes, s)
		idx := strings.Index(s, ".")
		s = s[idx+1:]
	}
	return suffixes
}
