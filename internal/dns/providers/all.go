// Package providers imports all DNS provider packages to trigger their init() registration.
package providers

import (
	_ "github.com/RyanSquared/k8s-ares/internal/dns/cloudflare"
	_ "github.com/RyanSquared/k8s-ares/internal/dns/opnsense"
)
