// Package hostname normalises page hostnames so that trackers, the ignore
// list and the coordinator agree on one spelling per site.
package hostname

import (
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

// Normalize lowercases host, converts internationalised names to their
// ASCII form, drops a trailing dot and a port, and strips one leading
// "www." label. Hosts that fail IDNA conversion are only lowercased.
func Normalize(host string) string {
	h := strings.TrimSpace(host)
	if h == "" {
		return ""
	}
	if strings.Count(h, ":") == 1 {
		h = h[:strings.IndexByte(h, ':')]
	}
	h = strings.TrimSuffix(h, ".")
	if ascii, err := idna.Lookup.ToASCII(h); err == nil {
		h = ascii
	}
	h = strings.ToLower(h)
	return strings.TrimPrefix(h, "www.")
}

// FromURL extracts and normalises the hostname of raw. ok is false when raw
// does not parse or carries no host (about:blank, data: URLs, ...).
func FromURL(raw string) (host string, ok bool) {
	if raw == "" {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	h := Normalize(u.Hostname())
	return h, h != ""
}
