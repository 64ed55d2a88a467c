package common

import (
	"net/url"
	"strings"
)

// NormalizeURL lowercases the host, strips the fragment and any trailing
// slash so two references to the same page compare equal. Unparseable
// input is returned trimmed rather than rejected; callers are comparing,
// not validating.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	parsed.Fragment = ""
	parsed.Host = strings.ToLower(parsed.Host)
	out := parsed.String()
	if strings.HasSuffix(out, "/") && parsed.Path != "/" {
		out = strings.TrimSuffix(out, "/")
	}
	return out
}

// URLChanged reports whether the browser moved away from the pre-submit
// page, ignoring fragment and trailing-slash differences.
func URLChanged(preSubmit, current string) bool {
	return NormalizeURL(preSubmit) != NormalizeURL(current)
}

// URLContainsMarker reports whether a URL contains the given marker
// fragment, case-insensitively. Markers are substrings like an identity
// host or an oauth2 path segment, not full URLs.
func URLContainsMarker(raw, marker string) bool {
	if marker == "" {
		return false
	}
	return strings.Contains(strings.ToLower(raw), strings.ToLower(marker))
}

// HostOf extracts the lowercased host from a URL, empty on parse failure.
func HostOf(raw string) string {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Host)
}

// CookieDomainMatches reports whether a cookie domain (possibly with a
// leading dot) covers the given host.
func CookieDomainMatches(cookieDomain, host string) bool {
	cookieDomain = strings.ToLower(strings.TrimSpace(cookieDomain))
	host = strings.ToLower(strings.TrimSpace(host))
	if cookieDomain == "" || host == "" {
		return false
	}
	trimmed := strings.TrimPrefix(cookieDomain, ".")
	return host == trimmed || strings.HasSuffix(host, "."+trimmed)
}
