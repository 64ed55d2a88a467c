package models

import (
	"sort"
	"strings"
	"time"
)

// CookieSource tags how a stored cookie record was obtained.
type CookieSource string

const (
	SourceAutomated CookieSource = "automated"
	SourceManual    CookieSource = "manual"
)

// Cookie is a single harvested browser cookie. ExpiresAt is nil for
// session cookies.
type Cookie struct {
	Name      string     `json:"name"`
	Value     string     `json:"value"`
	Domain    string     `json:"domain,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// CookieSet maps cookie name to cookie. Cookies harvested across the
// portal's cooperating domains are merged into one set keyed by name.
type CookieSet map[string]Cookie

// Complete reports whether every required cookie name is present with a
// non-empty value. Extra cookies never affect completeness.
func (cs CookieSet) Complete(required []string) bool {
	for _, name := range required {
		c, ok := cs[name]
		if !ok || c.Value == "" {
			return false
		}
	}
	return true
}

// Missing returns the required cookie names absent or empty in the set,
// in the order they were required.
func (cs CookieSet) Missing(required []string) []string {
	var missing []string
	for _, name := range required {
		c, ok := cs[name]
		if !ok || c.Value == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

// Names returns the cookie names in the set, sorted.
func (cs CookieSet) Names() []string {
	names := make([]string, 0, len(cs))
	for name := range cs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HeaderString renders the named cookies as a Cookie header value,
// "name=value; name2=value2", in the given order. Names absent from the
// set are skipped. When names is empty every cookie is rendered in
// sorted-name order.
func (cs CookieSet) HeaderString(names ...string) string {
	if len(names) == 0 {
		names = cs.Names()
	}
	parts := make([]string, 0, len(names))
	for _, name := range names {
		if c, ok := cs[name]; ok && c.Value != "" {
			parts = append(parts, c.Name+"="+c.Value)
		}
	}
	return strings.Join(parts, "; ")
}

// EarliestExpiry returns the name and expiry of the cookie that expires
// first. Session cookies carry no expiry and are skipped; both returns
// are zero when every cookie in the set is session-scoped.
func (cs CookieSet) EarliestExpiry() (string, *time.Time) {
	var earliestName string
	var earliest *time.Time
	for _, name := range cs.Names() {
		c := cs[name]
		if c.ExpiresAt == nil {
			continue
		}
		if earliest == nil || c.ExpiresAt.Before(*earliest) {
			earliestName = name
			earliest = c.ExpiresAt
		}
	}
	return earliestName, earliest
}

// CookieRecord is the single durable record the service persists: the most
// recently obtained cookie set, its origin, and when it was saved. Writing
// replaces the previous record atomically; the most recent save wins
// regardless of source.
type CookieRecord struct {
	Cookies CookieSet    `json:"cookies"`
	Source  CookieSource `json:"source"`
	SavedAt time.Time    `json:"saved_at"`
}

// NewCookieRecord stamps a record with the current time.
func NewCookieRecord(cookies CookieSet, source CookieSource) *CookieRecord {
	return &CookieRecord{
		Cookies: cookies,
		Source:  source,
		SavedAt: time.Now().UTC(),
	}
}
