package login

import (
	"context"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/clavis/internal/interfaces"
	"github.com/ternarybob/clavis/internal/models"
)

// CookieHarvester collects session cookies across the portal's cooperating
// domains once a flow has authenticated.
type CookieHarvester struct {
	profile *models.PortalProfile
	logger  arbor.ILogger
}

// NewCookieHarvester creates a cookie harvester for the given profile
func NewCookieHarvester(profile *models.PortalProfile, logger arbor.ILogger) *CookieHarvester {
	return &CookieHarvester{
		profile: profile,
		logger:  logger,
	}
}

// Harvest visits the profile's handoff URLs so cooperating hosts mint their
// session cookies, then reads and merges cookies across the portal's
// domains into a single set keyed by name. Fails when any required cookie
// is missing or empty.
func (h *CookieHarvester) Harvest(ctx context.Context, session interfaces.BrowserSession) (models.CookieSet, error) {
	for _, handoffURL := range h.profile.HandoffURLs {
		if err := session.Navigate(ctx, handoffURL); err != nil {
			// Completeness is checked below; a failed handoff surfaces as
			// a missing required cookie
			h.logger.Warn().Err(err).Str("url", handoffURL).Msg("Handoff navigation failed")
			continue
		}
		h.logger.Debug().Str("url", handoffURL).Msg("Handoff navigation completed")
	}

	cookies, err := session.Cookies(ctx, h.domainURLs())
	if err != nil {
		return nil, err
	}

	if !cookies.Complete(h.profile.RequiredCookies) {
		missing := cookies.Missing(h.profile.RequiredCookies)
		h.logger.Warn().
			Strs("missing", missing).
			Strs("present", cookies.Names()).
			Msg("Harvested cookie set is incomplete")
		return nil, &models.IncompleteCookieSetError{Missing: missing}
	}

	h.logger.Info().
		Int("cookie_count", len(cookies)).
		Strs("required", h.profile.RequiredCookies).
		Msg("Harvested complete cookie set")

	return cookies, nil
}

// domainURLs maps the profile's cookie domains to URLs the DevTools cookie
// read can be scoped to.
func (h *CookieHarvester) domainURLs() []string {
	urls := make([]string, 0, len(h.profile.CookieDomains))
	for _, domain := range h.profile.CookieDomains {
		urls = append(urls, "https://"+strings.TrimPrefix(domain, "."))
	}
	return urls
}
