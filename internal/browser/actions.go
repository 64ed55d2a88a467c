package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/ternarybob/clavis/internal/models"
)

// Navigate loads a URL and waits for the document to finish loading.
func (s *Session) Navigate(ctx context.Context, url string) error {
	err := s.run(ctx, s.config.NavigateTimeout, chromedp.Navigate(url))
	if err != nil {
		if s.browserCtx.Err() != nil {
			s.logger.Error().Err(s.browserCtx.Err()).Str("url", url).Msg("Browser context cancelled during navigation")
		}
		return s.timeoutErr("navigate", url, err)
	}
	return nil
}

// WaitVisible blocks until the selector matches a visible element. Errors are
// returned raw so callers probing candidate selectors can treat any failure
// as "not present" and move on.
func (s *Session) WaitVisible(ctx context.Context, selector string) error {
	return s.run(ctx, s.config.FieldTimeout, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

// Fill clears the element matched by selector and types the value into it.
func (s *Session) Fill(ctx context.Context, selector, value string) error {
	err := s.run(ctx, s.config.FieldTimeout,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("failed to fill %s: %w", selector, err)
	}
	return nil
}

// Click clicks the element matched by selector.
func (s *Session) Click(ctx context.Context, selector string) error {
	err := s.run(ctx, s.config.FieldTimeout,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("failed to click %s: %w", selector, err)
	}
	return nil
}

// CurrentURL returns the page's current location.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var location string
	if err := s.run(ctx, s.config.NavigateTimeout, chromedp.Location(&location)); err != nil {
		return "", s.timeoutErr("current_url", "", err)
	}
	return location, nil
}

// Snapshot captures the current URL and the serialized document so outcome
// classification can run against a stable copy of the page.
func (s *Session) Snapshot(ctx context.Context) (models.PageSnapshot, error) {
	var (
		location string
		html     string
	)
	err := s.run(ctx, s.config.NavigateTimeout,
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return models.PageSnapshot{}, s.timeoutErr("snapshot", location, err)
	}
	return models.PageSnapshot{URL: location, HTML: html}, nil
}

// Cookies reads the cookies visible to the given URLs through the DevTools
// protocol. Reading per URL rather than dumping the whole jar keeps the
// result scoped to the portal's domains.
func (s *Session) Cookies(ctx context.Context, urls []string) (models.CookieSet, error) {
	var raw []*network.Cookie
	err := s.run(ctx, s.config.NavigateTimeout,
		network.Enable(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			cookies, err := network.GetCookies().WithURLs(urls).Do(ctx)
			if err != nil {
				return err
			}
			raw = cookies
			return nil
		}),
	)
	if err != nil {
		return nil, s.timeoutErr("cookies", "", err)
	}

	set := make(models.CookieSet, len(raw))
	for _, c := range raw {
		cookie := models.Cookie{
			Name:   c.Name,
			Value:  c.Value,
			Domain: c.Domain,
		}
		if c.Expires > 0 {
			expires := time.Unix(int64(c.Expires), 0).UTC()
			cookie.ExpiresAt = &expires
		}
		set[c.Name] = cookie
	}

	s.logger.Trace().
		Int("cookie_count", len(set)).
		Int("url_count", len(urls)).
		Msg("Read cookies from browser")

	return set, nil
}

// Settle waits a fixed delay for post-submit redirects to finish. The portal
// keeps background connections open indefinitely, so waiting for an idle
// network would never return.
func (s *Session) Settle(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) timeoutErr(step, url string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &models.NavigationTimeoutError{Step: step, URL: url, Err: err}
	}
	return err
}
