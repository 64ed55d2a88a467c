package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/clavis/internal/models"
)

// BrowserSession is the narrow view of the automated browsing context the
// login flow drives. The flow engine only ever sees this interface so its
// transitions are testable without a real browser.
type BrowserSession interface {
	// Navigate loads a URL and waits for the document to become ready.
	Navigate(ctx context.Context, url string) error

	// WaitVisible blocks until the selector matches a visible element or
	// the context deadline expires.
	WaitVisible(ctx context.Context, selector string) error

	// Fill clears and types into the element matched by selector.
	Fill(ctx context.Context, selector, value string) error

	// Click clicks the element matched by selector.
	Click(ctx context.Context, selector string) error

	// CurrentURL returns the page's current location.
	CurrentURL(ctx context.Context) (string, error)

	// Snapshot captures the current URL and serialized document.
	Snapshot(ctx context.Context) (models.PageSnapshot, error)

	// Cookies reads the cookies visible to the given URLs.
	Cookies(ctx context.Context, urls []string) (models.CookieSet, error)

	// Settle waits the fixed post-submit delay. A fixed settle condition
	// is used because the portal keeps background connections open
	// indefinitely; waiting for an idle network would never return.
	Settle(ctx context.Context, delay time.Duration) error

	// Close releases the browsing context. Safe to call more than once.
	Close() error
}

// BrowserFactory opens a fresh browsing context per login flow.
type BrowserFactory interface {
	NewSession(ctx context.Context) (BrowserSession, error)
}
