// -----------------------------------------------------------------------
// ChromeDP Browser Sessions
// One fresh Chrome instance per login flow, torn down when the flow ends
// -----------------------------------------------------------------------

package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/clavis/internal/common"
	"github.com/ternarybob/clavis/internal/interfaces"
)

const startupTestTimeout = 30 * time.Second

// Factory creates isolated browser sessions. Each login flow gets its own
// Chrome instance so cookies and history never leak between attempts.
type Factory struct {
	config common.BrowserConfig
	logger arbor.ILogger
}

// NewFactory creates a browser session factory
func NewFactory(config common.BrowserConfig, logger arbor.ILogger) *Factory {
	if config.UserAgent == "" {
		config.UserAgent = "Clavis/1.0"
		logger.Debug().Msg("Using default user agent")
	}
	return &Factory{
		config: config,
		logger: logger,
	}
}

// NewSession launches a Chrome instance, verifies it responds, and prepares
// it with the stealth script and a realistic viewport.
func (f *Factory) NewSession(ctx context.Context) (interfaces.BrowserSession, error) {
	startTime := time.Now()

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(ctx, allocatorOptions(f.config)...)

	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx,
		chromedp.WithLogf(func(s string, i ...interface{}) {
			f.logger.Debug().Msgf("chromedp: "+s, i...)
		}),
	)

	session := &Session{
		config:          f.config,
		logger:          f.logger,
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
		allocatorCancel: allocatorCancel,
	}

	// Test browser startup before handing the session to a flow
	testCtx, testCancel := context.WithTimeout(browserCtx, startupTestTimeout)
	defer testCancel()

	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		session.Close()
		return nil, fmt.Errorf("browser failed startup test: %w", err)
	}

	if err := chromedp.Run(testCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
			return err
		}),
		chromedp.EmulateViewport(int64(f.config.WindowWidth), int64(f.config.WindowHeight)),
	); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to prepare browser session: %w", err)
	}

	f.logger.Debug().
		Dur("startup_time", time.Since(startTime)).
		Bool("headless", f.config.Headless).
		Msg("Browser session created and tested successfully")

	return session, nil
}

// Session drives a single Chrome instance. Methods accept the caller's
// context for cancellation but all chromedp actions run on the browser
// context the instance was created with.
type Session struct {
	config common.BrowserConfig
	logger arbor.ILogger

	browserCtx      context.Context
	browserCancel   context.CancelFunc
	allocatorCancel context.CancelFunc

	closeOnce sync.Once
}

// run executes chromedp actions on the browser context with a deadline,
// relaying the caller's cancellation onto it.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	runCtx, cancel := context.WithTimeout(s.browserCtx, timeout)
	defer cancel()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

// Close tears down the Chrome instance. Safe to call more than once, and
// always called when a flow ends regardless of outcome.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.browserCancel()
		s.allocatorCancel()
		s.logger.Debug().Msg("Browser session closed")
	})
	return nil
}
