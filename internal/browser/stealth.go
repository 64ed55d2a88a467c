package browser

import (
	"github.com/chromedp/chromedp"

	"github.com/ternarybob/clavis/internal/common"
)

// stealthScript is injected before any page script runs. The portal's edge
// fingerprints headless Chrome through navigator and screen properties, so a
// bare automation session is blocked before credentials are ever submitted.
// This does not defeat an interactive challenge, it only keeps the browser
// looking like a normal install.
const stealthScript = `
	Object.defineProperty(navigator, 'webdriver', { get: () => undefined, configurable: true });
	// Override navigator.plugins to appear like a real browser
	Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3, 4, 5], configurable: true });
	// Override navigator.languages
	Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'], configurable: true });
	// Override chrome.runtime to hide automation
	if (!window.chrome) { window.chrome = {}; }
	window.chrome.runtime = {};
	// Override permissions query
	const originalQuery = window.navigator.permissions.query;
	window.navigator.permissions.query = (parameters) => (
		parameters.name === 'notifications' ?
			Promise.resolve({ state: Notification.permission }) :
			originalQuery(parameters)
	);
	// Set realistic screen dimensions
	Object.defineProperty(screen, 'width', { get: () => 1920 });
	Object.defineProperty(screen, 'height', { get: () => 1080 });
	Object.defineProperty(screen, 'availWidth', { get: () => 1920 });
	Object.defineProperty(screen, 'availHeight', { get: () => 1040 });
	Object.defineProperty(screen, 'colorDepth', { get: () => 24 });
	Object.defineProperty(screen, 'pixelDepth', { get: () => 24 });
`

// allocatorOptions builds the Chrome launch flags for a login session.
func allocatorOptions(config common.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", config.Headless),
		chromedp.Flag("disable-gpu", config.DisableGPU),
		chromedp.Flag("no-sandbox", config.NoSandbox),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-infobars", true),

		// Stealth flags to avoid bot detection
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("excludeSwitches", "enable-automation"),
		chromedp.Flag("useAutomationExtension", false),

		chromedp.UserAgent(config.UserAgent),
	)

	if config.WindowWidth > 0 && config.WindowHeight > 0 {
		opts = append(opts, chromedp.WindowSize(config.WindowWidth, config.WindowHeight))
	}

	return opts
}
