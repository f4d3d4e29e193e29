// Package browser drives a headless Chrome for portal pages that only work
// with a real browser: form-submission login and script-rendered listings.
// Requires Chrome/Chromium to be installed on the system.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"cisdel-notifier/portal"
	"cisdel-notifier/scraper"
	"cisdel-notifier/session"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// Config controls the headless browser.
type Config struct {
	ExecPath string        // Chrome binary, empty to search the usual locations
	Timeout  time.Duration // Per-run budget
	Settle   time.Duration // Pause after navigation or submit before reading the page
}

// Browser shares cookies with the HTTP client through jar.
type Browser struct {
	portal *portal.Portal
	jar    http.CookieJar
	cfg    Config
	logger *slog.Logger
}

// New creates a browser driver.
func New(p *portal.Portal, jar http.CookieJar, cfg Config, logger *slog.Logger) *Browser {
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}
	return &Browser{
		portal: p,
		jar:    jar,
		cfg:    cfg,
		logger: logger,
	}
}

// Name implements session.Establisher.
func (*Browser) Name() string { return "browser" }

// Establish fills and submits the login form in the browser, then copies
// the resulting session cookies into the shared jar.
func (b *Browser) Establish(ctx context.Context, creds session.Credentials) error {
	ctx, cancel := b.newContext(ctx)
	defer cancel()

	var location string
	var cookies []*network.Cookie
	err := chromedp.Run(ctx,
		chromedp.Navigate(b.portal.LoginURL()),
		chromedp.WaitVisible(`form`, chromedp.ByQuery),
		chromedp.SendKeys(`input[name="LoginForm[username]"]`, creds.Username, chromedp.ByQuery),
		chromedp.SendKeys(`input[name="LoginForm[password]"]`, creds.Password, chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			// Remember-me is optional on the form.
			var ticked bool
			return chromedp.Evaluate(`(() => {
				const box = document.querySelector('input[type="checkbox"][name="LoginForm[rememberMe]"]');
				if (box && !box.checked) { box.click(); }
				return !!box;
			})()`, &ticked).Do(ctx)
		}),
		chromedp.Submit(`input[name="LoginForm[password]"]`, chromedp.ByQuery),
		chromedp.Sleep(b.cfg.Settle),
		chromedp.Location(&location),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cookies, err = network.GetCookies().WithURLs([]string{b.portal.BaseURL().String()}).Do(ctx)
			return err
		}),
	)
	if err != nil {
		return fmt.Errorf("browser login: %w", err)
	}

	if b.portal.IsLoginLocation(parseLocation(location)) {
		return fmt.Errorf("%w: browser stayed on the login page", session.ErrLoginFailed)
	}

	b.jar.SetCookies(b.portal.BaseURL(), toHTTPCookies(cookies))
	b.logger.Info("Browser login succeeded", "location", location, "cookies", len(cookies))
	return nil
}

// Render loads the announcements listing with the current session and
// returns the DOM as the browser sees it after scripts ran.
func (b *Browser) Render(ctx context.Context) (*scraper.Document, error) {
	ctx, cancel := b.newContext(ctx)
	defer cancel()

	target := b.portal.AnnouncementsURL()
	var location, html string
	err := chromedp.Run(ctx,
		network.SetCookies(toCookieParams(b.jar.Cookies(b.portal.BaseURL()), b.portal.BaseURL().String())),
		chromedp.Navigate(target),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(b.cfg.Settle),
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return nil, &scraper.NetworkError{URL: target, Err: fmt.Errorf("browser render: %w", err)}
	}

	u := parseLocation(location)
	if b.portal.IsLoginLocation(u) {
		return nil, &scraper.AuthRequiredError{URL: location}
	}

	b.logger.Info("Browser rendered page", "url", location, "bytes", len(html))
	return scraper.Parse([]byte(html), u)
}

func (b *Browser) newContext(ctx context.Context) (context.Context, context.CancelFunc) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(portal.UserAgent),
	)
	if b.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(b.cfg.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	timeoutCtx, cancelTimeout := context.WithTimeout(browserCtx, b.cfg.Timeout)

	return timeoutCtx, func() {
		cancelTimeout()
		cancelBrowser()
		cancelAlloc()
	}
}
