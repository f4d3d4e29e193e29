// Package scraper fetches the CIS announcements listing under the current session.
package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"cisdel-notifier/portal"

	"github.com/PuerkitoBio/goquery"
	"github.com/codeGROOVE-dev/retry"
)

const (
	// DebugHTMLLimit is how much of a fetched page is kept for debugging.
	DebugHTMLLimit = 50000

	maxBodyBytes = 8 << 20
)

// AuthRequiredError indicates the request ended on the login page.
type AuthRequiredError struct {
	URL string
}

func (e *AuthRequiredError) Error() string {
	return fmt.Sprintf("redirected to login: %s", e.URL)
}

// IsAuthRequired checks if an error is an AuthRequiredError.
func IsAuthRequired(err error) bool {
	var auth *AuthRequiredError
	return errors.As(err, &auth)
}

// NetworkError is a transport-level failure.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error fetching %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// IsNetworkError checks if an error is a NetworkError.
func IsNetworkError(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

// StatusError is a response with an unexpected status code.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.URL)
}

// Document is a fetched and parsed page.
type Document struct {
	Doc   *goquery.Document
	URL   *url.URL // Final URL after redirects
	Title string
	HTML  string
}

// DebugHTML returns the head of the raw page, cut on a rune boundary.
func (d *Document) DebugHTML() string {
	if len(d.HTML) <= DebugHTMLLimit {
		return d.HTML
	}
	cut := DebugHTMLLimit
	for cut > 0 && !utf8.RuneStart(d.HTML[cut]) {
		cut--
	}
	return d.HTML[:cut]
}

// Scraper fetches portal pages with the shared session client.
type Scraper struct {
	client   *http.Client
	portal   *portal.Portal
	logger   *slog.Logger
	attempts uint
}

// New creates a new scraper. attempts below 1 means a single attempt.
func New(client *http.Client, p *portal.Portal, logger *slog.Logger, attempts uint) *Scraper {
	if attempts < 1 {
		attempts = 1
	}
	return &Scraper{
		client:   client,
		portal:   p,
		logger:   logger,
		attempts: attempts,
	}
}

// FetchDocument fetches the announcements listing.
func (s *Scraper) FetchDocument(ctx context.Context) (*Document, error) {
	return s.Fetch(ctx, s.portal.AnnouncementsURL())
}

// Fetch retrieves pageURL. It returns *AuthRequiredError when the portal
// bounced the request to the login page, *NetworkError on transport failure
// and *StatusError on a non-200 response.
func (s *Scraper) Fetch(ctx context.Context, pageURL string) (*Document, error) {
	var doc *Document
	var lastErr error

	err := retry.Do(
		func() error {
			d, err := s.fetchOnce(ctx, pageURL)
			lastErr = err
			if err != nil {
				return err
			}
			doc = d
			return nil
		},
		retry.Attempts(s.attempts),
		retry.Delay(time.Second),
		retry.MaxDelay(30*time.Second),
		retry.MaxJitter(5*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Info("Retrying fetch after error", "attempt", n, "url", pageURL, "error", err)
		}),
		retry.RetryIf(func(err error) bool {
			return !IsAuthRequired(err)
		}),
	)
	if err != nil {
		if lastErr != nil {
			return nil, fmt.Errorf("fetch %s: %w", pageURL, lastErr)
		}
		return nil, fmt.Errorf("fetch %s: %w", pageURL, err)
	}

	return doc, nil
}

func (s *Scraper) fetchOnce(ctx context.Context, pageURL string) (*Document, error) {
	s.logger.Info("HTTP request starting",
		"method", "GET",
		"url", pageURL,
		"purpose", "fetch_announcements")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, http.NoBody)
	if err != nil {
		return nil, retry.Unrecoverable(fmt.Errorf("create request: %w", err))
	}
	portal.SetBrowserHeaders(req.Header)
	req.Header.Set("Referer", s.portal.DashboardURL())

	startTime := time.Now()
	resp, err := s.client.Do(req)
	duration := time.Since(startTime)
	if err != nil {
		s.logger.Warn("HTTP request failed",
			"url", pageURL,
			"duration_ms", duration.Milliseconds(),
			"error", err)
		return nil, &NetworkError{URL: pageURL, Err: err}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			s.logger.Warn("Failed to close response body", "error", closeErr)
		}
	}()

	final := resp.Request.URL
	s.logger.Info("HTTP request completed",
		"url", pageURL,
		"final_url", final.String(),
		"status_code", resp.StatusCode,
		"duration_ms", duration.Milliseconds())

	if s.portal.IsLoginLocation(final) {
		s.logger.Warn("Announcements request redirected to login", "final_url", final.String())
		return nil, &AuthRequiredError{URL: final.String()}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: pageURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &NetworkError{URL: pageURL, Err: fmt.Errorf("read body: %w", err)}
	}

	doc, err := Parse(body, final)
	if err != nil {
		s.logger.Error("Failed to parse HTML", "error", err)
		return nil, retry.Unrecoverable(err)
	}

	s.logger.Info("Announcements page parsed",
		"url", final.String(),
		"title", doc.Title,
		"bytes", len(body))
	return doc, nil
}

// Parse builds a Document from raw HTML served at u.
func Parse(body []byte, u *url.URL) (*Document, error) {
	gq, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	gq.Url = u
	return &Document{
		Doc:   gq,
		URL:   u,
		Title: strings.TrimSpace(gq.Find("title").First().Text()),
		HTML:  string(body),
	}, nil
}
