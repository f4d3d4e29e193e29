package session

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"cisdel-notifier/portal"

	"github.com/go-resty/resty/v2"
	"golang.org/x/net/publicsuffix"
)

// NewHTTPClient returns the client that carries the portal session.
// The scraper and the resty client below share it, and so share its cookie jar.
func NewHTTPClient(timeout time.Duration) (*http.Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	return &http.Client{
		Jar:     jar,
		Timeout: timeout,
	}, nil
}

// NewRestyClient wraps hc for the login and probe requests. Redirects are
// followed but never off the portal host.
func NewRestyClient(hc *http.Client, p *portal.Portal, logger *slog.Logger) *resty.Client {
	client := resty.NewWithClient(hc)
	client.SetRedirectPolicy(
		resty.FlexibleRedirectPolicy(10),
		resty.DomainCheckRedirectPolicy(p.BaseURL().Hostname()),
	)

	h := http.Header{}
	portal.SetBrowserHeaders(h)
	for name := range h {
		client.SetHeader(name, h.Get(name))
	}

	client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		logger.Info("HTTP request completed",
			"method", res.Request.Method,
			"url", res.Request.URL,
			"final_url", finalURL(res).String(),
			"status_code", res.StatusCode(),
			"duration_ms", res.Time().Milliseconds())
		return nil
	})
	client.OnError(func(req *resty.Request, err error) {
		logger.Warn("HTTP request failed", "method", req.Method, "url", req.URL, "error", err)
	})
	return client
}

// finalURL is where the request ended up after redirects.
func finalURL(res *resty.Response) *url.URL {
	if res != nil && res.RawResponse != nil && res.RawResponse.Request != nil {
		return res.RawResponse.Request.URL
	}
	if res != nil && res.Request != nil {
		if u, err := url.Parse(res.Request.URL); err == nil {
			return u
		}
	}
	return &url.URL{}
}
