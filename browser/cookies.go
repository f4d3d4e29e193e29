package browser

import (
	"net/http"
	"net/url"
	"time"

	"github.com/chromedp/cdproto/network"
)

func parseLocation(location string) *url.URL {
	u, err := url.Parse(location)
	if err != nil {
		return &url.URL{}
	}
	return u
}

// toHTTPCookies converts browser cookies for the cookie jar. Session cookies
// keep a zero Expires.
func toHTTPCookies(in []*network.Cookie) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(in))
	for _, c := range in {
		if c == nil || c.Name == "" {
			continue
		}
		hc := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Domain:   c.Domain,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		}
		if !c.Session && c.Expires > 0 {
			hc.Expires = time.Unix(int64(c.Expires), 0)
		}
		out = append(out, hc)
	}
	return out
}

// toCookieParams converts jar cookies, which carry only name and value, for
// injection into the browser on pageURL.
func toCookieParams(in []*http.Cookie, pageURL string) []*network.CookieParam {
	out := make([]*network.CookieParam, 0, len(in))
	for _, c := range in {
		out = append(out, &network.CookieParam{
			Name:  c.Name,
			Value: c.Value,
			URL:   pageURL,
		})
	}
	return out
}
