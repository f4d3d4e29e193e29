// Package portal describes the CIS Del endpoints and how requests to them must look.
package portal

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Default endpoints of the CIS Del portal.
const (
	DefaultBaseURL           = "https://cis.del.ac.id"
	DefaultLoginPath         = "/user/login"
	DefaultDashboardPath     = "/dashboard/default/index"
	DefaultAnnouncementsPath = "/tmbh/pengumuman/pengumuman-browse"
)

// UserAgent is sent with every request so the portal serves the regular desktop markup.
const UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/135.0.0.0 Safari/537.36"

// Portal holds the fixed endpoints used for login, the auth probe and the listing.
type Portal struct {
	base              *url.URL
	loginPath         string
	dashboardPath     string
	announcementsPath string
}

// New validates baseURL and returns a Portal. Empty paths fall back to the defaults.
func New(baseURL, loginPath, dashboardPath, announcementsPath string) (*Portal, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q must be http or https", baseURL)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")

	p := &Portal{
		base:              u,
		loginPath:         orDefault(loginPath, DefaultLoginPath),
		dashboardPath:     orDefault(dashboardPath, DefaultDashboardPath),
		announcementsPath: orDefault(announcementsPath, DefaultAnnouncementsPath),
	}
	return p, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// BaseURL returns the portal origin.
func (p *Portal) BaseURL() *url.URL {
	u := *p.base
	return &u
}

// Origin returns scheme://host, as sent in the Origin header.
func (p *Portal) Origin() string {
	return p.base.Scheme + "://" + p.base.Host
}

// LoginURL is the login form endpoint.
func (p *Portal) LoginURL() string { return p.resolve(p.loginPath) }

// DashboardURL is the protected page used for the auth probe.
func (p *Portal) DashboardURL() string { return p.resolve(p.dashboardPath) }

// AnnouncementsURL is the announcements listing page.
func (p *Portal) AnnouncementsURL() string { return p.resolve(p.announcementsPath) }

func (p *Portal) resolve(path string) string {
	return p.base.String() + path
}

// IsLoginLocation reports whether u is the login page.
// Only the location decides; status codes and bodies are never consulted.
func (p *Portal) IsLoginLocation(u *url.URL) bool {
	if u == nil {
		return false
	}
	return strings.Contains(u.Path, p.loginPath)
}

// SetBrowserHeaders sets Chrome-like headers to avoid getting served a bot page.
func SetBrowserHeaders(h http.Header) {
	h.Set("User-Agent", UserAgent)
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8")
	h.Set("Accept-Language", "en-US,en;q=0.9,id;q=0.8")
	// Note: Don't set Accept-Encoding - let Go's http.Client handle compression automatically
	h.Set("Cache-Control", "max-age=0")
	h.Set("Upgrade-Insecure-Requests", "1")
	h.Set("Sec-Fetch-Dest", "document")
	h.Set("Sec-Fetch-Mode", "navigate")
}
