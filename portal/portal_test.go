package portal

import (
	"net/http"
	"net/url"
	"testing"
)

func TestNewDefaults(t *testing.T) {
	p, err := New("", "", "", "")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if got, want := p.LoginURL(), "https://cis.del.ac.id/user/login"; got != want {
		t.Errorf("LoginURL() = %q, want %q", got, want)
	}
	if got, want := p.DashboardURL(), "https://cis.del.ac.id/dashboard/default/index"; got != want {
		t.Errorf("DashboardURL() = %q, want %q", got, want)
	}
	if got, want := p.AnnouncementsURL(), "https://cis.del.ac.id/tmbh/pengumuman/pengumuman-browse"; got != want {
		t.Errorf("AnnouncementsURL() = %q, want %q", got, want)
	}
	if got, want := p.Origin(), "https://cis.del.ac.id"; got != want {
		t.Errorf("Origin() = %q, want %q", got, want)
	}
}

func TestNewRejectsBadScheme(t *testing.T) {
	if _, err := New("ftp://cis.del.ac.id", "", "", ""); err == nil {
		t.Error("New() with ftp scheme should fail")
	}
}

func TestIsLoginLocation(t *testing.T) {
	p, err := New("http://127.0.0.1:8080/", "", "", "")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	tests := []struct {
		name string
		raw  string
		want bool
	}{
		{"login page", "http://127.0.0.1:8080/user/login", true},
		{"login page with return url", "http://127.0.0.1:8080/user/login?returnUrl=%2Fdashboard", true},
		{"dashboard", "http://127.0.0.1:8080/dashboard/default/index", false},
		{"listing", "http://127.0.0.1:8080/tmbh/pengumuman/pengumuman-browse", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := url.Parse(tt.raw)
			if err != nil {
				t.Fatalf("url.Parse() error = %v", err)
			}
			if got := p.IsLoginLocation(u); got != tt.want {
				t.Errorf("IsLoginLocation(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}

	if p.IsLoginLocation(nil) {
		t.Error("IsLoginLocation(nil) = true, want false")
	}
}

func TestSetBrowserHeaders(t *testing.T) {
	h := http.Header{}
	SetBrowserHeaders(h)

	for _, name := range []string{"User-Agent", "Accept", "Accept-Language"} {
		if h.Get(name) == "" {
			t.Errorf("header %s not set", name)
		}
	}
}
