package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Portal.BaseURL != "https://cis.del.ac.id" {
		t.Errorf("Portal.BaseURL = %q", cfg.Portal.BaseURL)
	}
	if cfg.Schedule.Interval != 5*time.Minute || cfg.Schedule.Backup != 15*time.Minute {
		t.Errorf("Schedule = %+v", cfg.Schedule)
	}
	if cfg.Schedule.Freshness != 5*time.Minute {
		t.Errorf("Freshness = %v, want 5m", cfg.Schedule.Freshness)
	}
	if cfg.Session.FetchAttempts != 1 {
		t.Errorf("FetchAttempts = %d, want 1", cfg.Session.FetchAttempts)
	}
	if cfg.Notify.Provider != ProviderLog || !cfg.Notify.Enabled {
		t.Errorf("Notify = %+v", cfg.Notify)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("Server.Port = %q", cfg.Server.Port)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
portal:
  base_url: http://localhost:9000
schedule:
  interval: 2m
notify:
  provider: gmail
  to: mhs@students.del.ac.id
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CISDEL_SCHEDULE_INTERVAL", "45s")
	t.Setenv("CISDEL_SESSION_USERNAME", "ifs21001")
	t.Setenv("CISDEL_SESSION_PASSWORD", "rahasia")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Portal.BaseURL != "http://localhost:9000" {
		t.Errorf("Portal.BaseURL = %q, want file value", cfg.Portal.BaseURL)
	}
	if cfg.Schedule.Interval != 45*time.Second {
		t.Errorf("Schedule.Interval = %v, want env override 45s", cfg.Schedule.Interval)
	}
	if cfg.Notify.Provider != ProviderGmail || cfg.Notify.To != "mhs@students.del.ac.id" {
		t.Errorf("Notify = %+v", cfg.Notify)
	}
	if cfg.Session.Username != "ifs21001" || cfg.Session.Password != "rahasia" {
		t.Errorf("Session = %+v", cfg.Session)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load() of a missing file should fail")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"unknown provider", func(c *Config) { c.Notify.Provider = "sms" }, "'Provider' failed on the 'oneof' tag"},
		{"bad recipient", func(c *Config) { c.Notify.To = "not-an-address" }, "'To' failed on the 'email' tag"},
		{"bad base url", func(c *Config) { c.Portal.BaseURL = "cis" }, "'BaseURL' failed on the 'url' tag"},
		{"gmail without recipient", func(c *Config) { c.Notify.Provider = ProviderGmail }, "notify.to"},
		{"disabled gmail without recipient", func(c *Config) {
			c.Notify.Provider = ProviderGmail
			c.Notify.Enabled = false
		}, ""},
		{"brevo without key", func(c *Config) {
			c.Notify.Provider = ProviderBrevo
			c.Notify.To = "a@example.com"
		}, "brevo_api_key"},
		{"zero attempts", func(c *Config) { c.Session.FetchAttempts = 0 }, "'FetchAttempts' failed on the 'min' tag"},
		{"username without password", func(c *Config) { c.Session.Username = "ifs21001" }, "set together"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{
				Portal:  Portal{BaseURL: "https://cis.del.ac.id"},
				Session: Session{FetchAttempts: 1},
				Notify:  Notify{Enabled: true, Provider: ProviderLog},
				Server:  Server{Port: "8080"},
			}
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
