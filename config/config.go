// Package config loads settings from defaults, an optional YAML file,
// a .env file and CISDEL_* environment variables, in rising precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. CISDEL_PORTAL_BASE_URL.
const EnvPrefix = "CISDEL"

// Portal locates the CIS Del pages.
type Portal struct {
	BaseURL           string `mapstructure:"base_url" validate:"required,url"`
	LoginPath         string `mapstructure:"login_path"`
	DashboardPath     string `mapstructure:"dashboard_path"`
	AnnouncementsPath string `mapstructure:"announcements_path"`
}

// Session holds login settings. The password is kept in memory only.
type Session struct {
	Username      string        `mapstructure:"username"`
	Password      string        `mapstructure:"password"`
	Settle        time.Duration `mapstructure:"settle"`
	HTTPTimeout   time.Duration `mapstructure:"http_timeout"`
	FetchAttempts uint          `mapstructure:"fetch_attempts" validate:"min=1"`
}

// Browser configures the headless Chrome login and render fallback.
type Browser struct {
	Enabled  bool          `mapstructure:"enabled"`
	ExecPath string        `mapstructure:"exec_path"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Settle   time.Duration `mapstructure:"settle"`
}

// Schedule controls the check cycle timers and the cache window.
type Schedule struct {
	Interval  time.Duration `mapstructure:"interval"`
	Backup    time.Duration `mapstructure:"backup"`
	Freshness time.Duration `mapstructure:"freshness"`
}

// Notify selects the delivery provider.
type Notify struct {
	Enabled     bool   `mapstructure:"enabled"`
	Provider    string `mapstructure:"provider" validate:"oneof=log gmail brevo"`
	To          string `mapstructure:"to" validate:"omitempty,email"`
	Credentials string `mapstructure:"credentials_json"`
	BrevoAPIKey string `mapstructure:"brevo_api_key"`
	FromAddr    string `mapstructure:"from_addr" validate:"omitempty,email"`
	FromName    string `mapstructure:"from_name"`
}

// Storage selects the state backend. The first configured one wins:
// sqlite_path, then bucket, then local_path.
type Storage struct {
	SQLitePath string `mapstructure:"sqlite_path"`
	Bucket     string `mapstructure:"bucket"`
	Prefix     string `mapstructure:"prefix"`
	LocalPath  string `mapstructure:"local_path"`
}

// Server configures the HTTP surface.
type Server struct {
	Port string `mapstructure:"port" validate:"required,numeric"`
}

// Config is the full application configuration.
type Config struct {
	Portal   Portal   `mapstructure:"portal"`
	Session  Session  `mapstructure:"session"`
	Browser  Browser  `mapstructure:"browser"`
	Schedule Schedule `mapstructure:"schedule"`
	Notify   Notify   `mapstructure:"notify"`
	Storage  Storage  `mapstructure:"storage"`
	Server   Server   `mapstructure:"server"`
	LogLevel string   `mapstructure:"log_level"`
}

// Notification providers.
const (
	ProviderLog   = "log"
	ProviderGmail = "gmail"
	ProviderBrevo = "brevo"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("portal.base_url", "https://cis.del.ac.id")
	v.SetDefault("portal.login_path", "/user/login")
	v.SetDefault("portal.dashboard_path", "/dashboard/default/index")
	v.SetDefault("portal.announcements_path", "/tmbh/pengumuman/pengumuman-browse")

	v.SetDefault("session.username", "")
	v.SetDefault("session.password", "")
	v.SetDefault("session.settle", "1s")
	v.SetDefault("session.http_timeout", "30s")
	v.SetDefault("session.fetch_attempts", 1)

	v.SetDefault("browser.enabled", false)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.timeout", "60s")
	v.SetDefault("browser.settle", "3s")

	v.SetDefault("schedule.interval", "5m")
	v.SetDefault("schedule.backup", "15m")
	v.SetDefault("schedule.freshness", "5m")

	v.SetDefault("notify.enabled", true)
	v.SetDefault("notify.provider", ProviderLog)
	v.SetDefault("notify.to", "")
	v.SetDefault("notify.credentials_json", "")
	v.SetDefault("notify.brevo_api_key", "")
	v.SetDefault("notify.from_addr", "")
	v.SetDefault("notify.from_name", "CIS Del Notifier")

	v.SetDefault("storage.sqlite_path", "")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.prefix", "cisdel/")
	v.SetDefault("storage.local_path", "./data")

	v.SetDefault("server.port", "8080")
	v.SetDefault("log_level", "info")
}

// Load reads the configuration. path may be empty; a missing .env is ignored.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field formats, then the rules that span several fields.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	var errs []error
	switch c.Notify.Provider {
	case ProviderGmail:
		if c.Notify.Enabled && c.Notify.To == "" {
			errs = append(errs, errors.New("notify.to is required for the gmail provider"))
		}
	case ProviderBrevo:
		if c.Notify.Enabled && (c.Notify.To == "" || c.Notify.BrevoAPIKey == "" || c.Notify.FromAddr == "") {
			errs = append(errs, errors.New("notify.to, notify.brevo_api_key and notify.from_addr are required for the brevo provider"))
		}
	}
	if (c.Session.Username == "") != (c.Session.Password == "") {
		errs = append(errs, errors.New("session.username and session.password must be set together"))
	}
	return errors.Join(errs...)
}
