// Package session decides whether the portal session is authenticated and
// re-establishes it when it is not.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"cisdel-notifier/pkg/notifier"
	"cisdel-notifier/portal"

	"github.com/go-resty/resty/v2"
)

var (
	// ErrLoginFailed means the portal rejected the credentials or the login form could not be used.
	ErrLoginFailed = errors.New("login failed")

	// ErrNoCredentials means a re-login was needed but no credentials are known.
	ErrNoCredentials = errors.New("no credentials available for login")
)

// Store is the subset of the state store the session code writes to.
type Store interface {
	SetMany(ctx context.Context, values map[string]any) error
}

// Credentials for the portal login form.
type Credentials struct {
	Username string
	Password string
}

// Valid reports whether both fields are set.
func (c Credentials) Valid() bool {
	return c.Username != "" && c.Password != ""
}

// Keyring keeps credentials in memory only. They are never persisted.
type Keyring struct {
	mu    sync.RWMutex
	creds Credentials
}

// NewKeyring returns a keyring seeded with creds, which may be empty.
func NewKeyring(creds Credentials) *Keyring {
	return &Keyring{creds: creds}
}

// Set replaces the stored credentials.
func (k *Keyring) Set(creds Credentials) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.creds = creds
}

// Get returns the stored credentials and whether they are usable.
func (k *Keyring) Get() (Credentials, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.creds, k.creds.Valid()
}

// Prober checks the session by requesting the dashboard.
type Prober struct {
	http   *resty.Client
	portal *portal.Portal
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewProber creates a prober. store may be nil to skip bookkeeping.
func NewProber(client *resty.Client, p *portal.Portal, store Store, logger *slog.Logger) *Prober {
	return &Prober{
		http:   client,
		portal: p,
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Probe reports whether the session is authenticated. Only the final URL
// after redirects counts; the status code and body are ignored.
// A transport failure returns false with an error and records nothing.
func (p *Prober) Probe(ctx context.Context) (bool, error) {
	res, err := p.http.R().SetContext(ctx).Get(p.portal.DashboardURL())
	if err != nil {
		return false, fmt.Errorf("probe dashboard: %w", err)
	}

	final := finalURL(res)
	ok := !p.portal.IsLoginLocation(final)
	p.logger.Info("Session probed", "authenticated", ok, "final_url", final.String())

	if p.store == nil {
		return ok, nil
	}
	values := map[string]any{notifier.KeyIsLoggedIn: ok}
	if ok {
		values[notifier.KeyLastLogin] = p.now().UTC()
	}
	if err := p.store.SetMany(ctx, values); err != nil {
		p.logger.Warn("Failed to record session state", "error", err)
	}
	return ok, nil
}

// Establisher performs one login sequence. It returns nil on success,
// an error wrapping ErrLoginFailed when the portal refused the login, and
// any other error for transport problems.
type Establisher interface {
	Name() string
	Establish(ctx context.Context, creds Credentials) error
}

// Manager ties probing, login and credential bookkeeping together.
type Manager struct {
	prober       *Prober
	establishers []Establisher
	keyring      *Keyring
	store        Store
	portal       *portal.Portal
	logger       *slog.Logger
	now          func() time.Time
}

// NewManager creates a manager. Establishers are tried in order on login.
func NewManager(p *portal.Portal, prober *Prober, keyring *Keyring, store Store, logger *slog.Logger, establishers ...Establisher) *Manager {
	return &Manager{
		prober:       prober,
		establishers: establishers,
		keyring:      keyring,
		store:        store,
		portal:       p,
		logger:       logger,
		now:          time.Now,
	}
}

// CheckLogin probes the current session.
func (m *Manager) CheckLogin(ctx context.Context) (bool, error) {
	return m.prober.Probe(ctx)
}

// ManualLoginURL is where a user can log in by hand.
func (m *Manager) ManualLoginURL() string {
	return m.portal.LoginURL()
}

// Login establishes a session with the given credentials. Each establisher
// gets one attempt; there is no retry loop.
func (m *Manager) Login(ctx context.Context, username, password string) error {
	creds := Credentials{Username: username, Password: password}
	if !creds.Valid() {
		return fmt.Errorf("%w: username and password are required", ErrLoginFailed)
	}
	if len(m.establishers) == 0 {
		return errors.New("no login method configured")
	}

	var errs []error
	for _, e := range m.establishers {
		m.logger.Info("Attempting login", "method", e.Name(), "username", username)
		err := e.Establish(ctx, creds)
		if err == nil {
			m.keyring.Set(creds)
			if err := m.store.SetMany(ctx, map[string]any{
				notifier.KeyUsername:   username,
				notifier.KeyIsLoggedIn: true,
				notifier.KeyLastLogin:  m.now().UTC(),
			}); err != nil {
				m.logger.Warn("Failed to record login", "error", err)
			}
			m.logger.Info("Login successful", "method", e.Name(), "username", username)
			return nil
		}

		m.logger.Warn("Login attempt failed", "method", e.Name(), "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", e.Name(), err))
		if ctx.Err() != nil {
			break
		}
	}

	if err := m.store.SetMany(ctx, map[string]any{notifier.KeyIsLoggedIn: false}); err != nil {
		m.logger.Warn("Failed to record login state", "error", err)
	}
	return errors.Join(errs...)
}

// Relogin logs in again with the keyring credentials.
func (m *Manager) Relogin(ctx context.Context) error {
	creds, ok := m.keyring.Get()
	if !ok {
		return ErrNoCredentials
	}
	m.logger.Info("Session expired, logging in again", "username", creds.Username)
	return m.Login(ctx, creds.Username, creds.Password)
}
