package session

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"cisdel-notifier/portal"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
)

// HTTPEstablisher logs in by posting the login form directly.
type HTTPEstablisher struct {
	http   *resty.Client
	portal *portal.Portal
	logger *slog.Logger
	settle time.Duration
}

// NewHTTPEstablisher creates an establisher. settle is the pause between
// submitting the form and checking where the portal sent us.
func NewHTTPEstablisher(client *resty.Client, p *portal.Portal, settle time.Duration, logger *slog.Logger) *HTTPEstablisher {
	return &HTTPEstablisher{
		http:   client,
		portal: p,
		logger: logger,
		settle: settle,
	}
}

// Name implements Establisher.
func (*HTTPEstablisher) Name() string { return "http" }

// Establish implements Establisher.
func (h *HTTPEstablisher) Establish(ctx context.Context, creds Credentials) error {
	loginURL := h.portal.LoginURL()

	res, err := h.http.R().SetContext(ctx).Get(loginURL)
	if err != nil {
		return fmt.Errorf("load login page: %w", err)
	}
	if !h.portal.IsLoginLocation(finalURL(res)) {
		h.logger.Info("Login page redirected away, session already active")
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		return fmt.Errorf("parse login page: %w", err)
	}
	csrf := doc.Find(`input[name="_csrf"]`).First().AttrOr("value", "")
	if csrf == "" {
		return fmt.Errorf("%w: csrf token not found on login page", ErrLoginFailed)
	}

	res, err = h.http.R().
		SetContext(ctx).
		SetHeader("Origin", h.portal.Origin()).
		SetHeader("Referer", loginURL).
		SetFormData(map[string]string{
			"_csrf":                 csrf,
			"LoginForm[username]":   creds.Username,
			"LoginForm[password]":   creds.Password,
			"LoginForm[rememberMe]": "0",
		}).
		Post(loginURL)
	if err != nil {
		return fmt.Errorf("submit login form: %w", err)
	}

	if err := sleep(ctx, h.settle); err != nil {
		return err
	}

	final := finalURL(res)
	if h.portal.IsLoginLocation(final) {
		return fmt.Errorf("%w: portal returned to the login page", ErrLoginFailed)
	}
	h.logger.Info("Login form accepted", "final_url", final.String())
	return nil
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
