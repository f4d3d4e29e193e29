package notify

import (
	"context"
	"log/slog"
)

// LogProvider logs notifications instead of delivering them, for local development.
type LogProvider struct {
	logger *slog.Logger
}

// NewLogProvider creates a log-only provider.
func NewLogProvider(logger *slog.Logger) *LogProvider {
	return &LogProvider{logger: logger}
}

// Send logs the notification.
func (l *LogProvider) Send(_ context.Context, to, subject, htmlBody string) error {
	l.logger.Info("NOTIFICATION",
		"to", to,
		"subject", subject,
		"reference", threadRef,
		"body_length", len(htmlBody))
	return nil
}
