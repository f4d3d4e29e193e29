// Package notify raises the single replaceable announcement notification and
// delivers it through a pluggable provider.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cisdel-notifier/pkg/notifier"
)

// Title is used for every notification.
const Title = "Pengumuman CIS Baru"

// threadRef is referenced by every delivered message so mail clients group
// them into one conversation, the closest mail has to replacing a notification.
const threadRef = "<" + notifier.NotificationID + "@cisdel-notifier>"

// Provider defines the interface for delivery implementations.
type Provider interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// Store is the subset of the state store the sender writes to.
type Store interface {
	Set(ctx context.Context, key string, v any) error
	Delete(ctx context.Context, key string) error
}

// Sender builds notifications and hands them to a provider.
type Sender struct {
	provider Provider
	store    Store
	logger   *slog.Logger
	to       string // Recipient address, unused by the log provider
	url      string // Announcements page, the click target
	enabled  bool
	now      func() time.Time
}

// New creates a sender. When enabled is false Notify does nothing.
func New(provider Provider, store Store, logger *slog.Logger, to, url string, enabled bool) *Sender {
	return &Sender{
		provider: provider,
		store:    store,
		logger:   logger,
		to:       to,
		url:      url,
		enabled:  enabled,
		now:      time.Now,
	}
}

// Message is the notification text for a set of new announcements.
func Message(delta []notifier.Announcement) string {
	if len(delta) == 1 {
		return delta[0].Title
	}
	return fmt.Sprintf("Ada %d pengumuman baru dari CIS. Klik untuk melihat.", len(delta))
}

// Notify replaces the current notification with one describing delta and delivers it.
func (s *Sender) Notify(ctx context.Context, delta []notifier.Announcement) error {
	if !s.enabled {
		s.logger.Debug("Notifications disabled, skipping", "new_count", len(delta))
		return nil
	}
	if len(delta) == 0 {
		return nil
	}

	n := notifier.Notification{
		CreatedAt: s.now().UTC(),
		ID:        notifier.NotificationID,
		Title:     Title,
		Message:   Message(delta),
		URL:       s.url,
		Count:     len(delta),
	}
	if err := s.store.Set(ctx, notifier.KeyNotification, n); err != nil {
		return fmt.Errorf("save notification: %w", err)
	}

	s.logger.Info("Sending notification",
		"to", s.to,
		"count", n.Count,
		"message", n.Message)

	if err := s.provider.Send(ctx, s.to, n.Title, formatBody(&n, delta)); err != nil {
		return fmt.Errorf("deliver notification: %w", err)
	}
	return nil
}

// Clear removes the current notification.
func (s *Sender) Clear(ctx context.Context) error {
	if err := s.store.Delete(ctx, notifier.KeyNotification); err != nil {
		return fmt.Errorf("clear notification: %w", err)
	}
	s.logger.Info("Notification cleared")
	return nil
}
