package poll

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cisdel-notifier/pkg/notifier"
)

// DefaultFreshness is how long a fetched listing is reused instead of fetching again.
const DefaultFreshness = 5 * time.Minute

// Cache keeps the last extraction in the state store, under the
// announcements and lastAnnouncementFetch keys.
type Cache struct {
	store  Store
	logger *slog.Logger
	window time.Duration
	now    func() time.Time
}

// NewCache creates a cache with the given freshness window.
func NewCache(store Store, window time.Duration, logger *slog.Logger) *Cache {
	if window <= 0 {
		window = DefaultFreshness
	}
	return &Cache{
		store:  store,
		logger: logger,
		window: window,
		now:    time.Now,
	}
}

// Window returns the freshness window.
func (c *Cache) Window() time.Duration {
	return c.window
}

// Get returns the cached announcements if they were fetched within the window.
// Read errors are logged and treated as a miss.
func (c *Cache) Get(ctx context.Context) ([]notifier.Announcement, bool) {
	anns, fetchedAt, err := c.Peek(ctx)
	if err != nil {
		c.logger.Warn("Failed to read announcement cache", "error", err)
		return nil, false
	}
	if fetchedAt.IsZero() {
		return nil, false
	}

	age := c.now().Sub(fetchedAt)
	if age < 0 || age >= c.window {
		c.logger.Debug("Announcement cache stale", "age", age.String(), "window", c.window.String())
		return nil, false
	}

	c.logger.Info("Using cached announcements", "count", len(anns), "age", age.Round(time.Second).String())
	return anns, true
}

// Peek returns whatever is cached regardless of age. fetchedAt is zero when
// nothing was ever fetched.
func (c *Cache) Peek(ctx context.Context) (anns []notifier.Announcement, fetchedAt time.Time, err error) {
	if _, err := c.store.Get(ctx, notifier.KeyLastAnnouncementFetch, &fetchedAt); err != nil {
		return nil, time.Time{}, fmt.Errorf("read %s: %w", notifier.KeyLastAnnouncementFetch, err)
	}
	if _, err := c.store.Get(ctx, notifier.KeyAnnouncements, &anns); err != nil {
		return nil, time.Time{}, fmt.Errorf("read %s: %w", notifier.KeyAnnouncements, err)
	}
	return anns, fetchedAt, nil
}

// Set stores a fresh extraction and restarts the freshness window.
func (c *Cache) Set(ctx context.Context, anns []notifier.Announcement) error {
	return c.store.SetMany(ctx, map[string]any{
		notifier.KeyAnnouncements:         anns,
		notifier.KeyLastAnnouncementFetch: c.now().UTC(),
	})
}

// Update rewrites the cached announcements without touching their age.
func (c *Cache) Update(ctx context.Context, anns []notifier.Announcement) error {
	return c.store.Set(ctx, notifier.KeyAnnouncements, anns)
}

// Expire forces the next Get to miss.
func (c *Cache) Expire(ctx context.Context) error {
	return c.store.Delete(ctx, notifier.KeyLastAnnouncementFetch)
}
