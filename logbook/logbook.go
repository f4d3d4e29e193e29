// Package logbook keeps the most recent log records in memory so they can be
// shown as debug info and saved with the rest of the state.
package logbook

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"cisdel-notifier/pkg/notifier"
)

// DefaultCapacity is how many records are kept.
const DefaultCapacity = 100

// Store is the subset of the state store the logbook writes to.
type Store interface {
	Set(ctx context.Context, key string, v any) error
}

// Book is a bounded ring of log entries.
type Book struct {
	mu      sync.Mutex
	entries []notifier.LogEntry
	next    int
	full    bool
	store   Store
}

// New creates a book holding up to capacity entries.
func New(capacity int) *Book {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Book{entries: make([]notifier.LogEntry, capacity)}
}

// Attach sets the store Persist writes to. Logging starts before the store is
// opened, so it is wired in afterwards.
func (b *Book) Attach(store Store) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.store = store
}

func (b *Book) add(e notifier.LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[b.next] = e
	b.next = (b.next + 1) % len(b.entries)
	if b.next == 0 {
		b.full = true
	}
}

// Entries returns the kept records, oldest first. Never nil.
func (b *Book) Entries() []notifier.LogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.full {
		out := make([]notifier.LogEntry, b.next)
		copy(out, b.entries[:b.next])
		return out
	}
	out := make([]notifier.LogEntry, 0, len(b.entries))
	out = append(out, b.entries[b.next:]...)
	return append(out, b.entries[:b.next]...)
}

// Persist saves the kept records under the logs key.
func (b *Book) Persist(ctx context.Context) error {
	b.mu.Lock()
	store := b.store
	b.mu.Unlock()
	if store == nil {
		return nil
	}
	if err := store.Set(ctx, notifier.KeyLogs, b.Entries()); err != nil {
		return fmt.Errorf("persist logs: %w", err)
	}
	return nil
}

// Handler passes records to next and copies them into the book.
type Handler struct {
	next   slog.Handler
	book   *Book
	attrs  []slog.Attr
	groups []string
}

// NewHandler wraps next.
func NewHandler(next slog.Handler, book *Book) *Handler {
	return &Handler{next: next, book: book}
}

// Enabled defers to the wrapped handler.
func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle records r and forwards it.
func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	e := notifier.LogEntry{
		Time:    r.Time.UTC(),
		Level:   r.Level.String(),
		Message: r.Message,
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}

	attrs := make(map[string]string, len(h.attrs)+r.NumAttrs())
	prefix := strings.Join(h.groups, ".")
	for _, a := range h.attrs {
		flatten(attrs, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		flatten(attrs, prefix, a)
		return true
	})
	if len(attrs) > 0 {
		e.Attrs = attrs
	}
	h.book.add(e)

	return h.next.Handle(ctx, r)
}

// WithAttrs returns a handler that adds attrs to every record.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	prefix := strings.Join(h.groups, ".")
	qualified := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	qualified = append(qualified, h.attrs...)
	for _, a := range attrs {
		if prefix != "" {
			a.Key = prefix + "." + a.Key
		}
		qualified = append(qualified, a)
	}
	return &Handler{
		next:   h.next.WithAttrs(attrs),
		book:   h.book,
		attrs:  qualified,
		groups: h.groups,
	}
}

// WithGroup returns a handler that nests later attributes under name.
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &Handler{
		next:   h.next.WithGroup(name),
		book:   h.book,
		attrs:  h.attrs,
		groups: append(h.groups[:len(h.groups):len(h.groups)], name),
	}
}

func flatten(dst map[string]string, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	if prefix != "" {
		key = prefix + "." + key
	}
	if a.Value.Kind() == slog.KindGroup {
		p := key
		if a.Key == "" {
			p = prefix
		}
		for _, g := range a.Value.Group() {
			flatten(dst, p, g)
		}
		return
	}
	dst[key] = a.Value.String()
}
