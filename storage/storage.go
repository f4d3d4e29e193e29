// Package storage handles persistence of the notifier's key-value state.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
)

// errNotFound is returned by backends when a key has never been written.
var errNotFound = errors.New("storage: object doesn't exist")

var keyRegex = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// backend stores raw values by key.
type backend interface {
	read(ctx context.Context, key string) ([]byte, error)
	write(ctx context.Context, key string, data []byte) error
	remove(ctx context.Context, key string) error
	list(ctx context.Context) ([]string, error)
	name() string
}

// Store is a flat key-value map persisted across restarts.
// Every write replaces the whole value; concurrent writers to the same key
// resolve to whichever write lands last.
type Store struct {
	backend backend
	logger  *slog.Logger
}

func newStore(b backend, logger *slog.Logger) *Store {
	return &Store{backend: b, logger: logger}
}

// ValidKey reports whether key is safe to use as a file or object name.
func ValidKey(key string) bool {
	return keyRegex.MatchString(key)
}

// Get decodes the value stored under key into v.
// It returns false without error when the key is absent.
func (s *Store) Get(ctx context.Context, key string, v any) (bool, error) {
	if !ValidKey(key) {
		return false, fmt.Errorf("invalid key %q", key)
	}

	data, err := s.backend.read(ctx, key)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", key, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return true, nil
}

// Set replaces the value stored under key.
func (s *Store) Set(ctx context.Context, key string, v any) error {
	if !ValidKey(key) {
		return fmt.Errorf("invalid key %q", key)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}

	if err := s.backend.write(ctx, key, data); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}

	s.logger.Debug("State saved", "backend", s.backend.name(), "key", key, "bytes", len(data))
	return nil
}

// SetMany writes several keys. Writes are independent; the first error stops the batch.
func (s *Store) SetMany(ctx context.Context, values map[string]any) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := s.Set(ctx, k, values[k]); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if !ValidKey(key) {
		return fmt.Errorf("invalid key %q", key)
	}
	if err := s.backend.remove(ctx, key); err != nil && !IsNotFound(err) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	s.logger.Debug("State deleted", "backend", s.backend.name(), "key", key)
	return nil
}

// Keys lists every stored key in sorted order.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	keys, err := s.backend.list(ctx)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Backend returns the name of the configured backend.
func (s *Store) Backend() string {
	return s.backend.name()
}

// Close releases backend resources when the backend holds any.
func (s *Store) Close() error {
	if c, ok := s.backend.(interface{ close() error }); ok {
		return c.close()
	}
	return nil
}

// IsNotFound checks if an error indicates a key was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, errNotFound)
}
