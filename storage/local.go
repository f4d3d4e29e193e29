package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// localBackend keeps one JSON file per key, for local development.
type localBackend struct {
	path string
}

// NewLocal creates a store backed by a directory on the local filesystem.
func NewLocal(path string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create local storage directory: %w", err)
	}
	return newStore(&localBackend{path: path}, logger), nil
}

func (b *localBackend) name() string { return "local" }

func (b *localBackend) file(key string) string {
	return filepath.Join(b.path, key+".json")
}

func (b *localBackend) read(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(b.file(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errNotFound
		}
		return nil, fmt.Errorf("read from local storage: %w", err)
	}
	return data, nil
}

func (b *localBackend) write(_ context.Context, key string, data []byte) error {
	// Write to a temp file and rename so readers never see a torn value.
	tmp, err := os.CreateTemp(b.path, "."+key+"-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write to local storage: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), b.file(key)); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

func (b *localBackend) remove(_ context.Context, key string) error {
	if err := os.Remove(b.file(key)); err != nil {
		if os.IsNotExist(err) {
			return errNotFound
		}
		return fmt.Errorf("delete from local storage: %w", err)
	}
	return nil
}

func (b *localBackend) list(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(b.path)
	if err != nil {
		return nil, fmt.Errorf("read local storage directory: %w", err)
	}

	var keys []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		key := strings.TrimSuffix(name, ".json")
		if ValidKey(key) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}
