package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/codeGROOVE-dev/retry"
	"google.golang.org/api/iterator"
)

// gcsBackend keeps one object per key in a Cloud Storage bucket.
type gcsBackend struct {
	client *storage.Client
	logger *slog.Logger
	bucket string
	prefix string
}

// NewGCS creates a store backed by a Cloud Storage bucket.
// Objects are named <prefix><key>.json.
func NewGCS(client *storage.Client, bucket, prefix string, logger *slog.Logger) *Store {
	return newStore(&gcsBackend{
		client: client,
		logger: logger,
		bucket: bucket,
		prefix: prefix,
	}, logger)
}

func (b *gcsBackend) name() string { return "gcs" }

func (b *gcsBackend) object(key string) string {
	return b.prefix + key + ".json"
}

func (b *gcsBackend) retryOptions(ctx context.Context, op, key string) []retry.Option {
	return []retry.Option{
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(2 * time.Minute),
		retry.MaxJitter(10 * time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			b.logger.Info("Retrying storage operation after error", "operation", op, "attempt", n, "key", key, "error", err)
		}),
	}
}

func (b *gcsBackend) read(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := retry.Do(
		func() error {
			r, err := b.client.Bucket(b.bucket).Object(b.object(key)).NewReader(ctx)
			if err != nil {
				// Don't retry on "not found" errors
				if errors.Is(err, storage.ErrObjectNotExist) {
					return retry.Unrecoverable(errNotFound)
				}
				return fmt.Errorf("open storage reader: %w", err)
			}
			defer func() {
				if closeErr := r.Close(); closeErr != nil {
					b.logger.Warn("Failed to close storage reader", "error", closeErr)
				}
			}()

			data, err = io.ReadAll(r)
			if err != nil {
				return fmt.Errorf("read from storage: %w", err)
			}
			return nil
		},
		b.retryOptions(ctx, "read", key)...,
	)
	if err != nil {
		if IsNotFound(err) {
			return nil, errNotFound
		}
		return nil, fmt.Errorf("load after retries: %w", err)
	}
	return data, nil
}

func (b *gcsBackend) write(ctx context.Context, key string, data []byte) error {
	err := retry.Do(
		func() error {
			w := b.client.Bucket(b.bucket).Object(b.object(key)).NewWriter(ctx)
			w.ContentType = "application/json"
			if _, err := w.Write(data); err != nil {
				if closeErr := w.Close(); closeErr != nil {
					b.logger.Warn("Failed to close writer after error", "error", closeErr)
				}
				return fmt.Errorf("write to storage: %w", err)
			}
			if err := w.Close(); err != nil {
				return fmt.Errorf("close storage writer: %w", err)
			}
			return nil
		},
		b.retryOptions(ctx, "write", key)...,
	)
	if err != nil {
		return fmt.Errorf("save after retries: %w", err)
	}
	return nil
}

func (b *gcsBackend) remove(ctx context.Context, key string) error {
	err := retry.Do(
		func() error {
			if err := b.client.Bucket(b.bucket).Object(b.object(key)).Delete(ctx); err != nil {
				// Deletion is idempotent
				if errors.Is(err, storage.ErrObjectNotExist) {
					return retry.Unrecoverable(errNotFound)
				}
				return fmt.Errorf("delete from storage: %w", err)
			}
			return nil
		},
		b.retryOptions(ctx, "delete", key)...,
	)
	if err != nil {
		if IsNotFound(err) {
			return errNotFound
		}
		return fmt.Errorf("delete after retries: %w", err)
	}
	return nil
}

func (b *gcsBackend) list(ctx context.Context) ([]string, error) {
	it := b.client.Bucket(b.bucket).Objects(ctx, &storage.Query{Prefix: b.prefix})

	var keys []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterate storage: %w", err)
		}

		name := strings.TrimPrefix(attrs.Name, b.prefix)
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		key := strings.TrimSuffix(name, ".json")
		if ValidKey(key) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (b *gcsBackend) close() error {
	return b.client.Close()
}
