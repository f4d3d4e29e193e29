package storage

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type record struct {
	When  time.Time `json:"when"`
	Names []string  `json:"names"`
}

func backends(t *testing.T) map[string]*Store {
	t.Helper()
	ctx := context.Background()

	local, err := NewLocal(t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("NewLocal() error = %v", err)
	}

	sqlite, err := NewSQLite(ctx, ":memory:", testLogger())
	if err != nil {
		t.Fatalf("NewSQLite() error = %v", err)
	}
	t.Cleanup(func() {
		if err := sqlite.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})

	return map[string]*Store{"local": local, "sqlite": sqlite}
}

func TestStoreRoundTrip(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			var missing record
			found, err := s.Get(ctx, "announcements", &missing)
			if err != nil {
				t.Fatalf("Get() on absent key error = %v", err)
			}
			if found {
				t.Fatal("Get() on absent key reported found")
			}

			want := record{When: time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC), Names: []string{"a", "b"}}
			if err := s.Set(ctx, "announcements", want); err != nil {
				t.Fatalf("Set() error = %v", err)
			}

			// Whole-value replacement
			want.Names = []string{"c"}
			if err := s.Set(ctx, "announcements", want); err != nil {
				t.Fatalf("Set() error = %v", err)
			}

			var got record
			found, err = s.Get(ctx, "announcements", &got)
			if err != nil || !found {
				t.Fatalf("Get() = %v, %v; want found", found, err)
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("Get() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStoreKeysAndDelete(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if err := s.SetMany(ctx, map[string]any{
				"isLoggedIn": true,
				"username":   "ifs21001",
				"lastLogin":  time.Now(),
			}); err != nil {
				t.Fatalf("SetMany() error = %v", err)
			}

			keys, err := s.Keys(ctx)
			if err != nil {
				t.Fatalf("Keys() error = %v", err)
			}
			if diff := cmp.Diff([]string{"isLoggedIn", "lastLogin", "username"}, keys); diff != "" {
				t.Errorf("Keys() mismatch (-want +got):\n%s", diff)
			}

			if err := s.Delete(ctx, "username"); err != nil {
				t.Fatalf("Delete() error = %v", err)
			}
			if err := s.Delete(ctx, "username"); err != nil {
				t.Errorf("Delete() of absent key error = %v", err)
			}

			var username string
			found, err := s.Get(ctx, "username", &username)
			if err != nil || found {
				t.Errorf("Get() after delete = %v, %v; want not found", found, err)
			}
		})
	}
}

func TestValidKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"announcements", true},
		{"lastNotifiedAnnouncements", true},
		{"debug_html2", true},
		{"", false},
		{"../etc/passwd", false},
		{"a/b", false},
		{"1abc", false},
		{"key.json", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := ValidKey(tt.key); got != tt.want {
				t.Errorf("ValidKey(%q) = %v, want %v", tt.key, got, tt.want)
			}
		})
	}
}

func TestStoreRejectsInvalidKey(t *testing.T) {
	s, err := NewLocal(t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("NewLocal() error = %v", err)
	}

	if err := s.Set(context.Background(), "../escape", 1); err == nil {
		t.Error("Set() with traversal key should fail")
	}
}
