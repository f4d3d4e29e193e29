package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"cisdel-notifier/config"
	"cisdel-notifier/pkg/notifier"
	"cisdel-notifier/poll"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"info", slog.LevelInfo, false},
		{"DEBUG", slog.LevelDebug, false},
		{" warn ", slog.LevelWarn, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := parseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	tests := []struct {
		name string
		cfg  config.Storage
		want string
	}{
		{"sqlite wins", config.Storage{SQLitePath: filepath.Join(dir, "state.db"), LocalPath: dir}, "sqlite"},
		{"local fallback", config.Storage{LocalPath: filepath.Join(dir, "data")}, "local"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := openStore(ctx, tt.cfg, testLogger())
			if err != nil {
				t.Fatalf("openStore() error = %v", err)
			}
			defer s.Close()
			if s.Backend() != tt.want {
				t.Errorf("Backend() = %q, want %q", s.Backend(), tt.want)
			}
		})
	}

	if _, err := openStore(ctx, config.Storage{}, testLogger()); err == nil {
		t.Error("openStore() with nothing configured should fail")
	}
}

func TestRenderAnnouncements(t *testing.T) {
	var buf bytes.Buffer
	renderAnnouncements(&buf, &poll.FetchResult{
		Success: true,
		Announcements: []notifier.Announcement{
			{ID: "1", Title: "Jadwal UTS", Date: "2024-03-01", Sender: "BAAK", Read: true},
			{ID: "2", Title: "Libur Nasional"},
		},
		FromCache: true,
		Strategy:  "grid",
	})

	// The footer is upper-cased by the table style.
	out := strings.ToLower(buf.String())
	for _, want := range []string{"jadwal uts", "libur nasional", "baak", "2 announcements from cache", "grid"} {
		if !strings.Contains(out, want) {
			t.Errorf("table output missing %q:\n%s", want, out)
		}
	}
}
