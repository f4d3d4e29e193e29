package logbook

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"cisdel-notifier/pkg/notifier"

	"github.com/google/go-cmp/cmp"
)

type memStore struct {
	data map[string]any
}

func (m *memStore) Set(_ context.Context, key string, v any) error {
	m.data[key] = v
	return nil
}

func newLogger(book *Book, out *bytes.Buffer) *slog.Logger {
	return slog.New(NewHandler(slog.NewJSONHandler(out, nil), book))
}

func TestHandlerTeesRecords(t *testing.T) {
	var out bytes.Buffer
	book := New(10)
	logger := newLogger(book, &out)

	logger.With("component", "poll").WithGroup("cycle").Info("Check finished", "new_count", 2)

	if !strings.Contains(out.String(), `"msg":"Check finished"`) {
		t.Errorf("wrapped handler output = %s", out.String())
	}

	entries := book.Entries()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.Level != "INFO" || e.Message != "Check finished" || e.Time.IsZero() {
		t.Errorf("entry = %+v", e)
	}
	want := map[string]string{"component": "poll", "cycle.new_count": "2"}
	if diff := cmp.Diff(want, e.Attrs); diff != "" {
		t.Errorf("attrs mismatch (-want +got):\n%s", diff)
	}
}

func TestHandlerRespectsLevel(t *testing.T) {
	var out bytes.Buffer
	book := New(10)
	logger := slog.New(NewHandler(slog.NewJSONHandler(&out, &slog.HandlerOptions{Level: slog.LevelWarn}), book))

	logger.Debug("noise")
	logger.Info("noise")
	logger.Warn("kept")

	entries := book.Entries()
	if len(entries) != 1 || entries[0].Message != "kept" {
		t.Errorf("entries = %+v, want only the warning", entries)
	}
}

func TestBookKeepsMostRecent(t *testing.T) {
	var out bytes.Buffer
	book := New(3)
	logger := newLogger(book, &out)

	if got := book.Entries(); got == nil || len(got) != 0 {
		t.Errorf("empty Entries() = %#v, want empty non-nil", got)
	}

	for i := range 5 {
		logger.Info(fmt.Sprintf("record %d", i))
	}

	var msgs []string
	for _, e := range book.Entries() {
		msgs = append(msgs, e.Message)
	}
	if diff := cmp.Diff([]string{"record 2", "record 3", "record 4"}, msgs); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}
}

func TestPersist(t *testing.T) {
	var out bytes.Buffer
	book := New(0)
	logger := newLogger(book, &out)
	logger.Error("Fetch failed", "error", "timeout")

	if err := book.Persist(context.Background()); err != nil {
		t.Fatalf("Persist() without store error = %v", err)
	}

	store := &memStore{data: make(map[string]any)}
	book.Attach(store)
	if err := book.Persist(context.Background()); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}
	saved, ok := store.data[notifier.KeyLogs].([]notifier.LogEntry)
	if !ok || len(saved) != 1 || saved[0].Attrs["error"] != "timeout" {
		t.Errorf("saved logs = %#v", store.data[notifier.KeyLogs])
	}
}
