package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cisdel-notifier/pkg/notifier"

	"github.com/google/go-cmp/cmp"
)

type memStore struct {
	mu   sync.Mutex
	data map[string]any
}

func newMemStore() *memStore { return &memStore{data: make(map[string]any)} }

func (m *memStore) Set(_ context.Context, key string, v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = v
	return nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memStore) notification(t *testing.T) (notifier.Notification, bool) {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[notifier.KeyNotification]
	if !ok {
		return notifier.Notification{}, false
	}
	n, ok := v.(notifier.Notification)
	if !ok {
		t.Fatalf("notification stored as %T", v)
	}
	return n, true
}

type sent struct {
	to, subject, body string
}

type recordingProvider struct {
	msgs []sent
	err  error
}

func (r *recordingProvider) Send(_ context.Context, to, subject, htmlBody string) error {
	r.msgs = append(r.msgs, sent{to: to, subject: subject, body: htmlBody})
	return r.err
}

const announcementsURL = "https://cis.del.ac.id/pengumuman/browse"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestSender(p Provider, store Store, enabled bool) *Sender {
	s := New(p, store, testLogger(), "mhs@students.del.ac.id", announcementsURL, enabled)
	s.now = func() time.Time { return time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC) }
	return s
}

func TestNotifySingleAnnouncementUsesTitle(t *testing.T) {
	store := newMemStore()
	p := &recordingProvider{}
	s := newTestSender(p, store, true)

	delta := []notifier.Announcement{{ID: "2", Title: "B", Link: "https://cis.del.ac.id/pengumuman/view?id=2"}}
	if err := s.Notify(context.Background(), delta); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}

	got, ok := store.notification(t)
	if !ok {
		t.Fatal("notification not stored")
	}
	want := notifier.Notification{
		CreatedAt: time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC),
		ID:        notifier.NotificationID,
		Title:     "Pengumuman CIS Baru",
		Message:   "B",
		URL:       announcementsURL,
		Count:     1,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("notification mismatch (-want +got):\n%s", diff)
	}

	if len(p.msgs) != 1 {
		t.Fatalf("provider got %d messages, want 1", len(p.msgs))
	}
	if p.msgs[0].subject != Title {
		t.Errorf("subject = %q, want %q", p.msgs[0].subject, Title)
	}
	if !strings.Contains(p.msgs[0].body, `href="https://cis.del.ac.id/pengumuman/view?id=2"`) {
		t.Error("body should link the announcement")
	}
}

func TestMessage(t *testing.T) {
	tests := []struct {
		name  string
		delta []notifier.Announcement
		want  string
	}{
		{"single", []notifier.Announcement{{Title: "Libur Nasional"}}, "Libur Nasional"},
		{"two", []notifier.Announcement{{Title: "A"}, {Title: "B"}}, "Ada 2 pengumuman baru dari CIS. Klik untuk melihat."},
		{"three", []notifier.Announcement{{Title: "A"}, {Title: "B"}, {Title: "C"}}, "Ada 3 pengumuman baru dari CIS. Klik untuk melihat."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Message(tt.delta); got != tt.want {
				t.Errorf("Message() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNotifyNoop(t *testing.T) {
	delta := []notifier.Announcement{{Title: "A"}}

	t.Run("disabled", func(t *testing.T) {
		store := newMemStore()
		p := &recordingProvider{}
		if err := newTestSender(p, store, false).Notify(context.Background(), delta); err != nil {
			t.Fatalf("Notify() error = %v", err)
		}
		if len(p.msgs) != 0 {
			t.Error("disabled sender delivered a message")
		}
		if _, ok := store.notification(t); ok {
			t.Error("disabled sender stored a notification")
		}
	})

	t.Run("empty delta", func(t *testing.T) {
		store := newMemStore()
		p := &recordingProvider{}
		if err := newTestSender(p, store, true).Notify(context.Background(), nil); err != nil {
			t.Fatalf("Notify() error = %v", err)
		}
		if len(p.msgs) != 0 {
			t.Error("empty delta delivered a message")
		}
	})
}

func TestNotifyReplacesPrevious(t *testing.T) {
	store := newMemStore()
	s := newTestSender(&recordingProvider{}, store, true)
	ctx := context.Background()

	if err := s.Notify(ctx, []notifier.Announcement{{Title: "A"}}); err != nil {
		t.Fatal(err)
	}
	if err := s.Notify(ctx, []notifier.Announcement{{Title: "B"}, {Title: "C"}}); err != nil {
		t.Fatal(err)
	}

	got, _ := store.notification(t)
	if got.ID != notifier.NotificationID || got.Count != 2 {
		t.Errorf("notification = %+v, want replaced one with count 2", got)
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if _, ok := store.notification(t); ok {
		t.Error("notification still present after Clear()")
	}
}

func TestNotifyProviderError(t *testing.T) {
	store := newMemStore()
	p := &recordingProvider{err: errors.New("quota exceeded")}
	err := newTestSender(p, store, true).Notify(context.Background(), []notifier.Announcement{{Title: "A"}})
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Errorf("Notify() error = %v, want provider error", err)
	}
}

func TestFormatBodyEscapes(t *testing.T) {
	n := &notifier.Notification{Message: "Ada 2 pengumuman", URL: announcementsURL}
	body := formatBody(n, []notifier.Announcement{
		{Title: "<script>alert(1)</script>", Link: "javascript:alert(1)"},
		{Title: "Jadwal", Date: "2024-01-01", Sender: "BAAK"},
	})

	if strings.Contains(body, "<script>") {
		t.Error("title was not escaped")
	}
	if strings.Contains(body, "javascript:") {
		t.Error("unsafe link was rendered")
	}
	if !strings.Contains(body, "2024-01-01 · BAAK") {
		t.Error("meta line missing")
	}
}

func TestBuildMIMEStripsHeaderInjection(t *testing.T) {
	raw := buildMIME("a@example.com\r\nBcc: evil@example.com", "Pengumuman\nX-Evil: 1", "<p>hi</p>")
	headers, _, _ := strings.Cut(raw, "\r\n\r\n")
	for _, line := range strings.Split(headers, "\r\n") {
		if strings.HasPrefix(line, "Bcc:") || strings.HasPrefix(line, "X-Evil:") {
			t.Errorf("injected header line %q", line)
		}
	}
	if !strings.Contains(headers, "References: "+threadRef) {
		t.Error("References header missing")
	}
}

func TestBrevoSend(t *testing.T) {
	type captured struct {
		apiKey string
		body   brevoSendRequest
	}
	reqs := make(chan captured, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var c captured
		c.apiKey = r.Header.Get("api-key")
		if err := json.NewDecoder(r.Body).Decode(&c.body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		reqs <- c
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	b := NewBrevoProvider("key-1", "bot@example.com", "CIS Notifier", testLogger())
	b.endpoint = srv.URL
	if err := b.Send(context.Background(), "mhs@example.com", Title, "<p>x</p>"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	c := <-reqs
	if c.apiKey != "key-1" {
		t.Errorf("api-key = %q", c.apiKey)
	}
	want := brevoSendRequest{
		Sender:  brevoContact{Email: "bot@example.com", Name: "CIS Notifier"},
		To:      []brevoContact{{Email: "mhs@example.com"}},
		Subject: Title,
		HTML:    "<p>x</p>",
		Headers: map[string]string{"In-Reply-To": threadRef, "References": threadRef},
	}
	if diff := cmp.Diff(want, c.body); diff != "" {
		t.Errorf("request mismatch (-want +got):\n%s", diff)
	}
}

func TestBrevoClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	b := NewBrevoProvider("key-1", "bot@example.com", "", testLogger())
	b.endpoint = srv.URL
	if err := b.Send(context.Background(), "mhs@example.com", Title, ""); err == nil {
		t.Fatal("Send() should fail on HTTP 400")
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("server called %d times, want 1", n)
	}
}
