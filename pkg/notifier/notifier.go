// Package notifier contains the core domain types for the CIS Del announcement notifier.
package notifier

import "time"

// NotificationID is reused for every notification so a new one replaces the previous.
const NotificationID = "cis-announcements"

// Announcement represents a single entry scraped from the announcements listing.
type Announcement struct {
	AddedAt time.Time `json:"addedAt,omitzero"` // When it was extracted (best-effort)
	ID      string    `json:"id"`               // Strategy-derived identifier
	Title   string    `json:"title"`            // Whitespace-normalized display text
	Link    string    `json:"link,omitempty"`   // Absolute detail URL, empty when absent
	Date    string    `json:"date"`
	Sender  string    `json:"sender"`
	Read    bool      `json:"read"`
}

// Key returns the identifier used for deduplication.
// Falls back to the title|link composite when the announcement has no id.
func (a *Announcement) Key() string {
	if a.ID != "" {
		return a.ID
	}
	return CompositeKey(a.Title, a.Link)
}

// CompositeKey builds the title|link identifier.
func CompositeKey(title, link string) string {
	return title + "|" + link
}

// Notification is the single replaceable user notification.
type Notification struct {
	CreatedAt time.Time `json:"createdAt"`
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	URL       string    `json:"url"` // Opened when the notification is clicked
	Count     int       `json:"count"`
}

// LogEntry is one record of the bounded debug log.
type LogEntry struct {
	Time    time.Time         `json:"time"`
	Attrs   map[string]string `json:"attrs,omitempty"`
	Level   string            `json:"level"`
	Message string            `json:"message"`
}

// CheckStatus is the state of the check cycle, persisted for observability.
type CheckStatus string

// Check cycle states.
const (
	StatusIdle            CheckStatus = "idle"
	StatusCheckingSession CheckStatus = "checking_session"
	StatusRelogin         CheckStatus = "relogin"
	StatusFetching        CheckStatus = "fetching"
	StatusExtracting      CheckStatus = "extracting"
	StatusComparing       CheckStatus = "comparing"
	StatusNotifying       CheckStatus = "notifying"

	StatusFailedLogin   CheckStatus = "failed_login"
	StatusFailedFetch   CheckStatus = "failed_fetch"
	StatusFailedExtract CheckStatus = "failed_extract"
	StatusFailedCompare CheckStatus = "failed_compare"
	StatusFailedNotify  CheckStatus = "failed_notify"
)

// Failed reports whether the status is a per-cycle failure terminal.
func (s CheckStatus) Failed() bool {
	switch s {
	case StatusFailedLogin, StatusFailedFetch, StatusFailedExtract, StatusFailedCompare, StatusFailedNotify:
		return true
	default:
		return false
	}
}

// Persisted state keys. All of them may be absent on first read.
const (
	KeyLastAnnouncementFetch     = "lastAnnouncementFetch"
	KeyAnnouncements             = "announcements"
	KeyLastNotifiedAnnouncements = "lastNotifiedAnnouncements"
	KeyCheckStatus               = "checkStatus"
	KeyLastError                 = "lastError"
	KeyLastCheckTime             = "lastCheckTime"
	KeyUsername                  = "username"
	KeyIsLoggedIn                = "isLoggedIn"
	KeyLastLogin                 = "lastLogin"
	KeyLogs                      = "logs"
	KeyIntervalCheck             = "intervalCheck"
	KeyNotification              = "notification"
	KeyDebugHTML                 = "debugHtml"
	KeyLastStrategy              = "lastStrategy"
)
