// Package poll runs the announcement check cycle: session, fetch, extract,
// compare against the last snapshot and notify.
package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"cisdel-notifier/extract"
	"cisdel-notifier/pkg/notifier"
	"cisdel-notifier/scraper"

	"github.com/PuerkitoBio/goquery"
)

// Store interface for persisted state.
type Store interface {
	Get(ctx context.Context, key string, v any) (bool, error)
	Set(ctx context.Context, key string, v any) error
	SetMany(ctx context.Context, values map[string]any) error
	Delete(ctx context.Context, key string) error
}

// Session interface for probing and re-establishing the portal session.
// A CheckLogin error is a transport failure; Relogin errors are login failures.
type Session interface {
	CheckLogin(ctx context.Context) (bool, error)
	Relogin(ctx context.Context) error
}

// Fetcher interface for retrieving the listing page.
type Fetcher interface {
	FetchDocument(ctx context.Context) (*scraper.Document, error)
}

// Renderer interface for the browser fallback when plain HTTP yields nothing.
type Renderer interface {
	Render(ctx context.Context) (*scraper.Document, error)
}

// Extractor interface for turning a page into announcements.
type Extractor interface {
	Extract(doc *goquery.Document, base *url.URL) (extract.Result, error)
}

// Notifier interface for raising and clearing the user notification.
type Notifier interface {
	Notify(ctx context.Context, delta []notifier.Announcement) error
	Clear(ctx context.Context) error
}

// Recorder exposes the bounded debug log.
type Recorder interface {
	Entries() []notifier.LogEntry
	Persist(ctx context.Context) error
}

// Config holds the monitor dependencies. Renderer and Logs may be nil.
type Config struct {
	Session          Session
	Fetcher          Fetcher
	Renderer         Renderer
	Extractor        Extractor
	Notifier         Notifier
	Store            Store
	Cache            *Cache
	Logs             Recorder
	Logger           *slog.Logger
	AnnouncementsURL string
}

// Monitor handles the check cycle and the commands built on it.
type Monitor struct {
	session          Session
	fetcher          Fetcher
	renderer         Renderer
	extractor        Extractor
	notifier         Notifier
	store            Store
	cache            *Cache
	logs             Recorder
	logger           *slog.Logger
	announcementsURL string
	now              func() time.Time
}

// New creates a new poll monitor.
func New(cfg Config) *Monitor {
	return &Monitor{
		session:          cfg.Session,
		fetcher:          cfg.Fetcher,
		renderer:         cfg.Renderer,
		extractor:        cfg.Extractor,
		notifier:         cfg.Notifier,
		store:            cfg.Store,
		cache:            cfg.Cache,
		logs:             cfg.Logs,
		logger:           cfg.Logger,
		announcementsURL: cfg.AnnouncementsURL,
		now:              time.Now,
	}
}

// stageError tags a cycle failure with the status it ends in.
type stageError struct {
	status notifier.CheckStatus
	err    error
}

func (e *stageError) Error() string { return e.err.Error() }

func (e *stageError) Unwrap() error { return e.err }

func fail(status notifier.CheckStatus, err error) error {
	return &stageError{status: status, err: err}
}

// FailedStatus returns the failure status a cycle error ended in.
func FailedStatus(err error) notifier.CheckStatus {
	var se *stageError
	if errors.As(err, &se) && se.status.Failed() {
		return se.status
	}
	return notifier.StatusFailedFetch
}

type loaded struct {
	announcements []notifier.Announcement
	strategy      string
	fromCache     bool
}

// Check runs one cycle. Every state is recorded under checkStatus; a
// failure ends in the matching failed_* state and is returned.
func (m *Monitor) Check(ctx context.Context) (err error) {
	start := m.now()
	m.logger.Info("Starting announcement check", "timestamp", start.Format(time.RFC3339))
	defer func() { m.finish(ctx, start, err) }()

	got, err := m.load(ctx, m.setStatus)
	if err != nil {
		return err
	}
	if len(got.announcements) == 0 {
		// Nothing to compare; keep the baseline so a blank page does not
		// reset it and suppress the next real change.
		m.logger.Info("No announcements found, skipping comparison")
		return nil
	}

	m.setStatus(ctx, notifier.StatusComparing)
	var baseline []notifier.Announcement
	if _, err := m.store.Get(ctx, notifier.KeyLastNotifiedAnnouncements, &baseline); err != nil {
		return fail(notifier.StatusFailedCompare, fmt.Errorf("read baseline: %w", err))
	}

	delta, updated := Detect(got.announcements, baseline)
	if err := m.store.Set(ctx, notifier.KeyLastNotifiedAnnouncements, updated); err != nil {
		return fail(notifier.StatusFailedCompare, fmt.Errorf("save baseline: %w", err))
	}
	m.logger.Info("Announcements compared",
		"fetched", len(got.announcements),
		"baseline", len(baseline),
		"new", len(delta),
		"from_cache", got.fromCache,
		"first_run", len(baseline) == 0)

	if len(delta) == 0 {
		return nil
	}

	m.setStatus(ctx, notifier.StatusNotifying)
	if err := m.notifier.Notify(ctx, delta); err != nil {
		return fail(notifier.StatusFailedNotify, fmt.Errorf("notify: %w", err))
	}
	mNew.Add(float64(len(delta)))
	return nil
}

// finish records the outcome of a cycle. It runs even when ctx was cancelled.
func (m *Monitor) finish(ctx context.Context, start time.Time, cycleErr error) {
	ctx = context.WithoutCancel(ctx)
	duration := m.now().Sub(start)
	mCycleDur.Observe(duration.Seconds())

	values := map[string]any{notifier.KeyLastCheckTime: m.now().UTC()}
	if cycleErr != nil {
		status := FailedStatus(cycleErr)
		values[notifier.KeyCheckStatus] = status
		values[notifier.KeyLastError] = cycleErr.Error()
		mCycles.WithLabelValues(string(status)).Inc()
		m.logger.Error("Announcement check failed", "status", status, "duration_ms", duration.Milliseconds(), "error", cycleErr)
	} else {
		values[notifier.KeyCheckStatus] = notifier.StatusIdle
		mCycles.WithLabelValues(string(notifier.StatusIdle)).Inc()
		if err := m.store.Delete(ctx, notifier.KeyLastError); err != nil {
			m.logger.Warn("Failed to clear last error", "error", err)
		}
		m.logger.Info("Announcement check completed", "duration_ms", duration.Milliseconds())
	}

	if err := m.store.SetMany(ctx, values); err != nil {
		m.logger.Warn("Failed to record check outcome", "error", err)
	}
	if m.logs != nil {
		if err := m.logs.Persist(ctx); err != nil {
			m.logger.Warn("Failed to persist logs", "error", err)
		}
	}
}

func (m *Monitor) setStatus(ctx context.Context, status notifier.CheckStatus) {
	m.logger.Debug("Check status changed", "status", status)
	if err := m.store.Set(ctx, notifier.KeyCheckStatus, status); err != nil {
		m.logger.Warn("Failed to record check status", "status", status, "error", err)
	}
}

func noStatus(context.Context, notifier.CheckStatus) {}

// load returns fresh-enough announcements, from the cache when possible,
// otherwise by checking the session, fetching and extracting.
func (m *Monitor) load(ctx context.Context, status func(context.Context, notifier.CheckStatus)) (loaded, error) {
	if anns, ok := m.cache.Get(ctx); ok {
		mCacheHits.Inc()
		var strategy string
		if _, err := m.store.Get(ctx, notifier.KeyLastStrategy, &strategy); err != nil {
			m.logger.Debug("Failed to read last strategy", "error", err)
		}
		return loaded{announcements: anns, strategy: strategy, fromCache: true}, nil
	}

	status(ctx, notifier.StatusCheckingSession)
	ok, err := m.session.CheckLogin(ctx)
	if err != nil {
		return loaded{}, fail(notifier.StatusFailedFetch, fmt.Errorf("check session: %w", err))
	}
	if !ok {
		status(ctx, notifier.StatusRelogin)
		if err := m.session.Relogin(ctx); err != nil {
			return loaded{}, fail(notifier.StatusFailedLogin, fmt.Errorf("login: %w", err))
		}
	}

	status(ctx, notifier.StatusFetching)
	doc, err := m.fetcher.FetchDocument(ctx)
	if scraper.IsAuthRequired(err) {
		m.logger.Info("Session expired during fetch, logging in again")
		status(ctx, notifier.StatusRelogin)
		if err := m.session.Relogin(ctx); err != nil {
			return loaded{}, fail(notifier.StatusFailedLogin, fmt.Errorf("login after redirect: %w", err))
		}
		status(ctx, notifier.StatusFetching)
		doc, err = m.fetcher.FetchDocument(ctx)
	}
	if err != nil {
		return loaded{}, fail(notifier.StatusFailedFetch, err)
	}
	if err := m.store.Set(ctx, notifier.KeyDebugHTML, doc.DebugHTML()); err != nil {
		m.logger.Warn("Failed to store debug HTML", "error", err)
	}

	status(ctx, notifier.StatusExtracting)
	res, err := m.extractor.Extract(doc.Doc, doc.URL)
	if err != nil {
		return loaded{}, fail(notifier.StatusFailedExtract, fmt.Errorf("extract: %w", err))
	}
	if res.Empty() && m.renderer != nil {
		res = m.extractRendered(ctx)
	}

	if res.Empty() {
		m.logger.Info("No announcements extracted", "page_title", doc.Title, "url", doc.URL.String())
		return loaded{}, nil
	}

	mStrategy.WithLabelValues(res.Strategy).Inc()
	if err := m.cache.Set(ctx, res.Announcements); err != nil {
		m.logger.Warn("Failed to cache announcements", "error", err)
	}
	if err := m.store.Set(ctx, notifier.KeyLastStrategy, res.Strategy); err != nil {
		m.logger.Warn("Failed to store last strategy", "error", err)
	}
	return loaded{announcements: res.Announcements, strategy: res.Strategy}, nil
}

// extractRendered retries extraction on the browser-rendered page.
// Its failures only cost the fallback, never the cycle.
func (m *Monitor) extractRendered(ctx context.Context) extract.Result {
	m.logger.Info("Nothing found over HTTP, trying rendered page")
	doc, err := m.renderer.Render(ctx)
	if err != nil {
		m.logger.Warn("Browser render failed", "error", err)
		return extract.Result{}
	}
	res, err := m.extractor.Extract(doc.Doc, doc.URL)
	if err != nil {
		m.logger.Warn("Extraction from rendered page failed", "error", err)
		return extract.Result{}
	}
	return res
}

// FetchResult is the response of the fetchAnnouncements command.
type FetchResult struct {
	Success       bool                    `json:"success"`
	Announcements []notifier.Announcement `json:"announcements"`
	Error         string                  `json:"error,omitempty"`
	DirectURL     string                  `json:"directUrl"`
	FromCache     bool                    `json:"fromCache"`
	Strategy      string                  `json:"strategy,omitempty"`
}

// FetchAnnouncements returns the current listing, from the cache when fresh.
// It never writes the check status; that belongs to the scheduled cycle.
func (m *Monitor) FetchAnnouncements(ctx context.Context) FetchResult {
	res := FetchResult{DirectURL: m.announcementsURL, Announcements: []notifier.Announcement{}}

	got, err := m.load(ctx, noStatus)
	if err != nil {
		m.logger.Warn("Fetching announcements failed", "error", err)
		res.Error = err.Error()
		return res
	}

	res.Success = true
	res.FromCache = got.fromCache
	res.Strategy = got.strategy
	if got.announcements != nil {
		res.Announcements = got.announcements
	}
	return res
}

// MarkAllAsRead marks the cached announcements read, makes them the
// baseline and clears the notification.
func (m *Monitor) MarkAllAsRead(ctx context.Context) error {
	anns, _, err := m.cache.Peek(ctx)
	if err != nil {
		return err
	}

	for i := range anns {
		anns[i].Read = true
	}
	if len(anns) > 0 {
		if err := m.cache.Update(ctx, anns); err != nil {
			return fmt.Errorf("update cache: %w", err)
		}
		if err := m.store.Set(ctx, notifier.KeyLastNotifiedAnnouncements, anns); err != nil {
			return fmt.Errorf("save baseline: %w", err)
		}
	}

	if err := m.notifier.Clear(ctx); err != nil {
		return fmt.Errorf("clear notification: %w", err)
	}
	m.logger.Info("Marked announcements as read", "count", len(anns))
	return nil
}

// DebugInfo is the response of the getDebugInfo command.
type DebugInfo struct {
	LastCheckTime         time.Time              `json:"lastCheckTime,omitzero"`
	LastAnnouncementFetch time.Time              `json:"lastAnnouncementFetch,omitzero"`
	LastLogin             time.Time              `json:"lastLogin,omitzero"`
	Notification          *notifier.Notification `json:"notification,omitempty"`
	CheckStatus           notifier.CheckStatus   `json:"checkStatus"`
	LastError             string                 `json:"lastError,omitempty"`
	Username              string                 `json:"username,omitempty"`
	LastStrategy          string                 `json:"lastStrategy,omitempty"`
	Logs                  []notifier.LogEntry    `json:"logs"`
	IntervalSeconds       int                    `json:"intervalCheck,omitempty"`
	CacheWindowSeconds    int                    `json:"cacheWindowSeconds"`
	CachedCount           int                    `json:"cachedCount"`
	IsLoggedIn            bool                   `json:"isLoggedIn"`
}

// DebugInfo collects recent logs and the observability keys.
// Missing keys are reported as zero values.
func (m *Monitor) DebugInfo(ctx context.Context) (*DebugInfo, error) {
	info := &DebugInfo{
		CheckStatus:        notifier.StatusIdle,
		CacheWindowSeconds: int(m.cache.Window().Seconds()),
	}

	reads := []struct {
		key string
		v   any
	}{
		{notifier.KeyLastCheckTime, &info.LastCheckTime},
		{notifier.KeyLastAnnouncementFetch, &info.LastAnnouncementFetch},
		{notifier.KeyLastLogin, &info.LastLogin},
		{notifier.KeyCheckStatus, &info.CheckStatus},
		{notifier.KeyLastError, &info.LastError},
		{notifier.KeyUsername, &info.Username},
		{notifier.KeyLastStrategy, &info.LastStrategy},
		{notifier.KeyIntervalCheck, &info.IntervalSeconds},
		{notifier.KeyIsLoggedIn, &info.IsLoggedIn},
	}
	for _, r := range reads {
		if _, err := m.store.Get(ctx, r.key, r.v); err != nil {
			return nil, fmt.Errorf("read %s: %w", r.key, err)
		}
	}

	var n notifier.Notification
	found, err := m.store.Get(ctx, notifier.KeyNotification, &n)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", notifier.KeyNotification, err)
	}
	if found {
		info.Notification = &n
	}

	anns, _, err := m.cache.Peek(ctx)
	if err != nil {
		return nil, err
	}
	info.CachedCount = len(anns)

	if m.logs != nil {
		info.Logs = m.logs.Entries()
	} else if _, err := m.store.Get(ctx, notifier.KeyLogs, &info.Logs); err != nil {
		return nil, fmt.Errorf("read %s: %w", notifier.KeyLogs, err)
	}
	if info.Logs == nil {
		info.Logs = []notifier.LogEntry{}
	}
	return info, nil
}
