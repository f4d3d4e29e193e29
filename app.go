package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"cisdel-notifier/browser"
	"cisdel-notifier/config"
	"cisdel-notifier/extract"
	"cisdel-notifier/logbook"
	"cisdel-notifier/notify"
	"cisdel-notifier/poll"
	"cisdel-notifier/portal"
	"cisdel-notifier/scraper"
	"cisdel-notifier/session"
	"cisdel-notifier/storage"
)

// app holds the wired components shared by every command.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	book      *logbook.Book
	store     *storage.Store
	portal    *portal.Portal
	sessions  *session.Manager
	monitor   *poll.Monitor
	scheduler *poll.Scheduler
	closers   []func() error
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

func newLogger(cfg *config.Config, book *logbook.Book) (*slog.Logger, error) {
	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(logbook.NewHandler(h, book)), nil
}

// openStore picks the first configured backend: sqlite, then a bucket, then a local directory.
func openStore(ctx context.Context, cfg config.Storage, logger *slog.Logger) (*storage.Store, error) {
	switch {
	case cfg.SQLitePath != "":
		logger.Info("Using SQLite storage", "path", cfg.SQLitePath)
		return storage.NewSQLite(ctx, cfg.SQLitePath, logger)
	case cfg.Bucket != "":
		client, err := gcs.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create storage client: %w", err)
		}
		logger.Info("Using Cloud Storage", "bucket", cfg.Bucket, "prefix", cfg.Prefix)
		return storage.NewGCS(client, cfg.Bucket, cfg.Prefix, logger), nil
	case cfg.LocalPath != "":
		logger.Info("Using local storage", "path", cfg.LocalPath)
		return storage.NewLocal(cfg.LocalPath, logger)
	default:
		return nil, errors.New("no storage backend configured")
	}
}

// isCloudRun checks for the GCP metadata server.
func isCloudRun(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://metadata.google.internal/computeMetadata/v1/project/project-id", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Metadata-Flavor", "Google")

	resp, err := (&http.Client{Timeout: 2 * time.Second}).Do(req)
	if err != nil {
		return false
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	return resp.StatusCode == http.StatusOK
}

func initGmailService(ctx context.Context, credsJSON string) (*gmail.Service, error) {
	if credsJSON != "" {
		return gmail.NewService(ctx, option.WithCredentialsJSON([]byte(credsJSON)))
	}
	// Application Default Credentials; the service account needs the gmail.send scope.
	if isCloudRun(ctx) {
		return gmail.NewService(ctx)
	}
	return nil, errors.New("notify.credentials_json required when not running in Cloud Run")
}

func newProvider(ctx context.Context, cfg config.Notify, logger *slog.Logger) notify.Provider {
	switch cfg.Provider {
	case config.ProviderGmail:
		svc, err := initGmailService(ctx, cfg.Credentials)
		if err != nil {
			logger.Warn("Failed to initialize Gmail service, logging notifications instead", "error", err)
			return notify.NewLogProvider(logger)
		}
		return notify.NewGmailProvider(svc, logger)
	case config.ProviderBrevo:
		return notify.NewBrevoProvider(cfg.BrevoAPIKey, cfg.FromAddr, cfg.FromName, logger)
	default:
		return notify.NewLogProvider(logger)
	}
}

func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	book := logbook.New(logbook.DefaultCapacity)
	logger, err := newLogger(cfg, book)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	a := &app{cfg: cfg, logger: logger, book: book}

	a.portal, err = portal.New(cfg.Portal.BaseURL, cfg.Portal.LoginPath, cfg.Portal.DashboardPath, cfg.Portal.AnnouncementsPath)
	if err != nil {
		return nil, fmt.Errorf("portal: %w", err)
	}

	a.store, err = openStore(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	a.closers = append(a.closers, a.store.Close)
	book.Attach(a.store)

	hc, err := session.NewHTTPClient(cfg.Session.HTTPTimeout)
	if err != nil {
		return nil, err
	}
	rc := session.NewRestyClient(hc, a.portal, logger)

	var (
		establishers []session.Establisher
		renderer     poll.Renderer
	)
	if cfg.Browser.Enabled {
		b := browser.New(a.portal, hc.Jar, browser.Config{
			ExecPath: cfg.Browser.ExecPath,
			Timeout:  cfg.Browser.Timeout,
			Settle:   cfg.Browser.Settle,
		}, logger)
		establishers = append(establishers, b)
		renderer = b
	}
	establishers = append(establishers, session.NewHTTPEstablisher(rc, a.portal, cfg.Session.Settle, logger))

	keyring := session.NewKeyring(session.Credentials{
		Username: cfg.Session.Username,
		Password: cfg.Session.Password,
	})
	prober := session.NewProber(rc, a.portal, a.store, logger)
	a.sessions = session.NewManager(a.portal, prober, keyring, a.store, logger, establishers...)

	sender := notify.New(
		newProvider(ctx, cfg.Notify, logger),
		a.store,
		logger,
		cfg.Notify.To,
		a.portal.AnnouncementsURL(),
		cfg.Notify.Enabled,
	)

	extractor := extract.New(logger)
	logger.Info("Extraction cascade ready", "strategies", extractor.Names())

	a.monitor = poll.New(poll.Config{
		Session:          a.sessions,
		Fetcher:          scraper.New(hc, a.portal, logger, cfg.Session.FetchAttempts),
		Renderer:         renderer,
		Extractor:        extractor,
		Notifier:         sender,
		Store:            a.store,
		Cache:            poll.NewCache(a.store, cfg.Schedule.Freshness, logger),
		Logs:             book,
		Logger:           logger,
		AnnouncementsURL: a.portal.AnnouncementsURL(),
	})
	a.scheduler = poll.NewScheduler(a.monitor, a.store, cfg.Schedule.Interval, cfg.Schedule.Backup, logger)

	logger.Info("Notifier configured",
		"portal", a.portal.BaseURL().String(),
		"storage", a.store.Backend(),
		"browser", cfg.Browser.Enabled,
		"notify_provider", cfg.Notify.Provider)
	return a, nil
}

func (a *app) Close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.logger.Warn("Failed to close resource", "error", err)
		}
	}
}
