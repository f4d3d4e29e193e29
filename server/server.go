// Package server exposes the notifier commands over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"cisdel-notifier/poll"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Sessions interface for the login commands.
type Sessions interface {
	Login(ctx context.Context, username, password string) error
	CheckLogin(ctx context.Context) (bool, error)
	ManualLoginURL() string
}

// Monitor interface for the announcement commands.
type Monitor interface {
	FetchAnnouncements(ctx context.Context) poll.FetchResult
	MarkAllAsRead(ctx context.Context) error
	DebugInfo(ctx context.Context) (*poll.DebugInfo, error)
}

// Scheduler interface for triggering cycles and changing the interval.
type Scheduler interface {
	Trigger(ctx context.Context, source string) error
	SetInterval(ctx context.Context, d time.Duration) error
}

// Server handles HTTP requests.
type Server struct {
	sessions         Sessions
	monitor          Monitor
	scheduler        Scheduler
	logger           *slog.Logger
	loginLimiter     *rateLimiter
	announcementsURL string
	actions          map[string]actionFunc
}

// Config holds server configuration.
type Config struct {
	Sessions         Sessions
	Monitor          Monitor
	Scheduler        Scheduler
	Logger           *slog.Logger
	AnnouncementsURL string
}

// New creates a new HTTP server handler.
func New(cfg *Config) *Server {
	s := &Server{
		sessions:         cfg.Sessions,
		monitor:          cfg.Monitor,
		scheduler:        cfg.Scheduler,
		logger:           cfg.Logger,
		loginLimiter:     newRateLimiter(10, time.Hour),
		announcementsURL: cfg.AnnouncementsURL,
	}
	s.actions = map[string]actionFunc{
		"login":                 s.login,
		"checkLogin":            s.checkLogin,
		"manualLogin":           s.manualLogin,
		"fetchAnnouncements":    s.fetchAnnouncements,
		"checkAnnouncements":    s.checkAnnouncements,
		"markAllAsRead":         s.markAllAsRead,
		"setIntervalCheck":      s.setIntervalCheck,
		"getDebugInfo":          s.debugInfo,
		"openAnnouncementsPage": s.openAnnouncementsPage,
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/{action}", s.handleAction)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /pollz", s.handlePoll)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, port string) error {
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           s.Handler(),
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      90 * time.Second, // A check cycle may include a browser login
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", "port", port)
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	s.logger.Info("Shutting down HTTP server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprint(w, `{"status":"healthy"}`); err != nil {
		s.logger.Warn("Failed to write health response", "error", err)
	}
}

// handlePoll lets an external cron run a cycle.
func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("Poll endpoint triggered")

	status := "completed"
	if err := s.scheduler.Trigger(r.Context(), "pollz"); err != nil {
		if !errors.Is(err, poll.ErrCycleRunning) {
			s.logger.Error("Poll check failed", "error", err)
			http.Error(w, "Check failed", http.StatusInternalServerError)
			return
		}
		status = "skipped"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprintf(w, `{"status":%q}`, status); err != nil {
		s.logger.Warn("Failed to write response", "error", err)
	}
}
