package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"cisdel-notifier/poll"
)

const maxRequestBytes = 64 << 10

// request is the union of all action inputs.
type request struct {
	Username string   `json:"username"`
	Password string   `json:"password"`
	Value    *float64 `json:"value"` // setIntervalCheck, in seconds
}

type actionFunc func(ctx context.Context, req *request, clientIP string) any

type result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func failure(err error) result {
	return result{Error: err.Error()}
}

// handleAction dispatches POST /api/{action}. Action failures are reported in
// the body with status 200; only unknown actions and malformed bodies are HTTP errors.
func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("action")
	action, ok := s.actions[name]
	if !ok {
		s.writeJSON(w, http.StatusNotFound, failure(fmt.Errorf("unknown action %q", name)))
		return
	}

	req, err := decodeRequest(w, r)
	if err != nil {
		s.logger.Warn("Malformed request", "action", name, "error", err)
		s.writeJSON(w, http.StatusBadRequest, failure(err))
		return
	}

	s.logger.Info("Action received", "action", name)
	s.writeJSON(w, http.StatusOK, action(r.Context(), req, clientIP(r)))
}

func decodeRequest(w http.ResponseWriter, r *http.Request) (*request, error) {
	var req request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid request body: %w", err)
	}
	return &req, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Failed to write response", "error", err)
	}
}

func (s *Server) login(ctx context.Context, req *request, ip string) any {
	if !s.loginLimiter.allow(ip) {
		s.logger.Warn("Login rate limit exceeded", "ip", ip)
		return failure(errors.New("too many login attempts, try again later"))
	}
	if err := s.sessions.Login(ctx, req.Username, req.Password); err != nil {
		return failure(err)
	}
	return result{Success: true}
}

func (s *Server) checkLogin(ctx context.Context, _ *request, _ string) any {
	type response struct {
		IsLoggedIn bool   `json:"isLoggedIn"`
		Error      string `json:"error,omitempty"`
	}
	ok, err := s.sessions.CheckLogin(ctx)
	if err != nil {
		return response{Error: err.Error()}
	}
	return response{IsLoggedIn: ok}
}

type urlResult struct {
	Success bool   `json:"success"`
	URL     string `json:"url"`
}

func (s *Server) manualLogin(context.Context, *request, string) any {
	return urlResult{Success: true, URL: s.sessions.ManualLoginURL()}
}

func (s *Server) openAnnouncementsPage(context.Context, *request, string) any {
	return urlResult{Success: true, URL: s.announcementsURL}
}

func (s *Server) fetchAnnouncements(ctx context.Context, _ *request, _ string) any {
	return s.monitor.FetchAnnouncements(ctx)
}

func (s *Server) checkAnnouncements(ctx context.Context, _ *request, _ string) any {
	if err := s.scheduler.Trigger(ctx, "manual"); err != nil {
		return failure(err)
	}
	return result{Success: true}
}

func (s *Server) markAllAsRead(ctx context.Context, _ *request, _ string) any {
	if err := s.monitor.MarkAllAsRead(ctx); err != nil {
		return failure(err)
	}
	return result{Success: true}
}

func (s *Server) setIntervalCheck(ctx context.Context, req *request, _ string) any {
	if req.Value == nil {
		return failure(errors.New("value is required"))
	}
	seconds := *req.Value
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds <= 0 || seconds > math.MaxInt32 {
		return failure(fmt.Errorf("invalid interval %v", seconds))
	}
	d := max(time.Duration(seconds*float64(time.Second)), poll.MinInterval)
	if err := s.scheduler.SetInterval(ctx, d); err != nil {
		return failure(err)
	}
	return result{Success: true}
}

func (s *Server) debugInfo(ctx context.Context, _ *request, _ string) any {
	info, err := s.monitor.DebugInfo(ctx)
	if err != nil {
		return failure(err)
	}
	return info
}
