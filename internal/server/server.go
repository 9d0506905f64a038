// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jeranaias/agentdesk/internal/api"
	"github.com/jeranaias/agentdesk/internal/chat"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultAddr is where the dev backend listens by default.
	DefaultAddr = "localhost:8082"

	// MaxRequestBodySize is the maximum size for request body to prevent DoS (1MB).
	MaxRequestBodySize = 1 * 1024 * 1024

	// Version is the server version.
	Version = "0.1.0"
)

// ============================================================================
// ANSWERER
// ============================================================================

// Answerer produces the answer to a chat request piece by piece. An error
// returned after some pieces were emitted is reported in-band.
type Answerer interface {
	Answer(ctx context.Context, req chat.ChatRequest, emit func(piece string) error) error
}

// AnswerFunc adapts a function to Answerer.
type AnswerFunc func(ctx context.Context, req chat.ChatRequest, emit func(piece string) error) error

// Answer implements Answerer.
func (f AnswerFunc) Answer(ctx context.Context, req chat.ChatRequest, emit func(piece string) error) error {
	return f(ctx, req, emit)
}

// Echo answers with a short markdown note quoting the question, one word
// at a time.
type Echo struct {
	// Delay is the pause between words.
	Delay time.Duration
}

// Answer implements Answerer.
func (e Echo) Answer(ctx context.Context, req chat.ChatRequest, emit func(piece string) error) error {
	text := fmt.Sprintf("**You asked:** %s\n\nThis answer comes from the agentdesk development backend. "+
		"Point `api.base_url` at a real tool-agent to get real answers.\n", strings.TrimSpace(req.Question))

	for i, word := range strings.SplitAfter(text, " ") {
		if i > 0 && e.Delay > 0 {
			timer := time.NewTimer(e.Delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		if err := emit(word); err != nil {
			return err
		}
	}
	return nil
}

// ============================================================================
// SERVER STATS
// ============================================================================

// ServerStats tracks server usage statistics.
type ServerStats struct {
	Chats     atomic.Int64
	Canceled  atomic.Int64
	Feedbacks atomic.Int64
	Logins    atomic.Int64
	StartTime time.Time
}

// StatsSnapshot is a point-in-time copy of ServerStats.
type StatsSnapshot struct {
	Chats     int64     `json:"chats"`
	Canceled  int64     `json:"canceled"`
	Feedbacks int64     `json:"feedbacks"`
	Logins    int64     `json:"logins"`
	StartTime time.Time `json:"start_time"`
	Uptime    string    `json:"uptime"`
}

// Snapshot returns a copy of the current stats.
func (s *ServerStats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Chats:     s.Chats.Load(),
		Canceled:  s.Canceled.Load(),
		Feedbacks: s.Feedbacks.Load(),
		Logins:    s.Logins.Load(),
		StartTime: s.StartTime,
		Uptime:    time.Since(s.StartTime).Round(time.Second).String(),
	}
}

// ============================================================================
// SERVER
// ============================================================================

// Config configures a Server. Zero values select defaults.
type Config struct {
	Addr string

	// Framing is used when a chat request does not ask for one.
	Framing chat.Framing

	// Secret signs tokens. Empty means a random per-process secret.
	Secret   []byte
	TokenTTL time.Duration

	// StreamPath and FeedbackPath default to the chat package's paths.
	StreamPath   string
	FeedbackPath string

	Answerer    Answerer
	Accounts    []SeedAccount
	CORS        *CORSConfig
	RateLimiter *RateLimiter
	Logger      *slog.Logger
}

// Server is a development backend implementing the chat stream, feedback
// and user endpoints.
type Server struct {
	cfg      Config
	logger   *slog.Logger
	mux      *http.ServeMux
	tokens   *TokenIssuer
	accounts *Directory
	stats    *ServerStats

	mu       sync.Mutex
	feedback []chat.FeedbackRequest
	server   *http.Server
}

// New creates a Server and seeds its accounts.
func New(cfg Config) (*Server, error) {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.Framing == "" {
		cfg.Framing = chat.FramingText
	}
	if cfg.StreamPath == "" {
		cfg.StreamPath = chat.DefaultStreamPath
	}
	if cfg.FeedbackPath == "" {
		cfg.FeedbackPath = chat.DefaultFeedbackPath
	}
	if cfg.Answerer == nil {
		cfg.Answerer = Echo{}
	}
	if cfg.CORS == nil {
		cfg.CORS = DefaultCORSConfig()
	}
	if cfg.RateLimiter == nil {
		cfg.RateLimiter = DefaultRateLimiter()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	tokens, err := NewTokenIssuer(cfg.Secret, cfg.TokenTTL)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:      cfg,
		logger:   cfg.Logger,
		mux:      http.NewServeMux(),
		tokens:   tokens,
		accounts: NewDirectory(),
		stats:    &ServerStats{StartTime: time.Now()},
	}

	for _, seed := range cfg.Accounts {
		if _, err := s.accounts.Register(seed.Username, seed.Email, seed.Password, seed.Roles...); err != nil {
			return nil, fmt.Errorf("seed account %q: %w", seed.Username, err)
		}
	}

	s.setupRoutes()
	return s, nil
}

// Tokens returns the token issuer.
func (s *Server) Tokens() *TokenIssuer {
	return s.tokens
}

// Accounts returns the account directory.
func (s *Server) Accounts() *Directory {
	return s.accounts
}

// Stats returns a snapshot of the usage counters.
func (s *Server) Stats() StatsSnapshot {
	return s.stats.Snapshot()
}

// Feedback returns every feedback batch received so far.
func (s *Server) Feedback() []chat.FeedbackRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]chat.FeedbackRequest(nil), s.feedback...)
}

// ============================================================================
// ROUTES
// ============================================================================

func (s *Server) setupRoutes() {
	auth := AuthMiddleware(s.tokens, s.logger)

	s.mux.HandleFunc("POST "+s.cfg.StreamPath, s.handleChat)
	s.mux.HandleFunc("POST "+s.cfg.FeedbackPath, s.handleFeedback)

	s.mux.HandleFunc("POST "+api.PathCaptcha, s.handleCaptcha)
	s.mux.HandleFunc("POST "+api.PathLogin, s.handleLogin)
	s.mux.HandleFunc("POST "+api.PathRegister, s.handleRegister)
	s.mux.Handle("POST "+api.PathLogout, auth(http.HandlerFunc(s.handleLogout)))
	s.mux.Handle("GET "+api.PathUserInfo, auth(http.HandlerFunc(s.handleUserInfo)))

	s.mux.HandleFunc("GET /health", s.handleHealth)
}

// Handler returns the routes wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	return Chain(
		RecoveryMiddleware(s.logger),
		SecurityHeadersMiddleware(),
		LoggingMiddleware(s.logger),
		CORSMiddleware(s.cfg.CORS),
		RateLimitMiddleware(s.cfg.RateLimiter, s.logger),
	)(s.mux)
}

// ============================================================================
// CHAT HANDLERS
// ============================================================================

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chat.ChatRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeEnvelope(w, http.StatusBadRequest, http.StatusBadRequest, err.Error(), nil)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeEnvelope(w, http.StatusInternalServerError, http.StatusInternalServerError, "Streaming not supported", nil)
		return
	}

	ctx := r.Context()
	framing := negotiateFraming(r, s.cfg.Framing)
	sw := newStreamWriter(w, flusher, framing)
	s.stats.Chats.Add(1)

	var pieces int
	err := s.cfg.Answerer.Answer(ctx, req, func(piece string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		pieces++
		return sw.content(piece)
	})

	switch {
	case ctx.Err() != nil:
		s.stats.Canceled.Add(1)
		s.logger.Info("chat canceled by client", "session", req.SessionID, "pieces", pieces)
	case err != nil:
		s.logger.Warn("chat failed", "session", req.SessionID, "pieces", pieces, "error", err)
		_ = sw.fail(err.Error())
	default:
		_ = sw.done("stop")
		s.logger.Debug("chat answered", "session", req.SessionID, "framing", framing, "pieces", pieces)
	}
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req chat.FeedbackRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeEnvelope(w, http.StatusBadRequest, http.StatusBadRequest, err.Error(), nil)
		return
	}
	for i, fb := range req.Feedbacks {
		if fb.Rating != "" && fb.Rating != chat.RatingUp && fb.Rating != chat.RatingDown {
			writeEnvelope(w, http.StatusBadRequest, http.StatusBadRequest,
				fmt.Sprintf("feedbacks[%d]: unknown rating %q", i, fb.Rating), nil)
			return
		}
	}

	s.mu.Lock()
	s.feedback = append(s.feedback, req)
	s.mu.Unlock()
	s.stats.Feedbacks.Add(int64(len(req.Feedbacks)))

	writeEnvelope(w, http.StatusOK, http.StatusOK, "ok", map[string]int{"accepted": len(req.Feedbacks)})
}

// ============================================================================
// USER HANDLERS
// ============================================================================

func (s *Server) handleCaptcha(w http.ResponseWriter, r *http.Request) {
	var req api.CaptchaRequest
	if !s.decode(w, r, &req) {
		return
	}
	code, err := s.accounts.IssueCaptcha(req.Account)
	if err != nil {
		writeEnvelope(w, http.StatusOK, http.StatusBadRequest, err.Error(), nil)
		return
	}
	writeEnvelope(w, http.StatusOK, http.StatusOK, "ok", map[string]any{
		"captcha":   code,
		"expiresIn": captchaPeriod,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req api.LoginRequest
	if !s.decode(w, r, &req) {
		return
	}

	if err := s.accounts.CheckCaptcha(req.Account, req.Captcha); err != nil {
		writeEnvelope(w, http.StatusOK, http.StatusBadRequest, err.Error(), nil)
		return
	}

	acct, err := s.accounts.Authenticate(req.Account, req.Password)
	if err != nil {
		s.logger.Warn("login failed", "account", req.Account, "ip", GetClientIP(r))
		writeEnvelope(w, http.StatusOK, http.StatusUnauthorized, err.Error(), nil)
		return
	}

	// A captcha is good for one successful login.
	s.accounts.ClearCaptcha(req.Account)

	token, err := s.tokens.Issue(acct.Username, acct.Roles)
	if err != nil {
		writeEnvelope(w, http.StatusInternalServerError, http.StatusInternalServerError, "failed to issue token", nil)
		return
	}
	s.stats.Logins.Add(1)
	s.logger.Info("login", "account", acct.Username)
	writeEnvelope(w, http.StatusOK, http.StatusOK, "ok", map[string]string{"token": token})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req api.RegisterRequest
	if !s.decode(w, r, &req) {
		return
	}

	acct, err := s.accounts.Register(req.Username, req.Email, req.Password)
	switch {
	case errors.Is(err, ErrAccountExists):
		writeEnvelope(w, http.StatusOK, http.StatusConflict, err.Error(), nil)
		return
	case err != nil:
		writeEnvelope(w, http.StatusOK, http.StatusBadRequest, err.Error(), nil)
		return
	}
	s.logger.Info("account registered", "account", acct.Username)
	writeEnvelope(w, http.StatusOK, http.StatusOK, "ok", map[string]string{"id": acct.ID})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())
	s.tokens.Revoke(claims)
	writeEnvelope(w, http.StatusOK, http.StatusOK, "ok", nil)
}

// userInfo mirrors the fields the console reads from /business/user/info.
type userInfo struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Account string   `json:"account"`
	Email   string   `json:"email,omitempty"`
	Avatar  string   `json:"avatar"`
	Roles   []string `json:"roles"`
}

func (s *Server) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())
	acct, ok := s.accounts.Lookup(claims.Account)
	if !ok {
		writeEnvelope(w, http.StatusOK, http.StatusNotFound, "account not found", nil)
		return
	}
	writeEnvelope(w, http.StatusOK, http.StatusOK, "ok", userInfo{
		ID:      acct.ID,
		Name:    acct.Username,
		Account: acct.Username,
		Email:   acct.Email,
		Avatar:  acct.Avatar,
		Roles:   acct.Roles,
	})
}

// ============================================================================
// HEALTH
// ============================================================================

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string        `json:"status"`
	Version string        `json:"version"`
	Framing string        `json:"framing"`
	Stats   StatsSnapshot `json:"stats"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: Version,
		Framing: string(s.cfg.Framing),
		Stats:   s.stats.Snapshot(),
	})
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is canceled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		// No WriteTimeout: chat streams stay open as long as the answer runs.
	}
	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server start", "addr", ln.Addr().String(), "version", Version, "framing", s.cfg.Framing)
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("server shutdown", "stats", s.stats.Snapshot())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// ============================================================================
// HELPERS
// ============================================================================

// decode reads a JSON request body, answering 400 itself on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeEnvelope(w, http.StatusBadRequest, http.StatusBadRequest, "invalid JSON body: "+err.Error(), nil)
		return false
	}
	return true
}

// envelope is the {code,message,data} body every REST endpoint answers with.
type envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// writeEnvelope writes an envelope. status is the HTTP status; code is the
// application code inside the body, which may reject a 200 response.
func writeEnvelope(w http.ResponseWriter, status, code int, message string, data any) {
	writeJSON(w, status, envelope{Code: code, Message: message, Data: data})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
