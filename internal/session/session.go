// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/jeranaias/agentdesk/internal/storage"
)

// Store keys.
const (
	KeyToken         = "token"
	KeyUser          = "user"
	KeyChatSessionID = "chatSessionId"
)

// ErrEmptyToken is returned by Update for a blank token.
var ErrEmptyToken = errors.New("session: token is empty")

// User is the profile cached after login or a user-info call.
type User struct {
	ID      string   `json:"id,omitempty"`
	Name    string   `json:"name,omitempty"`
	Account string   `json:"account,omitempty"`
	Email   string   `json:"email,omitempty"`
	Avatar  string   `json:"avatar,omitempty"`
	Roles   []string `json:"roles,omitempty"`
}

// HasRole reports whether the user holds role.
func (u User) HasRole(role string) bool {
	return slices.Contains(u.Roles, role)
}

// =============================================================================
// SESSION
// =============================================================================

// Session is safe for concurrent use. It implements transport.TokenSource.
type Session struct {
	store  storage.Store
	logger *slog.Logger
	now    func() time.Time

	mu     sync.RWMutex
	token  string
	user   User
	chatID string
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger used for background reloads.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces time.Now for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a Session on store. Call Init before use.
func New(store storage.Store, opts ...Option) *Session {
	s := &Session{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init loads the persisted state, replacing the in-memory copy.
func (s *Session) Init(ctx context.Context) error {
	token, err := s.get(ctx, KeyToken)
	if err != nil {
		return err
	}
	rawUser, err := s.get(ctx, KeyUser)
	if err != nil {
		return err
	}
	chatID, err := s.get(ctx, KeyChatSessionID)
	if err != nil {
		return err
	}

	var user User
	if rawUser != "" {
		if err := json.Unmarshal([]byte(rawUser), &user); err != nil {
			// A damaged profile is refetched on demand; the token still counts.
			s.logger.Warn("discarding unreadable cached user", "error", err)
			user = User{}
		}
	}

	s.mu.Lock()
	s.token, s.user, s.chatID = token, user, chatID
	s.mu.Unlock()
	return nil
}

// Update stores a new token.
func (s *Session) Update(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrEmptyToken
	}
	if err := s.store.Set(ctx, KeyToken, token); err != nil {
		return fmt.Errorf("session: save token: %w", err)
	}
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return nil
}

// SetUser caches the signed-in user's profile.
func (s *Session) SetUser(ctx context.Context, u User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("session: encode user: %w", err)
	}
	if err := s.store.Set(ctx, KeyUser, string(data)); err != nil {
		return fmt.Errorf("session: save user: %w", err)
	}
	s.mu.Lock()
	s.user = u
	s.mu.Unlock()
	return nil
}

// Clear forgets the token, the profile and the chat session id. The
// in-memory state is cleared even when the store fails.
func (s *Session) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.token, s.user, s.chatID = "", User{}, ""
	s.mu.Unlock()

	var errs []error
	for _, key := range []string{KeyToken, KeyUser, KeyChatSessionID} {
		if err := s.store.Delete(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("session: delete %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// Token returns the bearer token, or "" when there is none or it has
// expired.
func (s *Session) Token() string {
	s.mu.RLock()
	token := s.token
	s.mu.RUnlock()

	if exp, ok := Expiry(token); ok && !s.now().Before(exp) {
		return ""
	}
	return token
}

// Authenticated reports whether a usable token is held.
func (s *Session) Authenticated() bool {
	return s.Token() != ""
}

// User returns the cached profile. The zero User means unknown.
func (s *Session) User() User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// ChatSessionID returns the id that groups chat turns into one
// conversation, creating and persisting it on first use.
func (s *Session) ChatSessionID(ctx context.Context) (string, error) {
	s.mu.RLock()
	id := s.chatID
	s.mu.RUnlock()
	if id != "" {
		return id, nil
	}
	return s.NewChatSession(ctx)
}

// NewChatSession starts a new conversation id.
func (s *Session) NewChatSession(ctx context.Context) (string, error) {
	id := uuid.NewString()
	if err := s.store.Set(ctx, KeyChatSessionID, id); err != nil {
		return "", fmt.Errorf("session: save chat session id: %w", err)
	}
	s.mu.Lock()
	s.chatID = id
	s.mu.Unlock()
	return id, nil
}

// Watch reloads the session whenever another process changes the store,
// until ctx is done. It returns false when the store cannot be watched.
func (s *Session) Watch(ctx context.Context) (bool, error) {
	w, ok := s.store.(storage.Watcher)
	if !ok {
		return false, nil
	}
	changes, err := w.Watch(ctx)
	if err != nil {
		return false, err
	}

	go func() {
		for range changes {
			if err := s.Init(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("session reload failed", "error", err)
				continue
			}
			s.logger.Debug("session reloaded from store")
		}
	}()
	return true, nil
}

func (s *Session) get(ctx context.Context, key string) (string, error) {
	v, err := s.store.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("session: load %s: %w", key, err)
	}
	return v, nil
}

// =============================================================================
// TOKEN INSPECTION
// =============================================================================

// Expiry returns the exp claim of a JWT without verifying its signature.
// ok is false for opaque tokens and JWTs without exp.
func Expiry(token string) (exp time.Time, ok bool) {
	if strings.Count(token, ".") != 2 {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	date, err := claims.GetExpirationTime()
	if err != nil || date == nil {
		return time.Time{}, false
	}
	return date.Time, true
}
