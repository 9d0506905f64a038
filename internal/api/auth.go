// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jeranaias/agentdesk/internal/session"
	"github.com/jeranaias/agentdesk/internal/transport"
)

// Endpoint paths relative to the API base URL.
const (
	PathCaptcha  = "/business/user/captcha"
	PathLogin    = "/business/user/login"
	PathRegister = "/business/user/register"
	PathLogout   = "/business/user/logout"
	PathUserInfo = "/business/user/info"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// CaptchaRequest asks for a captcha challenge for account.
type CaptchaRequest struct {
	Account string `json:"account"`
}

// LoginRequest is the login form.
type LoginRequest struct {
	Account  string `json:"account"`
	Password string `json:"password"`
	Captcha  string `json:"captcha"`
}

// Summary keeps the password out of diagnostics.
func (r LoginRequest) Summary() string {
	return fmt.Sprintf("account=%s captcha=%t", r.Account, r.Captcha != "")
}

// RegisterRequest is the registration form.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Summary keeps the password out of diagnostics.
func (r RegisterRequest) Summary() string {
	return fmt.Sprintf("username=%s email=%s", r.Username, r.Email)
}

// loginResponse covers the token placements seen across backends.
type loginResponse struct {
	Token string `json:"token"`
	Data  *struct {
		Token       string `json:"token"`
		AccessToken string `json:"accessToken"`
	} `json:"data"`
}

// token applies the precedence: top-level token, data.token, then
// data.accessToken.
func (r *loginResponse) token() string {
	if t := strings.TrimSpace(r.Token); t != "" {
		return t
	}
	if r.Data == nil {
		return ""
	}
	if t := strings.TrimSpace(r.Data.Token); t != "" {
		return t
	}
	return strings.TrimSpace(r.Data.AccessToken)
}

// =============================================================================
// CLIENT
// =============================================================================

// Client calls the user endpoints. Safe for concurrent use.
type Client struct {
	http     *transport.Client
	session  *session.Session
	notifier Notifier
}

// Option configures a Client.
type Option func(*Client)

// WithNotifier sets where failures are reported.
func WithNotifier(n Notifier) Option {
	return func(c *Client) {
		c.notifier = n
	}
}

// New creates a Client. sess receives the token on login and is cleared on
// logout; the transport client should use it as its TokenSource.
func New(httpClient *transport.Client, sess *session.Session, opts ...Option) *Client {
	c := &Client{http: httpClient, session: sess}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Captcha requests a captcha for account. The data member is returned
// as sent; rendering it is up to the caller.
func (c *Client) Captcha(ctx context.Context, account string) (json.RawMessage, error) {
	env, err := c.call(ctx, http.MethodPost, PathCaptcha, CaptchaRequest{Account: account})
	if err != nil {
		return nil, err
	}
	return env.Data, nil
}

// Login authenticates and stores the returned token in the session.
func (c *Client) Login(ctx context.Context, req LoginRequest) (string, error) {
	env, err := c.call(ctx, http.MethodPost, PathLogin, req)
	if err != nil {
		return "", err
	}

	var resp loginResponse
	if err := json.Unmarshal(env.Raw, &resp); err != nil {
		// data may be a non-object; only the top-level token can be used then.
		var top struct {
			Token string `json:"token"`
		}
		_ = json.Unmarshal(env.Raw, &top)
		resp = loginResponse{Token: top.Token}
	}

	token := resp.token()
	if token == "" {
		return "", c.fail(ctx, ErrNoToken)
	}

	if err := c.session.Update(ctx, token); err != nil {
		return "", c.fail(ctx, err)
	}
	if err := c.session.SetUser(ctx, session.User{Name: req.Account, Account: req.Account}); err != nil {
		return "", c.fail(ctx, err)
	}
	return token, nil
}

// Register creates an account. It does not sign in.
func (c *Client) Register(ctx context.Context, req RegisterRequest) error {
	_, err := c.call(ctx, http.MethodPost, PathRegister, req)
	return err
}

// Logout tells the backend and clears the session. The session is cleared
// even when the backend call fails; both errors are returned.
func (c *Client) Logout(ctx context.Context) error {
	_, callErr := c.call(ctx, http.MethodPost, PathLogout, nil)
	clearErr := c.session.Clear(ctx)
	return errors.Join(callErr, clearErr)
}

// UserInfo fetches the current user's profile and caches it in the
// session.
func (c *Client) UserInfo(ctx context.Context) (session.User, error) {
	env, err := c.call(ctx, http.MethodGet, PathUserInfo, nil)
	if err != nil {
		return session.User{}, err
	}

	var user session.User
	if env.HasData() {
		if err := json.Unmarshal(env.Data, &user); err != nil {
			return session.User{}, c.fail(ctx, fmt.Errorf("api: decode user info: %w", err))
		}
	}
	if err := c.session.SetUser(ctx, user); err != nil {
		return session.User{}, c.fail(ctx, err)
	}
	return user, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// call performs one authenticated round trip and checks the envelope.
func (c *Client) call(ctx context.Context, method, path string, payload any) (*Envelope, error) {
	resp, err := c.http.Do(ctx, method, path, payload, true)
	if err != nil {
		return nil, c.fail(ctx, err)
	}

	env, err := decodeEnvelope(resp.Body)
	if err != nil {
		return nil, c.fail(ctx, err)
	}
	if !env.OK() {
		return nil, c.fail(ctx, &ApplicationError{Path: path, Code: *env.Code, Message: env.Message})
	}
	return env, nil
}

func (c *Client) fail(ctx context.Context, err error) error {
	if c.notifier != nil {
		c.notifier.Notify(ctx, err)
	}
	return err
}
