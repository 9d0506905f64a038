// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/agentdesk/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete agentdesk configuration.
type Config struct {
	API     APIConfig     `toml:"api" json:"api"`
	Request RequestConfig `toml:"request" json:"request"`
	Chat    ChatConfig    `toml:"chat" json:"chat"`
	Session SessionConfig `toml:"session" json:"session"`
	Router  RouterConfig  `toml:"router" json:"router"`
	Log     LogConfig     `toml:"log" json:"log"`
	Server  ServerConfig  `toml:"server" json:"server"`
}

// APIConfig locates the backend.
type APIConfig struct {
	// BaseURL is prefixed to every endpoint path.
	BaseURL string `toml:"base_url" json:"base_url"`
}

// RequestConfig applies to non-streaming REST calls.
type RequestConfig struct {
	// Timeout bounds each REST round trip (default: 10s)
	Timeout Duration `toml:"timeout" json:"timeout"`

	// RateLimit caps outgoing requests per second (0 = unlimited)
	RateLimit float64 `toml:"rate_limit" json:"rate_limit"`

	// RateBurst is the limiter burst size (default: 1)
	RateBurst int `toml:"rate_burst" json:"rate_burst"`
}

// ChatConfig configures the chat stream and feedback endpoints.
type ChatConfig struct {
	StreamPath   string `toml:"stream_path" json:"stream_path"`
	FeedbackPath string `toml:"feedback_path" json:"feedback_path"`

	// AttachAuthToStream sends the bearer token to the tool-agent endpoints
	AttachAuthToStream bool `toml:"attach_auth_to_stream" json:"attach_auth_to_stream"`

	// StreamTimeout bounds a whole stream (0 = unbounded)
	StreamTimeout Duration `toml:"stream_timeout" json:"stream_timeout"`

	// Framing is one of "text", "ndjson", "sse"
	Framing string `toml:"framing" json:"framing"`
}

// SessionConfig selects where the session is persisted.
type SessionConfig struct {
	// Backend is one of "file", "sqlite", "memory"
	Backend string `toml:"backend" json:"backend"`

	// Path overrides the backend's default file under the config dir
	Path string `toml:"path" json:"path"`
}

// RouterConfig configures the navigation guard.
type RouterConfig struct {
	LoginPath string   `toml:"login_path" json:"login_path"`
	HomePath  string   `toml:"home_path" json:"home_path"`
	Whitelist []string `toml:"whitelist" json:"whitelist"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	// Level is one of "debug", "info", "warn", "error"
	Level string `toml:"level" json:"level"`

	// Format is "text" or "json"
	Format string `toml:"format" json:"format"`
}

// ServerConfig configures the development backend (agentdesk serve).
type ServerConfig struct {
	Addr string `toml:"addr" json:"addr"`

	// JWTSecret signs issued tokens. Empty means a random per-run secret.
	JWTSecret string `toml:"jwt_secret" json:"jwt_secret"`

	// TokenTTL is the lifetime of issued tokens (default: 2h)
	TokenTTL Duration `toml:"token_ttl" json:"token_ttl"`

	// Framing is the default stream framing served
	Framing string `toml:"framing" json:"framing"`
}

// =============================================================================
// DURATION
// =============================================================================

// Duration is a time.Duration written as a Go duration string ("10s").
type Duration struct {
	time.Duration
}

// D wraps d.
func D(d time.Duration) Duration {
	return Duration{d}
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. A bare "0" is zero.
func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if s == "" || s == "0" {
		d.Duration = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = v
	return nil
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: "http://localhost:8082",
		},
		Request: RequestConfig{
			Timeout:   D(10 * time.Second),
			RateLimit: 0,
			RateBurst: 1,
		},
		Chat: ChatConfig{
			StreamPath:         "/tool-agent/database/chat",
			FeedbackPath:       "/tool-agent/database/feedback",
			AttachAuthToStream: false,
			StreamTimeout:      D(0),
			Framing:            "text",
		},
		Session: SessionConfig{
			Backend: "file",
		},
		Router: RouterConfig{
			LoginPath: "/login",
			HomePath:  "/",
			Whitelist: []string{"/login", "/register"},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr:     "localhost:8082",
			TokenTTL: D(2 * time.Hour),
			Framing:  "text",
		},
	}
}

// fillDefaults fills in any missing values with defaults.
func fillDefaults(cfg *Config) {
	defaults := Default()

	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = defaults.API.BaseURL
	}

	if cfg.Request.Timeout.Duration == 0 {
		cfg.Request.Timeout = defaults.Request.Timeout
	}
	if cfg.Request.RateBurst == 0 {
		cfg.Request.RateBurst = defaults.Request.RateBurst
	}

	if cfg.Chat.StreamPath == "" {
		cfg.Chat.StreamPath = defaults.Chat.StreamPath
	}
	if cfg.Chat.FeedbackPath == "" {
		cfg.Chat.FeedbackPath = defaults.Chat.FeedbackPath
	}
	if cfg.Chat.Framing == "" {
		cfg.Chat.Framing = defaults.Chat.Framing
	}

	if cfg.Session.Backend == "" {
		cfg.Session.Backend = defaults.Session.Backend
	}

	if cfg.Router.LoginPath == "" {
		cfg.Router.LoginPath = defaults.Router.LoginPath
	}
	if cfg.Router.HomePath == "" {
		cfg.Router.HomePath = defaults.Router.HomePath
	}
	if cfg.Router.Whitelist == nil {
		cfg.Router.Whitelist = defaults.Router.Whitelist
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = defaults.Log.Level
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = defaults.Log.Format
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaults.Server.Addr
	}
	if cfg.Server.TokenTTL.Duration == 0 {
		cfg.Server.TokenTTL = defaults.Server.TokenTTL
	}
	if cfg.Server.Framing == "" {
		cfg.Server.Framing = defaults.Server.Framing
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the agentdesk configuration directory path. The
// AGENTDESK_HOME environment variable replaces ~/.agentdesk.
func ConfigDir() (string, error) {
	if dir := os.Getenv("AGENTDESK_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".agentdesk"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// SessionPath returns the session store location: session.path when set,
// otherwise the backend's default file in the config dir.
func (c *Config) SessionPath() (string, error) {
	if c.Session.Path != "" {
		return c.Session.Path, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	switch c.Session.Backend {
	case "sqlite":
		return filepath.Join(dir, "session.db"), nil
	case "memory":
		return "", nil
	default:
		return filepath.Join(dir, "session.json"), nil
	}
}

// ensureSecurePermissions checks and fixes permissions on config files.
// SECURITY: the file may hold the dev server's signing secret.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load reads the configuration from path, or from ConfigPath when path is
// empty. A missing file yields the defaults. Environment overrides are
// applied last, then the result is validated.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := Default()
	if _, err := os.Stat(path); err == nil {
		cfg = &Config{}
		if err := LoadTOML(cfg, path); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes path into cfg and fills unset values with defaults.
// Unknown keys are rejected so typos do not silently fall back.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown config keys in %s: %s", path, strings.Join(keys, ", "))
	}
	fillDefaults(cfg)
	return nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// SaveTOML writes cfg to path.
// SECURITY: Creates config files with 0600 permissions (owner read/write only).
// RELIABILITY: Atomic write with fsync prevents data loss on crash
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# agentdesk configuration file\n")
	buf.WriteString("# Generated by agentdesk - edit with care\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600, 0700); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

var (
	validFramings = map[string]bool{"text": true, "ndjson": true, "sse": true}
	validBackends = map[string]bool{"file": true, "sqlite": true, "memory": true}
	validLevels   = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validFormats  = map[string]bool{"text": true, "json": true}
)

// Validate checks every section and returns ValidateErrors listing all
// problems, or nil.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// API
	if u, err := url.Parse(c.API.BaseURL); err != nil {
		add("api.base_url", "invalid URL: %v", err)
	} else if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		add("api.base_url", "must be an absolute http or https URL, got %q", c.API.BaseURL)
	}

	// Request
	if c.Request.Timeout.Duration < 0 {
		add("request.timeout", "cannot be negative")
	}
	if c.Request.RateLimit < 0 {
		add("request.rate_limit", "cannot be negative")
	}
	if c.Request.RateBurst < 0 {
		add("request.rate_burst", "cannot be negative")
	}

	// Chat
	if !strings.HasPrefix(c.Chat.StreamPath, "/") {
		add("chat.stream_path", "must start with '/'")
	}
	if !strings.HasPrefix(c.Chat.FeedbackPath, "/") {
		add("chat.feedback_path", "must start with '/'")
	}
	if c.Chat.StreamTimeout.Duration < 0 {
		add("chat.stream_timeout", "cannot be negative")
	}
	if !validFramings[strings.ToLower(c.Chat.Framing)] {
		add("chat.framing", "invalid framing '%s', must be one of: text, ndjson, sse", c.Chat.Framing)
	}

	// Session
	if !validBackends[strings.ToLower(c.Session.Backend)] {
		add("session.backend", "invalid backend '%s', must be one of: file, sqlite, memory", c.Session.Backend)
	}

	// Router
	if !strings.HasPrefix(c.Router.LoginPath, "/") {
		add("router.login_path", "must start with '/'")
	}
	if !strings.HasPrefix(c.Router.HomePath, "/") {
		add("router.home_path", "must start with '/'")
	}
	for i, p := range c.Router.Whitelist {
		if !strings.HasPrefix(p, "/") {
			add(fmt.Sprintf("router.whitelist[%d]", i), "must start with '/'")
		}
	}

	// Log
	if !validLevels[strings.ToLower(c.Log.Level)] {
		add("log.level", "invalid level '%s', must be one of: debug, info, warn, error", c.Log.Level)
	}
	if !validFormats[strings.ToLower(c.Log.Format)] {
		add("log.format", "invalid format '%s', must be one of: text, json", c.Log.Format)
	}

	// Server
	if c.Server.TokenTTL.Duration < 0 {
		add("server.token_ttl", "cannot be negative")
	}
	if !validFramings[strings.ToLower(c.Server.Framing)] {
		add("server.framing", "invalid framing '%s', must be one of: text, ndjson, sse", c.Server.Framing)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - AGENTDESK_API_URL: overrides api.base_url
//   - AGENTDESK_STREAM_AUTH: overrides chat.attach_auth_to_stream
//   - AGENTDESK_STREAM_TIMEOUT: overrides chat.stream_timeout
//   - AGENTDESK_FRAMING: overrides chat.framing
//   - AGENTDESK_SESSION_BACKEND: overrides session.backend
//   - AGENTDESK_LOG_LEVEL: overrides log.level
//   - AGENTDESK_JWT_SECRET: overrides server.jwt_secret
func (c *Config) ApplyEnvOverrides() error {
	if v := os.Getenv("AGENTDESK_API_URL"); v != "" {
		c.API.BaseURL = v
	}

	if v := os.Getenv("AGENTDESK_STREAM_AUTH"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("AGENTDESK_STREAM_AUTH: %w", err)
		}
		c.Chat.AttachAuthToStream = b
	}

	if v := os.Getenv("AGENTDESK_STREAM_TIMEOUT"); v != "" {
		if err := c.Chat.StreamTimeout.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("AGENTDESK_STREAM_TIMEOUT: %w", err)
		}
	}

	if v := os.Getenv("AGENTDESK_FRAMING"); v != "" {
		c.Chat.Framing = v
	}

	if v := os.Getenv("AGENTDESK_SESSION_BACKEND"); v != "" {
		c.Session.Backend = v
	}

	if v := os.Getenv("AGENTDESK_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}

	if v := os.Getenv("AGENTDESK_JWT_SECRET"); v != "" {
		c.Server.JWTSecret = v
	}
	return nil
}

// =============================================================================
// ACCESSORS
// =============================================================================

// LogLevel returns log.level as a slog level. Unknown levels are info.
func (c *Config) LogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Get retrieves a configuration value by its TOML key in dot notation
// (e.g., "chat.framing").
func (c *Config) Get(key string) (any, error) {
	if key == "" {
		return nil, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		field, ok := fieldByTag(v, part)
		if !ok {
			return nil, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			if d, ok := field.Interface().(Duration); ok {
				return d.String(), nil
			}
			return field.Interface(), nil
		}
		if field.Kind() != reflect.Struct {
			return nil, fmt.Errorf("field '%s' is not a section", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return nil, fmt.Errorf("invalid key: %s", key)
}

// fieldByTag finds the struct field whose toml tag is name.
func fieldByTag(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag, _, _ := strings.Cut(t.Field(i).Tag.Get("toml"), ",")
		if tag == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

// String renders the config as JSON for display.
// SECURITY: Redacts the signing secret so it never reaches logs or a
// terminal scrollback.
func (c *Config) String() string {
	safe := *c
	safe.Router.Whitelist = append([]string(nil), c.Router.Whitelist...)
	if safe.Server.JWTSecret != "" {
		safe.Server.JWTSecret = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}
