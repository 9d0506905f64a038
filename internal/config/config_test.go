// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// DEFAULT CONFIG TESTS
// =============================================================================

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "http://localhost:8082", cfg.API.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.Request.Timeout.Duration)
	assert.Equal(t, "/tool-agent/database/chat", cfg.Chat.StreamPath)
	assert.Equal(t, "/tool-agent/database/feedback", cfg.Chat.FeedbackPath)
	assert.False(t, cfg.Chat.AttachAuthToStream)
	assert.Equal(t, "text", cfg.Chat.Framing)
	assert.Equal(t, "file", cfg.Session.Backend)
	assert.Equal(t, []string{"/login", "/register"}, cfg.Router.Whitelist)
	assert.NoError(t, cfg.Validate())
}

// =============================================================================
// LOAD / SAVE TESTS
// =============================================================================

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default().API.BaseURL, cfg.API.BaseURL)
}

func TestLoad_PartialFileFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[api]
base_url = "https://desk.example.com/api"

[chat]
framing = "ndjson"
stream_timeout = "2m"
attach_auth_to_stream = true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://desk.example.com/api", cfg.API.BaseURL)
	assert.Equal(t, "ndjson", cfg.Chat.Framing)
	assert.Equal(t, 2*time.Minute, cfg.Chat.StreamTimeout.Duration)
	assert.True(t, cfg.Chat.AttachAuthToStream)
	assert.Equal(t, "/tool-agent/database/chat", cfg.Chat.StreamPath)
	assert.Equal(t, 10*time.Second, cfg.Request.Timeout.Duration)
	assert.Equal(t, "/login", cfg.Router.LoginPath)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[chat]\nframeing = \"sse\"\n"), 0600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat.frameing")
}

func TestLoad_InvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[api]
base_url = "localhost"

[chat]
framing = "xml"

[session]
backend = "redis"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	_, err := Load(path)
	require.Error(t, err)

	var verrs ValidateErrors
	require.ErrorAs(t, err, &verrs)
	fields := make([]string, len(verrs))
	for i, e := range verrs {
		fields[i] = e.Field
	}
	assert.ElementsMatch(t, []string{"api.base_url", "chat.framing", "session.backend"}, fields)
}

func TestSaveTOML_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg := Default()
	cfg.Chat.Framing = "sse"
	cfg.Chat.StreamTimeout = D(90 * time.Second)
	cfg.Request.RateLimit = 2.5
	require.NoError(t, SaveTOML(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# agentdesk configuration file")
	assert.Contains(t, string(data), `stream_timeout = "1m30s"`)

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sse", loaded.Chat.Framing)
	assert.Equal(t, 90*time.Second, loaded.Chat.StreamTimeout.Duration)
	assert.Equal(t, 2.5, loaded.Request.RateLimit)
}

// =============================================================================
// DURATION TESTS
// =============================================================================

func TestDuration_UnmarshalText(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"10s", 10 * time.Second, false},
		{"0", 0, false},
		{"", 0, false},
		{" 1h30m ", 90 * time.Minute, false},
		{"ten", 0, true},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			var d Duration
			err := d.UnmarshalText([]byte(tc.in))
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, d.Duration)
		})
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDE TESTS
// =============================================================================

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("AGENTDESK_API_URL", "http://backend:9000")
	t.Setenv("AGENTDESK_STREAM_AUTH", "true")
	t.Setenv("AGENTDESK_STREAM_TIMEOUT", "45s")
	t.Setenv("AGENTDESK_FRAMING", "sse")
	t.Setenv("AGENTDESK_SESSION_BACKEND", "memory")
	t.Setenv("AGENTDESK_LOG_LEVEL", "debug")
	t.Setenv("AGENTDESK_JWT_SECRET", "s3cret")

	cfg := Default()
	require.NoError(t, cfg.ApplyEnvOverrides())

	assert.Equal(t, "http://backend:9000", cfg.API.BaseURL)
	assert.True(t, cfg.Chat.AttachAuthToStream)
	assert.Equal(t, 45*time.Second, cfg.Chat.StreamTimeout.Duration)
	assert.Equal(t, "sse", cfg.Chat.Framing)
	assert.Equal(t, "memory", cfg.Session.Backend)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel())
	assert.Equal(t, "s3cret", cfg.Server.JWTSecret)
}

func TestApplyEnvOverrides_InvalidValues(t *testing.T) {
	t.Run("bool", func(t *testing.T) {
		t.Setenv("AGENTDESK_STREAM_AUTH", "maybe")
		assert.Error(t, Default().ApplyEnvOverrides())
	})
	t.Run("duration", func(t *testing.T) {
		t.Setenv("AGENTDESK_STREAM_TIMEOUT", "soon")
		assert.Error(t, Default().ApplyEnvOverrides())
	})
}

// =============================================================================
// VALIDATION TESTS
// =============================================================================

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"negative timeout", func(c *Config) { c.Request.Timeout = D(-time.Second) }, "request.timeout"},
		{"negative rate", func(c *Config) { c.Request.RateLimit = -1 }, "request.rate_limit"},
		{"relative stream path", func(c *Config) { c.Chat.StreamPath = "chat" }, "chat.stream_path"},
		{"bad framing", func(c *Config) { c.Chat.Framing = "grpc" }, "chat.framing"},
		{"bad whitelist", func(c *Config) { c.Router.Whitelist = []string{"/login", "register"} }, "router.whitelist[1]"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"ftp url", func(c *Config) { c.API.BaseURL = "ftp://host" }, "api.base_url"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)

			var verrs ValidateErrors
			require.ErrorAs(t, cfg.Validate(), &verrs)
			require.Len(t, verrs, 1)
			assert.Equal(t, tc.field, verrs[0].Field)
		})
	}
}

// =============================================================================
// ACCESSOR TESTS
// =============================================================================

func TestGet(t *testing.T) {
	cfg := Default()

	v, err := cfg.Get("chat.framing")
	require.NoError(t, err)
	assert.Equal(t, "text", v)

	v, err = cfg.Get("request.timeout")
	require.NoError(t, err)
	assert.Equal(t, "10s", v)

	_, err = cfg.Get("chat.nope")
	assert.Error(t, err)

	_, err = cfg.Get("api.base_url.more")
	assert.Error(t, err)
}

func TestSessionPath(t *testing.T) {
	t.Setenv("AGENTDESK_HOME", "/tmp/agentdesk-home")

	cfg := Default()
	p, err := cfg.SessionPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/tmp/agentdesk-home", "session.json"), p)

	cfg.Session.Backend = "sqlite"
	p, err = cfg.SessionPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/tmp/agentdesk-home", "session.db"), p)

	cfg.Session.Path = "/elsewhere/s.json"
	p, err = cfg.SessionPath()
	require.NoError(t, err)
	assert.Equal(t, "/elsewhere/s.json", p)
}

func TestString_RedactsSecret(t *testing.T) {
	cfg := Default()
	cfg.Server.JWTSecret = "topsecret"

	s := cfg.String()
	assert.NotContains(t, s, "topsecret")
	assert.Contains(t, s, "[REDACTED]")
	assert.Equal(t, "topsecret", cfg.Server.JWTSecret)
}
