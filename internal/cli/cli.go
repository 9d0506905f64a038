// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jeranaias/agentdesk/internal/api"
	"github.com/jeranaias/agentdesk/internal/chat"
	"github.com/jeranaias/agentdesk/internal/config"
	"github.com/jeranaias/agentdesk/internal/router"
	"github.com/jeranaias/agentdesk/internal/session"
	"github.com/jeranaias/agentdesk/internal/storage"
	"github.com/jeranaias/agentdesk/internal/telemetry"
	"github.com/jeranaias/agentdesk/internal/transport"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// =============================================================================
// APP
// =============================================================================

// App holds what the commands share. Configuration and the client stack
// are built on first use, so commands like "config init" work without a
// valid config file.
type App struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	configPath string
	verbose    bool

	cfg    *config.Config
	logger *slog.Logger

	store    storage.Store
	sess     *session.Session
	http     *transport.Client
	api      *api.Client
	chat     *chat.Service
	guard    *router.Guard
	notified error // last error already shown by the notifier
}

// NewApp creates an App on the given streams.
func NewApp(stdin io.Reader, stdout, stderr io.Writer) *App {
	return &App{
		Stdin:  stdin,
		Stdout: stdout,
		Stderr: stderr,
		logger: slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn})),
	}
}

// Execute runs the command line of the current process and returns the
// exit code.
func Execute() int {
	return NewApp(os.Stdin, os.Stdout, os.Stderr).Run(context.Background(), os.Args[1:])
}

// Run executes args and returns the exit code. Errors are printed to
// Stderr once.
func (a *App) Run(ctx context.Context, args []string) int {
	defer a.Close()

	root := a.RootCommand()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}
	if isUsageMessage(err) {
		err = &UsageError{Err: err}
	}
	if a.notified == nil || !errors.Is(err, a.notified) {
		DisplayError(a.Stderr, err)
	}
	var ue *UsageError
	if errors.As(err, &ue) {
		fmt.Fprintln(a.Stderr, DimStyle.Render("Run 'agentdesk --help' for usage."))
	}
	return ExitCode(err)
}

// Close releases the session store.
func (a *App) Close() error {
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	return err
}

// RootCommand builds the command tree.
func (a *App) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "agentdesk",
		Short: "Terminal client for the tool-agent console",
		Long: `agentdesk talks to a tool-agent backend: it streams answers from the
database chat agent, submits feedback on them and manages the login
session shared by all commands.

Example usage:
  agentdesk serve                     # Start the local development backend
  agentdesk register --username alice --email alice@example.com
  agentdesk login --account alice     # Sign in (prompts for captcha and password)
  agentdesk chat "How many orders shipped today?"
  agentdesk chat                      # Interactive chat`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", Version, GitCommit, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(a.Stdin)
	root.SetOut(a.Stdout)
	root.SetErr(a.Stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &UsageError{Err: err}
	})

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default is ~/.agentdesk/config.toml)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "verbose output")

	root.AddCommand(
		a.chatCommand(),
		a.feedbackCommand(),
		a.captchaCommand(),
		a.loginCommand(),
		a.registerCommand(),
		a.logoutCommand(),
		a.whoamiCommand(),
		a.routeCommand(),
		a.configCommand(),
		a.serveCommand(),
	)
	return root
}

// =============================================================================
// LAZY DEPENDENCIES
// =============================================================================

// loadConfig reads the configuration and sets up logging from it.
func (a *App) loadConfig() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return nil, &ConfigError{Path: a.configPath, Err: err}
	}
	a.cfg = cfg
	a.logger = newLogger(a.Stderr, cfg, a.verbose)
	a.logger.Debug("configuration loaded",
		"base_url", cfg.API.BaseURL,
		"framing", cfg.Chat.Framing,
		"session_backend", cfg.Session.Backend,
	)
	return cfg, nil
}

// services builds the session, HTTP client, API and chat stack.
func (a *App) services(ctx context.Context) error {
	if a.sess != nil {
		return nil
	}
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}

	path, err := cfg.SessionPath()
	if err != nil {
		return &ConfigError{Path: a.configPath, Err: err}
	}
	store, err := storage.Open(storage.Backend(cfg.Session.Backend), path)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	sess := session.New(store, session.WithLogger(a.logger))
	if err := sess.Init(ctx); err != nil {
		store.Close()
		return fmt.Errorf("load session: %w", err)
	}

	framing, err := chat.ParseFraming(cfg.Chat.Framing)
	if err != nil {
		store.Close()
		return &ConfigError{Path: a.configPath, Err: err}
	}

	a.store = store
	a.sess = sess
	a.http = transport.New(cfg.API.BaseURL,
		transport.WithTimeout(cfg.Request.Timeout.Duration),
		transport.WithTokenSource(sess),
		transport.WithRateLimit(cfg.Request.RateLimit, cfg.Request.RateBurst),
		transport.WithDiagnostics(telemetry.NewSlog(a.logger)),
	)
	a.api = api.New(a.http, sess, api.WithNotifier(api.NotifierFunc(a.notify)))
	a.chat = chat.NewService(a.http, chat.ServiceConfig{
		StreamPath:         cfg.Chat.StreamPath,
		FeedbackPath:       cfg.Chat.FeedbackPath,
		Framing:            framing,
		AttachAuthToStream: cfg.Chat.AttachAuthToStream,
		StreamTimeout:      cfg.Chat.StreamTimeout.Duration,
	})
	a.guard = router.NewGuard(sess, router.Config{
		LoginPath: cfg.Router.LoginPath,
		HomePath:  cfg.Router.HomePath,
		Whitelist: cfg.Router.Whitelist,
	}, router.NewTable(router.DefaultRoutes))
	return nil
}

// notify shows a failed REST call as it happens.
func (a *App) notify(_ context.Context, err error) {
	a.notified = err
	DisplayError(a.Stderr, err)
}

// requireRoute checks that the session may open route and reports the
// sign-in requirement otherwise.
func (a *App) requireRoute(route string) error {
	d := a.guard.Check(route)
	if d.Action == router.Redirect {
		a.logger.Debug("route guarded", "route", route, "target", d.Target, "reason", d.Reason)
		return &AuthRequiredError{Route: route}
	}
	return nil
}

// newLogger builds the stderr logger for cfg. --verbose forces debug.
func newLogger(w io.Writer, cfg *config.Config, verbose bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel()}
	if verbose {
		opts.Level = slog.LevelDebug
	}
	if cfg.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
