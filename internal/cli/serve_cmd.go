// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/agentdesk/internal/chat"
	"github.com/jeranaias/agentdesk/internal/server"
)

func (a *App) serveCommand() *cobra.Command {
	var (
		addr          string
		framing       string
		delay         time.Duration
		adminUser     string
		adminPassword string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local development backend",
		Long: `Run a development backend that implements the chat, feedback and user
endpoints. Answers echo the question back, streamed word by word in the
requested framing. Accounts live in memory until the process exits.

Example:
  agentdesk serve --admin-password secret
  agentdesk serve --addr :9000 --framing sse --delay 50ms`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("addr") {
				addr = cfg.Server.Addr
			}
			if !cmd.Flags().Changed("framing") {
				framing = cfg.Server.Framing
			}
			f, err := chat.ParseFraming(framing)
			if err != nil {
				return &UsageError{Err: err}
			}

			var seeds []server.SeedAccount
			if adminPassword != "" {
				seeds = append(seeds, server.SeedAccount{
					Username: adminUser,
					Email:    adminUser + "@localhost",
					Password: adminPassword,
					Roles:    []string{"admin"},
				})
			}

			srv, err := server.New(server.Config{
				Addr:         addr,
				Framing:      f,
				Secret:       []byte(cfg.Server.JWTSecret),
				TokenTTL:     cfg.Server.TokenTTL.Duration,
				StreamPath:   cfg.Chat.StreamPath,
				FeedbackPath: cfg.Chat.FeedbackPath,
				Answerer:     server.Echo{Delay: delay},
				Accounts:     seeds,
				Logger:       a.logger,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Fprintf(a.Stderr, "%s development backend on http://%s (framing %s)\n",
				TitleStyle.Render("agentdesk"), addr, f)
			if adminPassword != "" {
				fmt.Fprintln(a.Stderr, DimStyle.Render("seeded account "+adminUser))
			}
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", server.DefaultAddr, "listen address (default from server.addr)")
	cmd.Flags().StringVar(&framing, "framing", "", "default stream framing: text, ndjson or sse (default from server.framing)")
	cmd.Flags().DurationVar(&delay, "delay", 30*time.Millisecond, "pause between streamed words")
	cmd.Flags().StringVar(&adminUser, "admin-user", "admin", "name of the seeded account")
	cmd.Flags().StringVar(&adminPassword, "admin-password", "", "seed an admin account with this password")
	return cmd
}
