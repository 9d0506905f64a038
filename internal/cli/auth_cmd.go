// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// auth_cmd.go - Captcha, login, register, logout and whoami.
//
// SECURITY: passwords are never echoed and never accepted as positional
// arguments. Use the prompt, --password-stdin, or --password for scripts.

package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/agentdesk/internal/api"
	"github.com/jeranaias/agentdesk/internal/session"
)

// =============================================================================
// CAPTCHA
// =============================================================================

func (a *App) captchaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "captcha <account>",
		Short: "Request a login captcha for an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.services(ctx); err != nil {
				return err
			}
			data, err := a.api.Captcha(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(a.Stdout, captchaText(data))
			return nil
		},
	}
}

// captchaText shows the captcha data. Backends that answer with
// {"captcha": "..."} get the bare value; anything else is printed as JSON.
func captchaText(data json.RawMessage) string {
	var obj struct {
		Captcha string `json:"captcha"`
	}
	if json.Unmarshal(data, &obj) == nil && obj.Captcha != "" {
		return obj.Captcha
	}
	var s string
	if json.Unmarshal(data, &s) == nil {
		return s
	}
	if len(data) == 0 {
		return "(no captcha data)"
	}
	return string(data)
}

// =============================================================================
// LOGIN
// =============================================================================

func (a *App) loginCommand() *cobra.Command {
	var req api.LoginRequest
	var passwordStdin bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session token",
		Long: `Sign in to the backend. On a terminal the captcha is fetched and
shown, and captcha and password are prompted for when not given.

Example:
  agentdesk login --account alice
  echo "$PASSWORD" | agentdesk login --account alice --captcha 123456 --password-stdin`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Account = strings.TrimSpace(req.Account)
			if req.Account == "" {
				return usagef("--account is required")
			}
			if passwordStdin && req.Password != "" {
				return usagef("--password and --password-stdin are mutually exclusive")
			}

			ctx := cmd.Context()
			if err := a.services(ctx); err != nil {
				return err
			}

			interactive := isTerminal(a.Stdin)
			if req.Captcha == "" && interactive {
				data, err := a.api.Captcha(ctx, req.Account)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.Stderr, "%s %s\n", LabelStyle.Render("Captcha:"), captchaText(data))
				fmt.Fprint(a.Stderr, "Enter captcha: ")
				if req.Captcha, err = readLine(a.Stdin); err != nil {
					return err
				}
				req.Captcha = strings.TrimSpace(req.Captcha)
			}
			if req.Password == "" && (passwordStdin || interactive) {
				var err error
				if req.Password, err = readSecret(a.Stdin, a.Stderr, "Password: "); err != nil {
					return err
				}
			}
			if req.Password == "" {
				return usagef("a password is required (use the prompt, --password-stdin or --password)")
			}

			if _, err := a.api.Login(ctx, req); err != nil {
				return err
			}
			user, err := a.api.UserInfo(ctx)
			if err != nil {
				a.logger.Warn("signed in but user info failed", "error", err)
				user = a.sess.User()
			}
			fmt.Fprintf(a.Stdout, "%s Signed in as %s\n", SuccessStyle.Render("[OK]"), displayName(user))
			return nil
		},
	}

	cmd.Flags().StringVarP(&req.Account, "account", "a", "", "account name")
	cmd.Flags().StringVar(&req.Captcha, "captcha", "", "captcha answer")
	cmd.Flags().StringVar(&req.Password, "password", "", "password (visible in process lists; prefer the prompt)")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")
	return cmd
}

// =============================================================================
// REGISTER
// =============================================================================

func (a *App) registerCommand() *cobra.Command {
	var req api.RegisterRequest
	var passwordStdin bool

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Username = strings.TrimSpace(req.Username)
			req.Email = strings.TrimSpace(req.Email)
			if req.Username == "" || req.Email == "" {
				return usagef("--username and --email are required")
			}

			ctx := cmd.Context()
			if err := a.services(ctx); err != nil {
				return err
			}
			if req.Password == "" && (passwordStdin || isTerminal(a.Stdin)) {
				var err error
				if req.Password, err = readSecret(a.Stdin, a.Stderr, "Password: "); err != nil {
					return err
				}
			}
			if req.Password == "" {
				return usagef("a password is required (use the prompt, --password-stdin or --password)")
			}

			if err := a.api.Register(ctx, req); err != nil {
				return err
			}
			fmt.Fprintf(a.Stdout, "%s Account %s created. Sign in with 'agentdesk login --account %s'.\n",
				SuccessStyle.Render("[OK]"), req.Username, req.Username)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Username, "username", "", "account name")
	cmd.Flags().StringVar(&req.Email, "email", "", "email address")
	cmd.Flags().StringVar(&req.Password, "password", "", "password (visible in process lists; prefer the prompt)")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")
	return cmd
}

// =============================================================================
// LOGOUT
// =============================================================================

func (a *App) logoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.services(ctx); err != nil {
				return err
			}
			if !a.sess.Authenticated() {
				fmt.Fprintln(a.Stdout, DimStyle.Render("Not signed in."))
				return nil
			}
			// The local session is gone even when the backend call fails.
			if err := a.api.Logout(ctx); err != nil {
				return err
			}
			fmt.Fprintf(a.Stdout, "%s Signed out.\n", SuccessStyle.Render("[OK]"))
			return nil
		},
	}
}

// =============================================================================
// WHOAMI
// =============================================================================

func (a *App) whoamiCommand() *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.services(ctx); err != nil {
				return err
			}
			if !a.sess.Authenticated() {
				return &AuthRequiredError{Route: "whoami"}
			}

			user := a.sess.User()
			if refresh || (user.ID == "" && user.Email == "") {
				var err error
				if user, err = a.api.UserInfo(ctx); err != nil {
					return err
				}
			}
			a.printUser(user)
			return nil
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "fetch the profile from the backend")
	return cmd
}

func (a *App) printUser(u session.User) {
	printTitle(a.Stdout, displayName(u))
	printKV(a.Stdout, "ID", u.ID)
	printKV(a.Stdout, "Account", u.Account)
	printKV(a.Stdout, "Email", u.Email)
	printKV(a.Stdout, "Roles", strings.Join(u.Roles, ", "))
	if exp, ok := session.Expiry(a.sess.Token()); ok {
		printKV(a.Stdout, "Token expires", fmt.Sprintf("%s (in %s)",
			exp.Local().Format(time.RFC3339), time.Until(exp).Round(time.Second)))
	}
}

func displayName(u session.User) string {
	switch {
	case u.Name != "":
		return u.Name
	case u.Account != "":
		return u.Account
	default:
		return "(unknown user)"
	}
}
