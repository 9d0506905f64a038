// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeranaias/agentdesk/internal/router"
)

func (a *App) routeCommand() *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "route [path]",
		Short: "Show where the console would take the current session",
		Long: `Resolve a console path the way the route guard does for the current
session, following guard and route redirects.

Example:
  agentdesk route /system     # signed in: /system -> /system/user
  agentdesk route --list      # print the route table`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if list {
				a.printRoutes()
				return nil
			}
			if len(args) == 0 {
				return usagef("a path is required unless --list is given")
			}

			if err := a.services(cmd.Context()); err != nil {
				return err
			}
			final, hops, err := a.guard.Navigate(args[0])
			for _, d := range hops {
				a.printDecision(d)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(a.Stdout, "%s %s\n", SuccessStyle.Render("=>"), final)
			return nil
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "list the known routes")
	return cmd
}

func (a *App) printDecision(d router.Decision) {
	if d.Action == router.Redirect {
		fmt.Fprintf(a.Stdout, "  %s -> %s %s\n", d.From, d.Target, DimStyle.Render("("+d.Reason+")"))
		return
	}
	fmt.Fprintf(a.Stdout, "  %s %s\n", d.From, DimStyle.Render("(allowed: "+d.Reason+")"))
}

func (a *App) printRoutes() {
	printTitle(a.Stdout, "Routes")
	for _, r := range router.NewTable(router.DefaultRoutes).Routes() {
		switch {
		case r.Redirect != "":
			printKV(a.Stdout, r.Path, "-> "+r.Redirect)
		default:
			printKV(a.Stdout, r.Path, r.Title)
		}
	}
}
