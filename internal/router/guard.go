// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package router

import (
	"fmt"
	"net/url"
	"slices"
)

// Defaults for Config.
const (
	DefaultLoginPath = "/login"
	DefaultHomePath  = "/"
)

// DefaultWhitelist is reachable without signing in.
var DefaultWhitelist = []string{"/login", "/register"}

// maxHops bounds Navigate against redirect loops.
const maxHops = 8

// Authenticator reports whether a usable session exists.
// *session.Session implements it.
type Authenticator interface {
	Authenticated() bool
}

// Config holds the guard's paths. Zero values select the defaults.
type Config struct {
	LoginPath string
	HomePath  string
	Whitelist []string
}

// Action is the outcome of a navigation check.
type Action int

const (
	Allow Action = iota
	Redirect
)

// String returns the action name.
func (a Action) String() string {
	if a == Redirect {
		return "redirect"
	}
	return "allow"
}

// Decision is the guard's answer for one target path.
type Decision struct {
	Action Action
	From   string
	Target string // redirect destination, including any query
	Reason string
}

// Guard checks navigation. Safe for concurrent use.
type Guard struct {
	auth      Authenticator
	table     *Table
	loginPath string
	homePath  string
	whitelist []string
}

// NewGuard creates a Guard. table may be nil when route redirects are not
// wanted.
func NewGuard(auth Authenticator, cfg Config, table *Table) *Guard {
	g := &Guard{
		auth:      auth,
		table:     table,
		loginPath: DefaultLoginPath,
		homePath:  DefaultHomePath,
		whitelist: DefaultWhitelist,
	}
	if cfg.LoginPath != "" {
		g.loginPath = Clean(cfg.LoginPath)
	}
	if cfg.HomePath != "" {
		g.homePath = Clean(cfg.HomePath)
	}
	if cfg.Whitelist != nil {
		g.whitelist = make([]string, len(cfg.Whitelist))
		for i, p := range cfg.Whitelist {
			g.whitelist[i] = Clean(p)
		}
	}
	return g
}

// Check decides on a single navigation to target. Any query string on
// target is ignored for the decision.
func (g *Guard) Check(target string) Decision {
	p := pathOf(target)

	if g.auth != nil && g.auth.Authenticated() {
		if p == g.loginPath {
			return Decision{Action: Redirect, From: p, Target: g.homePath, Reason: "already signed in"}
		}
		return Decision{Action: Allow, From: p, Reason: "signed in"}
	}

	if slices.Contains(g.whitelist, p) {
		return Decision{Action: Allow, From: p, Reason: "public route"}
	}
	q := url.Values{"redirect": []string{p}}
	return Decision{
		Action: Redirect,
		From:   p,
		Target: g.loginPath + "?" + q.Encode(),
		Reason: "sign-in required",
	}
}

// Navigate follows guard and route redirects from target until a path is
// allowed and is not itself a redirect route. It returns the final
// location and every decision taken.
func (g *Guard) Navigate(target string) (string, []Decision, error) {
	current := target
	var hops []Decision

	for range maxHops {
		d := g.Check(current)
		hops = append(hops, d)
		if d.Action == Redirect {
			current = d.Target
			continue
		}

		if g.table != nil {
			if r, ok := g.table.Lookup(d.From); ok && r.Redirect != "" {
				hops = append(hops, Decision{Action: Redirect, From: d.From, Target: r.Redirect, Reason: "route redirect"})
				current = r.Redirect
				continue
			}
		}
		return current, hops, nil
	}
	return current, hops, fmt.Errorf("router: more than %d redirects from %s", maxHops, target)
}

// RedirectTarget extracts the redirect query parameter of a login URL,
// falling back to the home path. Only same-origin paths are honoured.
func (g *Guard) RedirectTarget(loginURL string) string {
	u, err := url.Parse(loginURL)
	if err != nil {
		return g.homePath
	}
	r := u.Query().Get("redirect")
	if r == "" || r[0] != '/' || (len(r) > 1 && r[1] == '/') {
		return g.homePath
	}
	return Clean(r)
}

// pathOf strips query and fragment and cleans the result.
func pathOf(target string) string {
	if u, err := url.Parse(target); err == nil {
		return Clean(u.Path)
	}
	return Clean(target)
}
