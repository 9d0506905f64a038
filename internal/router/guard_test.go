// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type authState bool

func (a authState) Authenticated() bool { return bool(a) }

func TestGuard_Check(t *testing.T) {
	tests := []struct {
		name       string
		signedIn   bool
		target     string
		wantAction Action
		wantTarget string
	}{
		{"signed in visiting login goes home", true, "/login", Redirect, "/"},
		{"signed in visiting dashboard", true, "/dashboard", Allow, ""},
		{"signed in visiting register", true, "/register", Allow, ""},
		{"signed out visiting login", false, "/login", Allow, ""},
		{"signed out visiting register", false, "/register", Allow, ""},
		{"signed out visiting dashboard", false, "/dashboard", Redirect, "/login?redirect=%2Fdashboard"},
		{"signed out visiting nested page", false, "/system/role", Redirect, "/login?redirect=%2Fsystem%2Frole"},
		{"query is not part of the path", false, "/login?redirect=/x", Allow, ""},
		{"trailing slash", false, "/login/", Allow, ""},
		{"root", false, "", Redirect, "/login?redirect=%2F"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			g := NewGuard(authState(tc.signedIn), Config{}, nil)
			d := g.Check(tc.target)
			assert.Equal(t, tc.wantAction, d.Action)
			assert.Equal(t, tc.wantTarget, d.Target)
			assert.NotEmpty(t, d.Reason)
		})
	}
}

func TestGuard_CustomConfig(t *testing.T) {
	g := NewGuard(authState(false), Config{LoginPath: "signin", HomePath: "/home", Whitelist: []string{"/signin", "/help"}}, nil)

	assert.Equal(t, Allow, g.Check("/help").Action)
	assert.Equal(t, Redirect, g.Check("/register").Action, "the default whitelist is replaced")
	assert.Equal(t, "/signin?redirect=%2Fdashboard", g.Check("/dashboard").Target)

	g = NewGuard(authState(true), Config{LoginPath: "/signin", HomePath: "/home"}, nil)
	assert.Equal(t, "/home", g.Check("/signin").Target)
}

func TestGuard_NilAuthenticatorIsSignedOut(t *testing.T) {
	d := NewGuard(nil, Config{}, nil).Check("/dashboard")
	assert.Equal(t, Redirect, d.Action)
}

func TestGuard_Navigate(t *testing.T) {
	table := NewTable(DefaultRoutes)

	final, hops, err := NewGuard(authState(true), Config{}, table).Navigate("/login")
	require.NoError(t, err)
	assert.Equal(t, "/dashboard", final)
	// login -> / (guard), / allowed, / -> /dashboard (route), /dashboard allowed
	require.Len(t, hops, 4)
	assert.Equal(t, "already signed in", hops[0].Reason)
	assert.Equal(t, "route redirect", hops[2].Reason)
	assert.Equal(t, Allow, hops[3].Action)

	final, _, err = NewGuard(authState(true), Config{}, table).Navigate("/system")
	require.NoError(t, err)
	assert.Equal(t, "/system/user", final)

	final, _, err = NewGuard(authState(false), Config{}, table).Navigate("/system/user")
	require.NoError(t, err)
	assert.Equal(t, "/login?redirect=%2Fsystem%2Fuser", final)
}

func TestGuard_NavigateLoop(t *testing.T) {
	table := NewTable([]Route{{Path: "/a", Redirect: "/b"}, {Path: "/b", Redirect: "/a"}})
	_, hops, err := NewGuard(authState(true), Config{}, table).Navigate("/a")
	require.Error(t, err)
	assert.NotEmpty(t, hops)
}

func TestGuard_RedirectTarget(t *testing.T) {
	g := NewGuard(authState(false), Config{}, nil)
	assert.Equal(t, "/system/role", g.RedirectTarget("/login?redirect=%2Fsystem%2Frole"))
	assert.Equal(t, "/", g.RedirectTarget("/login"))
	assert.Equal(t, "/", g.RedirectTarget("/login?redirect=//evil.example"))
	assert.Equal(t, "/", g.RedirectTarget("/login?redirect=https://evil.example"))
}

func TestTable(t *testing.T) {
	table := NewTable(DefaultRoutes)

	r, ok := table.Lookup("system/user/")
	require.True(t, ok)
	assert.Equal(t, "User", r.Name)

	_, ok = table.Lookup("/missing")
	assert.False(t, ok)

	routes := table.Routes()
	assert.Len(t, routes, len(DefaultRoutes))
	assert.Equal(t, "/", routes[0].Path)
}

func TestAction_String(t *testing.T) {
	assert.Equal(t, "allow", Allow.String())
	assert.Equal(t, "redirect", Redirect.String())
}
