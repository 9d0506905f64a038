// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package router

import (
	"path"
	"sort"
	"strings"
)

// Route is one node of the console route tree.
type Route struct {
	Path     string
	Name     string
	Title    string
	Redirect string // non-empty for routes that only forward
}

// DefaultRoutes is the console route tree.
var DefaultRoutes = []Route{
	{Path: "/", Redirect: "/dashboard"},
	{Path: "/dashboard", Name: "Dashboard", Title: "Dashboard"},
	{Path: "/system", Redirect: "/system/user"},
	{Path: "/system/user", Name: "User", Title: "User"},
	{Path: "/system/role", Name: "Role", Title: "Role"},
	{Path: "/login", Name: "Login", Title: "Login"},
	{Path: "/register", Name: "Register", Title: "Register"},
}

// Table looks routes up by path.
type Table struct {
	routes map[string]Route
}

// NewTable indexes routes. Later duplicates replace earlier ones.
func NewTable(routes []Route) *Table {
	t := &Table{routes: make(map[string]Route, len(routes))}
	for _, r := range routes {
		r.Path = Clean(r.Path)
		t.routes[r.Path] = r
	}
	return t
}

// Lookup returns the route registered for p.
func (t *Table) Lookup(p string) (Route, bool) {
	r, ok := t.routes[Clean(p)]
	return r, ok
}

// Routes returns all routes sorted by path.
func (t *Table) Routes() []Route {
	out := make([]Route, 0, len(t.routes))
	for _, r := range t.routes {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Clean normalizes a route path: leading slash, no trailing slash, no dot
// segments. The empty path is "/".
func Clean(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}
