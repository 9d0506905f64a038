// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"sync"

	"github.com/charmbracelet/glamour"
)

var (
	markdownRenderer     *glamour.TermRenderer
	markdownRendererOnce sync.Once
)

// renderMarkdown formats a finished answer for the terminal. Plain text is
// returned when no renderer can be built.
func renderMarkdown(text string) string {
	markdownRendererOnce.Do(func() {
		style := glamour.WithAutoStyle()
		if !ColorsEnabled() {
			style = glamour.WithStandardStyle("notty")
		}
		r, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(80))
		if err == nil {
			markdownRenderer = r
		}
	})
	if markdownRenderer == nil {
		return text
	}
	out, err := markdownRenderer.Render(text)
	if err != nil {
		return text
	}
	return out
}
