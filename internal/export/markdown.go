// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter writes a YAML front matter block followed by one section
// per turn. Answers are already markdown and are copied as they are.
type MarkdownExporter struct {
	// Now stamps the export; nil means time.Now.
	Now func() time.Time
}

// Export implements Exporter.
func (e *MarkdownExporter) Export(t *Transcript) ([]byte, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}

	var sb strings.Builder

	sb.WriteString("---\n")
	fmt.Fprintf(&sb, "title: %s\n", escapeYAML(t.Title()))
	fmt.Fprintf(&sb, "session: %s\n", t.SessionID)
	if t.User != "" {
		fmt.Fprintf(&sb, "user: %s\n", escapeYAML(t.User))
	}
	if t.BaseURL != "" {
		fmt.Fprintf(&sb, "backend: %s\n", escapeYAML(t.BaseURL))
	}
	fmt.Fprintf(&sb, "started: %s\n", t.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&sb, "turns: %d\n", len(t.Turns))
	fmt.Fprintf(&sb, "exported: %s\n", now().Format(time.RFC3339))
	sb.WriteString("generator: agentdesk\n")
	sb.WriteString("---\n\n")

	fmt.Fprintf(&sb, "# %s\n\n", escapeMarkdown(t.Title()))

	for i, turn := range t.Turns {
		fmt.Fprintf(&sb, "## Q%d <sub>%s</sub>\n\n", i+1, turn.AskedAt.Format("15:04:05"))
		sb.WriteString(quote(turn.Question))
		sb.WriteString("\n\n")

		answer := strings.TrimSpace(turn.Answer)
		if answer == "" {
			answer = "*(no answer)*"
		}
		sb.WriteString(answer)
		sb.WriteString("\n\n")

		if meta := turnMeta(turn); meta != "" {
			sb.WriteString(meta)
			sb.WriteString("\n\n")
		}
		if i < len(t.Turns)-1 {
			sb.WriteString("---\n\n")
		}
	}

	return []byte(sb.String()), nil
}

// FileExtension implements Exporter.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

func turnMeta(t Turn) string {
	var parts []string
	if t.Elapsed > 0 {
		parts = append(parts, t.Elapsed.Round(time.Millisecond).String())
	}
	if t.Rating != "" {
		parts = append(parts, "rated "+t.Rating)
	}
	if t.Canceled {
		parts = append(parts, "canceled")
	}
	if len(parts) == 0 {
		return ""
	}
	return "<sub>" + strings.Join(parts, " | ") + "</sub>"
}

// quote renders s as a markdown blockquote.
func quote(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i, l := range lines {
		lines[i] = "> " + l
	}
	return strings.Join(lines, "\n")
}

// =============================================================================
// ESCAPING HELPERS
// =============================================================================

// escapeMarkdown escapes characters that would break a heading.
func escapeMarkdown(s string) string {
	r := strings.NewReplacer(`#`, `\#`, `*`, `\*`, `_`, `\_`, `[`, `\[`, `]`, `\]`)
	return r.Replace(s)
}

// escapeYAML quotes values that YAML would otherwise misread.
func escapeYAML(s string) string {
	if strings.ContainsAny(s, ":#|>@`\"'[]{}!%&*\n\r\\") || strings.HasPrefix(s, " ") || strings.HasSuffix(s, " ") {
		r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`)
		return `"` + r.Replace(s) + `"`
	}
	return s
}
