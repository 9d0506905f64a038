// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export saves chat transcripts to disk.
//
// # Supported Formats
//
//   - Markdown: front matter plus one section per question
//   - JSON: the Transcript as is
//
// # Usage
//
//	exp, err := export.ForFormat("md")
//	if err != nil {
//	    return err
//	}
//	path, err := export.ToFile(transcript, exp, ".")
package export
