// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat_cmd.go - The chat command: one question or an interactive session.

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"
	"golang.org/x/text/unicode/norm"

	"github.com/jeranaias/agentdesk/internal/chat"
	"github.com/jeranaias/agentdesk/internal/config"
	"github.com/jeranaias/agentdesk/internal/export"
)

// chatRoute is the console page hosting the chat panel.
const chatRoute = "/dashboard"

func (a *App) chatCommand() *cobra.Command {
	var render bool

	cmd := &cobra.Command{
		Use:   "chat [question]",
		Short: "Ask the database agent a question",
		Long: `Ask the database agent a question and stream the answer.

Without a question an interactive session starts. Ctrl+C cancels the
answer in progress; Ctrl+D or /quit leaves.

Interactive commands:
  /new              Start a new conversation
  /up [comment]     Rate the last answer as helpful
  /down [comment]   Rate the last answer as not helpful
  /render           Toggle markdown rendering of answers
  /export [md|json] [dir]
                    Save the conversation (default: markdown in .)
  /help             Show this list
  /quit             Leave`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.services(ctx); err != nil {
				return err
			}
			if err := a.requireRoute(chatRoute); err != nil {
				return err
			}
			if len(args) > 0 {
				_, err := a.ask(ctx, strings.Join(args, " "), render)
				return err
			}
			return a.repl(ctx, render)
		},
	}
	cmd.Flags().BoolVar(&render, "render", false, "render finished answers as markdown instead of streaming them")
	return cmd
}

// =============================================================================
// SINGLE QUESTION
// =============================================================================

// ask sends one question and prints the answer. Ctrl+C cancels the stream
// and leaves the partial answer on screen.
func (a *App) ask(ctx context.Context, question string, render bool) (export.Turn, error) {
	question = norm.NFC.String(strings.TrimSpace(question))
	asked := time.Now()

	sessionID, err := a.sess.ChatSessionID(ctx)
	if err != nil {
		return export.Turn{}, err
	}
	req := chat.ChatRequest{
		Question:  question,
		UserID:    a.userID(),
		SessionID: sessionID,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	stream, err := a.chat.Chat(ctx, req)
	if err != nil {
		return export.Turn{}, err
	}
	defer stream.Close()

	if render {
		var text string
		text, err = stream.Collect()
		if text != "" {
			fmt.Fprint(a.Stdout, renderMarkdown(text))
		}
	} else {
		err = stream.Consume(chat.Handlers{
			OnContent: func(content string) {
				fmt.Fprint(a.Stdout, content)
			},
		})
		fmt.Fprintln(a.Stdout)
	}

	stats := stream.Stats()
	a.logger.Debug("chat finished",
		"elapsed", stats.Elapsed,
		"chunks", stats.Chunks,
		"bytes", stats.Bytes,
		"fragments", stats.Fragments,
	)
	if a.verbose {
		fmt.Fprintln(a.Stderr, DimStyle.Render(fmt.Sprintf("[%s, %d chunks, %d bytes]",
			stats.Elapsed.Round(time.Millisecond), stats.Chunks, stats.Bytes)))
	}

	t := export.Turn{
		MessageID: uuid.NewString(),
		Question:  question,
		Answer:    stream.Text(),
		AskedAt:   asked,
		Elapsed:   stats.Elapsed,
	}
	if errors.Is(err, chat.ErrCanceled) || errors.Is(err, context.Canceled) {
		fmt.Fprintln(a.Stderr, WarningStyle.Render("[Cancelled]"))
		t.Canceled = true
		err = chat.ErrCanceled
	}
	return t, err
}

// userID identifies the signed-in user in chat and feedback requests.
func (a *App) userID() string {
	u := a.sess.User()
	if u.ID != "" {
		return u.ID
	}
	return u.Account
}

// =============================================================================
// INTERACTIVE SESSION
// =============================================================================

// lineReader reads prompted lines.
type lineReader interface {
	Prompt(prompt string) (string, error)
	Close() error
}

// linerReader edits lines with history on a terminal.
type linerReader struct {
	line        *liner.State
	historyFile string
}

func newLinerReader() *linerReader {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	r := &linerReader{line: line}
	if dir, err := config.ConfigDir(); err == nil {
		r.historyFile = filepath.Join(dir, "chat_history")
		if f, err := os.Open(r.historyFile); err == nil {
			r.line.ReadHistory(f)
			f.Close()
		}
	}
	return r
}

func (r *linerReader) Prompt(prompt string) (string, error) {
	input, err := r.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		r.line.AppendHistory(input)
	}
	return input, nil
}

// Close saves history with owner-only permissions.
func (r *linerReader) Close() error {
	defer r.line.Close()
	if r.historyFile == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(r.historyFile), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(r.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = r.line.WriteHistory(f)
	return err
}

// scanReader reads piped input; prompts are not shown.
type scanReader struct {
	scanner *bufio.Scanner
}

func (r *scanReader) Prompt(string) (string, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return r.scanner.Text(), nil
}

func (r *scanReader) Close() error { return nil }

func (a *App) newLineReader() lineReader {
	if isTerminal(a.Stdin) && isTerminal(a.Stdout) {
		return newLinerReader()
	}
	return &scanReader{scanner: bufio.NewScanner(a.Stdin)}
}

// replState is what survives between prompts.
type replState struct {
	render     bool
	authed     bool
	transcript export.Transcript
}

// last returns the most recent answered turn, or nil.
func (st *replState) last() *export.Turn {
	for i := len(st.transcript.Turns) - 1; i >= 0; i-- {
		if st.transcript.Turns[i].Answer != "" {
			return &st.transcript.Turns[i]
		}
	}
	return nil
}

// repl runs the interactive session until EOF or /quit.
func (a *App) repl(ctx context.Context, render bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	in := a.newLineReader()
	defer in.Close()

	if watching, err := a.sess.Watch(ctx); err != nil {
		a.logger.Warn("session watch unavailable", "error", err)
	} else if !watching {
		a.logger.Debug("session store cannot be watched")
	}

	st := &replState{render: render, authed: a.sess.Authenticated()}
	if err := a.resetTranscript(ctx, st); err != nil {
		return err
	}
	printTitle(a.Stdout, "agentdesk chat")
	fmt.Fprintln(a.Stdout, DimStyle.Render("Type a question, /help for commands, Ctrl+D to leave."))

	for {
		input, err := in.Prompt(PromptStyle.Render("agentdesk> "))
		if err != nil {
			// Ctrl+C at the prompt, Ctrl+D or end of piped input.
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(a.Stdout)
				return nil
			}
			return err
		}

		if now := a.sess.Authenticated(); now != st.authed {
			st.authed = now
			if now {
				fmt.Fprintln(a.Stderr, DimStyle.Render("[session signed in from another process]"))
			} else {
				fmt.Fprintln(a.Stderr, WarningStyle.Render("[session signed out from another process]"))
			}
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			quit, err := a.slashCommand(ctx, st, input)
			if err != nil {
				DisplayError(a.Stderr, err)
			}
			if quit {
				return nil
			}
			continue
		}

		if err := a.requireRoute(chatRoute); err != nil {
			DisplayError(a.Stderr, err)
			continue
		}
		t, err := a.ask(ctx, input, st.render)
		if err != nil && !errors.Is(err, chat.ErrCanceled) {
			DisplayError(a.Stderr, err)
		}
		if t.MessageID != "" {
			st.transcript.Turns = append(st.transcript.Turns, t)
		}
	}
}

// slashCommand runs one /command. quit is true for /quit.
func (a *App) slashCommand(ctx context.Context, st *replState, input string) (quit bool, err error) {
	name, rest, _ := strings.Cut(input, " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(name) {
	case "/quit", "/exit", "/q":
		return true, nil

	case "/new":
		if _, err := a.sess.NewChatSession(ctx); err != nil {
			return false, err
		}
		if err := a.resetTranscript(ctx, st); err != nil {
			return false, err
		}
		fmt.Fprintln(a.Stdout, DimStyle.Render("New conversation "+st.transcript.SessionID))

	case "/up", "/down":
		last := st.last()
		if last == nil {
			return false, errors.New("no answer to rate yet")
		}
		rating := chat.RatingUp
		if name == "/down" {
			rating = chat.RatingDown
		}
		fb := chat.Feedback{
			MessageID: last.MessageID,
			Question:  last.Question,
			Answer:    last.Answer,
			Rating:    rating,
			Comment:   rest,
		}
		if err := a.sendFeedback(ctx, fb); err != nil {
			return false, err
		}
		last.Rating = rating
		fmt.Fprintln(a.Stdout, SuccessStyle.Render("Feedback sent."))

	case "/render":
		st.render = !st.render
		fmt.Fprintln(a.Stdout, DimStyle.Render(fmt.Sprintf("Markdown rendering %s.", onOff(st.render))))

	case "/export":
		format, dir, _ := strings.Cut(rest, " ")
		exp, err := export.ForFormat(format)
		if err != nil {
			return false, err
		}
		path, err := export.ToFile(&st.transcript, exp, strings.TrimSpace(dir))
		if err != nil {
			return false, err
		}
		fmt.Fprintln(a.Stdout, SuccessStyle.Render("Saved "+path))

	case "/help":
		fmt.Fprintln(a.Stdout, "/new, /up [comment], /down [comment], /render, /export [md|json] [dir], /help, /quit")

	default:
		return false, fmt.Errorf("unknown command %s (try /help)", name)
	}
	return false, nil
}

// resetTranscript starts recording a conversation for the current chat
// session id.
func (a *App) resetTranscript(ctx context.Context, st *replState) error {
	id, err := a.sess.ChatSessionID(ctx)
	if err != nil {
		return err
	}
	st.transcript = export.Transcript{
		SessionID: id,
		User:      displayName(a.sess.User()),
		BaseURL:   a.http.BaseURL(),
		StartedAt: time.Now(),
	}
	return nil
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
