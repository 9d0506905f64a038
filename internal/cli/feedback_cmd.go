// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jeranaias/agentdesk/internal/chat"
)

func (a *App) feedbackCommand() *cobra.Command {
	var fb chat.Feedback
	var extra map[string]string

	cmd := &cobra.Command{
		Use:   "feedback",
		Short: "Rate an answer from the database agent",
		Long: `Submit one feedback record for an answer. The record is sent with the
current user and conversation ids.

Example:
  agentdesk feedback --question "orders today?" --answer "42" --rating up
  agentdesk feedback --message-id 7f3c --rating down --comment "wrong table"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch fb.Rating {
			case "", chat.RatingUp, chat.RatingDown:
			default:
				return usagef("invalid --rating %q (want up or down)", fb.Rating)
			}
			if fb.MessageID == "" && fb.Question == "" && fb.Answer == "" && fb.Rating == "" && fb.Comment == "" {
				return usagef("nothing to submit: set at least one of --message-id, --question, --answer, --rating, --comment")
			}
			if fb.MessageID == "" {
				fb.MessageID = uuid.NewString()
			}
			if len(extra) > 0 {
				fb.Extra = make(map[string]any, len(extra))
				for k, v := range extra {
					fb.Extra[k] = v
				}
			}

			ctx := cmd.Context()
			if err := a.services(ctx); err != nil {
				return err
			}
			if err := a.sendFeedback(ctx, fb); err != nil {
				return err
			}
			fmt.Fprintln(a.Stdout, SuccessStyle.Render("Feedback sent."))
			return nil
		},
	}

	cmd.Flags().StringVar(&fb.MessageID, "message-id", "", "id of the rated answer (default: generated)")
	cmd.Flags().StringVar(&fb.Question, "question", "", "question that was asked")
	cmd.Flags().StringVar(&fb.Answer, "answer", "", "answer that was given")
	cmd.Flags().StringVar(&fb.Rating, "rating", "", "rating: up or down")
	cmd.Flags().StringVar(&fb.Comment, "comment", "", "free-text comment")
	cmd.Flags().StringToStringVar(&extra, "extra", nil, "additional fields, key=value")
	return cmd
}

// sendFeedback submits fb for the current user and conversation.
func (a *App) sendFeedback(ctx context.Context, fb chat.Feedback) error {
	sessionID, err := a.sess.ChatSessionID(ctx)
	if err != nil {
		return err
	}
	return a.chat.SubmitFeedback(ctx, chat.FeedbackRequest{
		Feedbacks: []chat.Feedback{fb},
		UserID:    a.userID(),
		SessionID: sessionID,
	})
}
