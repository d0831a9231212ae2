// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package appservice

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bureau-foundation/hookbridge/hookstore"
	"github.com/bureau-foundation/hookbridge/lib/ref"
	"github.com/bureau-foundation/hookbridge/messaging"
	"github.com/bureau-foundation/hookbridge/provisioning"
)

const commandPrefix = "!webhook"

// handleCommand parses and executes a !webhook command from a room
// message. Returns the notice to post back to the room, or "" when the
// message is not a command for us.
//
// Subcommands:
//
//	!webhook [label]        create a webhook for this room
//	!webhook list           list this room's webhooks
//	!webhook remove <id>    delete a webhook
func (s *Server) handleCommand(ctx context.Context, event *messaging.Event) string {
	msgType, body, ok := event.MessageBody()
	if !ok || msgType == "m.notice" {
		// Notices include our own replies.
		return ""
	}
	body = strings.TrimSpace(body)
	if body != commandPrefix && !strings.HasPrefix(body, commandPrefix+" ") {
		return ""
	}

	args := strings.Fields(strings.TrimPrefix(body, commandPrefix))

	switch {
	case len(args) == 0:
		return s.createWebhook(ctx, event.RoomID, event.Sender, "")
	case args[0] == "list":
		return s.listWebhooks(ctx, event.RoomID, event.Sender)
	case args[0] == "remove":
		if len(args) < 2 {
			return "usage: !webhook remove <id>"
		}
		return s.removeWebhook(ctx, event.RoomID, event.Sender, args[1])
	default:
		// Anything else is a label for a new webhook.
		return s.createWebhook(ctx, event.RoomID, event.Sender, strings.Join(args, " "))
	}
}

func (s *Server) createWebhook(ctx context.Context, roomID ref.RoomID, sender ref.UserID, label string) string {
	webhook, err := s.provisioning.CreateWebhook(ctx, roomID, sender, label)
	if err != nil {
		return s.rejectionNotice(err, "create webhook", roomID, sender)
	}
	return fmt.Sprintf("Webhook created. Post JSON to:\n%s/api/v1/webhook/%s",
		s.publicURL, webhook.ID)
}

func (s *Server) listWebhooks(ctx context.Context, roomID ref.RoomID, sender ref.UserID) string {
	webhooks, err := s.provisioning.ListWebhooks(ctx, roomID, sender)
	if err != nil {
		return s.rejectionNotice(err, "list webhooks", roomID, sender)
	}
	if len(webhooks) == 0 {
		return "This room has no webhooks."
	}

	var reply strings.Builder
	fmt.Fprintf(&reply, "Webhooks for this room (%d):", len(webhooks))
	for _, webhook := range webhooks {
		fmt.Fprintf(&reply, "\n%s  created %s by %s",
			webhook.ID,
			webhook.CreatedAt.UTC().Format("2006-01-02"),
			webhook.UserID,
		)
		if webhook.Label != "" {
			fmt.Fprintf(&reply, "  (%s)", webhook.Label)
		}
	}
	return reply.String()
}

func (s *Server) removeWebhook(ctx context.Context, roomID ref.RoomID, sender ref.UserID, rawID string) string {
	hookID, err := ref.ParseHookID(rawID)
	if err != nil {
		return fmt.Sprintf("%q is not a webhook ID.", rawID)
	}
	if err := s.provisioning.DeleteWebhook(ctx, roomID, sender, hookID); err != nil {
		if errors.Is(err, hookstore.ErrNotFound) {
			return fmt.Sprintf("No webhook %s in this room.", hookID)
		}
		return s.rejectionNotice(err, "remove webhook", roomID, sender)
	}
	return fmt.Sprintf("Webhook %s removed.", hookID)
}

// rejectionNotice maps an operation error to the reply posted in the
// room. The permission denial keeps its fixed message; everything else
// is logged and reported generically, since store and homeserver
// errors are not for room members to see.
func (s *Server) rejectionNotice(err error, operation string, roomID ref.RoomID, sender ref.UserID) string {
	if errors.Is(err, provisioning.ErrPermissionDenied) {
		return capitalize(provisioning.ErrPermissionDenied.Error()) + "."
	}
	s.logger.Error("command failed",
		"operation", operation,
		"room_id", roomID,
		"sender", sender,
		"error", err,
	)
	return "Something went wrong handling that command; see the bridge logs."
}

func capitalize(message string) string {
	if message == "" {
		return message
	}
	return strings.ToUpper(message[:1]) + message[1:]
}
