// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/bureau-foundation/hookbridge/lib/ref"
)

// Intent is a Client bound to one user ID the appservice acts as. It
// lazily ensures the user is registered and joined before acting, so
// callers can treat "send a message to this room as this user" as a
// single operation.
//
// Registration and membership results are cached for the lifetime of
// the Intent — both are monotonic from the bridge's point of view (a
// virtual user never unregisters; leaving a room goes through the
// bridge, which discards the Intent). Room authorization state is
// deliberately NOT cached here; see Intent.PowerLevels.
type Intent struct {
	client *Client
	userID ref.UserID

	mu         sync.Mutex
	registered bool
	joined     map[ref.RoomID]bool

	// transactionCounter generates unique transaction IDs for
	// idempotent event sends.
	transactionCounter atomic.Int64
}

// Intent returns an Intent acting as the given user. The user must be
// in the appservice's namespace (or be the bot) for the homeserver to
// accept the identity assertion.
func (c *Client) Intent(userID ref.UserID) *Intent {
	return &Intent{
		client: c,
		userID: userID,
		joined: make(map[ref.RoomID]bool),
	}
}

// BotIntent returns an Intent acting as the bridge bot.
func (c *Client) BotIntent() *Intent {
	return c.Intent(c.botUserID)
}

// UserIntent returns an Intent for a virtual user given its localpart.
func (c *Client) UserIntent(localpart string) *Intent {
	return c.Intent(ref.MakeUserID(localpart, c.serverName))
}

// UserID returns the user this Intent acts as.
func (i *Intent) UserID() ref.UserID { return i.userID }

// EnsureRegistered registers the Intent's user on the homeserver via
// the appservice registration flow. A user that already exists
// (M_USER_IN_USE) is not an error. Safe to call repeatedly; the
// successful result is cached.
func (i *Intent) EnsureRegistered(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.registered {
		return nil
	}

	request := registerRequest{
		Type:         "m.login.application_service",
		Username:     i.userID.Localpart(),
		InhibitLogin: true,
	}
	_, err := i.client.doRequest(ctx, http.MethodPost, "/_matrix/client/v3/register", ref.UserID{}, request)
	if err != nil && !IsMatrixError(err, ErrCodeUserInUse) {
		return fmt.Errorf("messaging: registering %s failed: %w", i.userID, err)
	}
	if err == nil {
		i.client.logger.Info("registered appservice user", "user_id", i.userID)
	}

	i.registered = true
	return nil
}

// EnsureJoined joins the Intent's user to the room. If the room
// requires an invite (M_FORBIDDEN), the bridge bot invites the user
// and the join is retried — the bot itself must already be a member.
// The successful result is cached per room.
func (i *Intent) EnsureJoined(ctx context.Context, roomID ref.RoomID) error {
	i.mu.Lock()
	alreadyJoined := i.joined[roomID]
	i.mu.Unlock()
	if alreadyJoined {
		return nil
	}

	if err := i.EnsureRegistered(ctx); err != nil {
		return err
	}

	err := i.join(ctx, roomID)
	if IsMatrixError(err, ErrCodeForbidden) && i.userID != i.client.botUserID {
		// Invite-only room: have the bot invite the virtual user,
		// then retry the join.
		if inviteErr := i.client.BotIntent().Invite(ctx, roomID, i.userID); inviteErr != nil {
			return fmt.Errorf("messaging: inviting %s to %s: %w", i.userID, roomID, inviteErr)
		}
		err = i.join(ctx, roomID)
	}
	if err != nil {
		return fmt.Errorf("messaging: joining %s to %s: %w", i.userID, roomID, err)
	}

	i.mu.Lock()
	i.joined[roomID] = true
	i.mu.Unlock()
	return nil
}

func (i *Intent) join(ctx context.Context, roomID ref.RoomID) error {
	path := "/_matrix/client/v3/join/" + url.PathEscape(roomID.String())
	body, err := i.client.doRequest(ctx, http.MethodPost, path, i.userID, struct{}{})
	if err != nil {
		return err
	}
	var response joinResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return fmt.Errorf("failed to parse join response: %w", err)
	}
	return nil
}

// Invite invites a user to a room as this Intent's user.
func (i *Intent) Invite(ctx context.Context, roomID ref.RoomID, userID ref.UserID) error {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/invite", url.PathEscape(roomID.String()))
	_, err := i.client.doRequest(ctx, http.MethodPost, path, i.userID, inviteRequest{UserID: userID})
	if err != nil {
		return fmt.Errorf("messaging: invite %q to %q failed: %w", userID, roomID, err)
	}
	return nil
}

// SendMessage sends an m.room.message event to a room as this Intent's
// user, registering and joining first as needed. Returns the event ID.
func (i *Intent) SendMessage(ctx context.Context, roomID ref.RoomID, content MessageContent) (ref.EventID, error) {
	if err := i.EnsureJoined(ctx, roomID); err != nil {
		return ref.EventID{}, err
	}

	transactionID := i.nextTransactionID()
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/send/m.room.message/%s",
		url.PathEscape(roomID.String()),
		url.PathEscape(transactionID),
	)

	body, err := i.client.doRequest(ctx, http.MethodPut, path, i.userID, content)
	if err != nil {
		return ref.EventID{}, fmt.Errorf("messaging: send message to %q failed: %w", roomID, err)
	}

	var response SendEventResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return ref.EventID{}, fmt.Errorf("messaging: failed to parse send response: %w", err)
	}
	return response.EventID, nil
}

// SetDisplayName sets the Intent user's profile display name.
func (i *Intent) SetDisplayName(ctx context.Context, displayName string) error {
	if err := i.EnsureRegistered(ctx); err != nil {
		return err
	}
	path := "/_matrix/client/v3/profile/" + url.PathEscape(i.userID.String()) + "/displayname"
	_, err := i.client.doRequest(ctx, http.MethodPut, path, i.userID, profileRequest{DisplayName: displayName})
	if err != nil {
		return fmt.Errorf("messaging: set display name for %q failed: %w", i.userID, err)
	}
	return nil
}

// SetAvatarURL sets the Intent user's profile avatar to an MXC URI.
func (i *Intent) SetAvatarURL(ctx context.Context, avatarURL string) error {
	if err := i.EnsureRegistered(ctx); err != nil {
		return err
	}
	path := "/_matrix/client/v3/profile/" + url.PathEscape(i.userID.String()) + "/avatar_url"
	_, err := i.client.doRequest(ctx, http.MethodPut, path, i.userID, profileRequest{AvatarURL: avatarURL})
	if err != nil {
		return fmt.Errorf("messaging: set avatar for %q failed: %w", i.userID, err)
	}
	return nil
}

// GetStateEvent fetches a specific state event's content from a room.
// Returns the raw JSON content for the caller to unmarshal. If the
// state event does not exist, returns a *MatrixError with code
// M_NOT_FOUND.
func (i *Intent) GetStateEvent(ctx context.Context, roomID ref.RoomID, eventType, stateKey string) (json.RawMessage, error) {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/state/%s/%s",
		url.PathEscape(roomID.String()),
		url.PathEscape(eventType),
		url.PathEscape(stateKey),
	)
	body, err := i.client.doRequest(ctx, http.MethodGet, path, i.userID, nil)
	if err != nil {
		return nil, fmt.Errorf("messaging: get state event %s/%s in %q failed: %w", eventType, stateKey, roomID, err)
	}
	return json.RawMessage(body), nil
}

// nextTransactionID generates a unique transaction ID for idempotent
// event sending. Format: "hookbridge-<timestamp_ms>-<counter>" to
// ensure uniqueness across restarts.
func (i *Intent) nextTransactionID() string {
	counter := i.transactionCounter.Add(1)
	return fmt.Sprintf("hookbridge-%d-%d", i.client.clock.Now().UnixMilli(), counter)
}
