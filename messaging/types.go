// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"github.com/bureau-foundation/hookbridge/lib/ref"
)

// MessageContent is the content body of an m.room.message event.
// Formatted messages carry an HTML rendering alongside the plain-text
// body, using the org.matrix.custom.html format per the Matrix spec.
type MessageContent struct {
	MsgType       string `json:"msgtype"`
	Body          string `json:"body"`
	Format        string `json:"format,omitempty"`
	FormattedBody string `json:"formatted_body,omitempty"`
}

// FormatCustomHTML is the Matrix format identifier for HTML-formatted
// message bodies.
const FormatCustomHTML = "org.matrix.custom.html"

// NewTextMessage creates a plain m.text message.
func NewTextMessage(body string) MessageContent {
	return MessageContent{
		MsgType: "m.text",
		Body:    body,
	}
}

// NewHTMLMessage creates an m.text message with an HTML rendering.
// body is the plain-text fallback shown by clients that don't render
// HTML.
func NewHTMLMessage(body, htmlBody string) MessageContent {
	return MessageContent{
		MsgType:       "m.text",
		Body:          body,
		Format:        FormatCustomHTML,
		FormattedBody: htmlBody,
	}
}

// NewNotice creates an m.notice message. Bridges send bot replies as
// notices so other bots (and the bridge itself) know to ignore them.
func NewNotice(body string) MessageContent {
	return MessageContent{
		MsgType: "m.notice",
		Body:    body,
	}
}

// Event represents a Matrix event delivered in an appservice
// transaction or returned by the client-server API.
type Event struct {
	EventID        ref.EventID    `json:"event_id"`
	Type           string         `json:"type"`
	Sender         ref.UserID     `json:"sender"`
	OriginServerTS int64          `json:"origin_server_ts"`
	Content        map[string]any `json:"content"`
	RoomID         ref.RoomID     `json:"room_id,omitempty"`
	StateKey       *string        `json:"state_key,omitempty"`
}

// MessageBody extracts the msgtype and body fields from an
// m.room.message event's content. Returns ok=false when either field
// is absent or not a string.
func (e *Event) MessageBody() (msgType, body string, ok bool) {
	msgType, typeOK := e.Content["msgtype"].(string)
	body, bodyOK := e.Content["body"].(string)
	return msgType, body, typeOK && bodyOK
}

// SendEventResponse is returned by event-sending endpoints.
type SendEventResponse struct {
	EventID ref.EventID `json:"event_id"`
}

// registerRequest is the body for appservice user registration.
type registerRequest struct {
	Type         string `json:"type"`
	Username     string `json:"username"`
	InhibitLogin bool   `json:"inhibit_login"`
}

// profileRequest is the body for displayname and avatar_url updates.
type profileRequest struct {
	DisplayName string `json:"displayname,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// joinResponse is returned by the join endpoint.
type joinResponse struct {
	RoomID ref.RoomID `json:"room_id"`
}

// inviteRequest holds the user ID to invite to a room.
type inviteRequest struct {
	UserID ref.UserID `json:"user_id"`
}
