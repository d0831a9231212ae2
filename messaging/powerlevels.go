// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bureau-foundation/hookbridge/lib/ref"
)

// PowerLevelsContent is the content of an m.room.power_levels state
// event, reduced to the fields authorization decisions need. Pointer
// fields distinguish "absent from the event" from an explicit zero —
// the provisioning service treats a missing state_default as a
// configuration gap, not as level 0.
type PowerLevelsContent struct {
	// Users maps user IDs to their explicit power level.
	Users map[string]int `json:"users,omitempty"`

	// UsersDefault is the power level of users not listed in Users.
	// Absent means 0.
	UsersDefault *int `json:"users_default,omitempty"`

	// StateDefault is the power level required to send state events —
	// the threshold for managing a room's webhooks.
	StateDefault *int `json:"state_default,omitempty"`
}

// EffectiveLevel resolves a user's power level via the fixed fallback
// chain: explicit per-user entry, then users_default, then 0.
func (p *PowerLevelsContent) EffectiveLevel(userID ref.UserID) int {
	if level, ok := p.Users[userID.String()]; ok {
		return level
	}
	if p.UsersDefault != nil {
		return *p.UsersDefault
	}
	return 0
}

// PowerLevels fetches the room's m.room.power_levels state event. A
// room with no power-level state at all yields (nil, nil) — distinct
// from transport or permission errors, which are returned as non-nil
// errors. The state is read fresh on every call; authorization
// decisions must not cache it.
func (i *Intent) PowerLevels(ctx context.Context, roomID ref.RoomID) (*PowerLevelsContent, error) {
	raw, err := i.GetStateEvent(ctx, roomID, "m.room.power_levels", "")
	if err != nil {
		if IsMatrixError(err, ErrCodeNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var content PowerLevelsContent
	if err := json.Unmarshal(raw, &content); err != nil {
		return nil, fmt.Errorf("messaging: failed to parse power levels for %q: %w", roomID, err)
	}
	return &content, nil
}
