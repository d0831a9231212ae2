// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// HookID identifies one incoming-webhook endpoint. It is the secret
// part of the webhook URL, so HookIDs are minted from a ULID with
// crypto/rand entropy: 48 bits of timestamp plus 80 bits of
// randomness. A deleted hook's ID is additionally tombstoned in the
// store, so an ID observed once refers to the same endpoint forever.
//
// The canonical form is the 26-character upper-case Crockford base32
// ULID string.
type HookID struct {
	id string
}

// NewHookID mints a fresh HookID at the given time.
func NewHookID(now time.Time) HookID {
	return HookID{id: ulid.MustNew(ulid.Timestamp(now), rand.Reader).String()}
}

// ParseHookID validates and wraps a raw hook ID string.
func ParseHookID(raw string) (HookID, error) {
	parsed, err := ulid.ParseStrict(raw)
	if err != nil {
		return HookID{}, fmt.Errorf("invalid hook ID %q: %w", raw, err)
	}
	return HookID{id: parsed.String()}, nil
}

// String returns the canonical 26-character hook ID string.
func (h HookID) String() string { return h.id }

// IsZero reports whether the HookID is the zero value (uninitialized).
func (h HookID) IsZero() bool { return h.id == "" }

// MarshalText implements encoding.TextMarshaler.
func (h HookID) MarshalText() ([]byte, error) {
	return []byte(h.id), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. An empty input
// produces the zero value.
func (h *HookID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*h = HookID{}
		return nil
	}
	parsed, err := ParseHookID(string(data))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}
