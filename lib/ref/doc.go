// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides validated identifier types for hookbridge.
//
// Raw strings from the wire (Matrix API responses, webhook URLs,
// command arguments) are parsed into these types at the boundary and
// stay typed through the rest of the system. The zero value of every
// type is invalid; use IsZero to check.
//
// Matrix identifiers (RoomID, UserID, EventID) validate structural
// format only — sigil, localpart, server name. HookID validates the
// ULID form that the webhook store mints for incoming-webhook
// endpoints.
package ref
