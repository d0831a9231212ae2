// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package hookstore persists webhook records in SQLite.
//
// Deletion is a tombstone: the row keeps its primary key forever with
// revoked_at set, so a hook identifier can never be minted or matched
// twice. Inbound dispatch treats revoked and unknown hooks identically
// (ErrNotFound).
package hookstore
