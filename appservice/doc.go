// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package appservice is the homeserver-facing surface of the bridge:
// the transaction endpoint the homeserver pushes events to, the
// !webhook command handling layered on top of it, and appservice
// registration file generation.
package appservice
