// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package messaging wraps the Matrix client-server API for hookbridge's
// application-service needs.
//
// The package provides two core types. [Client] holds the homeserver
// URL, HTTP transport, and the appservice token (as_token) issued in
// the registration file. It performs no login flow — application
// services authenticate every request with the as_token and select the
// acting user via the user_id query parameter (asserted appservice
// identity, per the Matrix application service API).
//
// [Intent] is a Client bound to one user the bridge acts as: the
// bridge bot or a per-hook virtual user in the exclusive "_webhook_*"
// namespace. Intent lazily ensures the user exists (appservice
// registration, M_USER_IN_USE tolerated) and is joined to the target
// room before sending, mirroring how bridge SDKs behave. Intents are
// lightweight and safe to create per request.
//
// Room authorization state is read through [Intent.PowerLevels], which
// fetches the m.room.power_levels state event and reports "no state at
// all" (nil, nil) distinctly from transport errors. The provisioning
// service builds its permission decisions on top of this read.
//
// All API errors are returned as [*MatrixError] with the standard
// Matrix error code (M_FORBIDDEN, M_NOT_FOUND, etc.) and HTTP status.
// Request URLs are built by string concatenation rather than url.URL
// to avoid double-encoding of path segments.
package messaging
