// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package provisioning decides who may create, list, or delete a
// room's webhooks, and performs those operations against the store.
//
// Every operation authorizes the requesting user against the room's
// current power levels before touching the store. Authorization
// failures — whatever their internal cause — surface to callers as the
// single ErrPermissionDenied; store errors pass through verbatim.
package provisioning
