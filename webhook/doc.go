// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package webhook ingests HTTP payloads posted to provisioned webhook
// URLs and relays them into the owning room as the hook's virtual
// user.
package webhook
