// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/hookbridge/lib/clock"
)

// fakeHomeserver records appservice API calls and scripts responses
// for the registration/join/send flow.
type fakeHomeserver struct {
	t *testing.T

	mu            sync.Mutex
	registrations []string // usernames registered
	joins         []string // "userID roomID"
	invites       []string // "inviter invitee roomID"
	sends         []MessageContent
	sendTxnIDs    []string

	// joinForbiddenOnce makes the first join for a user return
	// M_FORBIDDEN, simulating an invite-only room.
	joinForbiddenOnce map[string]bool

	// registerInUse makes registration return M_USER_IN_USE.
	registerInUse bool
}

func newFakeHomeserver(t *testing.T) *fakeHomeserver {
	return &fakeHomeserver{t: t, joinForbiddenOnce: make(map[string]bool)}
}

func (f *fakeHomeserver) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := request.URL.Path
	impersonated := request.URL.Query().Get("user_id")

	switch {
	case path == "/_matrix/client/v3/register":
		var body registerRequest
		json.NewDecoder(request.Body).Decode(&body)
		if f.registerInUse {
			writeMatrixError(writer, http.StatusBadRequest, "M_USER_IN_USE", "taken")
			return
		}
		f.registrations = append(f.registrations, body.Username)
		writer.Write([]byte(`{"user_id":"@` + body.Username + `:local"}`))

	case strings.HasPrefix(path, "/_matrix/client/v3/join/"):
		if f.joinForbiddenOnce[impersonated] {
			delete(f.joinForbiddenOnce, impersonated)
			writeMatrixError(writer, http.StatusForbidden, "M_FORBIDDEN", "invite required")
			return
		}
		roomID := strings.TrimPrefix(path, "/_matrix/client/v3/join/")
		f.joins = append(f.joins, impersonated+" "+roomID)
		writer.Write([]byte(`{"room_id":"` + roomID + `"}`))

	case strings.HasSuffix(path, "/invite"):
		var body inviteRequest
		json.NewDecoder(request.Body).Decode(&body)
		f.invites = append(f.invites, impersonated+" invites "+body.UserID.String())
		writer.Write([]byte(`{}`))

	case strings.Contains(path, "/send/m.room.message/"):
		var content MessageContent
		json.NewDecoder(request.Body).Decode(&content)
		f.sends = append(f.sends, content)
		f.sendTxnIDs = append(f.sendTxnIDs, path[strings.LastIndex(path, "/")+1:])
		writer.Write([]byte(`{"event_id":"$sent1"}`))

	default:
		f.t.Errorf("unexpected request: %s %s", request.Method, path)
		writeMatrixError(writer, http.StatusNotFound, "M_UNRECOGNIZED", "unexpected")
	}
}

func TestEnsureRegisteredCachesResult(t *testing.T) {
	homeserver := newFakeHomeserver(t)
	client := newTestClient(t, homeserver)
	intent := client.UserIntent("_webhook_abc")

	for range 3 {
		if err := intent.EnsureRegistered(context.Background()); err != nil {
			t.Fatalf("EnsureRegistered: %v", err)
		}
	}

	homeserver.mu.Lock()
	defer homeserver.mu.Unlock()
	if len(homeserver.registrations) != 1 {
		t.Errorf("registrations = %d, want 1", len(homeserver.registrations))
	}
	if homeserver.registrations[0] != "_webhook_abc" {
		t.Errorf("registered username = %q", homeserver.registrations[0])
	}
}

func TestEnsureRegisteredToleratesUserInUse(t *testing.T) {
	homeserver := newFakeHomeserver(t)
	homeserver.registerInUse = true
	client := newTestClient(t, homeserver)
	intent := client.UserIntent("_webhook_abc")

	if err := intent.EnsureRegistered(context.Background()); err != nil {
		t.Fatalf("EnsureRegistered with M_USER_IN_USE: %v", err)
	}
}

func TestSendMessageRegistersAndJoins(t *testing.T) {
	homeserver := newFakeHomeserver(t)
	client := newTestClient(t, homeserver)
	intent := client.UserIntent("_webhook_abc")
	roomID := mustRoomID(t, "!room:local")

	eventID, err := intent.SendMessage(context.Background(), roomID, NewTextMessage("hello"))
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if eventID.String() != "$sent1" {
		t.Errorf("event ID = %q", eventID)
	}

	homeserver.mu.Lock()
	defer homeserver.mu.Unlock()
	if len(homeserver.registrations) != 1 || len(homeserver.joins) != 1 {
		t.Fatalf("registrations = %d, joins = %d, want 1 each",
			len(homeserver.registrations), len(homeserver.joins))
	}
	if homeserver.joins[0] != "@_webhook_abc:local !room:local" {
		t.Errorf("join = %q", homeserver.joins[0])
	}
	if len(homeserver.sends) != 1 || homeserver.sends[0].Body != "hello" {
		t.Errorf("sends = %+v", homeserver.sends)
	}
}

func TestEnsureJoinedInviteRetryOnForbidden(t *testing.T) {
	homeserver := newFakeHomeserver(t)
	homeserver.joinForbiddenOnce["@_webhook_abc:local"] = true
	client := newTestClient(t, homeserver)
	intent := client.UserIntent("_webhook_abc")
	roomID := mustRoomID(t, "!invite-only:local")

	if err := intent.EnsureJoined(context.Background(), roomID); err != nil {
		t.Fatalf("EnsureJoined: %v", err)
	}

	homeserver.mu.Lock()
	defer homeserver.mu.Unlock()
	if len(homeserver.invites) != 1 {
		t.Fatalf("invites = %d, want 1", len(homeserver.invites))
	}
	if homeserver.invites[0] != "@_webhook:local invites @_webhook_abc:local" {
		t.Errorf("invite = %q", homeserver.invites[0])
	}
	// Forbidden join, then successful retry.
	if len(homeserver.joins) != 1 {
		t.Errorf("successful joins = %d, want 1", len(homeserver.joins))
	}
}

func TestTransactionIDsComeFromInjectedClock(t *testing.T) {
	homeserver := newFakeHomeserver(t)
	fakeClock := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	client := newTestClient(t, homeserver, func(config *ClientConfig) {
		config.Clock = fakeClock
	})
	intent := client.UserIntent("_webhook_abc")
	roomID := mustRoomID(t, "!room:local")

	for range 2 {
		if _, err := intent.SendMessage(context.Background(), roomID, NewTextMessage("hi")); err != nil {
			t.Fatalf("SendMessage: %v", err)
		}
	}

	homeserver.mu.Lock()
	defer homeserver.mu.Unlock()
	if len(homeserver.sendTxnIDs) != 2 {
		t.Fatalf("sends = %d, want 2", len(homeserver.sendTxnIDs))
	}
	wantPrefix := fmt.Sprintf("hookbridge-%d-", fakeClock.Now().UnixMilli())
	for i, txnID := range homeserver.sendTxnIDs {
		if !strings.HasPrefix(txnID, wantPrefix) {
			t.Errorf("txn ID %d = %q, want prefix %q", i, txnID, wantPrefix)
		}
	}
	if homeserver.sendTxnIDs[0] == homeserver.sendTxnIDs[1] {
		t.Errorf("txn IDs not unique: %q", homeserver.sendTxnIDs[0])
	}
}

func TestEnsureJoinedCachesMembership(t *testing.T) {
	homeserver := newFakeHomeserver(t)
	client := newTestClient(t, homeserver)
	intent := client.UserIntent("_webhook_abc")
	roomID := mustRoomID(t, "!room:local")

	for range 3 {
		if err := intent.EnsureJoined(context.Background(), roomID); err != nil {
			t.Fatalf("EnsureJoined: %v", err)
		}
	}

	homeserver.mu.Lock()
	defer homeserver.mu.Unlock()
	if len(homeserver.joins) != 1 {
		t.Errorf("joins = %d, want 1", len(homeserver.joins))
	}
}
