// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bureau-foundation/hookbridge/lib/ref"
)

const testASToken = "as-token-for-tests"

// newTestClient creates a Client pointing at a test homeserver. The
// optional configure funcs adjust the config before construction.
func newTestClient(t *testing.T, handler http.Handler, configure ...func(*ClientConfig)) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	serverName, err := ref.ParseServerName("local")
	if err != nil {
		t.Fatalf("ParseServerName: %v", err)
	}
	config := ClientConfig{
		HomeserverURL: server.URL,
		ServerName:    serverName,
		ASToken:       testASToken,
		BotLocalpart:  "_webhook",
	}
	for _, fn := range configure {
		fn(&config)
	}
	client, err := NewClient(config)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client
}

func writeJSON(t *testing.T, writer http.ResponseWriter, value any) {
	t.Helper()
	writer.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(writer).Encode(value); err != nil {
		t.Fatalf("encoding response: %v", err)
	}
}

func writeMatrixError(writer http.ResponseWriter, status int, code, message string) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	json.NewEncoder(writer).Encode(map[string]string{"errcode": code, "error": message})
}

func assertAuth(t *testing.T, request *http.Request) {
	t.Helper()
	if got := request.Header.Get("Authorization"); got != "Bearer "+testASToken {
		t.Errorf("Authorization = %q, want bearer as_token", got)
	}
}

func mustUserID(t *testing.T, raw string) ref.UserID {
	t.Helper()
	userID, err := ref.ParseUserID(raw)
	if err != nil {
		t.Fatalf("ParseUserID(%q): %v", raw, err)
	}
	return userID
}

func mustRoomID(t *testing.T, raw string) ref.RoomID {
	t.Helper()
	roomID, err := ref.ParseRoomID(raw)
	if err != nil {
		t.Fatalf("ParseRoomID(%q): %v", raw, err)
	}
	return roomID
}

func TestNewClientValidation(t *testing.T) {
	serverName, _ := ref.ParseServerName("local")

	cases := []struct {
		name   string
		config ClientConfig
	}{
		{"missing url", ClientConfig{ServerName: serverName, ASToken: "t", BotLocalpart: "b"}},
		{"missing server name", ClientConfig{HomeserverURL: "http://hs", ASToken: "t", BotLocalpart: "b"}},
		{"missing token", ClientConfig{HomeserverURL: "http://hs", ServerName: serverName, BotLocalpart: "b"}},
		{"missing bot localpart", ClientConfig{HomeserverURL: "http://hs", ServerName: serverName, ASToken: "t"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewClient(tc.config); err == nil {
				t.Error("NewClient succeeded, want error")
			}
		})
	}
}

func TestWhoAmI(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		assertAuth(t, request)
		if request.URL.Path != "/_matrix/client/v3/account/whoami" {
			t.Errorf("unexpected path: %s", request.URL.Path)
		}
		writeJSON(t, writer, map[string]string{"user_id": "@_webhook:local"})
	}))

	userID, err := client.WhoAmI(context.Background())
	if err != nil {
		t.Fatalf("WhoAmI failed: %v", err)
	}
	if userID.String() != "@_webhook:local" {
		t.Errorf("unexpected user ID: %s", userID)
	}
}

func TestMatrixErrorDecoding(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writeMatrixError(writer, http.StatusForbidden, "M_FORBIDDEN", "no")
	}))

	_, err := client.WhoAmI(context.Background())
	if err == nil {
		t.Fatal("WhoAmI succeeded, want error")
	}
	if !IsMatrixError(err, ErrCodeForbidden) {
		t.Errorf("error = %v, want M_FORBIDDEN MatrixError", err)
	}
}

func TestBotUserID(t *testing.T) {
	client := newTestClient(t, http.NotFoundHandler())
	if got := client.BotUserID().String(); got != "@_webhook:local" {
		t.Errorf("BotUserID = %q", got)
	}
}
