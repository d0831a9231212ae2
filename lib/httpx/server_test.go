// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package httpx

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/hookbridge/lib/testutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestServerServesAndShutsDown(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "ok")
	})

	server := NewServer(ServerConfig{
		Address: "127.0.0.1:0",
		Handler: handler,
		Logger:  discardLogger(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	serveDone := make(chan error, 1)
	go func() {
		serveDone <- server.Serve(ctx)
	}()

	testutil.RequireClosed(t, server.Ready(), 5*time.Second, "server ready")

	response, err := http.Get("http://" + server.Addr().String() + "/")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	body, _ := io.ReadAll(response.Body)
	response.Body.Close()
	if response.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", response.StatusCode)
	}
	if string(body) != "ok" {
		t.Errorf("body = %q, want %q", body, "ok")
	}

	cancel()
	if err := testutil.RequireReceive(t, serveDone, 5*time.Second, "serve exit"); err != nil {
		t.Errorf("Serve returned error: %v", err)
	}
}

func TestServerBindFailure(t *testing.T) {
	server := NewServer(ServerConfig{
		Address: "256.256.256.256:1",
		Handler: http.NotFoundHandler(),
		Logger:  discardLogger(),
	})
	if err := server.Serve(context.Background()); err == nil {
		t.Fatal("Serve succeeded on unbindable address")
	}
}

func TestNewServerPanicsOnMissingConfig(t *testing.T) {
	cases := []struct {
		name   string
		config ServerConfig
	}{
		{"no address", ServerConfig{Handler: http.NotFoundHandler(), Logger: discardLogger()}},
		{"no handler", ServerConfig{Address: ":0", Logger: discardLogger()}},
		{"no logger", ServerConfig{Address: ":0", Handler: http.NotFoundHandler()}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("NewServer did not panic")
				}
			}()
			NewServer(tc.config)
		})
	}
}

func TestReadBodyBounded(t *testing.T) {
	oversized := strings.NewReader(strings.Repeat("x", int(MaxBodySize)+100))
	body, err := ReadBody(oversized)
	if err != nil {
		t.Fatalf("ReadBody: %v", err)
	}
	if int64(len(body)) != MaxBodySize {
		t.Errorf("len = %d, want %d", len(body), MaxBodySize)
	}
}
