// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package appservice

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bureau-foundation/hookbridge/lib/clock"
	"github.com/bureau-foundation/hookbridge/lib/httpx"
	"github.com/bureau-foundation/hookbridge/messaging"
	"github.com/bureau-foundation/hookbridge/provisioning"
)

// transactionWindow is how long processed transaction IDs are kept
// for replay protection. Homeservers retry failed transactions within
// minutes; an hour is conservative.
const transactionWindow = 1 * time.Hour

// Server handles the homeserver's side of the appservice API: the
// transaction push endpoint. Events in transactions feed the !webhook
// command layer.
type Server struct {
	hsToken      []byte
	client       *messaging.Client
	provisioning *provisioning.Service
	publicURL    string
	clock        clock.Clock
	logger       *slog.Logger

	// transactions tracks recently processed transaction IDs. The
	// homeserver retries a transaction until it gets a 200, so a
	// retried ID must be acknowledged without reprocessing its events.
	mu           sync.Mutex
	transactions map[string]time.Time
}

// ServerConfig holds the dependencies of the appservice server. All
// fields are required.
type ServerConfig struct {
	// HSToken is the token the homeserver presents on every request.
	HSToken string

	// Client sends replies as the bridge bot.
	Client *messaging.Client

	// Provisioning executes the webhook lifecycle commands.
	Provisioning *provisioning.Service

	// PublicURL is the externally reachable base URL of the ingest
	// listener, used in webhook-created replies. No trailing slash.
	PublicURL string

	Clock  clock.Clock
	Logger *slog.Logger
}

// NewServer creates the appservice server. Panics on missing
// dependencies.
func NewServer(cfg ServerConfig) *Server {
	if cfg.HSToken == "" {
		panic("appservice.Server: HSToken is required")
	}
	if cfg.Client == nil {
		panic("appservice.Server: Client is required")
	}
	if cfg.Provisioning == nil {
		panic("appservice.Server: Provisioning is required")
	}
	if cfg.PublicURL == "" {
		panic("appservice.Server: PublicURL is required")
	}
	if cfg.Clock == nil {
		panic("appservice.Server: Clock is required")
	}
	if cfg.Logger == nil {
		panic("appservice.Server: Logger is required")
	}
	return &Server{
		hsToken:      []byte(cfg.HSToken),
		client:       cfg.Client,
		provisioning: cfg.Provisioning,
		publicURL:    strings.TrimRight(cfg.PublicURL, "/"),
		clock:        cfg.Clock,
		logger:       cfg.Logger,
		transactions: make(map[string]time.Time),
	}
}

// Routes returns the mux for the appservice listener. Both the v1
// prefix and the legacy unprefixed path are served; older homeservers
// still push to the latter.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /_matrix/app/v1/transactions/{txnID}", s.handleTransaction)
	mux.HandleFunc("PUT /transactions/{txnID}", s.handleTransaction)
	return mux
}

// transactionBody is the payload of a transaction push.
type transactionBody struct {
	Events []messaging.Event `json:"events"`
}

func (s *Server) handleTransaction(writer http.ResponseWriter, request *http.Request) {
	if !s.authorized(request) {
		writeError(writer, http.StatusForbidden, "M_FORBIDDEN", "bad token")
		return
	}

	txnID := request.PathValue("txnID")

	body, err := httpx.ReadBody(request.Body)
	if err != nil {
		s.logger.Error("reading transaction body", "txn_id", txnID, "error", err)
		writeError(writer, http.StatusInternalServerError, "M_UNKNOWN", "read failed")
		return
	}

	var transaction transactionBody
	if err := json.Unmarshal(body, &transaction); err != nil {
		writeError(writer, http.StatusBadRequest, "M_BAD_JSON", "malformed transaction")
		return
	}

	// Record the ID only once the transaction is readable: a failed
	// read or parse must leave the homeserver's retry eligible for
	// processing, not acknowledged as a duplicate.
	if s.isDuplicate(txnID) {
		s.logger.Debug("duplicate transaction acknowledged", "txn_id", txnID)
		writeEmpty(writer)
		return
	}

	for i := range transaction.Events {
		s.dispatchEvent(request.Context(), &transaction.Events[i])
	}

	writeEmpty(writer)
}

// dispatchEvent routes one event from a transaction. Only room
// messages matter to the bridge; everything else is acknowledged and
// dropped.
func (s *Server) dispatchEvent(ctx context.Context, event *messaging.Event) {
	if event.Type != "m.room.message" || event.RoomID.IsZero() || event.Sender.IsZero() {
		return
	}
	// The bridge's own users (bot and virtual senders) never issue
	// commands; skipping them also breaks any echo loop.
	if event.Sender == s.client.BotUserID() ||
		strings.HasPrefix(event.Sender.Localpart(), "_webhook_") {
		return
	}

	reply := s.handleCommand(ctx, event)
	if reply == "" {
		return
	}
	if _, err := s.client.BotIntent().SendMessage(ctx, event.RoomID, messaging.NewNotice(reply)); err != nil {
		s.logger.Error("sending command reply",
			"room_id", event.RoomID,
			"error", err,
		)
	}
}

// authorized checks the homeserver's hs_token, accepted as a bearer
// header or the legacy access_token query parameter.
func (s *Server) authorized(request *http.Request) bool {
	token := strings.TrimPrefix(request.Header.Get("Authorization"), "Bearer ")
	if token == "" || token == request.Header.Get("Authorization") {
		token = request.URL.Query().Get("access_token")
	}
	return subtle.ConstantTimeCompare([]byte(token), s.hsToken) == 1
}

// isDuplicate checks and records a transaction ID, pruning entries
// older than the replay window. The map holds one entry per
// transaction over the last hour, so the sweep is cheap.
func (s *Server) isDuplicate(txnID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	for id, seenAt := range s.transactions {
		if now.Sub(seenAt) > transactionWindow {
			delete(s.transactions, id)
		}
	}

	if _, seen := s.transactions[txnID]; seen {
		return true
	}
	s.transactions[txnID] = now
	return false
}

func writeEmpty(writer http.ResponseWriter) {
	writer.Header().Set("Content-Type", "application/json")
	writer.Write([]byte("{}"))
}

func writeError(writer http.ResponseWriter, status int, code, message string) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	json.NewEncoder(writer).Encode(map[string]string{
		"errcode": code,
		"error":   message,
	})
}
