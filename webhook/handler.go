// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package webhook

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/bureau-foundation/hookbridge/hookstore"
	"github.com/bureau-foundation/hookbridge/lib/httpx"
	"github.com/bureau-foundation/hookbridge/lib/ref"
	"github.com/bureau-foundation/hookbridge/messaging"
)

// Payload is the JSON body external services POST to a webhook URL.
type Payload struct {
	// Text is the message to relay. Required.
	Text string `json:"text"`

	// Format is one of "plain", "html", or "markdown". Empty means
	// plain.
	Format string `json:"format,omitempty"`

	// DisplayName, when set, updates the virtual user's profile name
	// before the message is sent.
	DisplayName string `json:"displayName,omitempty"`

	// AvatarURL, when set, updates the virtual user's avatar. Must be
	// an mxc:// URI already uploaded to the homeserver.
	AvatarURL string `json:"avatar_url,omitempty"`

	// Emoji controls :shortcode: substitution. Defaults to true.
	Emoji *bool `json:"emoji,omitempty"`
}

// Handler serves POST /api/v1/webhook/{hookID}. Each request looks up
// the live hook, refreshes the virtual user's profile if the payload
// asks, formats the text, and relays it into the hook's room.
type Handler struct {
	store     *hookstore.Store
	client    *messaging.Client
	formatter *Formatter
	metrics   *Metrics
	logger    *slog.Logger
}

// HandlerConfig holds the dependencies of the ingest handler. All
// fields except Formatter are required; a nil Formatter means the
// built-in emoji table.
type HandlerConfig struct {
	Store     *hookstore.Store
	Client    *messaging.Client
	Formatter *Formatter
	Metrics   *Metrics
	Logger    *slog.Logger
}

// NewHandler creates the ingest handler. Panics on missing required
// dependencies.
func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Store == nil {
		panic("webhook.Handler: Store is required")
	}
	if cfg.Client == nil {
		panic("webhook.Handler: Client is required")
	}
	if cfg.Metrics == nil {
		panic("webhook.Handler: Metrics is required")
	}
	if cfg.Logger == nil {
		panic("webhook.Handler: Logger is required")
	}
	formatter := cfg.Formatter
	if formatter == nil {
		formatter = NewFormatter()
	}
	return &Handler{
		store:     cfg.Store,
		client:    cfg.Client,
		formatter: formatter,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
	}
}

// Routes returns the mux for the ingest listener: the webhook endpoint
// plus /metrics.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /api/v1/webhook/{hookID}", h)
	mux.Handle("GET /metrics", h.metrics.Handler())
	return mux
}

// VirtualUserLocalpart returns the localpart of the virtual user that
// speaks for a hook. All such users live in the appservice's exclusive
// @_webhook_.* namespace.
func VirtualUserLocalpart(hookID ref.HookID) string {
	return "_webhook_" + hookID.String()
}

func (h *Handler) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	h.metrics.Received.Inc()

	hookID, err := ref.ParseHookID(request.PathValue("hookID"))
	if err != nil {
		h.reject(writer, http.StatusNotFound, "unknown_hook", "webhook not found")
		return
	}

	body, err := httpx.ReadBody(request.Body)
	if err != nil {
		h.logger.Error("webhook: reading request body", "error", err)
		h.reject(writer, http.StatusInternalServerError, "internal", "failed to read body")
		return
	}

	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		h.reject(writer, http.StatusBadRequest, "bad_request", "malformed JSON payload")
		return
	}
	if payload.Text == "" {
		h.reject(writer, http.StatusBadRequest, "bad_request", "text is required")
		return
	}

	ctx := request.Context()

	webhook, err := h.store.GetWebhook(ctx, hookID)
	if err != nil {
		if errors.Is(err, hookstore.ErrNotFound) {
			// Revoked and never-existed hooks are indistinguishable
			// to the caller.
			h.reject(writer, http.StatusNotFound, "unknown_hook", "webhook not found")
			return
		}
		h.logger.Error("webhook: store lookup failed", "hook_id", hookID, "error", err)
		h.reject(writer, http.StatusInternalServerError, "internal", "lookup failed")
		return
	}

	intent := h.client.UserIntent(VirtualUserLocalpart(webhook.ID))

	// Profile updates are best-effort: a failed rename must not drop
	// the message.
	if payload.DisplayName != "" {
		if err := intent.SetDisplayName(ctx, payload.DisplayName); err != nil {
			h.logger.Warn("webhook: display name update failed",
				"hook_id", webhook.ID, "error", err)
		}
	}
	if payload.AvatarURL != "" {
		if err := intent.SetAvatarURL(ctx, payload.AvatarURL); err != nil {
			h.logger.Warn("webhook: avatar update failed",
				"hook_id", webhook.ID, "error", err)
		}
	}

	emoji := payload.Emoji == nil || *payload.Emoji
	content, err := h.formatter.Format(payload.Text, payload.Format, emoji)
	if err != nil {
		h.reject(writer, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	eventID, err := intent.SendMessage(ctx, webhook.RoomID, content)
	if err != nil {
		h.logger.Error("webhook: relay failed",
			"hook_id", webhook.ID,
			"room_id", webhook.RoomID,
			"error", err,
		)
		h.metrics.Rejected.WithLabelValues("relay_failed").Inc()
		writeJSON(writer, http.StatusBadGateway, map[string]any{
			"success": false,
			"error":   "failed to relay message",
		})
		return
	}

	h.metrics.Relayed.Inc()
	h.logger.Info("webhook relayed",
		"hook_id", webhook.ID,
		"room_id", webhook.RoomID,
		"event_id", eventID,
		"format", payload.Format,
	)
	writeJSON(writer, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) reject(writer http.ResponseWriter, status int, reason, message string) {
	h.metrics.Rejected.WithLabelValues(reason).Inc()
	writeJSON(writer, status, map[string]any{
		"success": false,
		"error":   message,
	})
}

func writeJSON(writer http.ResponseWriter, status int, value any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	json.NewEncoder(writer).Encode(value)
}
