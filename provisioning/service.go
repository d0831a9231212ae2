// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package provisioning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/bureau-foundation/hookbridge/hookstore"
	"github.com/bureau-foundation/hookbridge/lib/ref"
	"github.com/bureau-foundation/hookbridge/messaging"
)

// ErrPermissionDenied is the one rejection callers see for any failed
// authorization. The internal cause (no room-state handle, no power
// levels, missing state_default, insufficient level) is deliberately
// not distinguishable from this error — it appears in the slog trace
// instead.
var ErrPermissionDenied = errors.New("you do not have permission to manage webhooks in this room")

// Internal authorization failures. All collapse to ErrPermissionDenied
// at the operation boundary.
var (
	errNoIntent       = errors.New("provisioning: no room-state handle bound")
	errNoPowerLevels  = errors.New("provisioning: room has no power-level state")
	errNoStateDefault = errors.New("provisioning: power levels lack state_default")
	errLevelTooLow    = errors.New("provisioning: effective level below state_default")
)

// RoomStateReader reads a room's current power-level state. Satisfied
// by *messaging.Intent.
type RoomStateReader interface {
	PowerLevels(ctx context.Context, roomID ref.RoomID) (*messaging.PowerLevelsContent, error)
}

// Store is the persistence the service delegates to after a successful
// authorization. Satisfied by *hookstore.Store.
type Store interface {
	CreateWebhook(ctx context.Context, roomID ref.RoomID, userID ref.UserID, label string) (*hookstore.Webhook, error)
	ListWebhooks(ctx context.Context, roomID ref.RoomID) ([]hookstore.Webhook, error)
	DeleteWebhook(ctx context.Context, roomID ref.RoomID, hookID ref.HookID) error
}

// Config holds the dependencies of the provisioning service. All
// fields are required.
type Config struct {
	// Intent reads room state on behalf of the bridge. Typically the
	// bridge bot's Intent.
	Intent RoomStateReader

	// Store persists webhook records.
	Store Store

	// Logger receives the authorization decision trace.
	Logger *slog.Logger
}

// Service gates webhook lifecycle operations behind room power levels.
// Safe for concurrent use. The room-state handle can be rebound at
// runtime via SetIntent; everything else is immutable after New.
type Service struct {
	intent atomic.Pointer[RoomStateReader]
	store  Store
	logger *slog.Logger
}

// New constructs the service. Construction fails if any dependency is
// absent — a service without a room-state handle or store could never
// authorize or act, so the gap surfaces at startup rather than on the
// first request.
func New(cfg Config) (*Service, error) {
	if cfg.Intent == nil {
		return nil, fmt.Errorf("provisioning: Intent is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("provisioning: Store is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("provisioning: Logger is required")
	}
	service := &Service{
		store:  cfg.Store,
		logger: cfg.Logger,
	}
	service.intent.Store(&cfg.Intent)
	return service, nil
}

// SetIntent rebinds the room-state handle. Last write wins; in-flight
// authorization checks keep the handle they already loaded. Binding
// nil is rejected — the service never runs unbound.
func (s *Service) SetIntent(intent RoomStateReader) error {
	if intent == nil {
		return fmt.Errorf("provisioning: cannot bind nil intent")
	}
	s.intent.Store(&intent)
	return nil
}

// CreateWebhook mints a new webhook for the room, attributed to the
// requesting user, after verifying the user may manage the room's
// webhooks.
func (s *Service) CreateWebhook(ctx context.Context, roomID ref.RoomID, userID ref.UserID, label string) (*hookstore.Webhook, error) {
	if err := s.canManageWebhooks(ctx, userID, roomID); err != nil {
		return nil, collapseDenial(err)
	}
	return s.store.CreateWebhook(ctx, roomID, userID, label)
}

// ListWebhooks returns the room's current webhooks. The list is read
// from the store on every call; nothing is cached here.
func (s *Service) ListWebhooks(ctx context.Context, roomID ref.RoomID, userID ref.UserID) ([]hookstore.Webhook, error) {
	if err := s.canManageWebhooks(ctx, userID, roomID); err != nil {
		return nil, collapseDenial(err)
	}
	return s.store.ListWebhooks(ctx, roomID)
}

// DeleteWebhook removes the identified webhook from the room. The
// store's own not-found semantics surface unmodified; this layer does
// not special-case a missing hook.
func (s *Service) DeleteWebhook(ctx context.Context, roomID ref.RoomID, userID ref.UserID, hookID ref.HookID) error {
	if err := s.canManageWebhooks(ctx, userID, roomID); err != nil {
		return collapseDenial(err)
	}
	return s.store.DeleteWebhook(ctx, roomID, hookID)
}

// canManageWebhooks is the single authorization authority: all three
// operations route through it unconditionally. A user may manage a
// room's webhooks iff their effective power level meets the room's
// state_default — webhook management is a state-modifying room action.
//
// The power-level state is read fresh on every call. There is no
// atomicity between this check and the store action that follows: the
// room's levels can change in that window, and the design accepts the
// gap rather than imposing a lock the underlying protocol cannot
// honor anyway.
func (s *Service) canManageWebhooks(ctx context.Context, userID ref.UserID, roomID ref.RoomID) error {
	intentPtr := s.intent.Load()
	if intentPtr == nil {
		return errNoIntent
	}

	levels, err := (*intentPtr).PowerLevels(ctx, roomID)
	if err != nil {
		return fmt.Errorf("provisioning: reading power levels for %q: %w", roomID, err)
	}
	if levels == nil {
		s.logger.Debug("authorization denied: room has no power levels",
			"room_id", roomID, "user_id", userID)
		return errNoPowerLevels
	}
	if levels.StateDefault == nil {
		// A room with power levels but no state_default is
		// misconfigured, not open: the check cannot be completed.
		s.logger.Debug("authorization denied: power levels lack state_default",
			"room_id", roomID, "user_id", userID)
		return errNoStateDefault
	}

	effective := levels.EffectiveLevel(userID)
	required := *levels.StateDefault
	allowed := effective >= required

	s.logger.Debug("webhook management authorization",
		"room_id", roomID,
		"user_id", userID,
		"effective_level", effective,
		"required_level", required,
		"allowed", allowed,
	)

	if !allowed {
		return errLevelTooLow
	}
	return nil
}

// collapseDenial maps the evaluator's internal failures to the single
// exported denial. Errors that are not authorization outcomes — a
// failed room-state read — propagate as they are.
func collapseDenial(err error) error {
	switch {
	case errors.Is(err, errNoIntent),
		errors.Is(err, errNoPowerLevels),
		errors.Is(err, errNoStateDefault),
		errors.Is(err, errLevelTooLow):
		return ErrPermissionDenied
	default:
		return err
	}
}
