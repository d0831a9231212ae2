// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hookstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/hookbridge/lib/clock"
	"github.com/bureau-foundation/hookbridge/lib/ref"
)

// ErrNotFound is returned when no live webhook matches the lookup.
// Revoked hooks are indistinguishable from hooks that never existed.
var ErrNotFound = errors.New("hookstore: webhook not found")

// Webhook is one provisioned webhook. CreatedAt has millisecond
// precision (the storage granularity).
type Webhook struct {
	ID        ref.HookID
	RoomID    ref.RoomID
	UserID    ref.UserID
	Label     string
	CreatedAt time.Time
}

// Config holds the parameters for opening a webhook store.
type Config struct {
	// Path is the filesystem path to the SQLite database file. The
	// parent directory must exist. The file is created if it does not
	// exist. Use ":memory:" for tests (pool size must be 1).
	Path string

	// PoolSize is the number of connections in the pool. Defaults to 4
	// if zero or negative.
	PoolSize int

	// Clock provides creation and revocation timestamps.
	Clock clock.Clock

	// Logger receives operational messages.
	Logger *slog.Logger
}

// Store is a SQLite-backed webhook store. Safe for concurrent use.
type Store struct {
	pool   *sqlitex.Pool
	clock  clock.Clock
	logger *slog.Logger
	path   string
}

const schema = `
CREATE TABLE IF NOT EXISTS webhooks (
    hook_id    TEXT PRIMARY KEY,
    room_id    TEXT NOT NULL,
    user_id    TEXT NOT NULL,
    label      TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    revoked_at INTEGER
);
CREATE INDEX IF NOT EXISTS webhooks_by_room
    ON webhooks(room_id, created_at) WHERE revoked_at IS NULL;
`

// Open creates the store, applying standard pragmas and the schema to
// every connection. The caller must call Close when done.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("hookstore: Path is required")
	}
	if cfg.Clock == nil {
		return nil, fmt.Errorf("hookstore: Clock is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 4
	}

	pool, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepareConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("hookstore: opening %s: %w", cfg.Path, err)
	}

	logger.Info("webhook store opened", "path", cfg.Path, "pool_size", poolSize)

	return &Store{
		pool:   pool,
		clock:  cfg.Clock,
		logger: logger,
		path:   cfg.Path,
	}, nil
}

// prepareConnection applies standard pragmas and the schema. Runs once
// per connection in the pool, on first use.
func prepareConnection(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("hookstore: %s: %w", pragma, err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("hookstore: applying schema: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool. Blocks until all
// borrowed connections are returned.
func (s *Store) Close() error {
	if err := s.pool.Close(); err != nil {
		return fmt.Errorf("hookstore: closing %s: %w", s.path, err)
	}
	return nil
}

// CreateWebhook mints a fresh hook ID and inserts a live record. The
// ULID is seeded from the store's clock, so IDs sort by creation time.
func (s *Store) CreateWebhook(ctx context.Context, roomID ref.RoomID, userID ref.UserID, label string) (*Webhook, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("hookstore: create webhook: %w", err)
	}
	defer s.pool.Put(conn)

	now := s.clock.Now()
	webhook := &Webhook{
		ID:        ref.NewHookID(now),
		RoomID:    roomID,
		UserID:    userID,
		Label:     label,
		CreatedAt: now.Truncate(time.Millisecond),
	}

	err = sqlitex.Execute(conn,
		`INSERT INTO webhooks (hook_id, room_id, user_id, label, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				webhook.ID.String(),
				roomID.String(),
				userID.String(),
				label,
				now.UnixMilli(),
			},
		})
	if err != nil {
		return nil, fmt.Errorf("hookstore: inserting webhook: %w", err)
	}

	s.logger.Info("webhook created",
		"hook_id", webhook.ID,
		"room_id", roomID,
		"user_id", userID,
	)
	return webhook, nil
}

// ListWebhooks returns the live webhooks for a room in creation order.
// A room with no webhooks yields an empty slice, not an error.
func (s *Store) ListWebhooks(ctx context.Context, roomID ref.RoomID) ([]Webhook, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("hookstore: list webhooks: %w", err)
	}
	defer s.pool.Put(conn)

	var webhooks []Webhook
	var scanErr error
	err = sqlitex.Execute(conn,
		`SELECT hook_id, room_id, user_id, label, created_at
		 FROM webhooks
		 WHERE room_id = ? AND revoked_at IS NULL
		 ORDER BY created_at, hook_id`,
		&sqlitex.ExecOptions{
			Args: []any{roomID.String()},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				webhook, err := scanWebhook(stmt)
				if err != nil {
					scanErr = err
					return err
				}
				webhooks = append(webhooks, webhook)
				return nil
			},
		})
	if scanErr != nil {
		return nil, scanErr
	}
	if err != nil {
		return nil, fmt.Errorf("hookstore: listing webhooks for %q: %w", roomID, err)
	}
	return webhooks, nil
}

// GetWebhook looks up a live webhook by ID, for inbound dispatch.
// Revoked and unknown hooks both yield ErrNotFound.
func (s *Store) GetWebhook(ctx context.Context, hookID ref.HookID) (*Webhook, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("hookstore: get webhook: %w", err)
	}
	defer s.pool.Put(conn)

	var found *Webhook
	var scanErr error
	err = sqlitex.Execute(conn,
		`SELECT hook_id, room_id, user_id, label, created_at
		 FROM webhooks
		 WHERE hook_id = ? AND revoked_at IS NULL`,
		&sqlitex.ExecOptions{
			Args: []any{hookID.String()},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				webhook, err := scanWebhook(stmt)
				if err != nil {
					scanErr = err
					return err
				}
				found = &webhook
				return nil
			},
		})
	if scanErr != nil {
		return nil, scanErr
	}
	if err != nil {
		return nil, fmt.Errorf("hookstore: looking up webhook %q: %w", hookID, err)
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

// DeleteWebhook tombstones a live webhook in a room. The row and its
// primary key are retained, so the ID can never be reused. Returns
// ErrNotFound when no live row matches — deleting twice is not
// idempotent from the caller's view, but the second call cannot revive
// or re-tombstone anything.
func (s *Store) DeleteWebhook(ctx context.Context, roomID ref.RoomID, hookID ref.HookID) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("hookstore: delete webhook: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`UPDATE webhooks SET revoked_at = ?
		 WHERE hook_id = ? AND room_id = ? AND revoked_at IS NULL`,
		&sqlitex.ExecOptions{
			Args: []any{s.clock.Now().UnixMilli(), hookID.String(), roomID.String()},
		})
	if err != nil {
		return fmt.Errorf("hookstore: revoking webhook %q: %w", hookID, err)
	}
	if conn.Changes() == 0 {
		return ErrNotFound
	}

	s.logger.Info("webhook revoked", "hook_id", hookID, "room_id", roomID)
	return nil
}

// scanWebhook decodes one result row. Stored identifiers were written
// by this store, so parse failures indicate database corruption.
func scanWebhook(stmt *sqlite.Stmt) (Webhook, error) {
	hookID, err := ref.ParseHookID(stmt.ColumnText(0))
	if err != nil {
		return Webhook{}, fmt.Errorf("hookstore: corrupt hook_id: %w", err)
	}
	roomID, err := ref.ParseRoomID(stmt.ColumnText(1))
	if err != nil {
		return Webhook{}, fmt.Errorf("hookstore: corrupt room_id: %w", err)
	}
	userID, err := ref.ParseUserID(stmt.ColumnText(2))
	if err != nil {
		return Webhook{}, fmt.Errorf("hookstore: corrupt user_id: %w", err)
	}
	return Webhook{
		ID:        hookID,
		RoomID:    roomID,
		UserID:    userID,
		Label:     stmt.ColumnText(3),
		CreatedAt: time.UnixMilli(stmt.ColumnInt64(4)),
	}, nil
}
