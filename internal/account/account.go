// Package account ties a bot user to a linked gateway session: the session
// blob on disk and the User row in the store.
package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"relaybot/internal/gateway"
	"relaybot/internal/storage"
	logx "relaybot/pkg/logx"
)

var ErrNotLinked = errors.New("account not linked")

// Store is the slice of storage.Store the registry needs.
type Store interface {
	Exec(ctx context.Context, cmd storage.Command) error
	HasUser(ctx context.Context, userID int64) (bool, error)
}

// Sessions is the session blob file.
type Sessions interface {
	Get(userID int64) ([]byte, bool)
	Put(userID int64, session []byte) error
	Remove(userID int64) error
}

type Registry struct {
	gw       gateway.Gateway
	store    Store
	sessions Sessions
	log      logx.Logger
	now      func() time.Time
}

func NewRegistry(gw gateway.Gateway, store Store, sessions Sessions, log logx.Logger) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Registry{gw: gw, store: store, sessions: sessions, log: log, now: time.Now}
}

// Gateway exposes the underlying gateway for unauthenticated connections.
func (r *Registry) Gateway() gateway.Gateway { return r.gw }

// Linked reports whether userID has a stored session and a User row.
func (r *Registry) Linked(ctx context.Context, userID int64) (bool, error) {
	if _, ok := r.sessions.Get(userID); !ok {
		return false, nil
	}
	return r.store.HasUser(ctx, userID)
}

// Open connects with userID's stored session. The caller closes the Conn.
func (r *Registry) Open(ctx context.Context, userID int64) (gateway.Conn, error) {
	blob, ok := r.sessions.Get(userID)
	if !ok {
		return nil, ErrNotLinked
	}
	conn, err := r.gw.Connect(ctx, blob)
	if err != nil {
		return nil, fmt.Errorf("connect user %d: %w", userID, err)
	}
	return conn, nil
}

// Bind persists an authorized connection for userID. Repeating it for the
// same user keeps one User row and replaces the blob.
func (r *Registry) Bind(ctx context.Context, userID int64, conn gateway.Conn) error {
	blob, err := conn.Session(ctx)
	if err != nil {
		return fmt.Errorf("read session: %w", err)
	}
	if err := r.sessions.Put(userID, blob); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	if err := r.store.Exec(ctx, &storage.EnsureUser{UserID: userID, Now: r.now()}); err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}
	r.log.Info("account linked", logx.Int64("user", userID))
	return nil
}

// Unlink logs the gateway session out, deletes the user with their
// schedules and drops only this user's session blob. It returns the ids of
// the deleted schedules.
func (r *Registry) Unlink(ctx context.Context, userID int64) ([]int64, error) {
	if conn, err := r.Open(ctx, userID); err == nil {
		if err := conn.LogOut(ctx); err != nil {
			r.log.Warn("gateway log out failed", logx.Int64("user", userID), logx.Err(err))
		}
		_ = conn.Close()
	} else if !errors.Is(err, ErrNotLinked) {
		r.log.Warn("gateway connect for log out failed", logx.Int64("user", userID), logx.Err(err))
	}

	del := &storage.DeleteUser{UserID: userID}
	if err := r.store.Exec(ctx, del); err != nil {
		return nil, fmt.Errorf("delete user: %w", err)
	}
	if err := r.sessions.Remove(userID); err != nil {
		return del.Deleted, fmt.Errorf("remove session: %w", err)
	}
	r.log.Info("account unlinked", logx.Int64("user", userID), logx.Int("schedules", len(del.Deleted)))
	return del.Deleted, nil
}
