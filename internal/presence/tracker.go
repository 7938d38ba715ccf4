// Package presence tracks which users have live gateway sessions and keeps
// their durable presence status in step.
package presence

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"chatengine/server/internal/apperr"
	"chatengine/server/internal/models"
	"chatengine/server/internal/store"
	"chatengine/server/internal/websocket"
)

// Store is the slice of the message store presence writes to
type Store interface {
	SetPresence(ctx context.Context, tenantID, userID int64, status models.PresenceStatus, at time.Time) (*models.ChatUser, error)
	ResetPresence(ctx context.Context, at time.Time) (int64, error)
}

// Broadcaster reaches every session of a tenant
type Broadcaster interface {
	ToTenant(tenantID int64, ev websocket.Event)
}

type Tracker struct {
	store       Store
	registry    SessionRegistry
	broadcaster Broadcaster
	now         func() time.Time
}

func NewTracker(st Store, registry SessionRegistry, broadcaster Broadcaster) *Tracker {
	return &Tracker{store: st, registry: registry, broadcaster: broadcaster, now: time.Now}
}

// Recover forgets every registered session and forces every user INACTIVE.
// Sessions of a previous process are gone, so anything left behind is stale.
// With several gateways sharing one database only a cold start of the whole
// cluster may do this.
func (t *Tracker) Recover(ctx context.Context) error {
	if err := t.registry.Reset(ctx); err != nil {
		return err
	}
	n, err := t.store.ResetPresence(ctx, t.clock())
	if err != nil {
		return err
	}
	log.Info().Int64("users", n).Msg("Presence reset to INACTIVE")
	return nil
}

// SessionOpened marks the user ACTIVE when this is their first live session
func (t *Tracker) SessionOpened(ctx context.Context, sessionID string, tenantID, userID int64) error {
	count, err := t.registry.RegisterSession(ctx, Session{
		ID:          sessionID,
		TenantID:    tenantID,
		UserID:      userID,
		ConnectedAt: t.clock(),
	})
	if err != nil {
		return err
	}
	if count > 1 {
		return nil
	}
	_, err = t.set(ctx, tenantID, userID, models.PresenceActive)
	return err
}

// SessionClosed marks the user INACTIVE once their last session is gone
func (t *Tracker) SessionClosed(ctx context.Context, sessionID string) error {
	s, remaining, err := t.registry.RemoveSession(ctx, sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if remaining > 0 {
		return nil
	}
	_, err = t.set(ctx, s.TenantID, s.UserID, models.PresenceInactive)
	return err
}

// Update sets a status explicitly, regardless of connections
func (t *Tracker) Update(ctx context.Context, tenantID, userID int64, status models.PresenceStatus) (*models.ChatUser, error) {
	if !status.Valid() {
		return nil, apperr.BadRequest("invalid presence status %q", status)
	}
	return t.set(ctx, tenantID, userID, status)
}

func (t *Tracker) set(ctx context.Context, tenantID, userID int64, status models.PresenceStatus) (*models.ChatUser, error) {
	user, err := t.store.SetPresence(ctx, tenantID, userID, status, t.clock())
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("user %d not found", userID)
	}
	if err != nil {
		return nil, err
	}

	t.broadcaster.ToTenant(tenantID, websocket.PresenceEvent{
		UserID:     user.ID,
		Status:     user.PresenceStatus,
		LastSeenAt: user.LastSeenAt,
	})
	log.Debug().Int64("userId", userID).Str("status", string(status)).Msg("Presence changed")
	return user, nil
}

func (t *Tracker) clock() time.Time {
	return t.now().UTC().Truncate(time.Microsecond)
}
