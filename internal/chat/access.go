package chat

import (
	"context"
	"errors"

	"chatengine/server/internal/apperr"
	"chatengine/server/internal/models"
	"chatengine/server/internal/store"
)

// EnsureMembership returns the live thread and the caller's participant row.
// A missing thread, a thread of another tenant and a thread the caller is not
// part of all fail the same way.
func (e *Engine) EnsureMembership(ctx context.Context, actor Actor, threadID int64) (*models.Thread, *models.Participant, error) {
	return ensureMembership(ctx, e.store, actor, threadID)
}

func ensureMembership(ctx context.Context, st store.Store, actor Actor, threadID int64) (*models.Thread, *models.Participant, error) {
	thread, err := st.FindThread(ctx, actor.TenantID, threadID)
	if err != nil {
		return nil, nil, notFound(err, "thread %d not found", threadID)
	}

	participant, err := st.FindParticipant(ctx, threadID, actor.UserID)
	if err != nil {
		return nil, nil, notFound(err, "thread %d not found", threadID)
	}

	return thread, participant, nil
}

// CanJoinThread guards subscriptions to a thread's real-time channel
func (e *Engine) CanJoinThread(ctx context.Context, tenantID, userID, threadID int64) bool {
	_, _, err := e.EnsureMembership(ctx, Actor{TenantID: tenantID, UserID: userID}, threadID)
	return err == nil
}

// notFound turns a store miss into the client-facing kind and lets
// everything else through untouched
func notFound(err error, format string, args ...any) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound(format, args...)
	}
	return err
}
