package presence

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatengine/server/internal/apperr"
	"chatengine/server/internal/models"
	"chatengine/server/internal/store"
	"chatengine/server/internal/websocket"
)

type tenantEvent struct {
	tenantID int64
	event    websocket.PresenceEvent
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []tenantEvent
}

func (b *recordingBroadcaster) ToTenant(tenantID int64, ev websocket.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, tenantEvent{tenantID, ev.(websocket.PresenceEvent)})
}

func (b *recordingBroadcaster) statuses() []models.PresenceStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.PresenceStatus, 0, len(b.events))
	for _, e := range b.events {
		out = append(out, e.event.Status)
	}
	return out
}

func newTracker(t *testing.T) (*Tracker, *store.Memory, *recordingBroadcaster) {
	t.Helper()
	st := store.NewMemory()
	st.PutUser(models.ChatUser{ID: 1, TenantID: 10, Username: "alice"})
	st.PutUser(models.ChatUser{ID: 2, TenantID: 10, Username: "bob", PresenceStatus: models.PresenceActive})
	b := &recordingBroadcaster{}
	return NewTracker(st, NewMemoryRegistry(), b), st, b
}

func status(t *testing.T, st *store.Memory, userID int64) models.PresenceStatus {
	t.Helper()
	users, err := st.FindUsers(context.Background(), 10, []int64{userID})
	require.NoError(t, err)
	return users[userID].PresenceStatus
}

func TestLastSessionDecidesPresence(t *testing.T) {
	ctx := context.Background()
	tracker, st, b := newTracker(t)

	require.NoError(t, tracker.SessionOpened(ctx, "tab-1", 10, 1))
	require.NoError(t, tracker.SessionOpened(ctx, "tab-2", 10, 1))
	assert.Equal(t, models.PresenceActive, status(t, st, 1))

	require.NoError(t, tracker.SessionClosed(ctx, "tab-1"))
	assert.Equal(t, models.PresenceActive, status(t, st, 1), "another tab is still open")

	count, err := tracker.registry.UserSessionCount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, tracker.SessionClosed(ctx, "tab-2"))
	assert.Equal(t, models.PresenceInactive, status(t, st, 1))

	assert.Equal(t, []models.PresenceStatus{models.PresenceActive, models.PresenceInactive}, b.statuses())
	for _, e := range b.events {
		assert.Equal(t, int64(10), e.tenantID)
		assert.Equal(t, int64(1), e.event.UserID)
		assert.NotNil(t, e.event.LastSeenAt)
	}

	// closing twice is harmless
	require.NoError(t, tracker.SessionClosed(ctx, "tab-2"))
	assert.Len(t, b.events, 2)
}

func TestRecoverResetsStaleActiveUsers(t *testing.T) {
	ctx := context.Background()
	tracker, st, _ := newTracker(t)

	require.Equal(t, models.PresenceActive, status(t, st, 2))
	_, err := tracker.registry.RegisterSession(ctx, Session{ID: "old", TenantID: 10, UserID: 2})
	require.NoError(t, err)

	require.NoError(t, tracker.Recover(ctx))
	assert.Equal(t, models.PresenceInactive, status(t, st, 2))

	count, err := tracker.registry.UserSessionCount(ctx, 2)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestExplicitUpdate(t *testing.T) {
	ctx := context.Background()
	tracker, st, b := newTracker(t)

	user, err := tracker.Update(ctx, 10, 1, models.PresenceActive)
	require.NoError(t, err)
	assert.Equal(t, models.PresenceActive, user.PresenceStatus)
	assert.Equal(t, models.PresenceActive, status(t, st, 1))
	assert.Len(t, b.events, 1)

	_, err = tracker.Update(ctx, 10, 1, "AWAY")
	assert.ErrorIs(t, err, apperr.ErrBadRequest)

	_, err = tracker.Update(ctx, 11, 1, models.PresenceActive)
	assert.ErrorIs(t, err, apperr.ErrNotFound, "other tenant")
}
