package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatengine/server/internal/models"
)

var t0 = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func newThread(tenantID int64, key *string) *models.Thread {
	return &models.Thread{TenantID: tenantID, DirectKey: key, CreatedBy: 1, CreatedAt: t0, UpdatedAt: t0}
}

func TestInsertThreadRejectsDuplicateDirectKey(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	key := models.DirectKey(2, 1)

	created, err := s.InsertThread(ctx, newThread(1, &key))
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.InsertThread(ctx, newThread(1, &key))
	require.NoError(t, err)
	assert.False(t, created)

	// other tenants are independent
	created, err = s.InsertThread(ctx, newThread(2, &key))
	require.NoError(t, err)
	assert.True(t, created)

	found, err := s.FindDirectThread(ctx, 1, "1:2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), found.ID)
}

func TestFindThreadIsTenantScoped(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	th := newThread(1, nil)
	_, err := s.InsertThread(ctx, th)
	require.NoError(t, err)

	_, err = s.FindThread(ctx, 2, th.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := s.FindThread(ctx, 1, th.ID)
	require.NoError(t, err)
	assert.Equal(t, th.ID, got.ID)
}

func TestAdvanceLastReadIsMonotonic(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	th := newThread(1, nil)
	_, err := s.InsertThread(ctx, th)
	require.NoError(t, err)
	require.NoError(t, s.AddParticipants(ctx, th.ID, []int64{1, 2}, t0))

	p, err := s.AdvanceLastRead(ctx, th.ID, 2, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, t0.Add(time.Minute), *p.LastReadAt)

	p, err = s.AdvanceLastRead(ctx, th.ID, 2, t0)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(time.Minute), *p.LastReadAt, "watermark must not move backwards")
}

func TestMessagesBeforeAndProbe(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	th := newThread(1, nil)
	_, err := s.InsertThread(ctx, th)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.InsertMessage(ctx, &models.Message{ThreadID: th.ID, SenderID: 1, Content: "m", CreatedAt: t0.Add(time.Duration(i) * time.Second)}))
	}

	newest, err := s.MessagesBefore(ctx, th.ID, 0, 2)
	require.NoError(t, err)
	require.Len(t, newest, 2)
	assert.Equal(t, []int64{5, 4}, []int64{newest[0].ID, newest[1].ID})

	older, err := s.MessagesBefore(ctx, th.ID, 4, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 2}, []int64{older[0].ID, older[1].ID})

	more, err := s.HasMessagesBefore(ctx, th.ID, 1)
	require.NoError(t, err)
	assert.False(t, more)
}

func TestWithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx Store) error {
		th := newThread(1, nil)
		if _, err := tx.InsertThread(ctx, th); err != nil {
			return err
		}
		// nested transactions reuse the outer one
		return tx.WithTx(ctx, func(inner Store) error {
			if err := inner.AddParticipants(ctx, th.ID, []int64{1, 2}, t0); err != nil {
				return err
			}
			return boom
		})
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.FindThread(ctx, 1, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSearchIsCaseInsensitiveAndParticipantScoped(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	mine := newThread(1, nil)
	other := newThread(1, nil)
	_, _ = s.InsertThread(ctx, mine)
	_, _ = s.InsertThread(ctx, other)
	require.NoError(t, s.AddParticipants(ctx, mine.ID, []int64{1, 2}, t0))
	require.NoError(t, s.AddParticipants(ctx, other.ID, []int64{3, 4}, t0))

	require.NoError(t, s.InsertMessage(ctx, &models.Message{ThreadID: mine.ID, SenderID: 2, Content: "Hello World", CreatedAt: t0}))
	require.NoError(t, s.InsertMessage(ctx, &models.Message{ThreadID: other.ID, SenderID: 3, Content: "world", CreatedAt: t0}))

	deleted := &models.Message{ThreadID: mine.ID, SenderID: 1, Content: "WORLD deleted", CreatedAt: t0}
	require.NoError(t, s.InsertMessage(ctx, deleted))
	_, err := s.SoftDeleteMessage(ctx, deleted.ID, t0)
	require.NoError(t, err)

	found, total, err := s.SearchMessages(ctx, 1, 1, "WoRLD", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, found, 1)
	assert.Equal(t, "Hello World", found[0].Content)
}

func TestCountUnread(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	th := newThread(1, nil)
	_, _ = s.InsertThread(ctx, th)

	for i, sender := range []int64{1, 2, 2, 1} {
		require.NoError(t, s.InsertMessage(ctx, &models.Message{ThreadID: th.ID, SenderID: sender, Content: "x", CreatedAt: t0.Add(time.Duration(i) * time.Minute)}))
	}

	n, err := s.CountUnread(ctx, th.ID, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	mark := t0.Add(time.Minute)
	n, err = s.CountUnread(ctx, th.ID, 1, &mark)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUpdateMessageContentSkipsDeleted(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	th := newThread(1, nil)
	_, _ = s.InsertThread(ctx, th)

	msg := &models.Message{ThreadID: th.ID, SenderID: 1, Content: "original", CreatedAt: t0}
	require.NoError(t, s.InsertMessage(ctx, msg))
	_, err := s.SoftDeleteMessage(ctx, msg.ID, t0)
	require.NoError(t, err)

	_, err = s.UpdateMessageContent(ctx, msg.ID, "edited", t0)
	assert.ErrorIs(t, err, ErrNotFound)
}
