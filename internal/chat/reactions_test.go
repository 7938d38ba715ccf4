package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatengine/server/internal/apperr"
	"chatengine/server/internal/models"
	"chatengine/server/internal/websocket"
)

func TestReactionsAreIdempotent(t *testing.T) {
	f := newFixture(t)
	thread := f.direct(t, 1, 2)
	msg := f.send(t, 1, thread.ID, "party?")

	_, err := f.engine.AddReaction(f.ctx, actor(2), msg.ID, "🎉")
	require.NoError(t, err)
	groups, err := f.engine.AddReaction(f.ctx, actor(2), msg.ID, "🎉")
	require.NoError(t, err)
	assert.Equal(t, []models.ReactionGroup{{Emoji: "🎉", Count: 1, UserIDs: []int64{2}}}, groups)

	groups, err = f.engine.RemoveReaction(f.ctx, actor(1), msg.ID, "🎉")
	require.NoError(t, err, "removing an absent reaction is a no-op")
	assert.Len(t, groups, 1)

	groups, err = f.engine.RemoveReaction(f.ctx, actor(2), msg.ID, "🎉")
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestReactionAggregation(t *testing.T) {
	f := newFixture(t)
	group, err := f.engine.CreateThread(f.ctx, actor(1), CreateThreadInput{ParticipantIDs: []int64{2, 3}})
	require.NoError(t, err)
	msg := f.send(t, 1, group.ID, "vote")

	_, err = f.engine.AddReaction(f.ctx, actor(2), msg.ID, "👍")
	require.NoError(t, err)
	_, err = f.engine.AddReaction(f.ctx, actor(3), msg.ID, "👎")
	require.NoError(t, err)
	groups, err := f.engine.AddReaction(f.ctx, actor(3), msg.ID, "👍")
	require.NoError(t, err)

	assert.Equal(t, []models.ReactionGroup{
		{Emoji: "👍", Count: 2, UserIDs: []int64{2, 3}},
		{Emoji: "👎", Count: 1, UserIDs: []int64{3}},
	}, groups)

	page, err := f.engine.History(f.ctx, actor(1), group.ID, 0, 10)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, groups, page.Messages[0].Reactions)
}

func TestReactionAccess(t *testing.T) {
	f := newFixture(t)
	thread := f.direct(t, 1, 2)
	msg := f.send(t, 1, thread.ID, "hello")

	_, err := f.engine.AddReaction(f.ctx, actor(3), msg.ID, "👀")
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.engine.RemoveReaction(f.ctx, actor(3), msg.ID, "👀")
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.engine.AddReaction(f.ctx, actor(2), msg.ID+100, "👀")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.engine.AddReaction(f.ctx, actor(2), msg.ID, "  ")
	assert.ErrorIs(t, err, apperr.ErrBadRequest)

	_, err = f.engine.AddReaction(f.ctx, actor(2), msg.ID, "👍")
	require.NoError(t, err)
	_, err = f.engine.DeleteMessage(f.ctx, actor(1), msg.ID)
	require.NoError(t, err)

	_, err = f.engine.AddReaction(f.ctx, actor(2), msg.ID, "😢")
	assert.ErrorIs(t, err, apperr.ErrBadRequest)
	_, err = f.engine.RemoveReaction(f.ctx, actor(2), msg.ID, "👍")
	assert.NoError(t, err, "cleanup stays possible on deleted messages")
}

func TestReactionBroadcast(t *testing.T) {
	f := newFixture(t)
	thread := f.direct(t, 1, 2)
	msg := f.send(t, 1, thread.ID, "hello")
	f.notifier.reset()

	_, err := f.engine.AddReaction(f.ctx, actor(2), msg.ID, "❤️")
	require.NoError(t, err)
	_, err = f.engine.RemoveReaction(f.ctx, actor(2), msg.ID, "❤️")
	require.NoError(t, err)

	events := f.notifier.ofKind(websocket.EventReaction)
	require.Len(t, events, 2)
	assert.ElementsMatch(t, []int64{1, 2}, events[0].userIDs)
	assert.Equal(t, websocket.ReactionEvent{
		MessageID: msg.ID, ThreadID: thread.ID, Emoji: "❤️", UserID: 2, Action: websocket.ReactionAdded,
	}, events[0].event)
	assert.Equal(t, websocket.ReactionRemoved, events[1].event.(websocket.ReactionEvent).Action)
}
