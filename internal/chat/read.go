package chat

import (
	"context"
	"time"

	"chatengine/server/internal/apperr"
	"chatengine/server/internal/websocket"
)

type ReadReceipt struct {
	ThreadID    int64     `json:"threadId"`
	UserID      int64     `json:"userId"`
	ReadAt      time.Time `json:"readAt"`
	UnreadCount int       `json:"unreadCount"`
}

// MarkRead advances the caller's watermark. With a message id the watermark
// becomes that message's creation time, so anything newer stays unread;
// without one it becomes now. It never moves backwards.
func (e *Engine) MarkRead(ctx context.Context, actor Actor, threadID int64, messageID *int64) (*ReadReceipt, error) {
	thread, _, err := e.EnsureMembership(ctx, actor, threadID)
	if err != nil {
		return nil, err
	}

	at := e.clock()
	if messageID != nil {
		msg, err := e.store.FindMessage(ctx, actor.TenantID, *messageID)
		if err != nil {
			return nil, notFound(err, "message %d not found", *messageID)
		}
		if msg.ThreadID != threadID {
			return nil, apperr.NotFound("message %d not found", *messageID)
		}
		at = msg.CreatedAt
	}

	participant, err := e.store.AdvanceLastRead(ctx, threadID, actor.UserID, at)
	if err != nil {
		return nil, notFound(err, "thread %d not found", threadID)
	}

	unread, err := e.store.CountUnread(ctx, threadID, actor.UserID, participant.LastReadAt)
	if err != nil {
		return nil, err
	}

	receipt := &ReadReceipt{ThreadID: threadID, UserID: actor.UserID, ReadAt: *participant.LastReadAt, UnreadCount: unread}

	e.notifier.ToThread(threadID, websocket.ReadEvent{ThreadID: threadID, UserID: actor.UserID, ReadAt: receipt.ReadAt})
	// the reader's other sessions refresh their badge
	e.pushSummaries(ctx, actor.TenantID, *thread, []int64{actor.UserID})

	return receipt, nil
}
