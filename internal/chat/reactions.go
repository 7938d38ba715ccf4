package chat

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"chatengine/server/internal/apperr"
	"chatengine/server/internal/models"
	"chatengine/server/internal/store"
	"chatengine/server/internal/websocket"
)

const maxEmojiLength = 32

// AddReaction records the caller's emoji on a message. Repeating it is a no-op.
func (e *Engine) AddReaction(ctx context.Context, actor Actor, messageID int64, emoji string) ([]models.ReactionGroup, error) {
	msg, emoji, err := e.reactionTarget(ctx, actor, messageID, emoji)
	if err != nil {
		return nil, err
	}
	if msg.IsDeleted() {
		return nil, apperr.BadRequest("message %d is deleted", messageID)
	}

	err = e.store.UpsertReaction(ctx, &models.Reaction{
		MessageID: messageID,
		UserID:    actor.UserID,
		Emoji:     emoji,
		CreatedAt: e.clock(),
	})
	if err != nil {
		return nil, err
	}

	return e.afterReaction(ctx, msg, actor.UserID, emoji, websocket.ReactionAdded)
}

// RemoveReaction drops the caller's emoji from a message. Removing a reaction
// that isn't there is not an error.
func (e *Engine) RemoveReaction(ctx context.Context, actor Actor, messageID int64, emoji string) ([]models.ReactionGroup, error) {
	msg, emoji, err := e.reactionTarget(ctx, actor, messageID, emoji)
	if err != nil {
		return nil, err
	}

	if err := e.store.DeleteReaction(ctx, messageID, actor.UserID, emoji); err != nil {
		return nil, err
	}

	return e.afterReaction(ctx, msg, actor.UserID, emoji, websocket.ReactionRemoved)
}

func (e *Engine) reactionTarget(ctx context.Context, actor Actor, messageID int64, emoji string) (*models.Message, string, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" || utf8.RuneCountInString(emoji) > maxEmojiLength {
		return nil, "", apperr.BadRequest("invalid emoji")
	}

	msg, err := e.store.FindMessage(ctx, actor.TenantID, messageID)
	if err != nil {
		return nil, "", notFound(err, "message %d not found", messageID)
	}

	if _, err := e.store.FindParticipant(ctx, msg.ThreadID, actor.UserID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, "", apperr.Forbidden("not a participant of this thread")
		}
		return nil, "", err
	}

	return msg, emoji, nil
}

func (e *Engine) afterReaction(ctx context.Context, msg *models.Message, userID int64, emoji string, action websocket.ReactionAction) ([]models.ReactionGroup, error) {
	reactions, err := e.store.ListReactions(ctx, []int64{msg.ID})
	if err != nil {
		return nil, err
	}

	userIDs, err := e.threadUserIDs(ctx, msg.ThreadID)
	if err != nil {
		return nil, err
	}
	e.notifier.ToUsers(userIDs, websocket.ReactionEvent{
		MessageID: msg.ID,
		ThreadID:  msg.ThreadID,
		Emoji:     emoji,
		UserID:    userID,
		Action:    action,
	})

	return groupReactions(reactions[msg.ID]), nil
}
