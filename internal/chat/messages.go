package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"chatengine/server/internal/apperr"
	"chatengine/server/internal/models"
	"chatengine/server/internal/store"
	"chatengine/server/internal/websocket"
)

const (
	defaultHistoryPageSize = 30
	defaultSearchPageSize  = 20
)

type AttachmentInput struct {
	Data     []byte
	Name     string
	MimeType string
	Content  string
}

type MessagePage struct {
	Messages   []models.MessageDTO `json:"messages"`
	HasMore    bool                `json:"hasMore"`
	NextCursor *int64              `json:"nextCursor,omitempty"`
}

type SearchPage struct {
	Messages []models.MessageDTO `json:"messages"`
	Total    int                 `json:"total"`
	Offset   int                 `json:"offset"`
	Limit    int                 `json:"limit"`
}

// SendMessage posts a text message to a thread
func (e *Engine) SendMessage(ctx context.Context, actor Actor, threadID int64, content string) (*models.MessageDTO, error) {
	content = e.sanitizer.Sanitize(content)
	if content == "" {
		return nil, apperr.BadRequest("message content is empty")
	}

	thread, err := e.writableThread(ctx, actor, threadID)
	if err != nil {
		return nil, err
	}

	msg := &models.Message{ThreadID: threadID, SenderID: actor.UserID, Content: content}
	if err := e.insertMessage(ctx, msg); err != nil {
		return nil, err
	}

	return e.afterSend(ctx, actor, thread, *msg)
}

// SendAttachment uploads the file, then posts a message pointing at it. The
// blob is removed again when the message cannot be stored.
func (e *Engine) SendAttachment(ctx context.Context, actor Actor, threadID int64, in AttachmentInput) (*models.MessageDTO, error) {
	if e.blobs == nil {
		return nil, apperr.BadRequest("attachments are not enabled")
	}
	if len(in.Data) == 0 {
		return nil, apperr.BadRequest("attachment is empty")
	}

	thread, err := e.writableThread(ctx, actor, threadID)
	if err != nil {
		return nil, err
	}

	uploaded, err := e.blobs.Upload(ctx, in.Data, in.Name, in.MimeType, fmt.Sprintf("threads/%d", threadID))
	if err != nil {
		return nil, fmt.Errorf("failed to upload attachment: %w", err)
	}

	kind := AttachmentType(in.MimeType)
	name := e.sanitizer.Sanitize(in.Name)
	msg := &models.Message{
		ThreadID:       threadID,
		SenderID:       actor.UserID,
		Content:        e.sanitizer.Sanitize(in.Content),
		AttachmentURL:  &uploaded.PublicURL,
		AttachmentType: &kind,
		AttachmentName: &name,
		AttachmentPath: &uploaded.Path,
	}

	if err := e.insertMessage(ctx, msg); err != nil {
		if delErr := e.blobs.Delete(context.WithoutCancel(ctx), uploaded.Path); delErr != nil {
			log.Error().Err(delErr).Str("path", uploaded.Path).Msg("Failed to remove orphaned attachment")
		}
		return nil, err
	}

	return e.afterSend(ctx, actor, thread, *msg)
}

// AttachmentType classifies a MIME type by its prefix
func AttachmentType(mimeType string) string {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return models.AttachmentImage
	case strings.HasPrefix(mimeType, "video/"):
		return models.AttachmentVideo
	case strings.HasPrefix(mimeType, "audio/"):
		return models.AttachmentAudio
	default:
		return models.AttachmentFile
	}
}

func (e *Engine) writableThread(ctx context.Context, actor Actor, threadID int64) (*models.Thread, error) {
	thread, participant, err := e.EnsureMembership(ctx, actor, threadID)
	if err != nil {
		return nil, err
	}
	if participant.IsBlocked {
		return nil, apperr.Forbidden("you have blocked this thread")
	}
	return thread, nil
}

func (e *Engine) insertMessage(ctx context.Context, msg *models.Message) error {
	return e.store.WithTx(ctx, func(tx store.Store) error {
		msg.CreatedAt = e.clock()
		if err := tx.InsertMessage(ctx, msg); err != nil {
			return err
		}
		return tx.TouchThread(ctx, msg.ThreadID, msg.CreatedAt)
	})
}

// afterSend shapes the new message and fans it out: the message to every
// participant, then each participant's own thread summary
func (e *Engine) afterSend(ctx context.Context, actor Actor, thread *models.Thread, msg models.Message) (*models.MessageDTO, error) {
	dto, err := messageDTO(ctx, e.store, actor.TenantID, msg)
	if err != nil {
		return nil, err
	}

	participants, err := e.store.ListParticipants(ctx, thread.ID)
	if err != nil {
		return nil, err
	}
	userIDs := make([]int64, 0, len(participants))
	for _, p := range participants {
		userIDs = append(userIDs, p.UserID)
	}

	if msg.CreatedAt.After(thread.UpdatedAt) {
		thread.UpdatedAt = msg.CreatedAt
	}

	e.notifier.ToUsers(userIDs, websocket.MessageEvent(dto))
	e.pushSummaries(ctx, actor.TenantID, *thread, userIDs)

	return &dto, nil
}

// EditMessage replaces the content of the caller's own live message
func (e *Engine) EditMessage(ctx context.Context, actor Actor, messageID int64, content string) (*models.MessageDTO, error) {
	_, err := e.ownMessage(ctx, actor, messageID)
	if err != nil {
		return nil, err
	}

	content = e.sanitizer.Sanitize(content)
	if content == "" {
		return nil, apperr.BadRequest("message content is empty")
	}

	updated, err := e.store.UpdateMessageContent(ctx, messageID, content, e.clock())
	if errors.Is(err, store.ErrNotFound) {
		// deleted concurrently
		return nil, apperr.BadRequest("message %d is already deleted", messageID)
	}
	if err != nil {
		return nil, err
	}

	return e.broadcastChange(ctx, actor, *updated, func(dto models.MessageDTO) websocket.Event {
		return websocket.MessageEditEvent(dto)
	})
}

// DeleteMessage soft-deletes the caller's own message. Stored content is
// kept; clients get the redacted form.
func (e *Engine) DeleteMessage(ctx context.Context, actor Actor, messageID int64) (*models.MessageDTO, error) {
	if _, err := e.ownMessage(ctx, actor, messageID); err != nil {
		return nil, err
	}

	deleted, err := e.store.SoftDeleteMessage(ctx, messageID, e.clock())
	if errors.Is(err, store.ErrNotFound) {
		// deleted concurrently
		return nil, apperr.BadRequest("message %d is already deleted", messageID)
	}
	if err != nil {
		return nil, err
	}

	return e.broadcastChange(ctx, actor, *deleted, func(dto models.MessageDTO) websocket.Event {
		return websocket.MessageDeleteEvent(dto)
	})
}

// ownMessage loads a live message the caller sent
func (e *Engine) ownMessage(ctx context.Context, actor Actor, messageID int64) (*models.Message, error) {
	msg, err := e.store.FindMessage(ctx, actor.TenantID, messageID)
	if err != nil {
		return nil, notFound(err, "message %d not found", messageID)
	}
	if msg.SenderID != actor.UserID {
		return nil, apperr.Forbidden("only the sender can change this message")
	}
	if msg.IsDeleted() {
		return nil, apperr.BadRequest("message %d is already deleted", messageID)
	}
	return msg, nil
}

func (e *Engine) broadcastChange(ctx context.Context, actor Actor, msg models.Message, event func(models.MessageDTO) websocket.Event) (*models.MessageDTO, error) {
	dto, err := messageDTO(ctx, e.store, actor.TenantID, msg)
	if err != nil {
		return nil, err
	}

	userIDs, err := e.threadUserIDs(ctx, msg.ThreadID)
	if err != nil {
		return nil, err
	}
	e.notifier.ToUsers(userIDs, event(dto))

	return &dto, nil
}

func (e *Engine) threadUserIDs(ctx context.Context, threadID int64) ([]int64, error) {
	participants, err := e.store.ListParticipants(ctx, threadID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(participants))
	for _, p := range participants {
		ids = append(ids, p.UserID)
	}
	return ids, nil
}

// History returns one page of a thread, oldest first. cursor is exclusive;
// zero starts from the newest message.
func (e *Engine) History(ctx context.Context, actor Actor, threadID, cursor int64, pageSize int) (*MessagePage, error) {
	if _, _, err := e.EnsureMembership(ctx, actor, threadID); err != nil {
		return nil, err
	}
	if cursor < 0 {
		return nil, apperr.BadRequest("invalid cursor")
	}
	if pageSize <= 0 {
		pageSize = defaultHistoryPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	rows, err := e.store.MessagesBefore(ctx, threadID, cursor, pageSize)
	if err != nil {
		return nil, err
	}

	page := &MessagePage{}
	if len(rows) > 0 {
		oldest := rows[len(rows)-1].ID
		page.HasMore, err = e.store.HasMessagesBefore(ctx, threadID, oldest)
		if err != nil {
			return nil, err
		}
		if page.HasMore {
			page.NextCursor = &oldest
		}
	}

	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}

	page.Messages, err = messageDTOs(ctx, e.store, actor.TenantID, rows)
	if err != nil {
		return nil, err
	}
	return page, nil
}

// SearchMessages finds live messages containing query, case-insensitively,
// across the caller's threads
func (e *Engine) SearchMessages(ctx context.Context, actor Actor, query string, offset, limit int) (*SearchPage, error) {
	// stored content is sanitized, so the query has to be too
	query = e.sanitizer.Sanitize(query)
	if query == "" {
		return nil, apperr.BadRequest("search query is empty")
	}
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = defaultSearchPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	rows, total, err := e.store.SearchMessages(ctx, actor.TenantID, actor.UserID, query, limit, offset)
	if err != nil {
		return nil, err
	}

	dtos, err := messageDTOs(ctx, e.store, actor.TenantID, rows)
	if err != nil {
		return nil, err
	}
	return &SearchPage{Messages: dtos, Total: total, Offset: offset, Limit: limit}, nil
}
