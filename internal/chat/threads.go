package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"chatengine/server/internal/apperr"
	"chatengine/server/internal/models"
	"chatengine/server/internal/store"
	"chatengine/server/internal/websocket"
)

const (
	defaultThreadPageSize = 20
	maxPageSize           = 100
)

type CreateThreadInput struct {
	ParticipantIDs []int64 `json:"participantIds"`
	Title          *string `json:"title,omitempty"`
	IsGroup        *bool   `json:"isGroup,omitempty"`
	InitialMessage *string `json:"initialMessage,omitempty"`
}

type ListThreadsInput struct {
	Page    int
	Limit   int
	Marked  *bool
	Blocked *bool
	Search  string
}

type ThreadPage struct {
	Threads []models.ThreadDTO `json:"threads"`
	Total   int                `json:"total"`
	Page    int                `json:"page"`
	Limit   int                `json:"limit"`
}

type UnreadSummary struct {
	Total   int           `json:"total"`
	Threads map[int64]int `json:"threads"`
}

// CreateThread creates a thread or, for a two-party direct conversation,
// returns the live one that already exists for the pair
func (e *Engine) CreateThread(ctx context.Context, actor Actor, in CreateThreadInput) (*models.ThreadDTO, error) {
	members := uniqueIDs(append([]int64{actor.UserID}, in.ParticipantIDs...))
	for _, id := range members {
		if id <= 0 {
			return nil, apperr.BadRequest("invalid participant id %d", id)
		}
	}
	if len(members) < 2 {
		return nil, apperr.BadRequest("a thread needs at least two participants")
	}

	users, err := e.store.FindUsers(ctx, actor.TenantID, members)
	if err != nil {
		return nil, err
	}
	for _, id := range members {
		if _, ok := users[id]; !ok {
			return nil, apperr.BadRequest("unknown participant %d", id)
		}
	}

	isGroup := len(members) > 2
	if in.IsGroup != nil {
		isGroup = *in.IsGroup
	}

	var directKey *string
	if !isGroup && len(members) == 2 {
		key := models.DirectKey(members[0], members[1])
		directKey = &key
	}

	var initial string
	if in.InitialMessage != nil && strings.TrimSpace(*in.InitialMessage) != "" {
		initial = e.sanitizer.Sanitize(*in.InitialMessage)
		if initial == "" {
			return nil, apperr.BadRequest("message content is empty")
		}
	}

	var title *string
	if in.Title != nil {
		if t := e.sanitizer.Sanitize(*in.Title); t != "" {
			title = &t
		}
	}

	var (
		thread *models.Thread
		msg    *models.Message
	)

	err = e.store.WithTx(ctx, func(tx store.Store) error {
		now := e.clock()

		if directKey != nil {
			existing, err := tx.FindDirectThread(ctx, actor.TenantID, *directKey)
			switch {
			case err == nil:
				thread = existing
			case !errors.Is(err, store.ErrNotFound):
				return err
			}
		}

		if thread == nil {
			candidate := &models.Thread{
				TenantID:  actor.TenantID,
				IsGroup:   isGroup,
				Title:     title,
				DirectKey: directKey,
				CreatedBy: actor.UserID,
				CreatedAt: now,
				UpdatedAt: now,
			}
			created, err := tx.InsertThread(ctx, candidate)
			if err != nil {
				return err
			}
			if created {
				thread = candidate
				if err := tx.AddParticipants(ctx, thread.ID, members, now); err != nil {
					return err
				}
			} else {
				// lost the race for this pair, use the winner's row
				thread, err = tx.FindDirectThread(ctx, actor.TenantID, *directKey)
				if err != nil {
					return err
				}
			}
		}

		if initial == "" {
			return nil
		}

		participant, err := tx.FindParticipant(ctx, thread.ID, actor.UserID)
		if err != nil {
			return err
		}
		if participant.IsBlocked {
			return apperr.Forbidden("you have blocked this thread")
		}

		msg = &models.Message{ThreadID: thread.ID, SenderID: actor.UserID, Content: initial, CreatedAt: now}
		if err := tx.InsertMessage(ctx, msg); err != nil {
			return err
		}
		if err := tx.TouchThread(ctx, thread.ID, now); err != nil {
			return err
		}
		thread.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	dto, err := threadDTO(ctx, e.store, actor.TenantID, *thread, actor.UserID, 0)
	if err != nil {
		return nil, err
	}

	others := make([]int64, 0, len(dto.Participants))
	for _, p := range dto.Participants {
		if p.ID != actor.UserID {
			others = append(others, p.ID)
		}
	}
	e.pushSummaries(ctx, actor.TenantID, *thread, others)

	if msg != nil && dto.LastMessage != nil {
		e.notifier.ToUsers(participantIDs(dto), websocket.MessageEvent(*dto.LastMessage))
	}

	log.Debug().Int64("threadId", thread.ID).Int64("userId", actor.UserID).Bool("isGroup", thread.IsGroup).Msg("Thread resolved")
	return dto, nil
}

// GetThread returns the caller's summary of one thread
func (e *Engine) GetThread(ctx context.Context, actor Actor, threadID int64) (*models.ThreadDTO, error) {
	thread, participant, err := e.EnsureMembership(ctx, actor, threadID)
	if err != nil {
		return nil, err
	}
	return e.summary(ctx, e.store, actor.TenantID, *thread, actor.UserID, participant.LastReadAt)
}

// ListThreads pages through the caller's threads, most recently active first
func (e *Engine) ListThreads(ctx context.Context, actor Actor, in ListThreadsInput) (*ThreadPage, error) {
	page, limit := in.Page, in.Limit
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultThreadPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	threads, total, err := e.store.ListThreads(ctx, store.ThreadFilter{
		TenantID: actor.TenantID,
		UserID:   actor.UserID,
		Marked:   in.Marked,
		Blocked:  in.Blocked,
		Search:   strings.TrimSpace(in.Search),
		Limit:    limit,
		Offset:   (page - 1) * limit,
	})
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(threads))
	for _, t := range threads {
		ids = append(ids, t.ID)
	}
	marks, err := e.store.LastReadAt(ctx, actor.UserID, ids)
	if err != nil {
		return nil, err
	}

	result := &ThreadPage{Threads: make([]models.ThreadDTO, 0, len(threads)), Total: total, Page: page, Limit: limit}
	for _, t := range threads {
		dto, err := e.summary(ctx, e.store, actor.TenantID, t, actor.UserID, marks[t.ID])
		if err != nil {
			return nil, err
		}
		result.Threads = append(result.Threads, *dto)
	}
	return result, nil
}

func (e *Engine) SetMarked(ctx context.Context, actor Actor, threadID int64, marked bool) (*models.ThreadDTO, error) {
	return e.setFlags(ctx, actor, threadID, &marked, nil)
}

func (e *Engine) SetBlocked(ctx context.Context, actor Actor, threadID int64, blocked bool) (*models.ThreadDTO, error) {
	return e.setFlags(ctx, actor, threadID, nil, &blocked)
}

func (e *Engine) setFlags(ctx context.Context, actor Actor, threadID int64, marked, blocked *bool) (*models.ThreadDTO, error) {
	thread, _, err := e.EnsureMembership(ctx, actor, threadID)
	if err != nil {
		return nil, err
	}

	participant, err := e.store.UpdateParticipantFlags(ctx, threadID, actor.UserID, marked, blocked)
	if err != nil {
		return nil, notFound(err, "thread %d not found", threadID)
	}

	return e.summary(ctx, e.store, actor.TenantID, *thread, actor.UserID, participant.LastReadAt)
}

// UnreadCount is the number of live messages from others newer than the
// caller's read watermark
func (e *Engine) UnreadCount(ctx context.Context, actor Actor, threadID int64) (int, error) {
	_, participant, err := e.EnsureMembership(ctx, actor, threadID)
	if err != nil {
		return 0, err
	}
	return e.store.CountUnread(ctx, threadID, actor.UserID, participant.LastReadAt)
}

// TotalUnread sums unread counts over every thread of the caller
func (e *Engine) TotalUnread(ctx context.Context, actor Actor) (*UnreadSummary, error) {
	ids, err := e.store.ThreadIDsForUser(ctx, actor.TenantID, actor.UserID)
	if err != nil {
		return nil, err
	}
	marks, err := e.store.LastReadAt(ctx, actor.UserID, ids)
	if err != nil {
		return nil, err
	}

	summary := &UnreadSummary{Threads: make(map[int64]int, len(ids))}
	for _, id := range ids {
		n, err := e.store.CountUnread(ctx, id, actor.UserID, marks[id])
		if err != nil {
			return nil, err
		}
		summary.Threads[id] = n
		summary.Total += n
	}
	return summary, nil
}

func (e *Engine) summary(ctx context.Context, st store.Store, tenantID int64, thread models.Thread, viewerID int64, lastReadAt *time.Time) (*models.ThreadDTO, error) {
	unread, err := st.CountUnread(ctx, thread.ID, viewerID, lastReadAt)
	if err != nil {
		return nil, err
	}
	return threadDTO(ctx, st, tenantID, thread, viewerID, unread)
}

// pushSummaries sends each user their own view of the thread. Unread counts
// differ per viewer so nothing is shared between the pushes.
func (e *Engine) pushSummaries(ctx context.Context, tenantID int64, thread models.Thread, userIDs []int64) {
	if len(userIDs) == 0 {
		return
	}

	for _, uid := range userIDs {
		participant, err := e.store.FindParticipant(ctx, thread.ID, uid)
		if err != nil {
			log.Warn().Err(err).Int64("threadId", thread.ID).Int64("userId", uid).Msg("Failed to load participant for thread push")
			continue
		}
		dto, err := e.summary(ctx, e.store, tenantID, thread, uid, participant.LastReadAt)
		if err != nil {
			log.Warn().Err(err).Int64("threadId", thread.ID).Int64("userId", uid).Msg("Failed to build thread summary")
			continue
		}
		e.notifier.ToUsers([]int64{uid}, websocket.ThreadEvent(*dto))
	}
}

func participantIDs(dto *models.ThreadDTO) []int64 {
	ids := make([]int64, 0, len(dto.Participants))
	for _, p := range dto.Participants {
		ids = append(ids, p.ID)
	}
	return ids
}
