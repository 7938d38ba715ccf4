// Package store is the durable Message Store: threads, participants, messages
// and reactions, plus the presence columns of the chat user projection.
package store

import (
	"context"
	"errors"
	"time"

	"chatengine/server/internal/models"
)

// ErrNotFound is returned when a lookup matches no live row
var ErrNotFound = errors.New("store: not found")

// ThreadFilter selects the threads a user participates in
type ThreadFilter struct {
	TenantID int64
	UserID   int64
	Marked   *bool
	Blocked  *bool
	Search   string // thread title or participant name, case-insensitive
	Limit    int
	Offset   int
}

// Store is the repository the conversation engine and presence tracker run on.
// Every thread and message lookup is scoped by tenant; soft-deleted threads
// are invisible.
type Store interface {
	// WithTx runs fn inside one transaction. Nested calls reuse the outer one.
	WithTx(ctx context.Context, fn func(tx Store) error) error

	FindUsers(ctx context.Context, tenantID int64, ids []int64) (map[int64]models.ChatUser, error)
	SetPresence(ctx context.Context, tenantID, userID int64, status models.PresenceStatus, at time.Time) (*models.ChatUser, error)
	ResetPresence(ctx context.Context, at time.Time) (int64, error)

	FindThread(ctx context.Context, tenantID, threadID int64) (*models.Thread, error)
	FindDirectThread(ctx context.Context, tenantID int64, directKey string) (*models.Thread, error)
	// InsertThread assigns ID on success. It reports false without error when a
	// live direct thread with the same DirectKey already exists.
	InsertThread(ctx context.Context, thread *models.Thread) (bool, error)
	TouchThread(ctx context.Context, threadID int64, at time.Time) error
	ListThreads(ctx context.Context, filter ThreadFilter) ([]models.Thread, int, error)
	ThreadIDsForUser(ctx context.Context, tenantID, userID int64) ([]int64, error)

	AddParticipants(ctx context.Context, threadID int64, userIDs []int64, at time.Time) error
	FindParticipant(ctx context.Context, threadID, userID int64) (*models.Participant, error)
	ListParticipants(ctx context.Context, threadID int64) ([]models.Participant, error)
	UpdateParticipantFlags(ctx context.Context, threadID, userID int64, marked, blocked *bool) (*models.Participant, error)
	// AdvanceLastRead never moves the watermark backwards
	AdvanceLastRead(ctx context.Context, threadID, userID int64, at time.Time) (*models.Participant, error)
	LastReadAt(ctx context.Context, userID int64, threadIDs []int64) (map[int64]*time.Time, error)

	InsertMessage(ctx context.Context, msg *models.Message) error
	FindMessage(ctx context.Context, tenantID, messageID int64) (*models.Message, error)
	UpdateMessageContent(ctx context.Context, messageID int64, content string, at time.Time) (*models.Message, error)
	SoftDeleteMessage(ctx context.Context, messageID int64, at time.Time) (*models.Message, error)
	LastMessage(ctx context.Context, threadID int64) (*models.Message, error)
	// MessagesBefore returns up to limit messages with id < cursor, newest
	// first. A zero cursor starts from the newest message.
	MessagesBefore(ctx context.Context, threadID, cursor int64, limit int) ([]models.Message, error)
	HasMessagesBefore(ctx context.Context, threadID, messageID int64) (bool, error)
	CountUnread(ctx context.Context, threadID, userID int64, since *time.Time) (int, error)
	SearchMessages(ctx context.Context, tenantID, userID int64, query string, limit, offset int) ([]models.Message, int, error)

	// UpsertReaction is a no-op when the reaction already exists
	UpsertReaction(ctx context.Context, reaction *models.Reaction) error
	// DeleteReaction is a no-op when the reaction does not exist
	DeleteReaction(ctx context.Context, messageID, userID int64, emoji string) error
	ListReactions(ctx context.Context, messageIDs []int64) (map[int64][]models.Reaction, error)
}
