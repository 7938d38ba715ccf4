package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"chatengine/server/internal/models"
)

const (
	threadColumns      = `t.id, t.tenant_id, t.is_group, t.title, t.direct_key, t.created_by, t.created_at, t.updated_at, t.deleted_at`
	participantColumns = `p.thread_id, p.user_id, p.is_blocked, p.is_marked, p.last_read_at, p.created_at`
	messageColumns     = `m.id, m.thread_id, m.sender_id, m.content, m.attachment_url, m.attachment_type, m.attachment_name, m.attachment_path, m.is_edited, m.deleted_at, m.created_at, m.updated_at`
	userColumns        = `u.id, u.tenant_id, u.username, u.full_name, u.profile_image_url, u.presence_status, u.last_seen_at`
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres is the Store backed by a pgx pool
type Postgres struct {
	pool *pgxpool.Pool
	db   querier
}

// NewPostgres wraps an open pool
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool, db: pool}
}

func (s *Postgres) WithTx(ctx context.Context, fn func(tx Store) error) error {
	if s.pool == nil {
		// already inside a transaction
		return fn(s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&Postgres{db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func one[T any](rows pgx.Rows, err error) (*T, error) {
	if err != nil {
		return nil, err
	}
	v, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[T])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func many[T any](rows pgx.Rows, err error) ([]T, error) {
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[T])
}

func (s *Postgres) FindUsers(ctx context.Context, tenantID int64, ids []int64) (map[int64]models.ChatUser, error) {
	users, err := many[models.ChatUser](s.db.Query(ctx, `
		SELECT `+userColumns+`
		FROM chat_users u
		WHERE u.tenant_id = $1 AND u.id = ANY($2)
	`, tenantID, ids))
	if err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}

	byID := make(map[int64]models.ChatUser, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	return byID, nil
}

func (s *Postgres) SetPresence(ctx context.Context, tenantID, userID int64, status models.PresenceStatus, at time.Time) (*models.ChatUser, error) {
	return one[models.ChatUser](s.db.Query(ctx, `
		UPDATE chat_users u SET presence_status = $1, last_seen_at = $2
		WHERE u.tenant_id = $3 AND u.id = $4
		RETURNING `+userColumns+`
	`, status, at, tenantID, userID))
}

func (s *Postgres) ResetPresence(ctx context.Context, at time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE chat_users SET presence_status = $1, last_seen_at = $2
		WHERE presence_status <> $1
	`, models.PresenceInactive, at)
	if err != nil {
		return 0, fmt.Errorf("reset presence: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Postgres) FindThread(ctx context.Context, tenantID, threadID int64) (*models.Thread, error) {
	return one[models.Thread](s.db.Query(ctx, `
		SELECT `+threadColumns+`
		FROM threads t
		WHERE t.id = $1 AND t.tenant_id = $2 AND t.deleted_at IS NULL
	`, threadID, tenantID))
}

func (s *Postgres) FindDirectThread(ctx context.Context, tenantID int64, directKey string) (*models.Thread, error) {
	return one[models.Thread](s.db.Query(ctx, `
		SELECT `+threadColumns+`
		FROM threads t
		WHERE t.tenant_id = $1 AND t.direct_key = $2 AND t.deleted_at IS NULL
	`, tenantID, directKey))
}

func (s *Postgres) InsertThread(ctx context.Context, thread *models.Thread) (bool, error) {
	err := s.db.QueryRow(ctx, `
		INSERT INTO threads (tenant_id, is_group, title, direct_key, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tenant_id, direct_key) WHERE direct_key IS NOT NULL AND deleted_at IS NULL DO NOTHING
		RETURNING id
	`, thread.TenantID, thread.IsGroup, thread.Title, thread.DirectKey, thread.CreatedBy, thread.CreatedAt, thread.UpdatedAt).
		Scan(&thread.ID)

	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert thread: %w", err)
	}
	return true, nil
}

func (s *Postgres) TouchThread(ctx context.Context, threadID int64, at time.Time) error {
	_, err := s.db.Exec(ctx, `UPDATE threads SET updated_at = GREATEST(updated_at, $1) WHERE id = $2`, at, threadID)
	if err != nil {
		return fmt.Errorf("touch thread: %w", err)
	}
	return nil
}

func (s *Postgres) ListThreads(ctx context.Context, f ThreadFilter) ([]models.Thread, int, error) {
	where := []string{"t.tenant_id = $1", "t.deleted_at IS NULL", "p.user_id = $2"}
	args := []any{f.TenantID, f.UserID}

	if f.Marked != nil {
		args = append(args, *f.Marked)
		where = append(where, fmt.Sprintf("p.is_marked = $%d", len(args)))
	}
	if f.Blocked != nil {
		args = append(args, *f.Blocked)
		where = append(where, fmt.Sprintf("p.is_blocked = $%d", len(args)))
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		args = append(args, "%"+escapeLike(q)+"%")
		n := len(args)
		where = append(where, fmt.Sprintf(`(t.title ILIKE $%d OR EXISTS (
			SELECT 1 FROM thread_participants op
			INNER JOIN chat_users u ON u.id = op.user_id
			WHERE op.thread_id = t.id AND (u.username ILIKE $%d OR u.full_name ILIKE $%d)
		))`, n, n, n))
	}

	from := `
		FROM threads t
		INNER JOIN thread_participants p ON p.thread_id = t.id
		WHERE ` + strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*)`+from, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count threads: %w", err)
	}

	args = append(args, f.Limit, f.Offset)
	threads, err := many[models.Thread](s.db.Query(ctx, `SELECT `+threadColumns+from+
		fmt.Sprintf(` ORDER BY t.updated_at DESC, t.id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...))
	if err != nil {
		return nil, 0, fmt.Errorf("list threads: %w", err)
	}
	return threads, total, nil
}

func (s *Postgres) ThreadIDsForUser(ctx context.Context, tenantID, userID int64) ([]int64, error) {
	rows, err := s.db.Query(ctx, `
		SELECT t.id
		FROM threads t
		INNER JOIN thread_participants p ON p.thread_id = t.id
		WHERE t.tenant_id = $1 AND t.deleted_at IS NULL AND p.user_id = $2
		ORDER BY t.id
	`, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("thread ids for user: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func (s *Postgres) AddParticipants(ctx context.Context, threadID int64, userIDs []int64, at time.Time) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO thread_participants (thread_id, user_id, created_at)
		SELECT $1, uid, $3 FROM UNNEST($2::BIGINT[]) AS uid
		ON CONFLICT (thread_id, user_id) DO NOTHING
	`, threadID, userIDs, at)
	if err != nil {
		return fmt.Errorf("add participants: %w", err)
	}
	return nil
}

func (s *Postgres) FindParticipant(ctx context.Context, threadID, userID int64) (*models.Participant, error) {
	return one[models.Participant](s.db.Query(ctx, `
		SELECT `+participantColumns+`
		FROM thread_participants p
		WHERE p.thread_id = $1 AND p.user_id = $2
	`, threadID, userID))
}

func (s *Postgres) ListParticipants(ctx context.Context, threadID int64) ([]models.Participant, error) {
	participants, err := many[models.Participant](s.db.Query(ctx, `
		SELECT `+participantColumns+`
		FROM thread_participants p
		WHERE p.thread_id = $1
		ORDER BY p.created_at, p.user_id
	`, threadID))
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	return participants, nil
}

func (s *Postgres) UpdateParticipantFlags(ctx context.Context, threadID, userID int64, marked, blocked *bool) (*models.Participant, error) {
	return one[models.Participant](s.db.Query(ctx, `
		UPDATE thread_participants p
		SET is_marked = COALESCE($3, p.is_marked), is_blocked = COALESCE($4, p.is_blocked)
		WHERE p.thread_id = $1 AND p.user_id = $2
		RETURNING `+participantColumns+`
	`, threadID, userID, marked, blocked))
}

func (s *Postgres) AdvanceLastRead(ctx context.Context, threadID, userID int64, at time.Time) (*models.Participant, error) {
	return one[models.Participant](s.db.Query(ctx, `
		UPDATE thread_participants p
		SET last_read_at = GREATEST(COALESCE(p.last_read_at, $3), $3)
		WHERE p.thread_id = $1 AND p.user_id = $2
		RETURNING `+participantColumns+`
	`, threadID, userID, at))
}

func (s *Postgres) LastReadAt(ctx context.Context, userID int64, threadIDs []int64) (map[int64]*time.Time, error) {
	rows, err := s.db.Query(ctx, `
		SELECT thread_id, last_read_at
		FROM thread_participants
		WHERE user_id = $1 AND thread_id = ANY($2)
	`, userID, threadIDs)
	if err != nil {
		return nil, fmt.Errorf("last read: %w", err)
	}
	defer rows.Close()

	marks := make(map[int64]*time.Time, len(threadIDs))
	for rows.Next() {
		var threadID int64
		var at *time.Time
		if err := rows.Scan(&threadID, &at); err != nil {
			return nil, fmt.Errorf("scan last read: %w", err)
		}
		marks[threadID] = at
	}
	return marks, rows.Err()
}

func (s *Postgres) InsertMessage(ctx context.Context, msg *models.Message) error {
	err := s.db.QueryRow(ctx, `
		INSERT INTO messages (thread_id, sender_id, content, attachment_url, attachment_type, attachment_name, attachment_path, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, msg.ThreadID, msg.SenderID, msg.Content, msg.AttachmentURL, msg.AttachmentType, msg.AttachmentName, msg.AttachmentPath, msg.CreatedAt).
		Scan(&msg.ID)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *Postgres) FindMessage(ctx context.Context, tenantID, messageID int64) (*models.Message, error) {
	return one[models.Message](s.db.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages m
		INNER JOIN threads t ON t.id = m.thread_id
		WHERE m.id = $1 AND t.tenant_id = $2 AND t.deleted_at IS NULL
	`, messageID, tenantID))
}

func (s *Postgres) UpdateMessageContent(ctx context.Context, messageID int64, content string, at time.Time) (*models.Message, error) {
	return one[models.Message](s.db.Query(ctx, `
		UPDATE messages m SET content = $2, is_edited = TRUE, updated_at = $3
		WHERE m.id = $1 AND m.deleted_at IS NULL
		RETURNING `+messageColumns+`
	`, messageID, content, at))
}

func (s *Postgres) SoftDeleteMessage(ctx context.Context, messageID int64, at time.Time) (*models.Message, error) {
	return one[models.Message](s.db.Query(ctx, `
		UPDATE messages m SET deleted_at = $2, updated_at = $2
		WHERE m.id = $1 AND m.deleted_at IS NULL
		RETURNING `+messageColumns+`
	`, messageID, at))
}

func (s *Postgres) LastMessage(ctx context.Context, threadID int64) (*models.Message, error) {
	return one[models.Message](s.db.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages m
		WHERE m.thread_id = $1
		ORDER BY m.id DESC
		LIMIT 1
	`, threadID))
}

func (s *Postgres) MessagesBefore(ctx context.Context, threadID, cursor int64, limit int) ([]models.Message, error) {
	messages, err := many[models.Message](s.db.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages m
		WHERE m.thread_id = $1 AND ($2::BIGINT = 0 OR m.id < $2::BIGINT)
		ORDER BY m.id DESC
		LIMIT $3
	`, threadID, cursor, limit))
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}

func (s *Postgres) HasMessagesBefore(ctx context.Context, threadID, messageID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM messages WHERE thread_id = $1 AND id < $2)
	`, threadID, messageID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check older messages: %w", err)
	}
	return exists, nil
}

func (s *Postgres) CountUnread(ctx context.Context, threadID, userID int64, since *time.Time) (int, error) {
	var count int
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM messages
		WHERE thread_id = $1 AND deleted_at IS NULL AND sender_id <> $2
		  AND created_at > COALESCE($3, 'epoch'::TIMESTAMPTZ)
	`, threadID, userID, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}

func (s *Postgres) SearchMessages(ctx context.Context, tenantID, userID int64, query string, limit, offset int) ([]models.Message, int, error) {
	from := `
		FROM messages m
		INNER JOIN threads t ON t.id = m.thread_id
		INNER JOIN thread_participants p ON p.thread_id = t.id AND p.user_id = $2
		WHERE t.tenant_id = $1 AND t.deleted_at IS NULL AND m.deleted_at IS NULL
		  AND m.content ILIKE $3`
	pattern := "%" + escapeLike(query) + "%"

	var total int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*)`+from, tenantID, userID, pattern).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count search: %w", err)
	}

	messages, err := many[models.Message](s.db.Query(ctx, `SELECT `+messageColumns+from+`
		ORDER BY m.id DESC
		LIMIT $4 OFFSET $5
	`, tenantID, userID, pattern, limit, offset))
	if err != nil {
		return nil, 0, fmt.Errorf("search messages: %w", err)
	}
	return messages, total, nil
}

func (s *Postgres) UpsertReaction(ctx context.Context, r *models.Reaction) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO message_reactions (message_id, user_id, emoji, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (message_id, user_id, emoji) DO NOTHING
	`, r.MessageID, r.UserID, r.Emoji, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert reaction: %w", err)
	}
	return nil
}

func (s *Postgres) DeleteReaction(ctx context.Context, messageID, userID int64, emoji string) error {
	_, err := s.db.Exec(ctx, `
		DELETE FROM message_reactions WHERE message_id = $1 AND user_id = $2 AND emoji = $3
	`, messageID, userID, emoji)
	if err != nil {
		return fmt.Errorf("delete reaction: %w", err)
	}
	return nil
}

func (s *Postgres) ListReactions(ctx context.Context, messageIDs []int64) (map[int64][]models.Reaction, error) {
	reactions, err := many[models.Reaction](s.db.Query(ctx, `
		SELECT message_id, user_id, emoji, created_at
		FROM message_reactions
		WHERE message_id = ANY($1)
		ORDER BY created_at, user_id
	`, messageIDs))
	if err != nil {
		return nil, fmt.Errorf("list reactions: %w", err)
	}

	byMessage := make(map[int64][]models.Reaction)
	for _, r := range reactions {
		byMessage[r.MessageID] = append(byMessage[r.MessageID], r)
	}
	return byMessage, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
