package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"

	"chatengine/server/internal/models"
)

type participantKey struct {
	threadID int64
	userID   int64
}

type reactionKey struct {
	messageID int64
	userID    int64
	emoji     string
}

type memState struct {
	users         map[int64]models.ChatUser
	threads       map[int64]models.Thread
	participants  map[participantKey]models.Participant
	messages      map[int64]models.Message
	reactions     map[reactionKey]models.Reaction
	nextThreadID  int64
	nextMessageID int64
}

func (s *memState) clone() memState {
	c := memState{
		users:         make(map[int64]models.ChatUser, len(s.users)),
		threads:       make(map[int64]models.Thread, len(s.threads)),
		participants:  make(map[participantKey]models.Participant, len(s.participants)),
		messages:      make(map[int64]models.Message, len(s.messages)),
		reactions:     make(map[reactionKey]models.Reaction, len(s.reactions)),
		nextThreadID:  s.nextThreadID,
		nextMessageID: s.nextMessageID,
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.threads {
		c.threads[k] = v
	}
	for k, v := range s.participants {
		c.participants[k] = v
	}
	for k, v := range s.messages {
		c.messages[k] = v
	}
	for k, v := range s.reactions {
		c.reactions[k] = v
	}
	return c
}

// Memory is a process-local Store for tests and single-node development.
// Transactions are serialized and rolled back by restoring a snapshot.
type Memory struct {
	mu    sync.RWMutex
	txMu  sync.Mutex
	state memState
}

var (
	_ Store = (*Memory)(nil)
	_ Store = (*Postgres)(nil)
)

func NewMemory() *Memory {
	return &Memory{
		state: memState{
			users:        make(map[int64]models.ChatUser),
			threads:      make(map[int64]models.Thread),
			participants: make(map[participantKey]models.Participant),
			messages:     make(map[int64]models.Message),
			reactions:    make(map[reactionKey]models.Reaction),
		},
	}
}

// memTx is handed to WithTx callbacks so nested calls don't re-lock
type memTx struct {
	*Memory
}

func (t memTx) WithTx(ctx context.Context, fn func(tx Store) error) error {
	return fn(t)
}

func (m *Memory) WithTx(ctx context.Context, fn func(tx Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.RLock()
	snapshot := m.state.clone()
	m.mu.RUnlock()

	if err := fn(memTx{m}); err != nil {
		m.mu.Lock()
		m.state = snapshot
		m.mu.Unlock()
		return err
	}
	return nil
}

// PutUser inserts or replaces a chat user projection
func (m *Memory) PutUser(u models.ChatUser) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.PresenceStatus == "" {
		u.PresenceStatus = models.PresenceInactive
	}
	m.state.users[u.ID] = u
}

func (m *Memory) FindUsers(ctx context.Context, tenantID int64, ids []int64) (map[int64]models.ChatUser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byID := make(map[int64]models.ChatUser, len(ids))
	for _, id := range ids {
		if u, ok := m.state.users[id]; ok && u.TenantID == tenantID {
			byID[id] = u
		}
	}
	return byID, nil
}

func (m *Memory) SetPresence(ctx context.Context, tenantID, userID int64, status models.PresenceStatus, at time.Time) (*models.ChatUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.state.users[userID]
	if !ok || u.TenantID != tenantID {
		return nil, ErrNotFound
	}
	u.PresenceStatus = status
	u.LastSeenAt = &at
	m.state.users[userID] = u
	return &u, nil
}

func (m *Memory) ResetPresence(ctx context.Context, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, u := range m.state.users {
		if u.PresenceStatus == models.PresenceInactive {
			continue
		}
		u.PresenceStatus = models.PresenceInactive
		u.LastSeenAt = &at
		m.state.users[id] = u
		n++
	}
	return n, nil
}

func (m *Memory) FindThread(ctx context.Context, tenantID, threadID int64) (*models.Thread, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.liveThread(tenantID, threadID)
}

func (m *Memory) liveThread(tenantID, threadID int64) (*models.Thread, error) {
	t, ok := m.state.threads[threadID]
	if !ok || t.TenantID != tenantID || t.DeletedAt != nil {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (m *Memory) FindDirectThread(ctx context.Context, tenantID int64, directKey string) (*models.Thread, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if t, ok := m.directThread(tenantID, directKey); ok {
		return &t, nil
	}
	return nil, ErrNotFound
}

func (m *Memory) directThread(tenantID int64, directKey string) (models.Thread, bool) {
	for _, t := range m.state.threads {
		if t.TenantID == tenantID && t.DeletedAt == nil && t.DirectKey != nil && *t.DirectKey == directKey {
			return t, true
		}
	}
	return models.Thread{}, false
}

func (m *Memory) InsertThread(ctx context.Context, thread *models.Thread) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if thread.DirectKey != nil {
		if _, exists := m.directThread(thread.TenantID, *thread.DirectKey); exists {
			return false, nil
		}
	}

	m.state.nextThreadID++
	thread.ID = m.state.nextThreadID
	m.state.threads[thread.ID] = *thread
	return true, nil
}

func (m *Memory) TouchThread(ctx context.Context, threadID int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.state.threads[threadID]
	if !ok {
		return ErrNotFound
	}
	if at.After(t.UpdatedAt) {
		t.UpdatedAt = at
		m.state.threads[threadID] = t
	}
	return nil
}

func (m *Memory) ListThreads(ctx context.Context, f ThreadFilter) ([]models.Thread, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	query := fold(strings.TrimSpace(f.Search))

	var matched []models.Thread
	for _, t := range m.state.threads {
		if t.TenantID != f.TenantID || t.DeletedAt != nil {
			continue
		}
		p, ok := m.state.participants[participantKey{t.ID, f.UserID}]
		if !ok {
			continue
		}
		if f.Marked != nil && p.IsMarked != *f.Marked {
			continue
		}
		if f.Blocked != nil && p.IsBlocked != *f.Blocked {
			continue
		}
		if query != "" && !m.threadMatches(t, query) {
			continue
		}
		matched = append(matched, t)
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].UpdatedAt.Equal(matched[j].UpdatedAt) {
			return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	return page(matched, f.Limit, f.Offset), len(matched), nil
}

func (m *Memory) threadMatches(t models.Thread, query string) bool {
	if t.Title != nil && strings.Contains(fold(*t.Title), query) {
		return true
	}
	for key := range m.state.participants {
		if key.threadID != t.ID {
			continue
		}
		u, ok := m.state.users[key.userID]
		if !ok {
			continue
		}
		if strings.Contains(fold(u.Username), query) {
			return true
		}
		if u.FullName != nil && strings.Contains(fold(*u.FullName), query) {
			return true
		}
	}
	return false
}

func (m *Memory) ThreadIDsForUser(ctx context.Context, tenantID, userID int64) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []int64
	for key := range m.state.participants {
		if key.userID != userID {
			continue
		}
		if _, err := m.liveThread(tenantID, key.threadID); err == nil {
			ids = append(ids, key.threadID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *Memory) AddParticipants(ctx context.Context, threadID int64, userIDs []int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.state.threads[threadID]; !ok {
		return ErrNotFound
	}
	for _, uid := range userIDs {
		key := participantKey{threadID, uid}
		if _, exists := m.state.participants[key]; exists {
			continue
		}
		m.state.participants[key] = models.Participant{ThreadID: threadID, UserID: uid, CreatedAt: at}
	}
	return nil
}

func (m *Memory) FindParticipant(ctx context.Context, threadID, userID int64) (*models.Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.state.participants[participantKey{threadID, userID}]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *Memory) ListParticipants(ctx context.Context, threadID int64) ([]models.Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var participants []models.Participant
	for key, p := range m.state.participants {
		if key.threadID == threadID {
			participants = append(participants, p)
		}
	}
	sort.Slice(participants, func(i, j int) bool {
		if !participants[i].CreatedAt.Equal(participants[j].CreatedAt) {
			return participants[i].CreatedAt.Before(participants[j].CreatedAt)
		}
		return participants[i].UserID < participants[j].UserID
	})
	return participants, nil
}

func (m *Memory) UpdateParticipantFlags(ctx context.Context, threadID, userID int64, marked, blocked *bool) (*models.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := participantKey{threadID, userID}
	p, ok := m.state.participants[key]
	if !ok {
		return nil, ErrNotFound
	}
	if marked != nil {
		p.IsMarked = *marked
	}
	if blocked != nil {
		p.IsBlocked = *blocked
	}
	m.state.participants[key] = p
	return &p, nil
}

func (m *Memory) AdvanceLastRead(ctx context.Context, threadID, userID int64, at time.Time) (*models.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := participantKey{threadID, userID}
	p, ok := m.state.participants[key]
	if !ok {
		return nil, ErrNotFound
	}
	if p.LastReadAt == nil || at.After(*p.LastReadAt) {
		p.LastReadAt = &at
		m.state.participants[key] = p
	}
	return &p, nil
}

func (m *Memory) LastReadAt(ctx context.Context, userID int64, threadIDs []int64) (map[int64]*time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	marks := make(map[int64]*time.Time, len(threadIDs))
	for _, id := range threadIDs {
		if p, ok := m.state.participants[participantKey{id, userID}]; ok {
			marks[id] = p.LastReadAt
		}
	}
	return marks, nil
}

func (m *Memory) InsertMessage(ctx context.Context, msg *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.state.threads[msg.ThreadID]; !ok {
		return ErrNotFound
	}
	m.state.nextMessageID++
	msg.ID = m.state.nextMessageID
	m.state.messages[msg.ID] = *msg
	return nil
}

func (m *Memory) FindMessage(ctx context.Context, tenantID, messageID int64) (*models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msg, ok := m.state.messages[messageID]
	if !ok {
		return nil, ErrNotFound
	}
	if _, err := m.liveThread(tenantID, msg.ThreadID); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (m *Memory) UpdateMessageContent(ctx context.Context, messageID int64, content string, at time.Time) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, ok := m.state.messages[messageID]
	if !ok || msg.DeletedAt != nil {
		return nil, ErrNotFound
	}
	msg.Content = content
	msg.IsEdited = true
	msg.UpdatedAt = &at
	m.state.messages[messageID] = msg
	return &msg, nil
}

func (m *Memory) SoftDeleteMessage(ctx context.Context, messageID int64, at time.Time) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, ok := m.state.messages[messageID]
	if !ok || msg.DeletedAt != nil {
		return nil, ErrNotFound
	}
	msg.DeletedAt = &at
	msg.UpdatedAt = &at
	m.state.messages[messageID] = msg
	return &msg, nil
}

// threadMessages returns a thread's messages, newest first
func (m *Memory) threadMessages(threadID int64) []models.Message {
	var out []models.Message
	for _, msg := range m.state.messages {
		if msg.ThreadID == threadID {
			out = append(out, msg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (m *Memory) LastMessage(ctx context.Context, threadID int64) (*models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msgs := m.threadMessages(threadID)
	if len(msgs) == 0 {
		return nil, ErrNotFound
	}
	return &msgs[0], nil
}

func (m *Memory) MessagesBefore(ctx context.Context, threadID, cursor int64, limit int) ([]models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Message
	for _, msg := range m.threadMessages(threadID) {
		if cursor != 0 && msg.ID >= cursor {
			continue
		}
		out = append(out, msg)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) HasMessagesBefore(ctx context.Context, threadID, messageID int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, msg := range m.state.messages {
		if msg.ThreadID == threadID && msg.ID < messageID {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) CountUnread(ctx context.Context, threadID, userID int64, since *time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, msg := range m.state.messages {
		if msg.ThreadID != threadID || msg.DeletedAt != nil || msg.SenderID == userID {
			continue
		}
		if since != nil && !msg.CreatedAt.After(*since) {
			continue
		}
		count++
	}
	return count, nil
}

func (m *Memory) SearchMessages(ctx context.Context, tenantID, userID int64, query string, limit, offset int) ([]models.Message, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	needle := fold(query)

	var matched []models.Message
	for _, msg := range m.state.messages {
		if msg.DeletedAt != nil {
			continue
		}
		if _, err := m.liveThread(tenantID, msg.ThreadID); err != nil {
			continue
		}
		if _, ok := m.state.participants[participantKey{msg.ThreadID, userID}]; !ok {
			continue
		}
		if strings.Contains(fold(msg.Content), needle) {
			matched = append(matched, msg)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })

	return page(matched, limit, offset), len(matched), nil
}

func (m *Memory) UpsertReaction(ctx context.Context, r *models.Reaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := reactionKey{r.MessageID, r.UserID, r.Emoji}
	if _, exists := m.state.reactions[key]; !exists {
		m.state.reactions[key] = *r
	}
	return nil
}

func (m *Memory) DeleteReaction(ctx context.Context, messageID, userID int64, emoji string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.state.reactions, reactionKey{messageID, userID, emoji})
	return nil
}

func (m *Memory) ListReactions(ctx context.Context, messageIDs []int64) (map[int64][]models.Reaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wanted := make(map[int64]bool, len(messageIDs))
	for _, id := range messageIDs {
		wanted[id] = true
	}

	byMessage := make(map[int64][]models.Reaction)
	for key, r := range m.state.reactions {
		if wanted[key.messageID] {
			byMessage[key.messageID] = append(byMessage[key.messageID], r)
		}
	}
	for id := range byMessage {
		rs := byMessage[id]
		sort.Slice(rs, func(i, j int) bool {
			if !rs[i].CreatedAt.Equal(rs[j].CreatedAt) {
				return rs[i].CreatedAt.Before(rs[j].CreatedAt)
			}
			return rs[i].UserID < rs[j].UserID
		})
	}
	return byMessage, nil
}

// a Caser is stateful, so each call gets its own
func fold(s string) string {
	return cases.Fold().String(s)
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
