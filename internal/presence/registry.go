package presence

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrSessionNotFound = errors.New("session not found")

// Session is one live gateway connection
type Session struct {
	ID          string    `msgpack:"id"`
	TenantID    int64     `msgpack:"tenantId"`
	UserID      int64     `msgpack:"userId"`
	ConnectedAt time.Time `msgpack:"connectedAt"`
}

// SessionRegistry maps live sessions to users. The in-memory registry is
// enough for one gateway; horizontally scaled gateways need a shared one or
// presence drifts between instances.
type SessionRegistry interface {
	// RegisterSession returns the user's live session count including s
	RegisterSession(ctx context.Context, s Session) (int, error)
	LookupSession(ctx context.Context, sessionID string) (*Session, error)
	// RemoveSession returns the removed session and how many the user still has
	RemoveSession(ctx context.Context, sessionID string) (*Session, int, error)
	UserSessionCount(ctx context.Context, userID int64) (int, error)
	// Reset forgets every session, live or not
	Reset(ctx context.Context) error
}

// MemoryRegistry keeps sessions in process memory; they are lost on restart
type MemoryRegistry struct {
	mu       sync.RWMutex
	sessions map[string]Session
	byUser   map[int64]map[string]struct{}
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		sessions: make(map[string]Session),
		byUser:   make(map[int64]map[string]struct{}),
	}
}

func (r *MemoryRegistry) RegisterSession(ctx context.Context, s Session) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[s.ID] = s
	ids, ok := r.byUser[s.UserID]
	if !ok {
		ids = make(map[string]struct{})
		r.byUser[s.UserID] = ids
	}
	ids[s.ID] = struct{}{}
	return len(ids), nil
}

func (r *MemoryRegistry) LookupSession(ctx context.Context, sessionID string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return &s, nil
}

func (r *MemoryRegistry) RemoveSession(ctx context.Context, sessionID string) (*Session, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, 0, ErrSessionNotFound
	}
	delete(r.sessions, sessionID)

	ids := r.byUser[s.UserID]
	delete(ids, sessionID)
	remaining := len(ids)
	if remaining == 0 {
		delete(r.byUser, s.UserID)
	}
	return &s, remaining, nil
}

func (r *MemoryRegistry) UserSessionCount(ctx context.Context, userID int64) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]), nil
}

func (r *MemoryRegistry) Reset(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions = make(map[string]Session)
	r.byUser = make(map[int64]map[string]struct{})
	return nil
}
