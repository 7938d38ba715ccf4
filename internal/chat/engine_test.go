package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chatengine/server/internal/models"
	"chatengine/server/internal/sanitize"
	"chatengine/server/internal/storage"
	"chatengine/server/internal/store"
	"chatengine/server/internal/websocket"
)

type pushed struct {
	userIDs  []int64
	threadID int64
	event    websocket.Event
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []pushed
}

func (n *recordingNotifier) ToUsers(userIDs []int64, ev websocket.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, pushed{userIDs: append([]int64(nil), userIDs...), event: ev})
}

func (n *recordingNotifier) ToThread(threadID int64, ev websocket.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, pushed{threadID: threadID, event: ev})
}

func (n *recordingNotifier) ofKind(kind websocket.EventKind) []pushed {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []pushed
	for _, p := range n.events {
		if p.event.Kind() == kind {
			out = append(out, p)
		}
	}
	return out
}

func (n *recordingNotifier) reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = nil
}

type fakeBlobs struct {
	uploaded []string
	deleted  []string
	fail     error
}

func (b *fakeBlobs) Upload(ctx context.Context, data []byte, name, mimeType, folder string) (storage.Uploaded, error) {
	if b.fail != nil {
		return storage.Uploaded{}, b.fail
	}
	path := folder + "/" + name
	b.uploaded = append(b.uploaded, path)
	return storage.Uploaded{Path: path, PublicURL: "https://cdn.test/" + path}, nil
}

func (b *fakeBlobs) Delete(ctx context.Context, path string) error {
	b.deleted = append(b.deleted, path)
	return nil
}

// tickingClock advances one second per reading so every write gets a
// distinct timestamp
type tickingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type fixture struct {
	ctx      context.Context
	store    *store.Memory
	notifier *recordingNotifier
	blobs    *fakeBlobs
	engine   *Engine
}

const tenant = int64(1)

func actor(id int64) Actor {
	return Actor{TenantID: tenant, UserID: id}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st := store.NewMemory()
	for _, u := range []models.ChatUser{
		{ID: 1, TenantID: tenant, Username: "alice"},
		{ID: 2, TenantID: tenant, Username: "bob"},
		{ID: 3, TenantID: tenant, Username: "carol"},
		{ID: 4, TenantID: tenant, Username: "dave"},
		{ID: 9, TenantID: 2, Username: "mallory"},
	} {
		st.PutUser(u)
	}

	clock := &tickingClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	notifier := &recordingNotifier{}
	blobs := &fakeBlobs{}

	return &fixture{
		ctx:      context.Background(),
		store:    st,
		notifier: notifier,
		blobs:    blobs,
		engine:   NewEngine(st, sanitize.New(), notifier, WithBlobStore(blobs), WithClock(clock.Now)),
	}
}

func (f *fixture) direct(t *testing.T, from, to int64) *models.ThreadDTO {
	t.Helper()
	dto, err := f.engine.CreateThread(f.ctx, actor(from), CreateThreadInput{ParticipantIDs: []int64{to}})
	require.NoError(t, err)
	return dto
}

func (f *fixture) send(t *testing.T, from, threadID int64, content string) *models.MessageDTO {
	t.Helper()
	msg, err := f.engine.SendMessage(f.ctx, actor(from), threadID, content)
	require.NoError(t, err)
	return msg
}

func (f *fixture) unread(t *testing.T, userID, threadID int64) int {
	t.Helper()
	n, err := f.engine.UnreadCount(f.ctx, actor(userID), threadID)
	require.NoError(t, err)
	return n
}

func ptr[T any](v T) *T {
	return &v
}

var errBoom = errors.New("boom")
