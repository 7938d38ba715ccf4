// Package chat is the conversation engine: thread access control, thread and
// message lifecycle, reactions, read state and the data shaping behind every
// real-time push.
package chat

import (
	"context"
	"time"

	"chatengine/server/internal/storage"
	"chatengine/server/internal/store"
	"chatengine/server/internal/websocket"
)

// Sanitizer turns user input into safe text
type Sanitizer interface {
	Sanitize(text string) string
}

// BlobStore keeps attachment bytes outside the database
type BlobStore interface {
	Upload(ctx context.Context, data []byte, name, mimeType, folder string) (storage.Uploaded, error)
	Delete(ctx context.Context, path string) error
}

// Notifier pushes events to connected sessions. Delivery is best effort.
type Notifier interface {
	ToUsers(userIDs []int64, ev websocket.Event)
	ToThread(threadID int64, ev websocket.Event)
}

// Actor is the authenticated caller of an engine operation
type Actor struct {
	TenantID int64
	UserID   int64
}

type Engine struct {
	store     store.Store
	sanitizer Sanitizer
	blobs     BlobStore
	notifier  Notifier
	now       func() time.Time
}

type Option func(*Engine)

// WithBlobStore enables attachment messages
func WithBlobStore(b BlobStore) Option {
	return func(e *Engine) { e.blobs = b }
}

// WithClock replaces time.Now, mostly for tests
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(st store.Store, sanitizer Sanitizer, notifier Notifier, opts ...Option) *Engine {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	e := &Engine{
		store:     st,
		sanitizer: sanitizer,
		notifier:  notifier,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// timestamps are stored with microsecond precision, so they are cut here to
// keep in-process values equal to what a re-read returns
func (e *Engine) clock() time.Time {
	return e.now().UTC().Truncate(time.Microsecond)
}

type nopNotifier struct{}

func (nopNotifier) ToUsers([]int64, websocket.Event) {}
func (nopNotifier) ToThread(int64, websocket.Event)  {}
