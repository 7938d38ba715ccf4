package websocket

import (
	"encoding/json"
	"time"

	"chatengine/server/internal/models"
)

// EventKind tags every frame pushed to clients
type EventKind string

const (
	EventMessage       EventKind = "message"
	EventThread        EventKind = "thread"
	EventTyping        EventKind = "typing"
	EventReaction      EventKind = "reaction"
	EventMessageEdit   EventKind = "messageEdit"
	EventMessageDelete EventKind = "messageDelete"
	EventPresence      EventKind = "presence"
	EventRead          EventKind = "read"
)

// Inbound signals. They are never persisted.
const (
	SignalJoinThread  = "joinThread"
	SignalLeaveThread = "leaveThread"
	SignalTyping      = "typing"
)

// Event is one variant of the outbound catalogue
type Event interface {
	Kind() EventKind
}

// MessageEvent carries a newly sent message
type MessageEvent models.MessageDTO

// ThreadEvent carries a thread summary computed for its recipient
type ThreadEvent models.ThreadDTO

// MessageEditEvent carries the edited message
type MessageEditEvent models.MessageDTO

// MessageDeleteEvent carries the redacted message
type MessageDeleteEvent models.MessageDTO

type TypingEvent struct {
	ThreadID int64  `json:"threadId"`
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
}

type ReactionAction string

const (
	ReactionAdded   ReactionAction = "add"
	ReactionRemoved ReactionAction = "remove"
)

type ReactionEvent struct {
	MessageID int64          `json:"messageId"`
	ThreadID  int64          `json:"threadId"`
	Emoji     string         `json:"emoji"`
	UserID    int64          `json:"userId"`
	Action    ReactionAction `json:"action"`
}

type PresenceEvent struct {
	UserID     int64                 `json:"userId"`
	Status     models.PresenceStatus `json:"status"`
	LastSeenAt *time.Time            `json:"lastSeenAt,omitempty"`
}

type ReadEvent struct {
	ThreadID int64     `json:"threadId"`
	UserID   int64     `json:"userId"`
	ReadAt   time.Time `json:"readAt"`
}

func (MessageEvent) Kind() EventKind       { return EventMessage }
func (ThreadEvent) Kind() EventKind        { return EventThread }
func (MessageEditEvent) Kind() EventKind   { return EventMessageEdit }
func (MessageDeleteEvent) Kind() EventKind { return EventMessageDelete }
func (TypingEvent) Kind() EventKind        { return EventTyping }
func (ReactionEvent) Kind() EventKind      { return EventReaction }
func (PresenceEvent) Kind() EventKind      { return EventPresence }
func (ReadEvent) Kind() EventKind          { return EventRead }

// WSMessage is the frame written to the socket
type WSMessage struct {
	Type      EventKind `json:"type"`
	Payload   Event     `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// Encode wraps an event in its envelope and serializes it once, so fan-out
// to many sessions shares the same bytes
func Encode(ev Event) ([]byte, error) {
	return json.Marshal(WSMessage{
		Type:      ev.Kind(),
		Payload:   ev,
		Timestamp: time.Now().UTC(),
	})
}

// IncomingMessage represents signals received from clients
type IncomingMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type ThreadSignal struct {
	ThreadID int64 `json:"threadId"`
}

type TypingSignal struct {
	ThreadID int64 `json:"threadId"`
	IsTyping bool  `json:"isTyping"`
}
