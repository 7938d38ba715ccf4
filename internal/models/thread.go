package models

import (
	"fmt"
	"time"
)

// Thread is a conversation container, direct (two members) or group
type Thread struct {
	ID        int64      `json:"id" db:"id"`
	TenantID  int64      `json:"-" db:"tenant_id"`
	IsGroup   bool       `json:"isGroup" db:"is_group"`
	Title     *string    `json:"title,omitempty" db:"title"`
	DirectKey *string    `json:"-" db:"direct_key"` // canonical user pair, set for direct threads only
	CreatedBy int64      `json:"createdBy" db:"created_by"`
	CreatedAt time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time  `json:"updatedAt" db:"updated_at"`
	DeletedAt *time.Time `json:"-" db:"deleted_at"`
}

// Participant is a user's membership in a thread with their per-user flags
type Participant struct {
	ThreadID   int64      `json:"threadId" db:"thread_id"`
	UserID     int64      `json:"userId" db:"user_id"`
	IsBlocked  bool       `json:"isBlocked" db:"is_blocked"`
	IsMarked   bool       `json:"isMarked" db:"is_marked"`
	LastReadAt *time.Time `json:"lastReadAt,omitempty" db:"last_read_at"`
	CreatedAt  time.Time  `json:"createdAt" db:"created_at"`
}

// DirectKey builds the order-independent key for a two-party thread
func DirectKey(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}

// ParticipantDTO is a participant as shown to clients
type ParticipantDTO struct {
	ChatUser
	IsBlocked  bool       `json:"isBlocked"`
	IsMarked   bool       `json:"isMarked"`
	LastReadAt *time.Time `json:"lastReadAt,omitempty"`
}

// ThreadDTO is the thread summary. IsMarked, IsBlocked and UnreadCount are
// always from the viewer's point of view.
type ThreadDTO struct {
	ID           int64            `json:"id"`
	IsGroup      bool             `json:"isGroup"`
	Title        *string          `json:"title,omitempty"`
	CreatedBy    int64            `json:"createdBy"`
	CreatedAt    time.Time        `json:"createdAt"`
	UpdatedAt    time.Time        `json:"updatedAt"`
	Participants []ParticipantDTO `json:"participants"`
	LastMessage  *MessageDTO      `json:"lastMessage,omitempty"`
	UnreadCount  int              `json:"unreadCount"`
	IsMarked     bool             `json:"isMarked"`
	IsBlocked    bool             `json:"isBlocked"`
}
