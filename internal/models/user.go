package models

import "time"

// PresenceStatus is the durable online state of a chat user
type PresenceStatus string

const (
	PresenceActive   PresenceStatus = "ACTIVE"
	PresenceInactive PresenceStatus = "INACTIVE"
)

// Valid reports whether s is one of the known statuses
func (s PresenceStatus) Valid() bool {
	return s == PresenceActive || s == PresenceInactive
}

// ChatUser is the chat-side projection of an account. Accounts are owned by the
// identity system; only presence is written from here.
type ChatUser struct {
	ID              int64          `json:"id" db:"id"`
	TenantID        int64          `json:"-" db:"tenant_id"`
	Username        string         `json:"username" db:"username"`
	FullName        *string        `json:"fullName,omitempty" db:"full_name"`
	ProfileImageURL *string        `json:"profileImageUrl,omitempty" db:"profile_image_url"`
	PresenceStatus  PresenceStatus `json:"presenceStatus" db:"presence_status"`
	LastSeenAt      *time.Time     `json:"lastSeenAt,omitempty" db:"last_seen_at"`
}
