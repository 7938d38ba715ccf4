package models

import "time"

// Attachment types, derived from the uploaded MIME type
const (
	AttachmentImage = "image"
	AttachmentVideo = "video"
	AttachmentAudio = "audio"
	AttachmentFile  = "file"
)

// DeletedPlaceholder replaces the content of soft-deleted messages
const DeletedPlaceholder = "This message was deleted"

// Message is a stored chat message. Content and attachment fields stay in
// storage after a soft delete; they are redacted when mapped to a MessageDTO.
type Message struct {
	ID             int64      `json:"id" db:"id"`
	ThreadID       int64      `json:"threadId" db:"thread_id"`
	SenderID       int64      `json:"senderId" db:"sender_id"`
	Content        string     `json:"content" db:"content"`
	AttachmentURL  *string    `json:"attachmentUrl,omitempty" db:"attachment_url"`
	AttachmentType *string    `json:"attachmentType,omitempty" db:"attachment_type"`
	AttachmentName *string    `json:"attachmentName,omitempty" db:"attachment_name"`
	AttachmentPath *string    `json:"-" db:"attachment_path"`
	IsEdited       bool       `json:"isEdited" db:"is_edited"`
	DeletedAt      *time.Time `json:"deletedAt,omitempty" db:"deleted_at"`
	CreatedAt      time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt      *time.Time `json:"updatedAt,omitempty" db:"updated_at"`
}

// IsDeleted reports whether the message has been soft-deleted
func (m *Message) IsDeleted() bool {
	return m.DeletedAt != nil
}

// MessageDTO is what clients see
type MessageDTO struct {
	ID             int64           `json:"id"`
	ThreadID       int64           `json:"threadId"`
	SenderID       int64           `json:"senderId"`
	Sender         *ChatUser       `json:"sender,omitempty"`
	Content        string          `json:"content"`
	AttachmentURL  *string         `json:"attachmentUrl"`
	AttachmentType *string         `json:"attachmentType"`
	AttachmentName *string         `json:"attachmentName"`
	IsEdited       bool            `json:"isEdited"`
	IsDeleted      bool            `json:"isDeleted"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      *time.Time      `json:"updatedAt,omitempty"`
	Reactions      []ReactionGroup `json:"reactions"`
}
