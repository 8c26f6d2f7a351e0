package models

import (
	"time"

	"github.com/google/uuid"
)

type MessageType string

const (
	MessageTypeText          MessageType = "text"
	MessageTypeImage         MessageType = "image"
	MessageTypeSnap          MessageType = "snap"
	MessageTypeSharedContent MessageType = "shared_content"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeSnap, MessageTypeSharedContent:
		return true
	}
	return false
}

type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusSeen      MessageStatus = "seen"
)

// Rank orders statuses along Sent -> Delivered -> Seen.
func (s MessageStatus) Rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusSeen:
		return 3
	}
	return 0
}

// Advances reports whether moving from s to next is a forward transition.
func (s MessageStatus) Advances(next MessageStatus) bool {
	return next.Rank() > s.Rank()
}

type Message struct {
	ID        uuid.UUID     `json:"id" db:"id"`
	RoomID    uuid.UUID     `json:"room_id" db:"room_id"`
	SenderID  uuid.UUID     `json:"sender_id" db:"sender_id"`
	Type      MessageType   `json:"type" db:"type"`
	Payload   string        `json:"payload" db:"payload"`
	MediaRef  *string       `json:"media_ref,omitempty" db:"media_ref"`
	Status    MessageStatus `json:"status" db:"status"`
	CreatedAt time.Time     `json:"created_at" db:"created_at"`
}

// Preview is the text stored in the room's last-message snapshot.
func (m *Message) Preview() string {
	switch m.Type {
	case MessageTypeText:
		return m.Payload
	case MessageTypeImage:
		return "Photo"
	case MessageTypeSnap:
		return "Snap"
	case MessageTypeSharedContent:
		return "Shared a post"
	}
	return ""
}
