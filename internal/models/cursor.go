package models

import (
	"time"

	"github.com/google/uuid"
)

// ParticipantCursor is a user's read watermark in one room.
type ParticipantCursor struct {
	RoomID            uuid.UUID  `json:"room_id" db:"room_id"`
	UserID            uuid.UUID  `json:"user_id" db:"user_id"`
	LastReadMessageID *uuid.UUID `json:"last_read_message_id,omitempty" db:"last_read_message_id"`
	LastReadAt        *time.Time `json:"last_read_at,omitempty" db:"last_read_at"`
	UnreadCount       int        `json:"unread_count" db:"unread_count"`
}
