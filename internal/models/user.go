package models

import (
	"github.com/google/uuid"
)

// Profile is the display data the user directory returns for an identity.
type Profile struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name"`
	Avatar      string    `json:"avatar"`
}

type OpenRoomRequest struct {
	PeerID string   `json:"peer_id" binding:"required,uuid"`
	Type   RoomType `json:"type"`
}

type SendMessageRequest struct {
	Type     MessageType `json:"type" binding:"required"`
	Payload  string      `json:"payload"`
	MediaRef *string     `json:"media_ref"`
}

type SendSnapRequest struct {
	RecipientIDs     []string `json:"recipient_ids" binding:"required,min=1"`
	MediaRef         string   `json:"media_ref" binding:"required"`
	ExpiresInSeconds int      `json:"expires_in_seconds"`
}

type MarkReadRequest struct {
	LastReadMessageID *string `json:"last_read_message_id"`
}
