package models

import (
	"bytes"
	"time"

	"github.com/google/uuid"
)

type RoomType string

const (
	RoomTypeDirect         RoomType = "direct"
	RoomTypeSupportRequest RoomType = "support_request"
)

func (t RoomType) Valid() bool {
	return t == RoomTypeDirect || t == RoomTypeSupportRequest
}

type Room struct {
	ID              uuid.UUID    `json:"id" db:"id"`
	ParticipantLow  uuid.UUID    `json:"participant_low" db:"participant_low"`
	ParticipantHigh uuid.UUID    `json:"participant_high" db:"participant_high"`
	Type            RoomType     `json:"type" db:"type"`
	IsBlocked       bool         `json:"is_blocked" db:"is_blocked"`
	BlockedBy       *uuid.UUID   `json:"blocked_by,omitempty" db:"blocked_by"`
	LastMessageText string       `json:"last_message_text" db:"last_message_text"`
	LastMessageType *MessageType `json:"last_message_type,omitempty" db:"last_message_type"`
	LastMessageAt   *time.Time   `json:"last_message_at,omitempty" db:"last_message_at"`
	CreatedAt       time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at" db:"updated_at"`
}

// CanonicalPair orders two identities so the pair key is commutative.
func CanonicalPair(a, b uuid.UUID) (low, high uuid.UUID) {
	if bytes.Compare(a[:], b[:]) <= 0 {
		return a, b
	}
	return b, a
}

func (r *Room) HasParticipant(userID uuid.UUID) bool {
	return r.ParticipantLow == userID || r.ParticipantHigh == userID
}

// Other returns the participant that is not userID.
func (r *Room) Other(userID uuid.UUID) uuid.UUID {
	if r.ParticipantLow == userID {
		return r.ParticipantHigh
	}
	return r.ParticipantLow
}

// RoomSummary is a list-view row: the room plus the caller's unread count.
type RoomSummary struct {
	Room
	PeerID      uuid.UUID `json:"peer_id"`
	UnreadCount int       `json:"unread_count"`
}
