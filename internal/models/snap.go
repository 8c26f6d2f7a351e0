package models

import (
	"time"

	"github.com/google/uuid"
)

type SnapRecipient struct {
	RecipientID uuid.UUID  `json:"recipient_id" db:"recipient_id"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty" db:"delivered_at"`
	ViewedAt    *time.Time `json:"viewed_at,omitempty" db:"viewed_at"`
	Viewed      bool       `json:"viewed" db:"viewed"`
}

// Snap is the source of truth for view-once and expiry. Chat messages of type
// "snap" only point at it for display.
type Snap struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	SenderID   uuid.UUID       `json:"sender_id" db:"sender_id"`
	Recipients []SnapRecipient `json:"recipients"`
	MediaRef   string          `json:"media_ref" db:"media_ref"`
	ExpiresAt  time.Time       `json:"expires_at" db:"expires_at"`
	IsExpired  bool            `json:"is_expired" db:"is_expired"`
	ViewCount  int             `json:"view_count" db:"view_count"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

func (s *Snap) Recipient(userID uuid.UUID) (*SnapRecipient, bool) {
	for i := range s.Recipients {
		if s.Recipients[i].RecipientID == userID {
			return &s.Recipients[i], true
		}
	}
	return nil, false
}

func (s *Snap) ExpiredAt(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

type DeliveryOutcome string

const (
	OutcomeDelivered DeliveryOutcome = "delivered"
	OutcomeBlocked   DeliveryOutcome = "blocked"
	OutcomeFailed    DeliveryOutcome = "failed"
)

// RecipientDelivery reports what fan-out did for one recipient.
type RecipientDelivery struct {
	RecipientID uuid.UUID       `json:"recipient_id"`
	Outcome     DeliveryOutcome `json:"outcome"`
	RoomID      *uuid.UUID      `json:"room_id,omitempty"`
	MessageID   *uuid.UUID      `json:"message_id,omitempty"`
	DeliveredAt *time.Time      `json:"delivered_at,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// MediaCredential is a short-lived grant to fetch snap media.
type MediaCredential struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

type SnapView struct {
	Snap       *Snap            `json:"snap"`
	Recipient  SnapRecipient    `json:"recipient"`
	FirstView  bool             `json:"first_view"`
	Credential *MediaCredential `json:"credential"`
}
