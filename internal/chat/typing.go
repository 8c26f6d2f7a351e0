package chat

import (
	"context"

	"dmcore-backend/internal/logger"
	"dmcore-backend/internal/realtime"

	"github.com/google/uuid"
)

// TypingBroadcaster relays transient typing signals. Nothing is persisted
// and a dropped signal is never retried.
type TypingBroadcaster struct {
	rooms    *RoomResolver
	presence Presence
	log      *logger.Logger
}

func (t *TypingBroadcaster) Start(ctx context.Context, roomID, userID uuid.UUID) error {
	return t.relay(ctx, roomID, userID, true)
}

func (t *TypingBroadcaster) Stop(ctx context.Context, roomID, userID uuid.UUID) error {
	return t.relay(ctx, roomID, userID, false)
}

func (t *TypingBroadcaster) relay(ctx context.Context, roomID, userID uuid.UUID, typing bool) error {
	room, err := t.rooms.ForParticipant(ctx, roomID, userID)
	if err != nil {
		return err
	}
	peer := room.Other(userID)
	if !t.presence.Send(peer, realtime.UserTyping{UserID: userID, RoomID: room.ID, IsTyping: typing}) {
		t.log.Debug("Typing signal dropped", "roomID", room.ID, "peerID", peer)
	}
	return nil
}
