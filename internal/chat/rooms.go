package chat

import (
	"context"

	"dmcore-backend/internal/apperr"
	"dmcore-backend/internal/logger"
	"dmcore-backend/internal/models"
	"dmcore-backend/internal/repository"

	"github.com/google/uuid"
)

type RoomResolver struct {
	rooms repository.RoomRepo
	log   *logger.Logger
}

func NewRoomResolver(rooms repository.RoomRepo, log *logger.Logger) *RoomResolver {
	return &RoomResolver{rooms: rooms, log: log.With("service", "RoomResolver")}
}

// GetOrCreateDirectRoom is commutative in its two identities.
func (r *RoomResolver) GetOrCreateDirectRoom(ctx context.Context, a, b uuid.UUID) (*models.Room, error) {
	return r.Open(ctx, a, b, models.RoomTypeDirect)
}

// Open finds or creates the room for the unordered pair {a, b}. The type only
// applies when the room is created.
func (r *RoomResolver) Open(ctx context.Context, a, b uuid.UUID, roomType models.RoomType) (*models.Room, error) {
	if a == uuid.Nil || b == uuid.Nil {
		return nil, apperr.InvalidArg("participant id is required")
	}
	if a == b {
		return nil, apperr.ErrSelfRoom
	}
	if roomType == "" {
		roomType = models.RoomTypeDirect
	}
	if !roomType.Valid() {
		return nil, apperr.InvalidArg("unknown room type")
	}

	low, high := models.CanonicalPair(a, b)
	return r.rooms.GetOrCreate(ctx, low, high, roomType)
}

// ForParticipant loads a room the caller belongs to. Non-participants get
// NotFound so room existence is not revealed.
func (r *RoomResolver) ForParticipant(ctx context.Context, roomID, userID uuid.UUID) (*models.Room, error) {
	room, err := r.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.HasParticipant(userID) {
		return nil, apperr.ErrRoomNotFound
	}
	return room, nil
}

// SetBlocked blocks or unblocks a room. Only the participant who blocked it
// may lift the block.
func (r *RoomResolver) SetBlocked(ctx context.Context, roomID, userID uuid.UUID, blocked bool) (*models.Room, error) {
	room, err := r.ForParticipant(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}
	if blocked {
		if room.IsBlocked {
			return room, nil
		}
		r.log.Info("Room blocked", "roomID", roomID, "userID", userID)
		return r.rooms.SetBlocked(ctx, roomID, true, &userID)
	}

	if !room.IsBlocked {
		return room, nil
	}
	if room.BlockedBy != nil && *room.BlockedBy != userID {
		return nil, apperr.Unauthorized("only the participant who blocked this room can unblock it")
	}
	r.log.Info("Room unblocked", "roomID", roomID, "userID", userID)
	return r.rooms.SetBlocked(ctx, roomID, false, nil)
}
