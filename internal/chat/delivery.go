package chat

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"dmcore-backend/internal/apperr"
	"dmcore-backend/internal/logger"
	"dmcore-backend/internal/models"
	"dmcore-backend/internal/push"
	"dmcore-backend/internal/realtime"
	"dmcore-backend/internal/repository"

	"github.com/google/uuid"
)

const (
	maxPayloadChars = 4000
	defaultPageSize = 50
	maxPageSize     = 100
	pushTimeout     = 3 * time.Second
)

// Content is what a participant submits when sending a message.
type Content struct {
	Type     models.MessageType
	Payload  string
	MediaRef *string
}

func (c *Content) normalize() error {
	if c.Type == "" {
		c.Type = models.MessageTypeText
	}
	if !c.Type.Valid() {
		return apperr.ErrUnknownType
	}
	if utf8.RuneCountInString(c.Payload) > maxPayloadChars {
		return apperr.InvalidArg("message payload is too long")
	}
	if c.MediaRef != nil && strings.TrimSpace(*c.MediaRef) == "" {
		c.MediaRef = nil
	}

	switch c.Type {
	case models.MessageTypeText, models.MessageTypeSharedContent:
		if strings.TrimSpace(c.Payload) == "" {
			return apperr.ErrEmptyPayload
		}
	case models.MessageTypeImage:
		if c.MediaRef == nil {
			return apperr.ErrMissingMedia
		}
	case models.MessageTypeSnap:
		return apperr.InvalidArg("snap messages are created through snap send")
	}
	return nil
}

// DeliveryCoordinator drives the Sent -> Delivered -> Seen state machine and
// keeps room snapshots and unread counters in step with it.
type DeliveryCoordinator struct {
	rooms     *RoomResolver
	roomRepo  repository.RoomRepo
	messages  repository.MessageRepo
	unread    *UnreadCounter
	presence  Presence
	push      push.Dispatcher
	directory Directory
	log       *logger.Logger
	now       func() time.Time
}

// Send persists a message from sender into room and projects it to both
// participants.
func (d *DeliveryCoordinator) Send(ctx context.Context, roomID, senderID uuid.UUID, content Content) (*models.Message, error) {
	room, err := d.rooms.ForParticipant(ctx, roomID, senderID)
	if err != nil {
		return nil, err
	}
	if room.IsBlocked {
		return nil, apperr.ErrRoomBlocked
	}
	if err := content.normalize(); err != nil {
		return nil, err
	}

	msg, err := d.messages.Create(ctx, &models.Message{
		RoomID:   room.ID,
		SenderID: senderID,
		Type:     content.Type,
		Payload:  content.Payload,
		MediaRef: content.MediaRef,
	})
	if err != nil {
		return nil, err
	}

	d.project(ctx, room, msg)
	return msg, nil
}

// project runs everything that follows a persisted message. The message row
// is the primary write; failures here are logged and do not undo it. The
// follow-up writes run detached so a dropped caller cannot leave the message
// uncounted.
func (d *DeliveryCoordinator) project(ctx context.Context, room *models.Room, msg *models.Message) {
	ctx = context.WithoutCancel(ctx)
	recipient := room.Other(msg.SenderID)
	log := d.log.With("roomID", room.ID, "messageID", msg.ID)

	if d.presence.IsOnline(recipient) {
		promoted, err := d.messages.MarkDelivered(ctx, msg.ID)
		if err != nil {
			log.Warn("Failed to mark message delivered", "error", err)
		} else if promoted {
			msg.Status = models.StatusDelivered
			d.presence.Send(msg.SenderID, realtime.MessageDelivered{
				MessageID: msg.ID,
				RoomID:    room.ID,
				Status:    models.StatusDelivered,
			})
		}
	} else {
		d.notifyOffline(ctx, recipient, msg)
	}

	ev := realtime.NewMessage{Message: msg}
	d.presence.Send(recipient, ev)
	d.presence.Send(msg.SenderID, ev)

	if err := d.roomRepo.UpdateSnapshot(ctx, room.ID, msg.Preview(), msg.Type, msg.CreatedAt); err != nil {
		log.Error("Failed to update room snapshot", "error", err)
	}
	if _, err := d.unread.Increment(ctx, room.ID, recipient); err != nil {
		log.Error("Failed to increment unread counter", "userID", recipient, "error", err)
	}
	if _, err := d.unread.Reset(ctx, room.ID, msg.SenderID, &msg.ID, msg.CreatedAt); err != nil {
		log.Error("Failed to reset sender cursor", "userID", msg.SenderID, "error", err)
	}
}

func (d *DeliveryCoordinator) notifyOffline(ctx context.Context, recipient uuid.UUID, msg *models.Message) {
	if d.push == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, pushTimeout)
	defer cancel()

	var senderName string
	if d.directory != nil {
		if p, err := d.directory.GetProfile(ctx, msg.SenderID); err != nil {
			d.log.Debug("Sender profile lookup failed", "userID", msg.SenderID, "error", err)
		} else if p != nil {
			senderName = p.DisplayName
		}
	}

	err := d.push.Notify(ctx, push.Notification{
		RecipientID: recipient,
		SenderID:    msg.SenderID,
		SenderName:  senderName,
		RoomID:      msg.RoomID,
		MessageID:   msg.ID,
		Type:        string(msg.Type),
		Preview:     msg.Preview(),
		CreatedAt:   msg.CreatedAt,
	})
	if err != nil {
		d.log.Warn("Push notification failed", "recipientID", recipient, "messageID", msg.ID, "error", err)
	}
}

// MarkRead moves userID's cursor to upTo (or the room's latest message) and
// marks every earlier message from the other participant as Seen.
func (d *DeliveryCoordinator) MarkRead(ctx context.Context, roomID, userID uuid.UUID, upTo *uuid.UUID) (*models.ParticipantCursor, error) {
	room, err := d.rooms.ForParticipant(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}

	var target *models.Message
	if upTo != nil {
		target, err = d.messages.GetByID(ctx, *upTo)
		if apperr.CodeOf(err) == apperr.CodeNotFound {
			return nil, apperr.ErrForeignMessage
		}
		if err != nil {
			return nil, err
		}
		if target.RoomID != room.ID {
			return nil, apperr.ErrForeignMessage
		}
	} else {
		target, err = d.messages.Latest(ctx, room.ID)
		if apperr.CodeOf(err) == apperr.CodeNotFound {
			target, err = nil, nil
		}
		if err != nil {
			return nil, err
		}
	}

	// Statuses move before the counter so a failed bulk update never leaves
	// a zeroed counter over unseen messages.
	ctx = context.WithoutCancel(ctx)
	at := d.now()
	var targetID *uuid.UUID
	if target != nil {
		targetID = &target.ID
		n, err := d.messages.MarkSeenUpTo(ctx, room.ID, userID, target.CreatedAt)
		if err != nil {
			return nil, err
		}
		d.log.Debug("Messages seen", "roomID", room.ID, "userID", userID, "count", n)
	}
	cursor, err := d.unread.Reset(ctx, room.ID, userID, targetID, at)
	if err != nil {
		return nil, err
	}

	ev := realtime.MessagesRead{
		RoomID:            room.ID,
		UserID:            userID,
		LastReadMessageID: targetID,
		LastReadAt:        at,
	}
	d.presence.Send(room.Other(userID), ev)
	d.presence.Send(userID, ev)
	return cursor, nil
}

// PromotePending delivers every Sent message waiting for userID and tells
// each online sender. Called when userID connects.
func (d *DeliveryCoordinator) PromotePending(ctx context.Context, userID uuid.UUID) (int, error) {
	msgs, err := d.messages.PromotePending(ctx, userID)
	if err != nil {
		return 0, err
	}
	for _, m := range msgs {
		d.presence.Send(m.SenderID, realtime.MessageDelivered{
			MessageID: m.ID,
			RoomID:    m.RoomID,
			Status:    models.StatusDelivered,
		})
	}
	if len(msgs) > 0 {
		d.log.Debug("Pending messages delivered", "userID", userID, "count", len(msgs))
	}
	return len(msgs), nil
}

// Join ensures the caller's cursor exists and announces them to the peer.
func (d *DeliveryCoordinator) Join(ctx context.Context, roomID, userID uuid.UUID) (*models.ParticipantCursor, error) {
	room, err := d.rooms.ForParticipant(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}
	cursor, err := d.unread.Ensure(ctx, room.ID, userID)
	if err != nil {
		return nil, err
	}
	d.presence.Send(room.Other(userID), realtime.UserJoined{UserID: userID, RoomID: room.ID})
	return cursor, nil
}

func (d *DeliveryCoordinator) Leave(ctx context.Context, roomID, userID uuid.UUID) error {
	room, err := d.rooms.ForParticipant(ctx, roomID, userID)
	if err != nil {
		return err
	}
	d.presence.Send(room.Other(userID), realtime.UserLeft{UserID: userID, RoomID: room.ID})
	return nil
}

// History pages backwards through a room, newest first.
func (d *DeliveryCoordinator) History(ctx context.Context, roomID, userID uuid.UUID, before *time.Time, limit int) ([]*models.Message, error) {
	if _, err := d.rooms.ForParticipant(ctx, roomID, userID); err != nil {
		return nil, err
	}
	return d.messages.List(ctx, roomID, before, clampPage(limit))
}

func (d *DeliveryCoordinator) ListRooms(ctx context.Context, userID uuid.UUID, limit int) ([]*models.RoomSummary, error) {
	return d.roomRepo.ListForUser(ctx, userID, clampPage(limit))
}

func (d *DeliveryCoordinator) TotalUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	return d.unread.Total(ctx, userID)
}

func clampPage(limit int) int {
	if limit <= 0 {
		return defaultPageSize
	}
	if limit > maxPageSize {
		return maxPageSize
	}
	return limit
}
