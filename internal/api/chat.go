package api

import (
	"net/http"
	"time"

	"dmcore-backend/internal/apperr"
	"dmcore-backend/internal/chat"
	"dmcore-backend/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type ChatHandler struct {
	svc *chat.Services
}

func NewChatHandler(svc *chat.Services) *ChatHandler {
	return &ChatHandler{svc: svc}
}

// ListRooms returns the caller's rooms with their unread counts.
func (h *ChatHandler) ListRooms(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	rooms, err := h.svc.Delivery.ListRooms(c.Request.Context(), userID, queryLimit(c))
	if err != nil {
		respondError(c, err)
		return
	}
	if rooms == nil {
		rooms = []*models.RoomSummary{}
	}
	c.JSON(http.StatusOK, rooms)
}

// OpenRoom finds or creates the room between the caller and peer_id.
func (h *ChatHandler) OpenRoom(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req models.OpenRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	peerID, err := uuid.Parse(req.PeerID)
	if err != nil {
		respondError(c, apperr.InvalidArg("invalid peer_id"))
		return
	}

	room, err := h.svc.Rooms.Open(c.Request.Context(), userID, peerID, req.Type)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

// GetMessages pages through a room's history, newest first.
func (h *ChatHandler) GetMessages(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	roomID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var before *time.Time
	if raw := c.Query("before"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			respondError(c, apperr.InvalidArg("before must be an RFC3339 timestamp"))
			return
		}
		before = &t
	}

	msgs, err := h.svc.Delivery.History(c.Request.Context(), roomID, userID, before, queryLimit(c))
	if err != nil {
		respondError(c, err)
		return
	}
	if msgs == nil {
		msgs = []*models.Message{}
	}
	c.JSON(http.StatusOK, msgs)
}

// SendMessage is the REST twin of the send_message event.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	roomID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req models.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	msg, err := h.svc.Delivery.Send(c.Request.Context(), roomID, userID, chat.Content{
		Type:     req.Type,
		Payload:  req.Payload,
		MediaRef: req.MediaRef,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// MarkRead is the REST twin of the mark_read event.
func (h *ChatHandler) MarkRead(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	roomID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req models.MarkReadRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, err)
			return
		}
	}

	var upTo *uuid.UUID
	if req.LastReadMessageID != nil {
		id, err := uuid.Parse(*req.LastReadMessageID)
		if err != nil {
			respondError(c, apperr.InvalidReference("invalid last_read_message_id"))
			return
		}
		upTo = &id
	}

	cursor, err := h.svc.Delivery.MarkRead(c.Request.Context(), roomID, userID, upTo)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cursor)
}

func (h *ChatHandler) BlockRoom(c *gin.Context)   { h.setBlocked(c, true) }
func (h *ChatHandler) UnblockRoom(c *gin.Context) { h.setBlocked(c, false) }

func (h *ChatHandler) setBlocked(c *gin.Context, blocked bool) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	roomID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	room, err := h.svc.Rooms.SetBlocked(c.Request.Context(), roomID, userID, blocked)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

// GetUnreadCount returns the caller's unread total across rooms.
func (h *ChatHandler) GetUnreadCount(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	count, err := h.svc.Delivery.TotalUnread(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}
