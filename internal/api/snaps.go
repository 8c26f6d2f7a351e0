package api

import (
	"net/http"
	"time"

	"dmcore-backend/internal/chat"
	"dmcore-backend/internal/models"

	"github.com/gin-gonic/gin"
)

type SnapHandler struct {
	snaps *chat.SnapFanout
}

func NewSnapHandler(snaps *chat.SnapFanout) *SnapHandler {
	return &SnapHandler{snaps: snaps}
}

// SendSnap creates a snap and fans it out to every recipient.
func (h *SnapHandler) SendSnap(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req models.SendSnapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	recipients, err := parseUUIDs(req.RecipientIDs)
	if err != nil {
		respondError(c, err)
		return
	}

	snap, deliveries, err := h.snaps.Send(c.Request.Context(), userID, chat.SnapInput{
		RecipientIDs: recipients,
		MediaRef:     req.MediaRef,
		TTL:          time.Duration(req.ExpiresInSeconds) * time.Second,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"snap":       snap,
		"deliveries": deliveries,
	})
}

// ViewSnap returns the caller's view state and a short-lived media credential.
func (h *SnapHandler) ViewSnap(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	snapID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	view, err := h.snaps.View(c.Request.Context(), snapID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}
