package api

import (
	"context"
	"net/http"
	"time"

	"dmcore-backend/internal/apperr"
	"dmcore-backend/internal/chat"
	"dmcore-backend/internal/logger"
	"dmcore-backend/internal/middleware"
	"dmcore-backend/internal/models"
	"dmcore-backend/internal/realtime"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameSize   = 64 * 1024
	commandTimeout = 15 * time.Second
	outboundBuffer = 64
)

// deliveryService is the part of the delivery coordinator the gateway drives.
type deliveryService interface {
	PromotePending(ctx context.Context, userID uuid.UUID) (int, error)
	Join(ctx context.Context, roomID, userID uuid.UUID) (*models.ParticipantCursor, error)
	Leave(ctx context.Context, roomID, userID uuid.UUID) error
	Send(ctx context.Context, roomID, senderID uuid.UUID, content chat.Content) (*models.Message, error)
	MarkRead(ctx context.Context, roomID, userID uuid.UUID, upTo *uuid.UUID) (*models.ParticipantCursor, error)
}

type typingService interface {
	Start(ctx context.Context, roomID, userID uuid.UUID) error
	Stop(ctx context.Context, roomID, userID uuid.UUID) error
}

// Gateway upgrades authenticated requests to websocket connections and turns
// inbound frames into service calls.
type Gateway struct {
	registry *realtime.Registry
	delivery deliveryService
	typing   typingService
	tokens   middleware.TokenValidator
	upgrader websocket.Upgrader
	log      *logger.Logger
}

func NewGateway(registry *realtime.Registry, delivery deliveryService, typing typingService, tokens middleware.TokenValidator, origins []string, log *logger.Logger) *Gateway {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return &Gateway{
		registry: registry,
		delivery: delivery,
		typing:   typing,
		tokens:   tokens,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed[origin] || allowed["*"]
			},
		},
		log: log.With("component", "Gateway"),
	}
}

// Handle authenticates once, before the upgrade. A bad credential never
// reaches the event loop.
func (g *Gateway) Handle(c *gin.Context) {
	userID, err := g.tokens.ValidateToken(middleware.ExtractToken(c))
	if err != nil {
		respondError(c, err)
		return
	}

	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.log.Warn("Websocket upgrade failed", "userID", userID, "error", err)
		return
	}

	client := realtime.NewClient(userID, outboundBuffer, g.log)
	if prev := g.registry.Register(client); prev != nil {
		prev.Close()
	}
	g.log.Info("Client connected", "userID", userID, "clientID", client.ID)

	go g.writePump(conn, client)

	// In-flight work outlives the socket; its events are simply dropped.
	ctx := context.WithoutCancel(c.Request.Context())
	if _, err := g.delivery.PromotePending(ctx, userID); err != nil {
		g.log.Warn("Failed to promote pending messages", "userID", userID, "error", err)
	}

	g.readPump(ctx, conn, client)

	g.registry.Unregister(client)
	client.Close()
	g.log.Info("Client disconnected", "userID", userID, "clientID", client.ID)
}

func (g *Gateway) readPump(ctx context.Context, conn *websocket.Conn, client *realtime.Client) {
	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				client.Logger.Debug("Read loop ended", "error", err)
			}
			return
		}
		cmd, err := realtime.DecodeCommand(raw)
		if err != nil {
			client.Send(realtime.ErrorFrom(err))
			continue
		}
		go g.dispatch(ctx, client, cmd)
	}
}

func (g *Gateway) writePump(conn *websocket.Conn, client *realtime.Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case ev := <-client.Outbound:
			frame, err := realtime.Encode(ev)
			if err != nil {
				client.Logger.Error("Failed to encode event", "event", ev.EventName(), "error", err)
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				client.Close()
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				client.Close()
				return
			}
		case <-client.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// dispatch runs one command. Every variant is handled here; failures go back
// to the originating connection only.
func (g *Gateway) dispatch(ctx context.Context, client *realtime.Client, cmd realtime.Command) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	userID := client.UserID
	var err error
	switch c := cmd.(type) {
	case realtime.JoinRoom:
		_, err = g.delivery.Join(ctx, c.RoomID, userID)
	case realtime.LeaveRoom:
		err = g.delivery.Leave(ctx, c.RoomID, userID)
	case realtime.SendMessage:
		_, err = g.delivery.Send(ctx, c.RoomID, userID, chat.Content{
			Type:     c.Type,
			Payload:  c.Payload,
			MediaRef: c.MediaRef,
		})
	case realtime.MarkRead:
		_, err = g.delivery.MarkRead(ctx, c.RoomID, userID, c.LastReadMessageID)
	case realtime.TypingStart:
		err = g.typing.Start(ctx, c.RoomID, userID)
	case realtime.TypingStop:
		err = g.typing.Stop(ctx, c.RoomID, userID)
	default:
		err = apperr.InvalidArg("unsupported command")
	}
	if err == nil {
		return
	}

	if apperr.CodeOf(err) == apperr.CodeInternal {
		client.Logger.Error("Command failed", "roomID", cmd.Room(), "error", err)
	} else {
		client.Logger.Debug("Command rejected", "roomID", cmd.Room(), "error", err)
	}
	client.Send(realtime.ErrorFrom(err))
}
