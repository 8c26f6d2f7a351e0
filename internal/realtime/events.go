package realtime

import (
	"encoding/json"
	"fmt"
	"time"

	"dmcore-backend/internal/apperr"
	"dmcore-backend/internal/models"

	"github.com/google/uuid"
)

// Envelope is the frame shape in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Command is an inbound event. The set is closed: only the types below
// implement it.
type Command interface {
	isCommand()
	Room() uuid.UUID
}

type JoinRoom struct {
	RoomID uuid.UUID `json:"roomId"`
}

type LeaveRoom struct {
	RoomID uuid.UUID `json:"roomId"`
}

type SendMessage struct {
	RoomID   uuid.UUID          `json:"roomId"`
	Type     models.MessageType `json:"type"`
	Payload  string             `json:"payload"`
	MediaRef *string            `json:"mediaRef,omitempty"`
}

type MarkRead struct {
	RoomID            uuid.UUID  `json:"roomId"`
	LastReadMessageID *uuid.UUID `json:"lastReadMessageId,omitempty"`
}

type TypingStart struct {
	RoomID uuid.UUID `json:"roomId"`
}

type TypingStop struct {
	RoomID uuid.UUID `json:"roomId"`
}

func (JoinRoom) isCommand()    {}
func (LeaveRoom) isCommand()   {}
func (SendMessage) isCommand() {}
func (MarkRead) isCommand()    {}
func (TypingStart) isCommand() {}
func (TypingStop) isCommand()  {}

func (c JoinRoom) Room() uuid.UUID    { return c.RoomID }
func (c LeaveRoom) Room() uuid.UUID   { return c.RoomID }
func (c SendMessage) Room() uuid.UUID { return c.RoomID }
func (c MarkRead) Room() uuid.UUID    { return c.RoomID }
func (c TypingStart) Room() uuid.UUID { return c.RoomID }
func (c TypingStop) Room() uuid.UUID  { return c.RoomID }

const (
	EventJoinRoom    = "join_room"
	EventLeaveRoom   = "leave_room"
	EventSendMessage = "send_message"
	EventMarkRead    = "mark_read"
	EventTypingStart = "typing_start"
	EventTypingStop  = "typing_stop"

	EventNewMessage       = "new_message"
	EventMessageDelivered = "message_delivered"
	EventMessagesRead     = "messages_read"
	EventUserTyping       = "user_typing"
	EventUserJoined       = "user_joined"
	EventUserLeft         = "user_left"
	EventError            = "error"
)

// DecodeCommand parses one inbound frame.
func DecodeCommand(raw []byte) (Command, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, apperr.InvalidArg("malformed frame")
	}

	var cmd Command
	var err error
	switch env.Event {
	case EventJoinRoom:
		cmd, err = decodeData[JoinRoom](env.Data)
	case EventLeaveRoom:
		cmd, err = decodeData[LeaveRoom](env.Data)
	case EventSendMessage:
		cmd, err = decodeData[SendMessage](env.Data)
	case EventMarkRead:
		cmd, err = decodeData[MarkRead](env.Data)
	case EventTypingStart:
		cmd, err = decodeData[TypingStart](env.Data)
	case EventTypingStop:
		cmd, err = decodeData[TypingStop](env.Data)
	default:
		return nil, apperr.InvalidArg(fmt.Sprintf("unknown event %q", env.Event))
	}
	if err != nil {
		return nil, err
	}
	if cmd.Room() == uuid.Nil {
		return nil, apperr.InvalidArg("roomId is required")
	}
	return cmd, nil
}

func decodeData[T Command](data json.RawMessage) (T, error) {
	var v T
	if len(data) == 0 {
		return v, apperr.InvalidArg("missing data")
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, apperr.InvalidArg("malformed data")
	}
	return v, nil
}

// Event is an outbound event.
type Event interface {
	EventName() string
}

type NewMessage struct {
	Message *models.Message `json:"message"`
}

type MessageDelivered struct {
	MessageID uuid.UUID            `json:"messageId"`
	RoomID    uuid.UUID            `json:"roomId"`
	Status    models.MessageStatus `json:"status"`
}

type MessagesRead struct {
	RoomID            uuid.UUID  `json:"roomId"`
	UserID            uuid.UUID  `json:"userId"`
	LastReadMessageID *uuid.UUID `json:"lastReadMessageId"`
	LastReadAt        time.Time  `json:"lastReadAt"`
}

type UserTyping struct {
	UserID   uuid.UUID `json:"userId"`
	RoomID   uuid.UUID `json:"roomId"`
	IsTyping bool      `json:"isTyping"`
}

type UserJoined struct {
	UserID uuid.UUID `json:"userId"`
	RoomID uuid.UUID `json:"roomId"`
}

type UserLeft struct {
	UserID uuid.UUID `json:"userId"`
	RoomID uuid.UUID `json:"roomId"`
}

type ErrorEvent struct {
	Message string      `json:"message"`
	Code    apperr.Code `json:"code,omitempty"`
}

func (NewMessage) EventName() string       { return EventNewMessage }
func (MessageDelivered) EventName() string { return EventMessageDelivered }
func (MessagesRead) EventName() string     { return EventMessagesRead }
func (UserTyping) EventName() string       { return EventUserTyping }
func (UserJoined) EventName() string       { return EventUserJoined }
func (UserLeft) EventName() string         { return EventUserLeft }
func (ErrorEvent) EventName() string       { return EventError }

// ErrorFrom builds the error event sent back to the originating connection.
func ErrorFrom(err error) ErrorEvent {
	return ErrorEvent{Message: apperr.Message(err), Code: apperr.CodeOf(err)}
}

func Encode(ev Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: ev.EventName(), Data: data})
}
