package realtime

import (
	"encoding/json"
	"testing"

	"dmcore-backend/internal/apperr"
	"dmcore-backend/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeCommandVariants(t *testing.T) {
	room := uuid.New()
	msg := uuid.New()

	cases := []struct {
		frame string
		want  Command
	}{
		{`{"event":"join_room","data":{"roomId":"` + room.String() + `"}}`, JoinRoom{RoomID: room}},
		{`{"event":"leave_room","data":{"roomId":"` + room.String() + `"}}`, LeaveRoom{RoomID: room}},
		{`{"event":"send_message","data":{"roomId":"` + room.String() + `","type":"text","payload":"hi"}}`,
			SendMessage{RoomID: room, Type: models.MessageTypeText, Payload: "hi"}},
		{`{"event":"mark_read","data":{"roomId":"` + room.String() + `","lastReadMessageId":"` + msg.String() + `"}}`,
			MarkRead{RoomID: room, LastReadMessageID: &msg}},
		{`{"event":"mark_read","data":{"roomId":"` + room.String() + `"}}`, MarkRead{RoomID: room}},
		{`{"event":"typing_start","data":{"roomId":"` + room.String() + `"}}`, TypingStart{RoomID: room}},
		{`{"event":"typing_stop","data":{"roomId":"` + room.String() + `"}}`, TypingStop{RoomID: room}},
	}
	for _, tc := range cases {
		got, err := DecodeCommand([]byte(tc.frame))
		require.NoError(t, err, tc.frame)
		assert.Equal(t, tc.want, got)
	}
}

func TestDecodeCommandRejects(t *testing.T) {
	frames := []string{
		`not json`,
		`{"event":"drop_table","data":{}}`,
		`{"event":"join_room"}`,
		`{"event":"join_room","data":{}}`,
		`{"event":"join_room","data":{"roomId":"nope"}}`,
	}
	for _, f := range frames {
		_, err := DecodeCommand([]byte(f))
		assert.Equal(t, apperr.CodeInvalidArgument, apperr.CodeOf(err), f)
	}
}

func TestEncodeWrapsInEnvelope(t *testing.T) {
	room, user := uuid.New(), uuid.New()
	raw, err := Encode(UserTyping{UserID: user, RoomID: room, IsTyping: true})
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.Equal(t, EventUserTyping, env.Event)

	var data map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, user.String(), data["userId"])
	assert.Equal(t, true, data["isTyping"])
}

func TestErrorFromHidesInternals(t *testing.T) {
	ev := ErrorFrom(apperr.Internal("insert", assert.AnError))
	assert.Equal(t, "internal error", ev.Message)
	assert.Equal(t, apperr.CodeInternal, ev.Code)

	ev = ErrorFrom(apperr.ErrRoomBlocked)
	assert.Equal(t, apperr.CodeBlocked, ev.Code)
}
