package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/market-chat/internal/domain"
	"github.com/weiawesome/market-chat/pkg/idgen"
)

var alice = domain.Identity{UserID: "1", Username: "alice"}

func fixedBuilder() *Builder {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	n := 0
	return &Builder{
		IDs: idgen.Func(func() (string, error) {
			n++
			return "id-" + string(rune('0'+n)), nil
		}),
		Now: func() time.Time { return at },
	}
}

func TestBuilderFrames(t *testing.T) {
	b := fixedBuilder()

	enter := b.Enter("room-42", alice)
	assert.Equal(t, domain.MessageTypeEnter, enter.Type)
	assert.Equal(t, "room-42", enter.RoomID)
	assert.Equal(t, "alice", enter.Sender)
	assert.Equal(t, "1", enter.SenderID)
	assert.Empty(t, enter.Message)
	assert.Equal(t, "id-1", enter.ID)
	assert.False(t, enter.Time.IsZero())

	talk, err := b.Talk("room-42", alice, " hello ")
	require.NoError(t, err)
	assert.Equal(t, " hello ", talk.Message)
	assert.Equal(t, "id-2", talk.ID)

	exit := b.Exit("room-42", alice)
	assert.Equal(t, domain.MessageTypeExit, exit.Type)
}

func TestTalkRejectsBlankText(t *testing.T) {
	b := NewBuilder(nil)
	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := b.Talk("room-42", alice, text)
		assert.ErrorIs(t, err, ErrEmptyMessage, "%q", text)
	}
}

func TestEncodeWireShape(t *testing.T) {
	msg := fixedBuilder().Enter("room-42", alice)
	data, err := Encode(msg)
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(data, &wire))
	for _, key := range []string{"type", "roomId", "sender", "senderId", "message", "time"} {
		assert.Contains(t, wire, key)
	}
	assert.Equal(t, "ENTER", wire["type"])
	assert.Equal(t, "", wire["message"])
}

func TestEncodeValidates(t *testing.T) {
	_, err := Encode(domain.ChatMessage{Type: "PING", RoomID: "r"})
	assert.ErrorIs(t, err, domain.ErrUnknownMessageType)

	_, err = Encode(domain.ChatMessage{Type: domain.MessageTypeExit})
	assert.ErrorIs(t, err, ErrMissingRoom)

	_, err = Encode(domain.ChatMessage{Type: domain.MessageTypeTalk, RoomID: "r", Message: " "})
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestDecode(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"TALK","roomId":"room-42","sender":"bob","senderId":"2","message":"hi","time":"2025-03-01T12:00:00Z"}`))
	require.NoError(t, err)
	assert.Equal(t, domain.MessageTypeTalk, msg.Type)
	assert.Equal(t, "hi", msg.Message)

	_, err = Decode([]byte(`{"type":"PING","roomId":"room-42"}`))
	assert.ErrorIs(t, err, domain.ErrUnknownMessageType)

	_, err = Decode([]byte(`not json`))
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestDecodeRoundTrip(t *testing.T) {
	orig, err := fixedBuilder().Talk("room-42", alice, "hello")
	require.NoError(t, err)

	data, err := Encode(orig)
	require.NoError(t, err)
	back, err := Decode(data)
	require.NoError(t, err)

	assert.Equal(t, orig.ID, back.ID)
	assert.Equal(t, orig.Message, back.Message)
	assert.True(t, orig.Time.Equal(back.Time.Time))
}

func TestRoutes(t *testing.T) {
	r := DefaultRoutes()
	assert.Equal(t, "/sub/chat/room/room-42", r.RoomTopic("room-42"))
	assert.Equal(t, "/pub/chat/enter", r.Destination(domain.MessageTypeEnter, "room-42"))
	assert.Equal(t, "/pub/chat/message", r.Destination(domain.MessageTypeTalk, "room-42"))
	assert.Equal(t, "/pub/chat/message", r.Destination(domain.MessageTypeExit, "room-42"))

	r.Mode = ModeDirect
	r.TopicPrefix = "chat/"
	for _, mt := range []domain.MessageType{domain.MessageTypeEnter, domain.MessageTypeTalk, domain.MessageTypeExit} {
		assert.Equal(t, "chat/chat/room/room-42", r.Destination(mt, "room-42"))
	}
}
