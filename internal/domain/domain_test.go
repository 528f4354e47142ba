package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMessageType(t *testing.T) {
	for _, s := range []string{"ENTER", "TALK", "EXIT"} {
		mt, err := ParseMessageType(s)
		require.NoError(t, err)
		assert.Equal(t, s, string(mt))
	}

	for _, s := range []string{"PING", "talk", ""} {
		_, err := ParseMessageType(s)
		assert.ErrorIs(t, err, ErrUnknownMessageType, s)
	}

	assert.True(t, MessageTypeEnter.IsPresence())
	assert.True(t, MessageTypeExit.IsPresence())
	assert.False(t, MessageTypeTalk.IsPresence())
}

func TestChatMessageAcceptsNumericIDs(t *testing.T) {
	var msg ChatMessage
	err := json.Unmarshal([]byte(`{"type":"TALK","roomId":42,"sender":"kim","senderId":7,"message":"hi"}`), &msg)
	require.NoError(t, err)

	assert.Equal(t, "42", msg.RoomID)
	assert.Equal(t, "7", msg.SenderID)
	assert.True(t, msg.Time.IsZero())
}

func TestParseID(t *testing.T) {
	cases := map[string]string{
		`7`:     "7",
		`7.0`:   "7",
		`7.5`:   "7.5",
		`"007"`: "007",
		`null`:  "",
		``:      "",
		` 12 `:  "12",
	}
	for in, want := range cases {
		got, err := ParseID(json.RawMessage(in))
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseID(json.RawMessage(`[1]`))
	assert.Error(t, err)
}

func TestChatMessageRejectsObjectIDs(t *testing.T) {
	var msg ChatMessage
	err := json.Unmarshal([]byte(`{"type":"TALK","roomId":{"x":1}}`), &msg)
	assert.Error(t, err)
}

func TestTimestampShapes(t *testing.T) {
	cases := map[string]time.Time{
		`"2024-05-01T10:20:30Z"`:        time.Date(2024, 5, 1, 10, 20, 30, 0, time.UTC),
		`"2024-05-01T10:20:30"`:         time.Date(2024, 5, 1, 10, 20, 30, 0, time.Local),
		`[2024,5,1,10,20,30,500]`:       time.Date(2024, 5, 1, 10, 20, 30, 500, time.Local),
		`1714558830000`:                 time.UnixMilli(1714558830000),
		`"2024-05-01T10:20:30.5+09:00"`: time.Date(2024, 5, 1, 1, 20, 30, 500_000_000, time.UTC),
	}

	for in, want := range cases {
		var ts Timestamp
		require.NoError(t, json.Unmarshal([]byte(in), &ts), in)
		assert.True(t, want.Equal(ts.Time), "%s: got %v want %v", in, ts.Time, want)
	}

	var ts Timestamp
	require.NoError(t, json.Unmarshal([]byte(`"yesterday"`), &ts))
	assert.True(t, ts.IsZero())
}

func TestTimestampRoundTrip(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 6, time.UTC)
	data, err := json.Marshal(NewTimestamp(now))
	require.NoError(t, err)

	var back Timestamp
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, now.Equal(back.Time))

	data, err = json.Marshal(Timestamp{})
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))
}

func TestChatRoomPreview(t *testing.T) {
	room := ChatRoom{RoomID: "r1", Name: "bike - lee"}
	assert.Equal(t, "New chat room", room.Preview())

	at := time.Now()
	updated := room.WithLastMessage("is it sold?", at)
	assert.Equal(t, "is it sold?", updated.Preview())
	assert.True(t, at.Equal(updated.LastMessageTime.Time))
	assert.Nil(t, room.LastMessage, "receiver is not mutated")
}

func TestIdentityLoggedIn(t *testing.T) {
	assert.False(t, Identity{UserID: "1"}.LoggedIn())
	assert.True(t, Identity{UserID: "1", AccessToken: "tok"}.LoggedIn())
}
