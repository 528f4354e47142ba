package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// MessageType is the kind of a chat frame.
type MessageType string

// Chat frame types. No other value is valid on the wire.
const (
	MessageTypeEnter MessageType = "ENTER"
	MessageTypeTalk  MessageType = "TALK"
	MessageTypeExit  MessageType = "EXIT"
)

var ErrUnknownMessageType = errors.New("unknown message type")

// ParseMessageType validates s as one of ENTER, TALK or EXIT.
func ParseMessageType(s string) (MessageType, error) {
	switch t := MessageType(s); t {
	case MessageTypeEnter, MessageTypeTalk, MessageTypeExit:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMessageType, s)
	}
}

// IsPresence reports whether the frame is an ENTER or EXIT notice.
func (t MessageType) IsPresence() bool {
	return t == MessageTypeEnter || t == MessageTypeExit
}

func (t MessageType) Valid() bool {
	_, err := ParseMessageType(string(t))
	return err == nil
}

// ChatMessage is the wire envelope exchanged with the broker.
//
// Time is stamped by the sender's clock and is not an ordering guarantee.
// ID is an opaque idempotency key; peers that do not set it are tolerated.
type ChatMessage struct {
	ID       string      `json:"id,omitempty"`
	Type     MessageType `json:"type"`
	RoomID   string      `json:"roomId"`
	Sender   string      `json:"sender"`
	SenderID string      `json:"senderId"`
	Message  string      `json:"message"`
	Time     Timestamp   `json:"time"`
}

// UnmarshalJSON accepts roomId and senderId as either strings or numbers.
func (m *ChatMessage) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID       string          `json:"id"`
		Type     MessageType     `json:"type"`
		RoomID   json.RawMessage `json:"roomId"`
		Sender   string          `json:"sender"`
		SenderID json.RawMessage `json:"senderId"`
		Message  string          `json:"message"`
		Time     Timestamp       `json:"time"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	roomID, err := ParseID(raw.RoomID)
	if err != nil {
		return fmt.Errorf("roomId: %w", err)
	}
	senderID, err := ParseID(raw.SenderID)
	if err != nil {
		return fmt.Errorf("senderId: %w", err)
	}

	*m = ChatMessage{
		ID:       raw.ID,
		Type:     raw.Type,
		RoomID:   roomID,
		Sender:   raw.Sender,
		SenderID: senderID,
		Message:  raw.Message,
		Time:     raw.Time,
	}
	return nil
}

// ParseID decodes an id sent as a JSON string, number or null. Integral
// numbers lose any fraction, so 7 and 7.0 are both "7".
func ParseID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", err
	}
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10), nil
	}
	f, err := n.Float64()
	if err != nil {
		return "", err
	}
	return strconv.FormatFloat(f, 'f', -1, 64), nil
}
