// Package protocol builds, encodes and decodes ENTER/TALK/EXIT chat frames.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/weiawesome/market-chat/internal/domain"
	"github.com/weiawesome/market-chat/pkg/idgen"
)

var (
	ErrEmptyMessage   = errors.New("message text is empty")
	ErrMissingRoom    = errors.New("room id is required")
	ErrMalformedFrame = errors.New("malformed frame")
)

// Builder constructs outbound frames. The zero value is usable: it stamps
// frames with time.Now and leaves the id empty.
type Builder struct {
	IDs idgen.Generator
	Now func() time.Time
}

func NewBuilder(ids idgen.Generator) *Builder {
	return &Builder{IDs: ids, Now: time.Now}
}

// Enter announces who joined roomID.
func (b *Builder) Enter(roomID string, who domain.Identity) domain.ChatMessage {
	return b.frame(domain.MessageTypeEnter, roomID, who, "")
}

// Talk carries user text. Blank text is rejected; non-blank text is sent
// as typed, surrounding whitespace included.
func (b *Builder) Talk(roomID string, who domain.Identity, text string) (domain.ChatMessage, error) {
	if strings.TrimSpace(text) == "" {
		return domain.ChatMessage{}, ErrEmptyMessage
	}
	return b.frame(domain.MessageTypeTalk, roomID, who, text), nil
}

// Exit announces who left roomID.
func (b *Builder) Exit(roomID string, who domain.Identity) domain.ChatMessage {
	return b.frame(domain.MessageTypeExit, roomID, who, "")
}

func (b *Builder) frame(t domain.MessageType, roomID string, who domain.Identity, text string) domain.ChatMessage {
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}

	msg := domain.ChatMessage{
		Type:     t,
		RoomID:   roomID,
		Sender:   who.Username,
		SenderID: who.UserID,
		Message:  text,
		Time:     domain.NewTimestamp(now()),
	}
	if b.IDs != nil {
		if id, err := b.IDs.Generate(); err == nil {
			msg.ID = id
		}
	}
	return msg
}

// Encode validates msg and serializes it to its JSON wire form.
func Encode(msg domain.ChatMessage) ([]byte, error) {
	if !msg.Type.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownMessageType, msg.Type)
	}
	if msg.RoomID == "" {
		return nil, ErrMissingRoom
	}
	if msg.Type == domain.MessageTypeTalk && strings.TrimSpace(msg.Message) == "" {
		return nil, ErrEmptyMessage
	}
	return json.Marshal(msg)
}

// Decode parses a wire frame. Frames whose type is not ENTER, TALK or EXIT
// are rejected with domain.ErrUnknownMessageType.
func Decode(data []byte) (domain.ChatMessage, error) {
	var msg domain.ChatMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return domain.ChatMessage{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if _, err := domain.ParseMessageType(string(msg.Type)); err != nil {
		return domain.ChatMessage{}, err
	}
	return msg, nil
}
