package protocol

import (
	"strings"

	"github.com/weiawesome/market-chat/internal/domain"
)

// Routing modes.
const (
	// ModeServer publishes to application destinations handled by the chat
	// backend, which fans frames out to the room topic.
	ModeServer = "server"
	// ModeDirect publishes straight to the room topic; used when no
	// application server sits between clients and the broker.
	ModeDirect = "direct"
)

// Routes maps rooms and frame types to broker destinations.
type Routes struct {
	Mode               string `mapstructure:"mode"`
	TopicPrefix        string `mapstructure:"topic_prefix"`
	EnterDestination   string `mapstructure:"enter_destination"`
	MessageDestination string `mapstructure:"message_destination"`
	ExitDestination    string `mapstructure:"exit_destination"`
}

// DefaultRoutes matches the backend's STOMP endpoints. ENTER goes to its own
// handler so the server can do join bookkeeping; EXIT shares the ordinary
// message destination and is told apart by its type.
func DefaultRoutes() Routes {
	return Routes{
		Mode:               ModeServer,
		TopicPrefix:        "/sub",
		EnterDestination:   "/pub/chat/enter",
		MessageDestination: "/pub/chat/message",
		ExitDestination:    "/pub/chat/message",
	}
}

// RoomTopic is the channel a room's frames are delivered on.
func (r Routes) RoomTopic(roomID string) string {
	return strings.TrimRight(r.TopicPrefix, "/") + "/chat/room/" + roomID
}

// Destination is where a frame of type t for roomID is published.
func (r Routes) Destination(t domain.MessageType, roomID string) string {
	if r.Mode == ModeDirect {
		return r.RoomTopic(roomID)
	}

	switch t {
	case domain.MessageTypeEnter:
		return r.EnterDestination
	case domain.MessageTypeExit:
		if r.ExitDestination != "" {
			return r.ExitDestination
		}
	}
	return r.MessageDestination
}
