package domain

import "time"

// ChatRoom is a room as listed by the backend.
type ChatRoom struct {
	RoomID          string     `json:"roomId"`
	Name            string     `json:"name"`
	LastMessage     *string    `json:"lastMessage"`
	LastMessageTime *Timestamp `json:"lastMessageTime"`
}

// Preview is the list-row subtitle for the room.
func (r ChatRoom) Preview() string {
	if r.LastMessage == nil || *r.LastMessage == "" {
		return "New chat room"
	}
	return *r.LastMessage
}

// WithLastMessage returns a copy of r carrying text as its latest message.
func (r ChatRoom) WithLastMessage(text string, at time.Time) ChatRoom {
	ts := NewTimestamp(at)
	r.LastMessage = &text
	r.LastMessageTime = &ts
	return r
}

// Identity is the authenticated user a chat session acts for.
type Identity struct {
	UserID      string `json:"id"`
	Username    string `json:"username"`
	AccessToken string `json:"accessToken,omitempty"`
}

// LoggedIn reports whether an access token is present.
func (i Identity) LoggedIn() bool {
	return i.AccessToken != ""
}
