package session

import (
	"time"

	"github.com/golang/groupcache/lru"

	"github.com/weiawesome/market-chat/internal/domain"
)

// Kind says how an entry is laid out in the conversation view.
type Kind int

const (
	// Notice is a centered presence line.
	Notice Kind = iota
	// Own is a right-aligned bubble sent by the local user.
	Own
	// Other is a left-aligned bubble from someone else.
	Other
)

func (k Kind) String() string {
	switch k {
	case Own:
		return "own"
	case Other:
		return "other"
	default:
		return "notice"
	}
}

// Entry is one rendered line of a room conversation.
type Entry struct {
	Kind     Kind
	Type     domain.MessageType
	ID       string
	Sender   string
	SenderID string
	Text     string
	Time     time.Time
}

func render(msg domain.ChatMessage, self domain.Identity) Entry {
	e := Entry{
		Type:     msg.Type,
		ID:       msg.ID,
		Sender:   msg.Sender,
		SenderID: msg.SenderID,
		Text:     msg.Message,
		Time:     msg.Time.Time,
	}

	if msg.Type.IsPresence() {
		e.Kind = Notice
		if e.Text == "" {
			verb := " joined the room"
			if msg.Type == domain.MessageTypeExit {
				verb = " left the room"
			}
			e.Text = displayName(msg.Sender) + verb
		}
		return e
	}

	e.Kind = Other
	if self.UserID != "" && msg.SenderID == self.UserID {
		e.Kind = Own
	}
	return e
}

func displayName(sender string) string {
	if sender == "" {
		return "Someone"
	}
	return sender
}

// transcript keeps the newest limit entries; limit <= 0 keeps everything.
type transcript struct {
	limit   int
	entries []Entry
}

func (t *transcript) append(e Entry) {
	t.entries = append(t.entries, e)
	if t.limit > 0 && len(t.entries) > t.limit {
		n := copy(t.entries, t.entries[len(t.entries)-t.limit:])
		t.entries = t.entries[:n]
	}
}

func (t *transcript) snapshot() []Entry {
	return append([]Entry(nil), t.entries...)
}

// dedup remembers the most recent message ids. A nil dedup remembers
// nothing.
type dedup struct {
	seen *lru.Cache
}

func newDedup(size int) *dedup {
	if size <= 0 {
		return nil
	}
	return &dedup{seen: lru.New(size)}
}

// check records id and reports whether it was already recorded. Empty ids
// are never duplicates.
func (d *dedup) check(id string) bool {
	if d == nil || id == "" {
		return false
	}
	if _, ok := d.seen.Get(id); ok {
		return true
	}
	d.seen.Add(id, struct{}{})
	return false
}
