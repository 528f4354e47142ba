package rooms

import (
	"context"
	"sync"
	"time"

	"github.com/weiawesome/market-chat/internal/domain"
)

// Directory holds the rooms a user knows about, in listing order, and
// keeps their last-message preview current.
type Directory struct {
	mu    sync.RWMutex
	order []string
	rooms map[string]domain.ChatRoom
}

func NewDirectory() *Directory {
	return &Directory{rooms: make(map[string]domain.ChatRoom)}
}

// Refresh replaces the contents with the API's room list.
func (d *Directory) Refresh(ctx context.Context, c *Client) error {
	rooms, err := c.List(ctx)
	if err != nil {
		return err
	}
	d.Replace(rooms)
	return nil
}

func (d *Directory) Replace(rooms []domain.ChatRoom) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.order = d.order[:0]
	d.rooms = make(map[string]domain.ChatRoom, len(rooms))
	for _, r := range rooms {
		if _, dup := d.rooms[r.RoomID]; !dup {
			d.order = append(d.order, r.RoomID)
		}
		d.rooms[r.RoomID] = r
	}
}

// Put adds or replaces a room.
func (d *Directory) Put(room domain.ChatRoom) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.rooms[room.RoomID]; !ok {
		d.order = append(d.order, room.RoomID)
	}
	d.rooms[room.RoomID] = room
}

func (d *Directory) Get(roomID string) (domain.ChatRoom, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.rooms[roomID]
	return r, ok
}

func (d *Directory) Rooms() []domain.ChatRoom {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]domain.ChatRoom, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.rooms[id])
	}
	return out
}

// Touch records the latest message of a known room.
func (d *Directory) Touch(roomID, text string, at time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if r, ok := d.rooms[roomID]; ok {
		d.rooms[roomID] = r.WithLastMessage(text, at)
	}
}
