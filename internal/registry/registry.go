// Package registry remembers which rooms a client wants and keeps them
// subscribed across reconnects.
package registry

import (
	"sort"
	"sync"

	"github.com/weiawesome/market-chat/internal/domain"
	"github.com/weiawesome/market-chat/internal/protocol"
	"github.com/weiawesome/market-chat/internal/transport"
	"github.com/weiawesome/market-chat/pkg/log"
	"github.com/weiawesome/market-chat/pkg/pubsub"
)

// Handler receives a room's traffic.
type Handler interface {
	// Subscribed is called after every successful broker subscription for
	// the room, the first one and each replay.
	Subscribed(roomID string)
	HandleMessage(msg domain.ChatMessage)
}

type entry struct {
	roomID  string
	handler Handler

	// subMu serializes subscribe attempts for this entry.
	subMu sync.Mutex
	sub   *transport.Subscription
}

// Registry maps room ids to handlers. At most one handler is registered per
// room; registering again replaces the previous one.
type Registry struct {
	conn   *transport.Manager
	routes protocol.Routes

	mu      sync.Mutex
	entries map[string]*entry
}

// New creates a registry and hooks its replay into conn's connect events.
func New(conn *transport.Manager, routes protocol.Routes) *Registry {
	r := &Registry{
		conn:    conn,
		routes:  routes,
		entries: make(map[string]*entry),
	}
	conn.OnConnect(r.replay)
	return r
}

// SubscribeToRoom registers h for roomID. When the connection is live the
// broker subscription is made now and the result reported; otherwise a
// connect is started, the subscription waits for it, and false is
// returned.
func (r *Registry) SubscribeToRoom(roomID string, h Handler) bool {
	e := &entry{roomID: roomID, handler: h}

	r.mu.Lock()
	old := r.entries[roomID]
	r.entries[roomID] = e
	r.mu.Unlock()

	if old != nil {
		l := log.L()
		l.Debug().Str(log.FieldRoomID, roomID).Msg("replacing room handler")
		old.cancel()
	}

	if !r.conn.Connected() {
		r.conn.Connect()
		return false
	}
	return r.subscribe(e)
}

// UnsubscribeFromRoom forgets roomID and cancels its broker subscription.
func (r *Registry) UnsubscribeFromRoom(roomID string) {
	r.mu.Lock()
	e := r.entries[roomID]
	delete(r.entries, roomID)
	r.mu.Unlock()

	if e != nil {
		e.cancel()
	}
}

// Release unsubscribes roomID only while h is still its handler, so a
// replaced handler cannot tear down its successor. h must be comparable.
func (r *Registry) Release(roomID string, h Handler) bool {
	r.mu.Lock()
	e := r.entries[roomID]
	if e == nil || e.handler != h {
		r.mu.Unlock()
		return false
	}
	delete(r.entries, roomID)
	r.mu.Unlock()

	e.cancel()
	return true
}

// Rooms lists the registered room ids.
func (r *Registry) Rooms() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Subscribed reports whether roomID holds a subscription on the current
// connection.
func (r *Registry) Subscribed(roomID string) bool {
	r.mu.Lock()
	e := r.entries[roomID]
	r.mu.Unlock()
	if e == nil || !r.conn.Connected() {
		return false
	}

	e.subMu.Lock()
	defer e.subMu.Unlock()
	return e.sub != nil && e.sub.Generation() == r.conn.Generation()
}

func (r *Registry) current(e *entry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[e.roomID] == e
}

func (r *Registry) subscribe(e *entry) bool {
	l := log.L().With().Str(log.FieldRoomID, e.roomID).Logger()

	e.subMu.Lock()
	if e.sub != nil && e.sub.Generation() == r.conn.Generation() {
		e.subMu.Unlock()
		return true
	}

	topic := r.routes.RoomTopic(e.roomID)
	sub, err := r.conn.Subscribe(topic, func(m *pubsub.Message) { r.dispatch(e, m) })
	if err != nil {
		e.subMu.Unlock()
		l.Warn().Err(err).Str(log.FieldDestination, topic).Msg("room subscribe failed")
		return false
	}

	// Removed or replaced while the broker call was in flight.
	if !r.current(e) {
		e.subMu.Unlock()
		sub.Unsubscribe()
		return false
	}

	stale := e.sub
	e.sub = sub
	e.subMu.Unlock()

	if stale != nil {
		stale.Unsubscribe()
	}

	l.Debug().Str(log.FieldDestination, topic).Uint64(log.FieldGeneration, sub.Generation()).Msg("room subscribed")
	e.handler.Subscribed(e.roomID)
	return true
}

// cancel drops the entry's broker subscription, if any.
func (e *entry) cancel() {
	e.subMu.Lock()
	sub := e.sub
	e.sub = nil
	e.subMu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
}

// replay resubscribes every registered room on a new connection.
func (r *Registry) replay(gen uint64) {
	r.mu.Lock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.Unlock()

	if len(entries) == 0 {
		return
	}

	l := log.L()
	l.Info().Uint64(log.FieldGeneration, gen).Int("rooms", len(entries)).Msg("replaying room subscriptions")
	for _, e := range entries {
		r.subscribe(e)
	}
}

func (r *Registry) dispatch(e *entry, m *pubsub.Message) {
	if !r.current(e) {
		return
	}

	l := log.L()
	msg, err := protocol.Decode(m.Body)
	if err != nil {
		l.Warn().Err(err).Str(log.FieldRoomID, e.roomID).Str(log.FieldDestination, m.Destination).Msg("dropping inbound frame")
		return
	}
	e.handler.HandleMessage(msg)
}
