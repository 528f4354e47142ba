// Package session drives a user's presence in one chat room: joining,
// sending, rendering what arrives and leaving.
package session

import (
	"context"
	"time"

	"github.com/weiawesome/market-chat/internal/domain"
	"github.com/weiawesome/market-chat/internal/protocol"
	"github.com/weiawesome/market-chat/internal/registry"
	"github.com/weiawesome/market-chat/internal/transport"
	"github.com/weiawesome/market-chat/pkg/log"
)

// RoomTracker is told about the latest message of a room.
type RoomTracker interface {
	Touch(roomID, text string, at time.Time)
}

// Listener observes a session. Callbacks arrive on broker goroutines and
// must not block for long.
type Listener interface {
	OnEntry(e Entry)
	OnStateChange(s State)
}

// EntryFunc adapts a function to Listener, ignoring state changes.
type EntryFunc func(e Entry)

func (f EntryFunc) OnEntry(e Entry)       { f(e) }
func (f EntryFunc) OnStateChange(s State) {}

type Options struct {
	DedupWindow     int
	TranscriptLimit int
	Tracker         RoomTracker
}

func DefaultOptions() Options {
	return Options{DedupWindow: 256, TranscriptLimit: 500}
}

// Controller opens room sessions over a shared connection and registry.
type Controller struct {
	conn    *transport.Manager
	reg     *registry.Registry
	builder *protocol.Builder
	routes  protocol.Routes
	opts    Options
}

func NewController(conn *transport.Manager, reg *registry.Registry, builder *protocol.Builder, routes protocol.Routes, opts Options) *Controller {
	return &Controller{conn: conn, reg: reg, builder: builder, routes: routes, opts: opts}
}

// Open joins room as who. The session announces itself once the room
// subscription is live and leaves when Close is called or ctx ends.
func (c *Controller) Open(ctx context.Context, room domain.ChatRoom, who domain.Identity, listener Listener) *Session {
	if listener == nil {
		listener = EntryFunc(func(Entry) {})
	}

	s := &Session{
		c:          c,
		room:       room,
		who:        who,
		listener:   listener,
		logCtx:     log.WithLogger(ctx, log.ForRoom(ctx, room.RoomID, who.UserID)),
		transcript: &transcript{limit: c.opts.TranscriptLimit},
		seen:       newDedup(c.opts.DedupWindow),
	}

	s.setState(Joining)
	s.stopWatch = context.AfterFunc(ctx, s.Close)
	c.reg.SubscribeToRoom(room.RoomID, s)

	// ctx may have ended before the room was registered.
	if s.State() == Closed {
		c.reg.Release(room.RoomID, s)
	}
	return s
}

// Visit opens a session, runs fn with it and closes it however fn returns.
func (c *Controller) Visit(ctx context.Context, room domain.ChatRoom, who domain.Identity, listener Listener, fn func(s *Session) error) error {
	s := c.Open(ctx, room, who, listener)
	defer s.Close()
	return fn(s)
}
