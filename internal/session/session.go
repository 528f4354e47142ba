package session

import (
	"context"
	"sync"
	"time"

	"github.com/weiawesome/market-chat/internal/audit"
	"github.com/weiawesome/market-chat/internal/domain"
	"github.com/weiawesome/market-chat/internal/protocol"
	"github.com/weiawesome/market-chat/pkg/log"
)

// Session is one user's stay in one room.
type Session struct {
	c        *Controller
	room     domain.ChatRoom
	who      domain.Identity
	listener Listener
	logCtx   context.Context

	// opMu orders ENTER before EXIT.
	opMu sync.Mutex

	mu         sync.Mutex
	state      State
	input      string
	transcript *transcript
	seen       *dedup

	closeOnce sync.Once
	stopWatch func() bool
}

func (s *Session) Room() domain.ChatRoom      { return s.room }
func (s *Session) Identity() domain.Identity { return s.who }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transcript returns the entries received so far, oldest first.
func (s *Session) Transcript() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript.snapshot()
}

// CanSend reports whether input should be enabled.
func (s *Session) CanSend() bool {
	return s.State() == Active && s.c.conn.Connected()
}

// SendMessage publishes text as a TALK frame. It reports false without
// publishing when the session is not active, the connection is down or
// text is blank.
func (s *Session) SendMessage(text string) bool {
	if !s.CanSend() {
		return false
	}

	msg, err := s.c.builder.Talk(s.room.RoomID, s.who, text)
	if err != nil {
		return false
	}
	if !s.publish(msg) {
		return false
	}

	audit.LogWithDetail(s.logCtx, audit.ActionSend, s.room.RoomID, s.who.UserID, msg.ID, "message sent")
	return true
}

func (s *Session) SetInput(text string) {
	s.mu.Lock()
	s.input = text
	s.mu.Unlock()
}

func (s *Session) Input() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input
}

// Submit sends the input buffer and clears it if the send went out.
func (s *Session) Submit() bool {
	if !s.SendMessage(s.Input()) {
		return false
	}
	s.SetInput("")
	return true
}

// Close leaves the room. EXIT is published only if the session had become
// active and the connection is up; the room subscription is always
// released. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if s.stopWatch != nil {
			s.stopWatch()
		}

		s.opMu.Lock()
		s.mu.Lock()
		wasActive := s.state == Active
		s.state = Closed
		s.mu.Unlock()

		if wasActive && s.c.conn.Connected() {
			if s.publish(s.c.builder.Exit(s.room.RoomID, s.who)) {
				audit.Log(s.logCtx, audit.ActionExit, s.room.RoomID, s.who.UserID, "left room")
			}
		}
		s.c.reg.Release(s.room.RoomID, s)
		s.opMu.Unlock()

		s.changed(Closed)
	})
}

// Subscribed moves a joining session to active and announces it. Later
// calls after a resubscribe do nothing.
func (s *Session) Subscribed(roomID string) {
	s.opMu.Lock()
	s.mu.Lock()
	if s.state != Joining {
		s.mu.Unlock()
		s.opMu.Unlock()
		return
	}
	s.state = Active
	s.mu.Unlock()

	if s.publish(s.c.builder.Enter(s.room.RoomID, s.who)) {
		audit.Log(s.logCtx, audit.ActionEnter, s.room.RoomID, s.who.UserID, "entered room")
	}
	s.opMu.Unlock()

	s.changed(Active)
}

// HandleMessage renders an inbound frame into the transcript.
func (s *Session) HandleMessage(msg domain.ChatMessage) {
	s.mu.Lock()
	if s.state == Closed {
		s.mu.Unlock()
		return
	}
	if s.seen.check(msg.ID) {
		s.mu.Unlock()
		l := log.Ctx(s.logCtx)
		l.Debug().Str(log.FieldMessageID, msg.ID).Msg("duplicate frame dropped")
		return
	}
	e := render(msg, s.who)
	s.transcript.append(e)
	s.mu.Unlock()

	if msg.Type == domain.MessageTypeTalk && s.c.opts.Tracker != nil {
		at := msg.Time.Time
		if at.IsZero() {
			at = time.Now()
		}
		s.c.opts.Tracker.Touch(s.room.RoomID, msg.Message, at)
	}
	s.listener.OnEntry(e)
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	s.changed(st)
}

func (s *Session) changed(st State) {
	l := log.Ctx(s.logCtx)
	l.Debug().Str(log.FieldState, st.String()).Msg("room session state")
	s.listener.OnStateChange(st)
}

func (s *Session) publish(msg domain.ChatMessage) bool {
	l := log.Ctx(s.logCtx)

	body, err := protocol.Encode(msg)
	if err != nil {
		l.Error().Err(err).Str(log.FieldMessageType, string(msg.Type)).Msg("encode frame")
		return false
	}
	dest := s.c.routes.Destination(msg.Type, s.room.RoomID)
	if !s.c.conn.Publish(dest, body) {
		l.Warn().Str(log.FieldMessageType, string(msg.Type)).Str(log.FieldDestination, dest).Msg("frame not sent")
		return false
	}
	return true
}
