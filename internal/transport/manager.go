// Package transport keeps the single shared broker connection of a chat
// client alive.
package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/weiawesome/market-chat/pkg/log"
	"github.com/weiawesome/market-chat/pkg/pubsub"
)

var ErrNotConnected = errors.New("transport: not connected")

// State of the connection.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Config controls reconnect behavior. Heartbeats belong to the broker
// driver and are fixed when it dials.
type Config struct {
	ReconnectDelay time.Duration
	DialTimeout    time.Duration
	PublishTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		ReconnectDelay: 5 * time.Second,
		DialTimeout:    10 * time.Second,
		PublishTimeout: 5 * time.Second,
	}
}

// Manager owns at most one live broker session and redials it after a fixed
// delay whenever it is lost. One Manager is shared by every room of a
// client.
type Manager struct {
	dialer pubsub.Dialer
	cfg    Config

	mu         sync.Mutex
	state      State
	session    pubsub.Session
	generation uint64
	running    bool
	cancel     context.CancelFunc
	loopDone   chan struct{}
	listeners  []func(generation uint64)

	// pubMu keeps publishes in call order on the wire.
	pubMu sync.Mutex
}

func NewManager(dialer pubsub.Dialer, cfg Config) *Manager {
	def := DefaultConfig()
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = def.ReconnectDelay
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = def.PublishTimeout
	}
	return &Manager{dialer: dialer, cfg: cfg}
}

// OnConnect registers fn to run after every successful connect, including
// reconnects. Listeners run on the connection goroutine and must not call
// Disconnect.
func (m *Manager) OnConnect(fn func(generation uint64)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// Connect starts the connection loop. It is a no-op while a loop is
// already connecting or connected.
func (m *Manager) Connect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.running = true
	m.cancel = cancel
	m.loopDone = make(chan struct{})
	m.state = Connecting

	go m.run(ctx, m.loopDone)
}

// Disconnect stops the loop and closes the live session. It blocks until
// the loop has exited.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel, done := m.cancel, m.loopDone
	m.mu.Unlock()

	cancel()
	<-done

	m.mu.Lock()
	m.running = false
	m.state = Disconnected
	m.session = nil
	m.mu.Unlock()

	l := log.L()
	l.Info().Msg("broker disconnected")
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) Connected() bool {
	return m.State() == Connected
}

// Generation counts successful connects; it changes on every reconnect.
func (m *Manager) Generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generation
}

func (m *Manager) current() (pubsub.Session, uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Connected {
		return nil, 0
	}
	return m.session, m.generation
}

// Publish sends body to destination. It reports false when there is no
// live connection or the broker rejects the frame.
func (m *Manager) Publish(destination string, body []byte) bool {
	m.pubMu.Lock()
	defer m.pubMu.Unlock()

	l := log.L()
	s, _ := m.current()
	if s == nil {
		l.Debug().Str(log.FieldDestination, destination).Msg("publish skipped, not connected")
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.PublishTimeout)
	defer cancel()

	if err := s.Publish(ctx, destination, body); err != nil {
		l.Warn().Err(err).Str(log.FieldDestination, destination).Msg("publish failed")
		return false
	}
	return true
}

// Subscribe registers h on destination over the live connection.
func (m *Manager) Subscribe(destination string, h pubsub.Handler) (*Subscription, error) {
	s, gen := m.current()
	if s == nil {
		return nil, ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.PublishTimeout)
	defer cancel()

	inner, err := s.Subscribe(ctx, destination, h)
	if err != nil {
		return nil, err
	}
	return &Subscription{inner: inner, generation: gen}, nil
}

func (m *Manager) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	l := log.L()

	for {
		m.setState(Connecting)
		err := m.connectOnce(ctx)
		if ctx.Err() != nil {
			return
		}

		l.Warn().Err(err).Dur(log.FieldDelay, m.cfg.ReconnectDelay).Msg("broker connection lost, reconnecting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(m.cfg.ReconnectDelay):
		}
	}
}

// connectOnce dials, notifies listeners and blocks until the session ends.
func (m *Manager) connectOnce(ctx context.Context) error {
	l := log.L()

	dialCtx, cancel := ctx, context.CancelFunc(func() {})
	if m.cfg.DialTimeout > 0 {
		dialCtx, cancel = context.WithTimeout(ctx, m.cfg.DialTimeout)
	}
	s, err := m.dialer.Dial(dialCtx)
	cancel()
	if err != nil {
		m.setState(Disconnected)
		return err
	}

	m.mu.Lock()
	if ctx.Err() != nil {
		m.mu.Unlock()
		s.Close()
		return ctx.Err()
	}
	m.session = s
	m.generation++
	gen := m.generation
	m.state = Connected
	listeners := append([]func(uint64){}, m.listeners...)
	m.mu.Unlock()

	l.Info().Uint64(log.FieldGeneration, gen).Msg("broker connected")
	for _, fn := range listeners {
		fn(gen)
	}

	select {
	case <-s.Done():
		err = s.Err()
		if err == nil {
			err = pubsub.ErrConnectionLost
		}
	case <-ctx.Done():
		err = ctx.Err()
	}

	m.mu.Lock()
	if m.session == s {
		m.session = nil
		m.state = Disconnected
	}
	m.mu.Unlock()

	if cerr := s.Close(); cerr != nil {
		l.Debug().Err(cerr).Msg("closing broker session")
	}
	return err
}

func (m *Manager) setState(st State) {
	m.mu.Lock()
	m.state = st
	m.mu.Unlock()
}
