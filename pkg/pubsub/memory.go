package pubsub

import (
	"context"
	"sync"
)

// MemoryBroker is an in-process broker. Every session dialed from it shares
// the same destinations, so several clients in one process can talk to
// each other. It also lets callers sever connections and fail dials.
type MemoryBroker struct {
	mu        sync.Mutex
	sessions  map[*memorySession]struct{}
	dials     int
	dialErr   error
	published []Message
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{sessions: make(map[*memorySession]struct{})}
}

// Dial opens a new session unless a dial error is set.
func (b *MemoryBroker) Dial(ctx context.Context) (Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.dials++
	if b.dialErr != nil {
		return nil, b.dialErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s := &memorySession{broker: b, life: newLifecycle(), subs: make(map[*memorySubscription]struct{})}
	b.sessions[s] = struct{}{}
	return s, nil
}

// Dials reports how many times Dial was called.
func (b *MemoryBroker) Dials() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dials
}

// SetDialError makes subsequent dials fail with err; nil restores them.
func (b *MemoryBroker) SetDialError(err error) {
	b.mu.Lock()
	b.dialErr = err
	b.mu.Unlock()
}

// Drop severs every live session as if the network went away.
func (b *MemoryBroker) Drop() {
	b.mu.Lock()
	sessions := make([]*memorySession, 0, len(b.sessions))
	for s := range b.sessions {
		sessions = append(sessions, s)
	}
	b.mu.Unlock()

	for _, s := range sessions {
		s.shutdown(ErrConnectionLost)
	}
}

// Sessions reports the number of live sessions.
func (b *MemoryBroker) Sessions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions)
}

// Subscribers reports the number of live subscriptions on destination.
func (b *MemoryBroker) Subscribers(destination string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for s := range b.sessions {
		for sub := range s.subs {
			if sub.dest == destination {
				n++
			}
		}
	}
	return n
}

// Inject delivers body on destination without a publishing session.
func (b *MemoryBroker) Inject(destination string, body []byte) {
	b.fanout(destination, body)
}

// Published returns a copy of every message published through the broker,
// in publish order.
func (b *MemoryBroker) Published() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Message, len(b.published))
	copy(out, b.published)
	return out
}

func (b *MemoryBroker) publish(destination string, body []byte) {
	b.mu.Lock()
	b.published = append(b.published, Message{Destination: destination, Body: append([]byte(nil), body...)})
	b.mu.Unlock()

	b.fanout(destination, body)
}

func (b *MemoryBroker) fanout(destination string, body []byte) {
	b.mu.Lock()
	var targets []*memorySubscription
	for s := range b.sessions {
		for sub := range s.subs {
			if sub.dest == destination {
				targets = append(targets, sub)
			}
		}
	}
	b.mu.Unlock()

	for _, sub := range targets {
		sub.push(&Message{Destination: destination, Body: append([]byte(nil), body...), Header: map[string]string{}})
	}
}

type memorySession struct {
	broker *MemoryBroker
	life   *lifecycle
	// subs is guarded by broker.mu.
	subs map[*memorySubscription]struct{}
}

func (s *memorySession) Publish(ctx context.Context, destination string, body []byte) error {
	if s.life.ended() {
		return ErrSessionClosed
	}
	s.broker.publish(destination, body)
	return nil
}

func (s *memorySession) Subscribe(ctx context.Context, destination string, h Handler) (Subscription, error) {
	s.broker.mu.Lock()
	defer s.broker.mu.Unlock()

	if s.life.ended() {
		return nil, ErrSessionClosed
	}

	sub := &memorySubscription{
		dest:    destination,
		handler: h,
		session: s,
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}
	s.subs[sub] = struct{}{}
	go sub.run()
	return sub, nil
}

func (s *memorySession) Done() <-chan struct{} { return s.life.Done() }
func (s *memorySession) Err() error            { return s.life.Err() }

func (s *memorySession) Close() error {
	s.shutdown(nil)
	return nil
}

func (s *memorySession) shutdown(cause error) {
	s.broker.mu.Lock()
	if !s.life.end(cause) {
		s.broker.mu.Unlock()
		return
	}
	delete(s.broker.sessions, s)
	subs := s.subs
	s.subs = make(map[*memorySubscription]struct{})
	s.broker.mu.Unlock()

	for sub := range subs {
		sub.halt()
	}
}

// memorySubscription queues frames and hands them to its handler from a
// single goroutine, in arrival order.
type memorySubscription struct {
	dest    string
	handler Handler
	session *memorySession

	mu    sync.Mutex
	queue []*Message
	wake  chan struct{}
	stop  chan struct{}
	once  sync.Once
}

func (s *memorySubscription) Destination() string { return s.dest }

func (s *memorySubscription) Unsubscribe() error {
	b := s.session.broker
	b.mu.Lock()
	delete(s.session.subs, s)
	b.mu.Unlock()

	s.halt()
	return nil
}

func (s *memorySubscription) halt() {
	s.once.Do(func() { close(s.stop) })
}

func (s *memorySubscription) push(msg *Message) {
	s.mu.Lock()
	s.queue = append(s.queue, msg)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *memorySubscription) run() {
	for {
		select {
		case <-s.stop:
			return
		case <-s.wake:
		}

		for {
			s.mu.Lock()
			if len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			msg := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()

			select {
			case <-s.stop:
				return
			default:
			}
			s.handler(msg)
		}
	}
}
