package pubsub

import (
	"context"
	"errors"
)

var (
	ErrSessionClosed  = errors.New("pubsub: session closed")
	ErrConnectionLost = errors.New("pubsub: connection lost")
	ErrUnknownDriver  = errors.New("pubsub: unknown driver")
)

// Message is a frame delivered on a subscribed destination.
type Message struct {
	Destination string
	Body        []byte
	Header      map[string]string
}

// Handler consumes messages of one subscription. Calls for a single
// subscription are sequential and in broker order.
type Handler func(msg *Message)

// Subscription is a live broker subscription handle.
type Subscription interface {
	Destination() string
	// Unsubscribe stops delivery to the handler. It may be called from
	// inside the handler and never waits for a running handler call to
	// return.
	Unsubscribe() error
}

// Publisher publishes raw frames to a destination.
type Publisher interface {
	Publish(ctx context.Context, destination string, body []byte) error
}

// Subscriber subscribes handlers to destinations.
type Subscriber interface {
	Subscribe(ctx context.Context, destination string, h Handler) (Subscription, error)
}

// Session is one physical broker connection. Done is closed when the
// connection is lost or closed; Err then reports the cause, nil after a
// clean Close.
type Session interface {
	Publisher
	Subscriber
	Done() <-chan struct{}
	Err() error
	Close() error
}

// Dialer opens sessions.
type Dialer interface {
	Dial(ctx context.Context) (Session, error)
}

