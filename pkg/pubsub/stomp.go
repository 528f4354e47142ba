package pubsub

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-stomp/stomp/v3"
	"github.com/gorilla/websocket"

	"github.com/weiawesome/market-chat/pkg/log"
)

const contentTypeJSON = "application/json"

// StompDialer connects to a STOMP broker relay over websocket.
type StompDialer struct {
	cfg      StompConfig
	outgoing time.Duration
	incoming time.Duration
	ws       *websocket.Dialer
}

// NewStompDialer creates a dialer for cfg. outgoing and incoming are the
// STOMP heart-beat intervals advertised in CONNECT.
func NewStompDialer(cfg StompConfig, outgoing, incoming time.Duration) *StompDialer {
	return &StompDialer{
		cfg:      cfg,
		outgoing: outgoing,
		incoming: incoming,
		ws: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
			Subprotocols:     []string{"v12.stomp", "v11.stomp", "v10.stomp"},
		},
	}
}

// Dial opens the websocket and negotiates a STOMP session on it.
func (d *StompDialer) Dial(ctx context.Context) (Session, error) {
	header := http.Header{}
	if d.cfg.Origin != "" {
		header.Set("Origin", d.cfg.Origin)
	}
	if d.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+d.cfg.Token)
	}

	ws, _, err := d.ws.DialContext(ctx, d.cfg.URL, header)
	if err != nil {
		return nil, fmt.Errorf("websocket dial %s: %w", d.cfg.URL, err)
	}
	rwc := newWSConn(ws, d.cfg.WriteWait)

	opts := []func(*stomp.Conn) error{
		stomp.ConnOpt.HeartBeat(d.outgoing, d.incoming),
	}
	if d.cfg.Host != "" {
		opts = append(opts, stomp.ConnOpt.Host(d.cfg.Host))
	}
	if d.cfg.Login != "" {
		opts = append(opts, stomp.ConnOpt.Login(d.cfg.Login, d.cfg.Passcode))
	}
	if d.cfg.Token != "" {
		opts = append(opts, stomp.ConnOpt.Header("Authorization", "Bearer "+d.cfg.Token))
	}
	if d.cfg.UnsubscribeTimeout > 0 {
		opts = append(opts, stomp.ConnOpt.UnsubscribeReceiptTimeout(d.cfg.UnsubscribeTimeout))
	}

	conn, err := d.connect(ctx, ws, rwc, opts)
	if err != nil {
		return nil, err
	}

	return &stompSession{conn: conn, rwc: rwc, life: rwc.life}, nil
}

// connect runs the CONNECT handshake within ctx. The socket is not a
// net.Conn, so go-stomp cannot apply the deadline itself; the socket is
// closed when ctx ends instead.
func (d *StompDialer) connect(ctx context.Context, ws *websocket.Conn, rwc *wsConn, opts []func(*stomp.Conn) error) (*stomp.Conn, error) {
	stop := context.AfterFunc(ctx, func() { ws.Close() })

	conn, err := stomp.ConnectWithContext(ctx, rwc, opts...)
	interrupted := !stop()
	if err == nil && interrupted {
		err = ctx.Err()
	}
	if err != nil {
		rwc.Close()
		if ctx.Err() != nil {
			return nil, fmt.Errorf("stomp connect: %w", ctx.Err())
		}
		return nil, fmt.Errorf("stomp connect: %w", err)
	}
	return conn, nil
}

type stompSession struct {
	conn *stomp.Conn
	rwc  *wsConn
	life *lifecycle

	mu   sync.Mutex
	subs map[*stompSubscription]struct{}
}

func (s *stompSession) Publish(ctx context.Context, destination string, body []byte) error {
	if s.life.ended() {
		return ErrSessionClosed
	}
	if err := s.conn.Send(destination, contentTypeJSON, body); err != nil {
		s.life.end(err)
		return err
	}
	return nil
}

func (s *stompSession) Subscribe(ctx context.Context, destination string, h Handler) (Subscription, error) {
	if s.life.ended() {
		return nil, ErrSessionClosed
	}

	sub, err := s.conn.Subscribe(destination, stomp.AckAuto)
	if err != nil {
		return nil, fmt.Errorf("stomp subscribe %s: %w", destination, err)
	}

	ss := &stompSubscription{dest: destination, sub: sub, session: s}
	s.mu.Lock()
	if s.subs == nil {
		s.subs = make(map[*stompSubscription]struct{})
	}
	s.subs[ss] = struct{}{}
	s.mu.Unlock()

	go ss.deliver(h)
	return ss, nil
}

func (s *stompSession) Done() <-chan struct{} { return s.life.Done() }
func (s *stompSession) Err() error            { return s.life.Err() }

// Close sends DISCONNECT and closes the socket.
func (s *stompSession) Close() error {
	if s.life.ended() {
		return s.rwc.ws.Close()
	}
	err := s.conn.Disconnect()
	s.rwc.Close()
	return err
}

type stompSubscription struct {
	dest    string
	sub     *stomp.Subscription
	session *stompSession
	once    sync.Once
	closing atomic.Bool
}

func (s *stompSubscription) Destination() string { return s.dest }

// Unsubscribe stops delivery at once. UNSUBSCRIBE waits for a receipt
// that is read on the delivery goroutine, so the frame goes out in the
// background; this keeps the call safe from inside the handler.
func (s *stompSubscription) Unsubscribe() error {
	s.once.Do(func() {
		s.closing.Store(true)

		s.session.mu.Lock()
		delete(s.session.subs, s)
		s.session.mu.Unlock()

		if s.session.life.ended() {
			return
		}
		go func() {
			if err := s.sub.Unsubscribe(); err != nil {
				l := log.L()
				l.Debug().Err(err).Str(log.FieldDestination, s.dest).Msg("stomp unsubscribe")
			}
		}()
	})
	return nil
}

func (s *stompSubscription) deliver(h Handler) {
	l := log.L()

	for msg := range s.sub.C {
		if msg.Err != nil {
			// Errors after our own UNSUBSCRIBE (a missing receipt, say)
			// concern this subscription only.
			if s.closing.Load() {
				l.Debug().Err(msg.Err).Str(log.FieldDestination, s.dest).Msg("stomp subscription closed")
				return
			}
			l.Warn().Err(msg.Err).Str(log.FieldDestination, s.dest).Msg("stomp subscription error")
			s.session.life.end(msg.Err)
			return
		}
		if s.closing.Load() {
			continue
		}

		header := make(map[string]string)
		if msg.Header != nil {
			for i := 0; i < msg.Header.Len(); i++ {
				k, v := msg.Header.GetAt(i)
				header[k] = v
			}
		}
		h(&Message{Destination: s.dest, Body: msg.Body, Header: header})
	}
}
