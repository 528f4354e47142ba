package pubsub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/weiawesome/market-chat/pkg/log"
)

// RedisDialer publishes and subscribes through Redis Pub/Sub.
type RedisDialer struct {
	cfg          RedisConfig
	pingInterval time.Duration
	pingTimeout  time.Duration
}

// NewRedisDialer creates a Redis dialer. The connection is pinged every
// outgoing interval; a ping that takes longer than incoming ends the session.
func NewRedisDialer(cfg RedisConfig, outgoing, incoming time.Duration) *RedisDialer {
	return &RedisDialer{cfg: cfg, pingInterval: outgoing, pingTimeout: incoming}
}

func (d *RedisDialer) Dial(ctx context.Context) (Session, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         d.cfg.Address,
		Password:     d.cfg.Password,
		DB:           d.cfg.DB,
		PoolSize:     d.cfg.PoolSize,
		ReadTimeout:  d.cfg.ReadTimeout,
		WriteTimeout: d.cfg.WriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	s := &redisSession{
		client: client,
		life:   newLifecycle(),
		subs:   make(map[*redisSubscription]struct{}),
	}
	if d.pingInterval > 0 {
		go s.monitor(d.pingInterval, d.pingTimeout)
	}
	return s, nil
}

type redisSession struct {
	client *redis.Client
	life   *lifecycle

	mu   sync.Mutex
	subs map[*redisSubscription]struct{}
}

func (s *redisSession) Publish(ctx context.Context, destination string, body []byte) error {
	if s.life.ended() {
		return ErrSessionClosed
	}
	return s.client.Publish(ctx, destination, body).Err()
}

func (s *redisSession) Subscribe(ctx context.Context, destination string, h Handler) (Subscription, error) {
	if s.life.ended() {
		return nil, ErrSessionClosed
	}

	ps := s.client.Subscribe(ctx, destination)
	// Wait for subscription to be active
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", destination, err)
	}

	sub := &redisSubscription{dest: destination, ps: ps, session: s}
	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	go sub.deliver(h)
	return sub, nil
}

func (s *redisSession) Done() <-chan struct{} { return s.life.Done() }
func (s *redisSession) Err() error            { return s.life.Err() }

func (s *redisSession) Close() error {
	s.shutdown(nil)
	return nil
}

func (s *redisSession) shutdown(cause error) {
	if !s.life.end(cause) {
		return
	}

	s.mu.Lock()
	subs := s.subs
	s.subs = make(map[*redisSubscription]struct{})
	s.mu.Unlock()

	for sub := range subs {
		sub.ps.Close()
	}
	s.client.Close()
}

// monitor pings Redis until the session ends or a ping fails.
func (s *redisSession) monitor(interval, timeout time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.life.Done():
			return
		case <-ticker.C:
			ctx := context.Background()
			var cancel context.CancelFunc = func() {}
			if timeout > 0 {
				ctx, cancel = context.WithTimeout(ctx, timeout)
			}
			err := s.client.Ping(ctx).Err()
			cancel()
			if err != nil {
				l := log.L()
				l.Warn().Err(err).Str(log.FieldDriver, DriverRedis).Msg("redis heartbeat failed")
				s.shutdown(fmt.Errorf("%w: %v", ErrConnectionLost, err))
				return
			}
		}
	}
}

type redisSubscription struct {
	dest    string
	ps      *redis.PubSub
	session *redisSession
	once    sync.Once
}

func (s *redisSubscription) Destination() string { return s.dest }

func (s *redisSubscription) Unsubscribe() error {
	var err error
	s.once.Do(func() {
		s.session.mu.Lock()
		delete(s.session.subs, s)
		s.session.mu.Unlock()
		err = s.ps.Close()
	})
	return err
}

func (s *redisSubscription) deliver(h Handler) {
	for msg := range s.ps.Channel() {
		h(&Message{Destination: msg.Channel, Body: []byte(msg.Payload)})
	}
}
