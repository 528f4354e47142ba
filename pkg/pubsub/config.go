package pubsub

import (
	"fmt"
	"time"
)

// Drivers.
const (
	DriverStomp  = "stomp"
	DriverRedis  = "redis"
	DriverKafka  = "kafka"
	DriverMemory = "memory"
)

// StompConfig holds STOMP-over-websocket configuration.
type StompConfig struct {
	URL              string        `mapstructure:"url"`
	Host             string        `mapstructure:"host"`
	Login            string        `mapstructure:"login"`
	Passcode         string        `mapstructure:"passcode"`
	Token            string        `mapstructure:"token"`
	Origin           string        `mapstructure:"origin"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	WriteWait        time.Duration `mapstructure:"write_wait"`
	// UnsubscribeTimeout bounds the wait for an UNSUBSCRIBE receipt.
	UnsubscribeTimeout time.Duration `mapstructure:"unsubscribe_timeout"`
}

// RedisConfig holds Redis-specific configuration.
type RedisConfig struct {
	Address      string        `mapstructure:"address"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// KafkaConfig holds Kafka-specific configuration.
type KafkaConfig struct {
	Brokers     string `mapstructure:"brokers"`
	Topic       string `mapstructure:"topic"`
	GroupPrefix string `mapstructure:"group_prefix"`
	Partitions  int    `mapstructure:"partitions"`
}

// Config holds the configuration for the broker connection.
type Config struct {
	Driver string `mapstructure:"driver"` // "stomp", "redis", "kafka", "memory"

	// Heartbeats are fixed at dial time. Outgoing is how often this client
	// proves liveness, incoming how long it tolerates broker silence.
	HeartbeatOutgoing time.Duration `mapstructure:"heartbeat_outgoing"`
	HeartbeatIncoming time.Duration `mapstructure:"heartbeat_incoming"`

	Stomp StompConfig `mapstructure:"stomp"`
	Redis RedisConfig `mapstructure:"redis"`
	Kafka KafkaConfig `mapstructure:"kafka"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Driver:            DriverStomp,
		HeartbeatOutgoing: 4 * time.Second,
		HeartbeatIncoming: 4 * time.Second,
		Stomp: StompConfig{
			URL:              "ws://localhost:8080/ws-stomp/websocket",
			HandshakeTimeout: 10 * time.Second,
			WriteWait:        10 * time.Second,
		},
		Redis: RedisConfig{
			Address:      "localhost:6379",
			PoolSize:     10,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:     "localhost:9092",
			Topic:       "chat-rooms",
			GroupPrefix: "market-chat",
			Partitions:  4,
		},
	}
}

// NewDialer creates a Dialer for the configured driver.
func NewDialer(cfg Config) (Dialer, error) {
	switch cfg.Driver {
	case DriverStomp, "":
		return NewStompDialer(cfg.Stomp, cfg.HeartbeatOutgoing, cfg.HeartbeatIncoming), nil
	case DriverRedis:
		return NewRedisDialer(cfg.Redis, cfg.HeartbeatOutgoing, cfg.HeartbeatIncoming), nil
	case DriverKafka:
		return NewKafkaDialer(cfg.Kafka), nil
	case DriverMemory:
		return NewMemoryBroker(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}
