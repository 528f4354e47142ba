package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/weiawesome/market-chat/internal/identity"
	"github.com/weiawesome/market-chat/internal/protocol"
	pkgconfig "github.com/weiawesome/market-chat/pkg/config"
	"github.com/weiawesome/market-chat/pkg/log"
	"github.com/weiawesome/market-chat/pkg/pubsub"
)

const EnvPrefix = "MARKET_CHAT"

type Config struct {
	Broker   BrokerConfig
	Routes   protocol.Routes
	API      APIConfig `mapstructure:"api"`
	Identity identity.Config
	Chat     ChatConfig
	Log      log.Config
}

type BrokerConfig struct {
	pubsub.Config  `mapstructure:",squash"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
	DialTimeout    time.Duration `mapstructure:"dial_timeout"`
}

type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type ChatConfig struct {
	MessageID       string `mapstructure:"message_id"`
	DedupWindow     int    `mapstructure:"dedup_window"`
	TranscriptLimit int    `mapstructure:"transcript_limit"`
}

// Load reads config from path (a directory; "" searches . and ./config).
func Load(path string) (*Config, error) {
	v, err := pkgconfig.Load(path, "config", EnvPrefix)
	if err != nil {
		return nil, err
	}
	return FromViper(v)
}

// FromViper applies defaults and env bindings to v and decodes it.
func FromViper(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	bindEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Parse durations
	cfg.Broker.ReconnectDelay = pkgconfig.Duration(v, "broker.reconnect_delay", 5*time.Second)
	cfg.Broker.DialTimeout = pkgconfig.Duration(v, "broker.dial_timeout", 10*time.Second)
	cfg.Broker.HeartbeatOutgoing = pkgconfig.Duration(v, "broker.heartbeat_outgoing", 4*time.Second)
	cfg.Broker.HeartbeatIncoming = pkgconfig.Duration(v, "broker.heartbeat_incoming", 4*time.Second)
	cfg.Broker.Stomp.HandshakeTimeout = pkgconfig.Duration(v, "broker.stomp.handshake_timeout", 10*time.Second)
	cfg.Broker.Stomp.WriteWait = pkgconfig.Duration(v, "broker.stomp.write_wait", 10*time.Second)
	cfg.Broker.Stomp.UnsubscribeTimeout = pkgconfig.Duration(v, "broker.stomp.unsubscribe_timeout", 10*time.Second)
	cfg.Broker.Redis.ReadTimeout = pkgconfig.Duration(v, "broker.redis.read_timeout", 3*time.Second)
	cfg.Broker.Redis.WriteTimeout = pkgconfig.Duration(v, "broker.redis.write_timeout", 3*time.Second)
	cfg.API.Timeout = pkgconfig.Duration(v, "api.timeout", 10*time.Second)

	// Without an application server in front, frames go straight to the
	// room topic.
	if !v.IsSet("routes.mode") || cfg.Routes.Mode == "" {
		cfg.Routes.Mode = protocol.ModeServer
		if cfg.Broker.Driver != pubsub.DriverStomp && cfg.Broker.Driver != "" {
			cfg.Routes.Mode = protocol.ModeDirect
		}
	}

	// The broker relay authenticates with the same token as the API.
	if cfg.Broker.Stomp.Token == "" {
		cfg.Broker.Stomp.Token = cfg.Identity.AccessToken
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	routes := protocol.DefaultRoutes()
	broker := pubsub.DefaultConfig()

	v.SetDefault("broker.driver", broker.Driver)
	v.SetDefault("broker.reconnect_delay", "5s")
	v.SetDefault("broker.dial_timeout", "10s")
	v.SetDefault("broker.heartbeat_outgoing", "4s")
	v.SetDefault("broker.heartbeat_incoming", "4s")
	v.SetDefault("broker.stomp.url", broker.Stomp.URL)
	v.SetDefault("broker.stomp.handshake_timeout", "10s")
	v.SetDefault("broker.stomp.write_wait", "10s")
	v.SetDefault("broker.stomp.unsubscribe_timeout", "10s")
	v.SetDefault("broker.redis.address", broker.Redis.Address)
	v.SetDefault("broker.redis.db", 0)
	v.SetDefault("broker.redis.pool_size", broker.Redis.PoolSize)
	v.SetDefault("broker.redis.read_timeout", "3s")
	v.SetDefault("broker.redis.write_timeout", "3s")
	v.SetDefault("broker.kafka.brokers", broker.Kafka.Brokers)
	v.SetDefault("broker.kafka.topic", broker.Kafka.Topic)
	v.SetDefault("broker.kafka.group_prefix", broker.Kafka.GroupPrefix)
	v.SetDefault("broker.kafka.partitions", broker.Kafka.Partitions)
	v.SetDefault("routes.topic_prefix", routes.TopicPrefix)
	v.SetDefault("routes.enter_destination", routes.EnterDestination)
	v.SetDefault("routes.message_destination", routes.MessageDestination)
	v.SetDefault("routes.exit_destination", routes.ExitDestination)
	v.SetDefault("api.base_url", "http://localhost:8080")
	v.SetDefault("api.timeout", "10s")
	v.SetDefault("identity.session_file", "session.json")
	v.SetDefault("chat.message_id", "ulid")
	v.SetDefault("chat.dedup_window", 256)
	v.SetDefault("chat.transcript_limit", 500)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("log.service_name", "chatclient")
}

// Override from environment
func bindEnv(v *viper.Viper) {
	v.BindEnv("broker.driver", "CHAT_BROKER_DRIVER")
	v.BindEnv("broker.stomp.url", "CHAT_WS_URL")
	v.BindEnv("broker.redis.address", "REDIS_ADDRESS")
	v.BindEnv("broker.redis.password", "REDIS_PASSWORD")
	v.BindEnv("broker.kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("api.base_url", "CHAT_API_URL")
	v.BindEnv("identity.session_file", "CHAT_SESSION_FILE")
	v.BindEnv("identity.user_id", "CHAT_USER_ID")
	v.BindEnv("identity.username", "CHAT_USERNAME")
	v.BindEnv("identity.access_token", "CHAT_ACCESS_TOKEN")
	v.BindEnv("log.level", "LOG_LEVEL")
}
