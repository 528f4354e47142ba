package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/market-chat/internal/protocol"
	"github.com/weiawesome/market-chat/pkg/pubsub"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, pubsub.DriverStomp, cfg.Broker.Driver)
	assert.Equal(t, 5*time.Second, cfg.Broker.ReconnectDelay)
	assert.Equal(t, 4*time.Second, cfg.Broker.HeartbeatOutgoing)
	assert.Equal(t, 4*time.Second, cfg.Broker.HeartbeatIncoming)
	assert.Equal(t, protocol.ModeServer, cfg.Routes.Mode)
	assert.Equal(t, "/sub", cfg.Routes.TopicPrefix)
	assert.Equal(t, "/pub/chat/enter", cfg.Routes.EnterDestination)
	assert.Equal(t, "/pub/chat/message", cfg.Routes.ExitDestination)
	assert.Equal(t, 256, cfg.Chat.DedupWindow)
	assert.Equal(t, 500, cfg.Chat.TranscriptLimit)
	assert.Equal(t, "ulid", cfg.Chat.MessageID)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := `
broker:
  driver: redis
  reconnect_delay: 250ms
  redis:
    address: redis:6379
chat:
  transcript_limit: 50
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))
	t.Setenv("CHAT_ACCESS_TOKEN", "tok")
	t.Setenv("MARKET_CHAT_LOG_LEVEL", "debug")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, pubsub.DriverRedis, cfg.Broker.Driver)
	assert.Equal(t, 250*time.Millisecond, cfg.Broker.ReconnectDelay)
	assert.Equal(t, "redis:6379", cfg.Broker.Redis.Address)
	assert.Equal(t, 50, cfg.Chat.TranscriptLimit)
	assert.Equal(t, protocol.ModeDirect, cfg.Routes.Mode)
	assert.Equal(t, "tok", cfg.Identity.AccessToken)
	assert.Equal(t, "tok", cfg.Broker.Stomp.Token)
	assert.Equal(t, "debug", cfg.Log.Level)
}
