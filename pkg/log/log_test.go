package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, parseLevel(" warning "))
	assert.Equal(t, zerolog.Disabled, parseLevel("off"))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("nonsense"))
}

func TestNewWritesServiceField(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "info", ServiceName: "chatclient", Output: &buf})
	logger.Info().Msg("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "chatclient", line[FieldService])
	assert.Equal(t, "hello", line["message"])
}

func TestForRoomUsesContextLogger(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Output: &buf})
	ctx := WithLogger(context.Background(), base)

	l := ForRoom(ctx, "room-1", "u-1")
	l.Info().Msg("joined")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "room-1", line[FieldRoomID])
	assert.Equal(t, "u-1", line[FieldUserID])
}
