package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/market-chat/internal/domain"
	"github.com/weiawesome/market-chat/internal/identity"
)

func TestLoginWritesSessionFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")

	var out bytes.Buffer
	require.NoError(t, login(path, []string{"opaque", "9", "gina"}, &out))
	assert.Equal(t, "logged in as gina (9)\n", out.String())

	who, err := identity.Load(identity.Config{SessionFile: path})
	require.NoError(t, err)
	assert.Equal(t, domain.Identity{UserID: "9", Username: "gina", AccessToken: "opaque"}, who)
}

func TestLoginNeedsSessionFile(t *testing.T) {
	assert.Error(t, login("", []string{"opaque"}, &bytes.Buffer{}))
}
