package identity

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/market-chat/internal/domain"
	"github.com/weiawesome/market-chat/pkg/jwt"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func token(t *testing.T, userID, username string) string {
	t.Helper()
	s, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, &jwt.Claims{UserID: userID, Username: username}).SignedString([]byte("k"))
	require.NoError(t, err)
	return s
}

func TestLoadFromSessionFile(t *testing.T) {
	path := writeFile(t, `{"id": 7, "username": "carol", "accessToken": "opaque"}`)

	who, err := Load(Config{SessionFile: path})
	require.NoError(t, err)
	assert.Equal(t, domain.Identity{UserID: "7", Username: "carol", AccessToken: "opaque"}, who)
	assert.True(t, who.LoggedIn())
}

func TestNumericIDMatchesWireForm(t *testing.T) {
	path := writeFile(t, `{"id": 7.0, "username": "carol"}`)

	who, err := Load(Config{SessionFile: path})
	require.NoError(t, err)

	var msg domain.ChatMessage
	require.NoError(t, json.Unmarshal([]byte(`{"type":"TALK","roomId":1,"senderId":7,"message":"hi"}`), &msg))
	assert.Equal(t, "7", who.UserID)
	assert.Equal(t, msg.SenderID, who.UserID)
}

func TestObjectIDIsRejected(t *testing.T) {
	_, err := Load(Config{SessionFile: writeFile(t, `{"id": {"v": 7}}`)})
	assert.Error(t, err)
}

func TestOverridesWin(t *testing.T) {
	path := writeFile(t, `{"id": "7", "username": "carol"}`)

	who, err := Load(Config{SessionFile: path, Username: "dave", AccessToken: "t"})
	require.NoError(t, err)
	assert.Equal(t, "7", who.UserID)
	assert.Equal(t, "dave", who.Username)
	assert.Equal(t, "t", who.AccessToken)
}

func TestMissingFileAndDefaults(t *testing.T) {
	who, err := Load(Config{SessionFile: filepath.Join(t.TempDir(), "absent.json")})
	require.NoError(t, err)
	assert.Equal(t, DefaultUsername, who.Username)
	assert.False(t, who.LoggedIn())
}

func TestMalformedFile(t *testing.T) {
	_, err := Load(Config{SessionFile: writeFile(t, `{`)})
	assert.Error(t, err)
}

func TestClaimsFillGaps(t *testing.T) {
	who, err := Load(Config{AccessToken: token(t, "11", "erin")})
	require.NoError(t, err)
	assert.Equal(t, "11", who.UserID)
	assert.Equal(t, "erin", who.Username)

	who, err = Load(Config{UserID: "3", AccessToken: token(t, "11", "erin")})
	require.NoError(t, err)
	assert.Equal(t, "3", who.UserID)
	assert.Equal(t, "erin", who.Username)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	in := domain.Identity{UserID: "5", Username: "frank", AccessToken: "tok"}
	require.NoError(t, Save(path, in))

	out, err := Load(Config{SessionFile: path})
	require.NoError(t, err)
	assert.Equal(t, in, out)
}
