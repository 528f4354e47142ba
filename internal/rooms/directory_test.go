package rooms

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/market-chat/internal/domain"
)

func TestDirectory(t *testing.T) {
	d := NewDirectory()
	d.Replace([]domain.ChatRoom{{RoomID: "r1", Name: "one"}, {RoomID: "r2", Name: "two"}})
	d.Put(domain.ChatRoom{RoomID: "r3", Name: "three"})
	d.Put(domain.ChatRoom{RoomID: "r1", Name: "one again"})

	rooms := d.Rooms()
	require.Len(t, rooms, 3)
	assert.Equal(t, []string{"r1", "r2", "r3"}, []string{rooms[0].RoomID, rooms[1].RoomID, rooms[2].RoomID})
	assert.Equal(t, "one again", rooms[0].Name)

	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	d.Touch("r2", "sold!", at)
	d.Touch("unknown", "ignored", at)

	r2, ok := d.Get("r2")
	require.True(t, ok)
	assert.Equal(t, "sold!", r2.Preview())
	assert.True(t, r2.LastMessageTime.Equal(at))

	_, ok = d.Get("unknown")
	assert.False(t, ok)
}

func TestDirectoryRefresh(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(roomList))
	}))
	defer srv.Close()

	d := NewDirectory()
	d.Put(domain.ChatRoom{RoomID: "stale"})
	require.NoError(t, d.Refresh(context.Background(), NewClient(srv.URL, time.Second, "")))

	_, ok := d.Get("stale")
	assert.False(t, ok)
	assert.Len(t, d.Rooms(), 2)
}
