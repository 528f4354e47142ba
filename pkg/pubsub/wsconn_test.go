package pubsub

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoServer sends "CONNECTED" split over two messages, then echoes each
// message it receives until it gets "BYE".
func echoServer(t *testing.T) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer ws.Close()

		ws.WriteMessage(websocket.TextMessage, []byte("CONN"))
		ws.WriteMessage(websocket.TextMessage, []byte("ECTED"))
		for {
			mt, data, err := ws.ReadMessage()
			if err != nil || string(data) == "BYE" {
				return
			}
			ws.WriteMessage(mt, data)
		}
	}))
}

func dialWS(t *testing.T, srv *httptest.Server) *wsConn {
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return newWSConn(ws, time.Second)
}

func TestWSConnReadsAcrossMessages(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	c := dialWS(t, srv)
	defer c.Close()

	buf := make([]byte, len("CONNECTED"))
	_, err := io.ReadFull(c, buf)
	require.NoError(t, err)
	assert.Equal(t, "CONNECTED", string(buf))

	n, err := c.Write([]byte("SEND\n\n\x00"))
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	echo := make([]byte, 7)
	_, err = io.ReadFull(c, echo)
	require.NoError(t, err)
	assert.Equal(t, "SEND\n\n\x00", string(echo))
}

func TestWSConnEndsOnServerClose(t *testing.T) {
	srv := echoServer(t)
	c := dialWS(t, srv)

	buf := make([]byte, 9)
	_, err := io.ReadFull(c, buf)
	require.NoError(t, err)

	_, err = c.Write([]byte("BYE"))
	require.NoError(t, err)
	_, err = c.Read(buf)
	assert.Error(t, err)

	select {
	case <-c.life.Done():
	case <-time.After(time.Second):
		t.Fatal("adapter did not signal connection loss")
	}
	assert.Error(t, c.life.Err())
	srv.Close()
}

func TestWSConnCloseIsClean(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	c := dialWS(t, srv)
	require.NoError(t, c.Close())
	<-c.life.Done()
	assert.NoError(t, c.life.Err())
}
