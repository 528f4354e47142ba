package pubsub

import (
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsConn exposes a websocket as the byte stream STOMP expects. Each Write
// becomes one text message; reads span message boundaries.
type wsConn struct {
	ws        *websocket.Conn
	writeWait time.Duration

	readMu sync.Mutex
	reader io.Reader

	writeMu sync.Mutex

	life *lifecycle
}

func newWSConn(ws *websocket.Conn, writeWait time.Duration) *wsConn {
	return &wsConn{ws: ws, writeWait: writeWait, life: newLifecycle()}
}

func (c *wsConn) Read(p []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	for {
		if c.reader == nil {
			_, r, err := c.ws.NextReader()
			if err != nil {
				c.life.end(err)
				return 0, err
			}
			c.reader = r
		}

		n, err := c.reader.Read(p)
		if err == io.EOF {
			c.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		if err != nil {
			c.life.end(err)
		}
		return n, err
	}
}

func (c *wsConn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.writeWait > 0 {
		c.ws.SetWriteDeadline(time.Now().Add(c.writeWait))
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, p); err != nil {
		c.life.end(err)
		return 0, err
	}
	return len(p), nil
}

func (c *wsConn) Close() error {
	c.writeMu.Lock()
	c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()

	c.life.end(nil)
	return c.ws.Close()
}
