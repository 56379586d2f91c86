package broadcast

import (
	"encoding/json"
	"time"

	"golang.org/x/net/websocket"
)

// DefaultWriteTimeout bounds a single send to a viewer.
const DefaultWriteTimeout = 5 * time.Second

// WebsocketConn adapts a websocket to Conn. Notifications are sent as JSON
// text frames.
type WebsocketConn struct {
	ws      *websocket.Conn
	timeout time.Duration
}

func NewWebsocketConn(ws *websocket.Conn, timeout time.Duration) *WebsocketConn {
	if timeout <= 0 {
		timeout = DefaultWriteTimeout
	}
	return &WebsocketConn{ws: ws, timeout: timeout}
}

func (c *WebsocketConn) Send(n Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return err
	}
	return websocket.Message.Send(c.ws, string(data))
}

func (c *WebsocketConn) Close() error {
	return c.ws.Close()
}

// Wait blocks until the viewer disconnects. Viewers never send anything
// meaningful, so incoming frames are discarded.
func (c *WebsocketConn) Wait() {
	var discard string
	for {
		if err := websocket.Message.Receive(c.ws, &discard); err != nil {
			return
		}
	}
}
