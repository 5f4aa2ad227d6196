package relay

import (
	"sync"
	"time"

	"github.com/foodflow/notifier/internal/stomp"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	maxFrameSize   = 64 << 10
	sendBufferSize = 64
)

// client is one websocket connection. Frames to the peer go through send
// and are written by writePump only.
type client struct {
	hub     *Hub
	conn    *websocket.Conn
	log     zerolog.Logger
	user    string
	authErr error

	mu        sync.Mutex
	send      chan []byte
	closed    bool
	connected bool
	subs      map[string]string
}

func newClient(hub *Hub, conn *websocket.Conn, user string, authErr error, log zerolog.Logger) *client {
	c := &client{
		hub:     hub,
		conn:    conn,
		log:     log,
		user:    user,
		authErr: authErr,
		send:    make(chan []byte, sendBufferSize),
		subs:    make(map[string]string),
	}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for data := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			c.log.Debug().Err(err).Msg("relay write failed")
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
}

// enqueue queues f without blocking. It reports false when the buffer is
// full; a closed client silently drops the frame.
func (c *client) enqueue(f *stomp.Frame) bool {
	data, err := f.MarshalBinary()
	if err != nil {
		c.log.Error().Err(err).Str("command", string(f.Command)).Msg("relay marshal failed")
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *client) subscriptionsTo(destination string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var ids []string
	for id, dest := range c.subs {
		if dest == destination {
			ids = append(ids, id)
		}
	}
	return ids
}

func (c *client) destinations() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.subs))
	for _, dest := range c.subs {
		out = append(out, dest)
	}
	return out
}

// readPump handles inbound frames until the connection ends or the client
// is dropped.
func (c *client) readPump() {
	defer c.hub.remove(c)

	c.conn.SetReadLimit(maxFrameSize)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug().Err(err).Msg("relay read ended")
			}
			return
		}
		f, err := stomp.Parse(data)
		if err != nil {
			c.fail("malformed frame", err.Error())
			return
		}
		if f == nil {
			continue
		}
		if !c.handle(f) {
			return
		}
	}
}

// handle applies one client frame. It returns false when the connection
// must end.
func (c *client) handle(f *stomp.Frame) bool {
	c.mu.Lock()
	connected := c.connected
	c.mu.Unlock()

	switch f.Command {
	case stomp.CmdConnect, stomp.CmdStomp:
		if connected {
			c.fail("already connected", "")
			return false
		}
		if c.authErr != nil {
			c.log.Info().Err(c.authErr).Msg("relay rejected credentials")
			c.fail("invalid credentials", c.authErr.Error())
			return false
		}
		c.mu.Lock()
		c.connected = true
		c.mu.Unlock()
		c.enqueue(stomp.New(stomp.CmdConnected,
			stomp.HdrVersion, "1.2",
			stomp.HdrHeartBeat, "0,0",
			"user-name", c.user,
		))
		c.log.Info().Str("user", c.user).Msg("relay client connected")
		return true
	}

	if !connected {
		c.fail("not connected", "expected CONNECT, got "+string(f.Command))
		return false
	}

	switch f.Command {
	case stomp.CmdSubscribe:
		id, dest := f.Get(stomp.HdrID), f.Get(stomp.HdrDestination)
		if id == "" || dest == "" {
			c.fail("invalid SUBSCRIBE", "id and destination are required")
			return false
		}
		c.mu.Lock()
		c.subs[id] = dest
		c.mu.Unlock()
	case stomp.CmdUnsubscribe:
		c.mu.Lock()
		delete(c.subs, f.Get(stomp.HdrID))
		c.mu.Unlock()
	case stomp.CmdDisconnect:
		if receipt := f.Get(stomp.HdrReceipt); receipt != "" {
			c.enqueue(stomp.New(stomp.CmdReceipt, stomp.HdrReceiptID, receipt))
		}
		return false
	default:
		c.log.Debug().Str("command", string(f.Command)).Msg("relay ignoring frame")
	}
	if receipt := f.Get(stomp.HdrReceipt); receipt != "" {
		c.enqueue(stomp.New(stomp.CmdReceipt, stomp.HdrReceiptID, receipt))
	}
	return true
}

func (c *client) fail(message, detail string) {
	f := stomp.New(stomp.CmdError, stomp.HdrMessage, message)
	if detail != "" {
		f.Set(stomp.HdrContentType, "text/plain")
		f.Body = []byte(detail)
	}
	c.enqueue(f)
}
