package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	handshakeTimeout = 15 * time.Second
	writeTimeout     = 10 * time.Second
	readLimit        = 1 << 20
)

// WebsocketOptions configures the gorilla-backed factory.
type WebsocketOptions struct {
	Subprotocols     []string
	Header           http.Header
	HandshakeTimeout time.Duration
}

// Websocket returns a Factory that dials with gorilla/websocket.
func Websocket(opts WebsocketOptions) Factory {
	return func(ctx context.Context, rawURL string) (Conn, error) {
		dialer := websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.HandshakeTimeout,
		}
		if dialer.HandshakeTimeout <= 0 {
			dialer.HandshakeTimeout = handshakeTimeout
		}
		if len(opts.Subprotocols) > 0 {
			dialer.Subprotocols = append([]string(nil), opts.Subprotocols...)
		}

		conn, resp, err := dialer.DialContext(ctx, rawURL, opts.Header.Clone())
		if err != nil {
			if resp != nil {
				var body []byte
				if resp.Body != nil {
					body, _ = io.ReadAll(io.LimitReader(resp.Body, 4096))
					_ = resp.Body.Close()
				}
				return nil, fmt.Errorf("ws handshake failed: status=%d: %w: %s", resp.StatusCode, err, body)
			}
			return nil, fmt.Errorf("ws dial: %w", err)
		}
		conn.SetReadLimit(readLimit)
		return &wsConn{conn: conn}, nil
	}
}

type wsConn struct {
	conn      *websocket.Conn
	closeOnce sync.Once
	closeErr  error
}

func (w *wsConn) ReadMessage() ([]byte, error) {
	for {
		typ, data, err := w.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if typ == websocket.TextMessage || typ == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (w *wsConn) WriteMessage(data []byte) error {
	_ = w.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

// Close sends a normal closure before dropping the socket. Repeated calls
// return the first result.
func (w *wsConn) Close() error {
	w.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		w.closeErr = w.conn.Close()
	})
	return w.closeErr
}

// IsNormalClose reports whether err is the peer closing the socket cleanly.
func IsNormalClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
