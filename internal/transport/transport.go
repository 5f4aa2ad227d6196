// Package transport opens the bidirectional message stream that the
// notification session runs over.
//
// The stream is a raw websocket carrying STOMP frames. A server that only
// exposes a SockJS endpoint also accepts raw websockets on its
// "/websocket" sub-path, so such a backend is reached by configuring the
// endpoint as ".../ws/websocket". The SockJS polling fallbacks are not
// spoken.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidEndpoint is returned by BuildURL for endpoints it cannot dial.
var ErrInvalidEndpoint = errors.New("invalid endpoint")

// Conn is one open message stream. ReadMessage blocks until a whole message
// arrives; WriteMessage must not be called concurrently.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Factory dials rawURL and returns an open Conn.
type Factory func(ctx context.Context, rawURL string) (Conn, error)

// BuildURL turns a handshake endpoint into a dialable websocket URL. http and
// https are mapped to ws and wss. A non-empty token is appended as the
// "token" query parameter, since the browser-compatible handshake cannot
// always carry headers.
func BuildURL(endpoint, token string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidEndpoint, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host in %q", ErrInvalidEndpoint, endpoint)
	}
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
