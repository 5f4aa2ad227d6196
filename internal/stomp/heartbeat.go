package stomp

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FormatHeartBeat renders a heart-beat header value in milliseconds.
func FormatHeartBeat(send, recv time.Duration) string {
	return strconv.FormatInt(send.Milliseconds(), 10) + "," + strconv.FormatInt(recv.Milliseconds(), 10)
}

// ParseHeartBeat parses "cx,cy". An empty value means no heart-beating.
func ParseHeartBeat(v string) (send, recv time.Duration, err error) {
	if strings.TrimSpace(v) == "" {
		return 0, 0, nil
	}
	a, b, ok := strings.Cut(v, ",")
	if !ok {
		return 0, 0, fmt.Errorf("%w: heart-beat %q", ErrMalformed, v)
	}
	x, err := strconv.ParseUint(strings.TrimSpace(a), 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: heart-beat %q", ErrMalformed, v)
	}
	y, err := strconv.ParseUint(strings.TrimSpace(b), 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: heart-beat %q", ErrMalformed, v)
	}
	return time.Duration(x) * time.Millisecond, time.Duration(y) * time.Millisecond, nil
}

// Negotiate returns the effective intervals from the client's point of view:
// how often it must send, and how often it should expect to receive.
// Zero means disabled in that direction.
func Negotiate(clientSend, clientRecv, serverSend, serverRecv time.Duration) (send, recv time.Duration) {
	if clientSend > 0 && serverRecv > 0 {
		send = max(clientSend, serverRecv)
	}
	if clientRecv > 0 && serverSend > 0 {
		recv = max(clientRecv, serverSend)
	}
	return send, recv
}
