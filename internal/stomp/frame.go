// Package stomp implements the subset of the STOMP 1.2 wire format that the
// notification connection speaks over a websocket. One websocket message
// carries at most one frame; a message made only of EOLs is a heart-beat.
package stomp

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Command identifies the kind of frame.
type Command string

const (
	CmdConnect     Command = "CONNECT"
	CmdStomp       Command = "STOMP"
	CmdConnected   Command = "CONNECTED"
	CmdSend        Command = "SEND"
	CmdSubscribe   Command = "SUBSCRIBE"
	CmdUnsubscribe Command = "UNSUBSCRIBE"
	CmdDisconnect  Command = "DISCONNECT"
	CmdMessage     Command = "MESSAGE"
	CmdReceipt     Command = "RECEIPT"
	CmdError       Command = "ERROR"
)

// Well-known header names.
const (
	HdrAcceptVersion = "accept-version"
	HdrAck           = "ack"
	HdrAuthorization = "Authorization"
	HdrContentLength = "content-length"
	HdrContentType   = "content-type"
	HdrDestination   = "destination"
	HdrHeartBeat     = "heart-beat"
	HdrHost          = "host"
	HdrID            = "id"
	HdrMessage       = "message"
	HdrMessageID     = "message-id"
	HdrReceipt       = "receipt"
	HdrReceiptID     = "receipt-id"
	HdrSubscription  = "subscription"
	HdrVersion       = "version"
)

// ErrMalformed is returned by Parse for input that is not a STOMP frame.
var ErrMalformed = errors.New("stomp: malformed frame")

// HeartBeat is the payload written as an outgoing heart-beat.
var HeartBeat = []byte{'\n'}

// Header is a single frame header. Order is kept because STOMP 1.2 gives
// the first occurrence of a repeated header precedence.
type Header struct {
	Key   string
	Value string
}

// Frame is one STOMP frame.
type Frame struct {
	Command Command
	Headers []Header
	Body    []byte
}

// New builds a frame from alternating key/value pairs. A trailing key with
// no value is ignored.
func New(cmd Command, kv ...string) *Frame {
	f := &Frame{Command: cmd}
	for i := 0; i+1 < len(kv); i += 2 {
		f.Headers = append(f.Headers, Header{Key: kv[i], Value: kv[i+1]})
	}
	return f
}

// Get returns the first value for key, or "".
func (f *Frame) Get(key string) string {
	v, _ := f.Lookup(key)
	return v
}

// Lookup returns the first value for key and whether it was present.
func (f *Frame) Lookup(key string) (string, bool) {
	for _, h := range f.Headers {
		if h.Key == key {
			return h.Value, true
		}
	}
	return "", false
}

// Set replaces the first value for key or appends a new header.
func (f *Frame) Set(key, value string) {
	for i, h := range f.Headers {
		if h.Key == key {
			f.Headers[i].Value = value
			return
		}
	}
	f.Headers = append(f.Headers, Header{Key: key, Value: value})
}

// Del removes every header named key.
func (f *Frame) Del(key string) {
	out := f.Headers[:0]
	for _, h := range f.Headers {
		if h.Key != key {
			out = append(out, h)
		}
	}
	f.Headers = out
}

func (f *Frame) String() string {
	return fmt.Sprintf("%s(%d headers, %d bytes)", f.Command, len(f.Headers), len(f.Body))
}

// escapes reports whether header values of this command are escaped.
// CONNECT and CONNECTED are exempt for 1.0 compatibility.
func (c Command) escapes() bool {
	return c != CmdConnect && c != CmdConnected && c != CmdStomp
}

// MarshalBinary encodes the frame in STOMP 1.2 wire form, terminated by NUL.
// A content-length header is written whenever the frame carries a body.
func (f *Frame) MarshalBinary() ([]byte, error) {
	if f.Command == "" {
		return nil, fmt.Errorf("%w: empty command", ErrMalformed)
	}
	if strings.ContainsAny(string(f.Command), "\r\n:") {
		return nil, fmt.Errorf("%w: invalid command %q", ErrMalformed, f.Command)
	}

	var b bytes.Buffer
	b.WriteString(string(f.Command))
	b.WriteByte('\n')

	esc := f.Command.escapes()
	for _, h := range f.Headers {
		if h.Key == HdrContentLength {
			continue
		}
		if esc {
			b.WriteString(escape(h.Key))
			b.WriteByte(':')
			b.WriteString(escape(h.Value))
		} else {
			if strings.ContainsAny(h.Key+h.Value, "\r\n") || strings.Contains(h.Key, ":") {
				return nil, fmt.Errorf("%w: header %q cannot be sent unescaped", ErrMalformed, h.Key)
			}
			b.WriteString(h.Key)
			b.WriteByte(':')
			b.WriteString(h.Value)
		}
		b.WriteByte('\n')
	}
	if len(f.Body) > 0 {
		b.WriteString(HdrContentLength)
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(len(f.Body)))
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	b.Write(f.Body)
	b.WriteByte(0)
	return b.Bytes(), nil
}

// Parse decodes one frame. Leading EOLs are skipped; input made only of
// EOLs is a heart-beat and yields (nil, nil).
func Parse(data []byte) (*Frame, error) {
	data = bytes.TrimLeft(data, "\r\n")
	if len(data) == 0 {
		return nil, nil
	}

	line, rest, ok := cutLine(data)
	if !ok || line == "" {
		return nil, fmt.Errorf("%w: missing command", ErrMalformed)
	}
	f := &Frame{Command: Command(line)}
	esc := f.Command.escapes()

	for {
		line, rest, ok = cutLine(rest)
		if !ok {
			return nil, fmt.Errorf("%w: unterminated headers", ErrMalformed)
		}
		if line == "" {
			break
		}
		k, v, found := strings.Cut(line, ":")
		if !found {
			return nil, fmt.Errorf("%w: header line %q", ErrMalformed, line)
		}
		if esc {
			var err error
			if k, err = unescape(k); err != nil {
				return nil, err
			}
			if v, err = unescape(v); err != nil {
				return nil, err
			}
		}
		f.Headers = append(f.Headers, Header{Key: k, Value: v})
	}

	body := rest
	if cl, ok := f.Lookup(HdrContentLength); ok {
		n, err := strconv.Atoi(strings.TrimSpace(cl))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: content-length %q", ErrMalformed, cl)
		}
		if n > len(body) {
			return nil, fmt.Errorf("%w: content-length %d exceeds body of %d bytes", ErrMalformed, n, len(body))
		}
		body = body[:n]
	} else if i := bytes.IndexByte(body, 0); i >= 0 {
		body = body[:i]
	}
	if len(body) > 0 {
		f.Body = append([]byte(nil), body...)
	}
	return f, nil
}

func cutLine(data []byte) (string, []byte, bool) {
	i := bytes.IndexByte(data, '\n')
	if i < 0 {
		return "", nil, false
	}
	line := data[:i]
	line = bytes.TrimSuffix(line, []byte{'\r'})
	return string(line), data[i+1:], true
}

var escaper = strings.NewReplacer(`\`, `\\`, "\r", `\r`, "\n", `\n`, ":", `\c`)

func escape(s string) string { return escaper.Replace(s) }

func unescape(s string) (string, error) {
	if !strings.Contains(s, `\`) {
		return s, nil
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		if i+1 >= len(s) {
			return "", fmt.Errorf("%w: dangling escape in %q", ErrMalformed, s)
		}
		i++
		switch s[i] {
		case '\\':
			b.WriteByte('\\')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 'c':
			b.WriteByte(':')
		default:
			return "", fmt.Errorf("%w: undefined escape \\%c", ErrMalformed, s[i])
		}
	}
	return b.String(), nil
}
