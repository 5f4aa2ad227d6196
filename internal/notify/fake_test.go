package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/foodflow/notifier/internal/stomp"
	"github.com/foodflow/notifier/internal/transport"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

var errClosed = errors.New("fake conn closed")

// fakeConn is an in-memory transport.Conn. The test plays the server: it
// pushes inbound messages with deliver and reads what the session wrote
// from out.
type fakeConn struct {
	url string
	in  chan []byte
	out chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeConn(url string) *fakeConn {
	return &fakeConn{
		url:    url,
		in:     make(chan []byte, 64),
		out:    make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case data := <-c.in:
		return data, nil
	case <-c.closed:
		return nil, errClosed
	}
}

func (c *fakeConn) WriteMessage(data []byte) error {
	select {
	case <-c.closed:
		return errClosed
	default:
	}
	select {
	case c.out <- append([]byte(nil), data...):
		return nil
	case <-c.closed:
		return errClosed
	}
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// deliver sends one frame to the session.
func (c *fakeConn) deliver(t *testing.T, f *stomp.Frame) {
	t.Helper()
	data, err := f.MarshalBinary()
	require.NoError(t, err)
	c.in <- data
}

func (c *fakeConn) deliverRaw(data string) { c.in <- []byte(data) }

// next returns the next frame written by the session, skipping heart-beats.
func (c *fakeConn) next(t *testing.T) *stomp.Frame {
	t.Helper()
	for {
		select {
		case data := <-c.out:
			f, err := stomp.Parse(data)
			require.NoError(t, err)
			if f == nil {
				continue
			}
			return f
		case <-time.After(waitFor):
			t.Fatal("timed out waiting for a frame from the session")
			return nil
		}
	}
}

// handshake consumes CONNECT, replies CONNECTED and consumes the
// subscriptions. It returns the CONNECT frame.
func (c *fakeConn) handshake(t *testing.T) *stomp.Frame {
	t.Helper()
	connect := c.next(t)
	require.Equal(t, stomp.CmdConnect, connect.Command)
	c.deliver(t, stomp.New(stomp.CmdConnected, stomp.HdrVersion, "1.2", stomp.HdrHeartBeat, "0,0"))
	for range channels {
		f := c.next(t)
		require.Equal(t, stomp.CmdSubscribe, f.Command)
	}
	return connect
}

// fakeDialer hands out a new fakeConn per dial and records every URL.
type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	fail  error
	dials chan *fakeConn
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{dials: make(chan *fakeConn, 16)}
}

func (d *fakeDialer) factory() transport.Factory {
	return func(ctx context.Context, rawURL string) (transport.Conn, error) {
		d.mu.Lock()
		fail := d.fail
		d.mu.Unlock()
		if fail != nil {
			return nil, fail
		}
		c := newFakeConn(rawURL)
		d.mu.Lock()
		d.conns = append(d.conns, c)
		d.mu.Unlock()
		d.dials <- c
		return c, nil
	}
}

func (d *fakeDialer) setFail(err error) {
	d.mu.Lock()
	d.fail = err
	d.mu.Unlock()
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func (d *fakeDialer) next(t *testing.T) *fakeConn {
	t.Helper()
	select {
	case c := <-d.dials:
		return c
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for a dial")
		return nil
	}
}

// events collects hook invocations.
type events struct {
	connected    chan *Session
	transport    chan error
	protocol     chan error
	disconnected chan error

	mu   sync.Mutex
	from []*Session
}

func newEvents() *events {
	return &events{
		connected:    make(chan *Session, 8),
		transport:    make(chan error, 8),
		protocol:     make(chan error, 8),
		disconnected: make(chan error, 8),
	}
}

func (e *events) hooks() Hooks {
	return Hooks{
		OnConnect:        func(s *Session) { e.connected <- s },
		OnTransportError: func(s *Session, err error) { e.record(s); e.transport <- err },
		OnProtocolError:  func(s *Session, err error) { e.record(s); e.protocol <- err },
		OnDisconnect:     func(s *Session, err error) { e.record(s); e.disconnected <- err },
	}
}

func (e *events) record(s *Session) {
	e.mu.Lock()
	e.from = append(e.from, s)
	e.mu.Unlock()
}

// sessions returns the session passed to each error and disconnect hook, in
// call order.
func (e *events) sessions() []*Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Session(nil), e.from...)
}

func recv[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(waitFor):
		t.Fatalf("timed out waiting for %s", what)
		var zero T
		return zero
	}
}

func waitState(t *testing.T, s *Session, want State) {
	t.Helper()
	deadline := time.Now().Add(waitFor)
	for time.Now().Before(deadline) {
		if s.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("session state = %s, want %s", s.State(), want)
}
