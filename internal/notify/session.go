package notify

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/foodflow/notifier/internal/stomp"
	"github.com/foodflow/notifier/internal/transport"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
)

// State is the lifecycle position of a session.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ErrHeartbeatTimeout is reported when the server stays silent for longer
// than twice the negotiated heart-beat interval.
var ErrHeartbeatTimeout = errors.New("heart-beat timeout")

// ProtocolError is an ERROR frame from the server, or a handshake reply
// that is not CONNECTED.
type ProtocolError struct {
	Message string
	Body    string
}

func (e *ProtocolError) Error() string {
	switch {
	case e.Body == "":
		return "stomp error: " + e.Message
	case e.Message == "":
		return "stomp error: " + e.Body
	default:
		return "stomp error: " + e.Message + ": " + e.Body
	}
}

func protocolError(f *stomp.Frame) *ProtocolError {
	return &ProtocolError{Message: f.Get(stomp.HdrMessage), Body: string(f.Body)}
}

// Session owns the single transport of a Manager. It redials on its own
// after involuntary loss until Close is called or retries are disabled.
type Session struct {
	id      string
	cfg     *Options
	router  *router
	log     zerolog.Logger
	clock   clock.Clock
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	release func(*Session)

	mu      sync.Mutex
	state   State
	closed  bool
	waiting bool
	conn    transport.Conn
	err     error

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func newSession(cfg *Options, r *router, release func(*Session)) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()
	return &Session{
		id:      id,
		cfg:     cfg,
		router:  r,
		log:     cfg.logger().With().Str("session", id).Logger(),
		clock:   cfg.Clock,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		release: release,
		state:   StateIdle,
	}
}

// ID identifies the session in logs.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed once the session goroutine has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns the error that ended the session, or nil if it was closed
// voluntarily or is still running.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// setState records st unless the session was closed, in which case only
// StateDisconnected is accepted. It reports whether st was recorded.
func (s *Session) setState(st State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed && st != StateDisconnected {
		return false
	}
	s.state = st
	s.cfg.Metrics.setState(st)
	return true
}

// live reports whether the session holds or is building a transport. A
// session sitting out its reconnect delay is not live.
func (s *Session) live() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateConnected:
		return true
	case StateConnecting:
		return !s.waiting
	default:
		return false
	}
}

// retryWait marks the session as waiting to redial. It reports false once the
// session is closed.
func (s *Session) retryWait(waiting bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.waiting = waiting
	if waiting {
		s.state = StateConnecting
		s.cfg.Metrics.setState(StateConnecting)
	}
	return true
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) attach(conn transport.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conn = conn
	return true
}

func (s *Session) detach(conn transport.Conn) {
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.mu.Unlock()
	_ = conn.Close()
}

func (s *Session) start() {
	s.setState(StateConnecting)
	go s.run()
}

func (s *Session) run() {
	defer close(s.done)

	for {
		err := s.attempt()
		if s.isClosed() {
			return
		}
		if s.cfg.NoReconnect {
			s.finish(err)
			return
		}

		if !s.retryWait(true) {
			return
		}
		delay := s.cfg.ReconnectDelay
		s.log.Debug().Err(err).Dur("delay", delay).Msg("notification connection lost, retrying")
		timer := s.clock.Timer(delay)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		if !s.retryWait(false) {
			return
		}
	}
}

// finish ends a session that failed without being closed.
func (s *Session) finish(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	s.setState(StateDisconnected)
	if s.release != nil {
		s.release(s)
	}
}

// attempt runs one dial-handshake-read cycle and returns why it ended.
func (s *Session) attempt() error {
	token := s.cfg.Credentials.Token()
	rawURL, err := transport.BuildURL(s.cfg.Endpoint, token)
	if err != nil {
		return s.transportError(err)
	}

	conn, err := s.cfg.Transport(s.ctx, rawURL)
	if err != nil {
		if s.ctx.Err() != nil {
			return nil
		}
		return s.transportError(err)
	}
	if !s.attach(conn) {
		_ = conn.Close()
		return nil
	}
	defer s.detach(conn)

	connect := stomp.New(stomp.CmdConnect,
		stomp.HdrAcceptVersion, "1.2,1.1,1.0",
		stomp.HdrHeartBeat, stomp.FormatHeartBeat(s.cfg.HeartbeatOutgoing, s.cfg.HeartbeatIncoming),
		stomp.HdrHost, s.cfg.host(),
	)
	if token != "" {
		connect.Set(stomp.HdrAuthorization, "Bearer "+token)
	}
	if err := s.writeFrame(conn, connect); err != nil {
		return s.lost(err)
	}

	connected, err := s.awaitConnected(conn)
	if err != nil {
		return err
	}
	if !s.setState(StateConnected) {
		return nil
	}

	if err := s.router.registerAll(func(f *stomp.Frame) error { return s.writeFrame(conn, f) }); err != nil {
		s.setState(StateConnecting)
		return s.lost(err)
	}
	s.cfg.Metrics.connected()
	s.log.Info().Str("version", connected.Get(stomp.HdrVersion)).Msg("notification connection established")
	s.cfg.Hooks.connect(s)

	err = s.serve(conn, connected)
	if s.isClosed() {
		s.cfg.Hooks.disconnect(s, nil)
		return nil
	}
	s.setState(StateConnecting)
	var perr *ProtocolError
	if !errors.As(err, &perr) && !transport.IsNormalClose(err) {
		s.cfg.Metrics.transportError()
		s.cfg.Hooks.transportError(s, err)
	}
	s.cfg.Hooks.disconnect(s, err)
	return err
}

func (s *Session) transportError(err error) error {
	s.cfg.Metrics.transportError()
	s.log.Warn().Err(err).Msg("notification transport error")
	s.cfg.Hooks.transportError(s, err)
	return err
}

// lost reports a transport failure unless the session is being closed.
func (s *Session) lost(err error) error {
	if s.isClosed() {
		return nil
	}
	return s.transportError(err)
}

func (s *Session) protocolErr(err error) error {
	s.cfg.Metrics.protocolError()
	s.log.Warn().Err(err).Msg("notification protocol error")
	s.cfg.Hooks.protocolError(s, err)
	return err
}

// awaitConnected reads until the handshake reply. Heart-beats before it are
// skipped.
func (s *Session) awaitConnected(conn transport.Conn) (*stomp.Frame, error) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			return nil, s.lost(err)
		}
		f, err := stomp.Parse(data)
		if err != nil {
			return nil, s.protocolErr(fmt.Errorf("handshake: %w", err))
		}
		if f == nil {
			continue
		}
		switch f.Command {
		case stomp.CmdConnected:
			return f, nil
		case stomp.CmdError:
			return nil, s.protocolErr(protocolError(f))
		default:
			return nil, s.protocolErr(&ProtocolError{Message: "unexpected " + string(f.Command) + " before CONNECTED"})
		}
	}
}

// serve runs heart-beating and the read loop until the connection ends.
func (s *Session) serve(conn transport.Conn, connected *stomp.Frame) error {
	serverSend, serverRecv, err := stomp.ParseHeartBeat(connected.Get(stomp.HdrHeartBeat))
	if err != nil {
		s.log.Debug().Err(err).Msg("ignoring server heart-beat header")
		serverSend, serverRecv = 0, 0
	}
	send, recv := stomp.Negotiate(s.cfg.HeartbeatOutgoing, s.cfg.HeartbeatIncoming, serverSend, serverRecv)

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	var lastRead atomic.Int64
	var silent atomic.Bool
	lastRead.Store(s.clock.Now().UnixNano())

	if send > 0 {
		go s.pingLoop(ctx, conn, send)
	}
	if recv > 0 {
		go s.watchdog(ctx, conn, &lastRead, &silent, 2*recv)
	}

	err = s.readLoop(conn, &lastRead)
	if silent.Load() {
		return fmt.Errorf("%w after %v", ErrHeartbeatTimeout, 2*recv)
	}
	return err
}

func (s *Session) readLoop(conn transport.Conn, lastRead *atomic.Int64) error {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		lastRead.Store(s.clock.Now().UnixNano())

		f, err := stomp.Parse(data)
		if err != nil {
			s.log.Warn().Err(err).Int("bytes", len(data)).Msg("skipping malformed frame")
			continue
		}
		if f == nil {
			continue
		}

		switch f.Command {
		case stomp.CmdMessage:
			s.router.route(f)
		case stomp.CmdError:
			return s.protocolErr(protocolError(f))
		case stomp.CmdReceipt:
			s.log.Debug().Str("receipt", f.Get(stomp.HdrReceiptID)).Msg("receipt")
		default:
			s.log.Debug().Str("command", string(f.Command)).Msg("ignoring frame")
		}
	}
}

// pingLoop writes heart-beats on conn until ctx is cancelled or a write
// fails.
func (s *Session) pingLoop(ctx context.Context, conn transport.Conn, every time.Duration) {
	ticker := s.clock.Ticker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.write(conn, stomp.HeartBeat); err != nil {
				return
			}
		}
	}
}

// watchdog closes conn when nothing has been read for limit.
func (s *Session) watchdog(ctx context.Context, conn transport.Conn, lastRead *atomic.Int64, silent *atomic.Bool, limit time.Duration) {
	ticker := s.clock.Ticker(limit / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if now.Sub(time.Unix(0, lastRead.Load())) > limit {
				silent.Store(true)
				_ = conn.Close()
				return
			}
		}
	}
}

func (s *Session) writeFrame(conn transport.Conn, f *stomp.Frame) error {
	data, err := f.MarshalBinary()
	if err != nil {
		return err
	}
	return s.write(conn, data)
}

func (s *Session) write(conn transport.Conn, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteMessage(data)
}

// Close stops the session. State becomes StateDisconnected before Close
// returns; the transport teardown itself is best effort and its errors are
// only logged.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		wasConnected := s.state == StateConnected
		s.closed = true
		s.state = StateDisconnected
		conn := s.conn
		s.mu.Unlock()
		s.cfg.Metrics.setState(StateDisconnected)
		s.cancel()

		if conn == nil {
			return
		}
		var err error
		if wasConnected {
			bye := stomp.New(stomp.CmdDisconnect, stomp.HdrReceipt, "disconnect-"+s.id)
			err = multierr.Append(err, s.writeFrame(conn, bye))
		}
		err = multierr.Append(err, conn.Close())
		if err != nil {
			s.log.Debug().Err(err).Msg("notification teardown")
		}
	})
}

func (o *Options) host() string {
	if o.Host != "" {
		return o.Host
	}
	u, err := url.Parse(o.Endpoint)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
