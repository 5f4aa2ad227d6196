// Package notify multiplexes FoodFlow's real-time notifications over a
// single STOMP-over-websocket connection.
//
// A Manager owns at most one live Session. Connect is idempotent while that
// session is connected or dialling, and Disconnect guarantees the next
// Connect dials a fresh transport. Inbound frames are decoded per
// channel; a malformed body or a failing handler is logged and dropped
// without touching the connection or any other channel.
package notify

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/foodflow/notifier/internal/credential"
	"github.com/foodflow/notifier/internal/transport"
	"github.com/rs/zerolog"
)

// DefaultReconnectDelay is the pause before redialling after a lost or
// failed connection.
const DefaultReconnectDelay = 5 * time.Second

// DefaultEndpoint is used when Options.Endpoint is empty.
const DefaultEndpoint = "http://localhost:8080/ws"

// ErrInvalidEndpoint wraps endpoint problems found by NewManager.
var ErrInvalidEndpoint = transport.ErrInvalidEndpoint

// Hooks observe the connection lifecycle. Every hook is optional, runs on
// the session goroutine and receives the session it reports on. A hook from
// a session the manager has already replaced can still arrive after the new
// session's OnConnect; compare against Manager.Session to tell them apart.
type Hooks struct {
	// OnConnect runs after the handshake and channel subscriptions.
	OnConnect func(*Session)
	// OnTransportError reports dial failures and broken connections.
	OnTransportError func(*Session, error)
	// OnProtocolError reports ERROR frames and rejected handshakes.
	OnProtocolError func(*Session, error)
	// OnDisconnect runs when an established connection ends. err is nil for
	// a voluntary Disconnect.
	OnDisconnect func(*Session, error)
}

func (h Hooks) connect(s *Session) {
	if h.OnConnect != nil {
		h.OnConnect(s)
	}
}

func (h Hooks) transportError(s *Session, err error) {
	if h.OnTransportError != nil {
		h.OnTransportError(s, err)
	}
}

func (h Hooks) protocolError(s *Session, err error) {
	if h.OnProtocolError != nil {
		h.OnProtocolError(s, err)
	}
}

func (h Hooks) disconnect(s *Session, err error) {
	if h.OnDisconnect != nil {
		h.OnDisconnect(s, err)
	}
}

// Options configures a Manager. Zero values get defaults.
type Options struct {
	// Endpoint is the handshake URL. Defaults to DefaultEndpoint.
	Endpoint string
	// Host is sent as the STOMP host header. Defaults to the endpoint host.
	Host string
	// Credentials is consulted on every dial. Defaults to credential.None.
	Credentials credential.Provider
	// Transport dials the endpoint. Defaults to a gorilla websocket factory.
	Transport transport.Factory
	Logger    *zerolog.Logger
	Clock     clock.Clock
	Metrics   *Metrics
	Hooks     Hooks

	// ReconnectDelay defaults to DefaultReconnectDelay.
	ReconnectDelay time.Duration
	// NoReconnect makes any loss terminal for the session.
	NoReconnect bool
	// Heart-beat intervals offered to the server; zero disables a direction.
	HeartbeatOutgoing time.Duration
	HeartbeatIncoming time.Duration

	// Unknown receives frames for destinations outside the fixed channel
	// list. When nil they are dropped.
	Unknown Handler
}

func (o *Options) logger() zerolog.Logger {
	if o.Logger == nil {
		return zerolog.Nop()
	}
	return *o.Logger
}

// Manager is the entry point: it hands out the single Session and tears it
// down. The zero value is not usable; call NewManager.
type Manager struct {
	opts     Options
	dispatch *dispatcher
	log      zerolog.Logger

	mu      sync.Mutex
	session *Session
}

// NewManager validates opts and applies defaults. An endpoint that cannot be
// dialled is reported here rather than on the first Connect.
func NewManager(opts Options) (*Manager, error) {
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultEndpoint
	}
	if _, err := transport.BuildURL(opts.Endpoint, ""); err != nil {
		return nil, err
	}
	if opts.Credentials == nil {
		opts.Credentials = credential.None
	}
	if opts.Transport == nil {
		opts.Transport = transport.Websocket(transport.WebsocketOptions{
			Subprotocols: []string{"v12.stomp", "v11.stomp", "v10.stomp"},
		})
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	opts.HeartbeatOutgoing = max(opts.HeartbeatOutgoing, 0)
	opts.HeartbeatIncoming = max(opts.HeartbeatIncoming, 0)

	log := opts.logger()
	return &Manager{
		opts:     opts,
		dispatch: newDispatcher(log, opts.Metrics),
		log:      log,
	}, nil
}

// Connect returns the live session, or starts a new one bound to handlers.
// While a session is connected or dialling it is returned unchanged and
// handlers are ignored. A session waiting out its reconnect delay holds no
// transport; it is closed and replaced by one bound to handlers. Connect
// never waits for the handshake; use the
// hooks to learn the outcome. The only errors are construction errors such
// as a handler for an unknown channel.
func (m *Manager) Connect(handlers Handlers) (*Session, error) {
	r, err := newRouter(handlers, m.opts.Unknown, m.dispatch, m.log)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if cur := m.session; cur != nil {
		if cur.live() {
			return cur, nil
		}
		cur.Close()
		m.session = nil
	}

	s := newSession(&m.opts, r, m.release)
	m.session = s
	s.start()
	m.log.Debug().Str("session", s.ID()).Str("endpoint", m.opts.Endpoint).Msg("notification session started")
	return s, nil
}

// Disconnect tears down the current session, if any. The manager forgets
// the session before Disconnect returns, so a following Connect always
// builds a new transport.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	s := m.session
	m.session = nil
	m.mu.Unlock()

	if s == nil {
		return
	}
	s.Close()
	m.log.Debug().Str("session", s.ID()).Msg("notification session closed")
}

// State reports the current session's state, or StateIdle without one.
func (m *Manager) State() State {
	m.mu.Lock()
	s := m.session
	m.mu.Unlock()
	if s == nil {
		return StateIdle
	}
	return s.State()
}

// Session returns the current session or nil.
func (m *Manager) Session() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// release forgets s after it failed for good. A newer session is left
// alone.
func (m *Manager) release(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == s {
		m.session = nil
	}
}

// IsConstructionError reports whether err came from invalid configuration
// rather than from the network.
func IsConstructionError(err error) bool {
	return errors.Is(err, ErrInvalidEndpoint) || errors.Is(err, ErrUnknownChannel)
}

func (m *Manager) String() string {
	return fmt.Sprintf("notify.Manager(%s, %s)", m.opts.Endpoint, m.State())
}
