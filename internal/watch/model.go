// Package watch is a terminal viewer for the notification stream.
package watch

import (
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/foodflow/notifier/internal/notify"
)

// Connector is the part of notify.Manager the viewer drives.
type Connector interface {
	Connect(notify.Handlers) (*notify.Session, error)
	Disconnect()
	Session() *notify.Session
}

// StateMsg reports a lifecycle change observed through the hooks. Session
// is the session that reported it, when known.
type StateMsg struct {
	State   notify.State
	Err     error
	Session *notify.Session
}

// NotificationMsg carries one decoded payload into the program.
type NotificationMsg struct {
	Payload notify.Payload
	At      time.Time
}

type connectErrMsg struct{ err error }

// Bridge forwards hook and handler callbacks into a running program. It is
// created before the program so its hooks can go into notify.Options;
// callbacks before Attach are dropped.
type Bridge struct {
	mu   sync.Mutex
	send func(tea.Msg)
}

func (b *Bridge) Attach(p *tea.Program) {
	b.mu.Lock()
	b.send = p.Send
	b.mu.Unlock()
}

func (b *Bridge) post(msg tea.Msg) {
	b.mu.Lock()
	send := b.send
	b.mu.Unlock()
	if send != nil {
		send(msg)
	}
}

// Hooks translates lifecycle callbacks into StateMsg.
func (b *Bridge) Hooks() notify.Hooks {
	return notify.Hooks{
		OnConnect: func(s *notify.Session) {
			b.post(StateMsg{State: notify.StateConnected, Session: s})
		},
		OnTransportError: func(s *notify.Session, err error) {
			b.post(StateMsg{State: notify.StateConnecting, Err: err, Session: s})
		},
		OnProtocolError: func(s *notify.Session, err error) {
			b.post(StateMsg{State: notify.StateConnecting, Err: err, Session: s})
		},
		OnDisconnect: func(s *notify.Session, err error) {
			b.post(StateMsg{State: notify.StateDisconnected, Err: err, Session: s})
		},
	}
}

// Handlers subscribes the viewer to every channel.
func (b *Bridge) Handlers() notify.Handlers {
	h := make(notify.Handlers)
	for _, ch := range notify.Channels() {
		h[ch] = notify.Func(func(p notify.Payload) {
			b.post(NotificationMsg{Payload: p, At: time.Now()})
		})
	}
	return h
}

// Model is the root Bubble Tea model.
type Model struct {
	conn   Connector
	bridge *Bridge

	keys   KeyMap
	width  int
	height int

	statusBar StatusBar
	feed      Feed
}

func New(conn Connector, bridge *Bridge, endpoint string) Model {
	return Model{
		conn:      conn,
		bridge:    bridge,
		keys:      DefaultKeyMap(),
		statusBar: StatusBar{State: notify.StateIdle, Endpoint: endpoint},
	}
}

// Init starts the notification session.
func (m Model) Init() tea.Cmd {
	return m.connect()
}

func (m Model) connect() tea.Cmd {
	conn, handlers := m.conn, m.bridge.Handlers()
	return func() tea.Msg {
		s, err := conn.Connect(handlers)
		if err != nil {
			return connectErrMsg{err: err}
		}
		return StateMsg{State: notify.StateConnecting, Session: s}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case StateMsg:
		if m.stale(msg) {
			return m, nil
		}
		// Hooks can race the Connect command; never step back from connected.
		if !(msg.State == notify.StateConnecting && msg.Err == nil && m.statusBar.State == notify.StateConnected) {
			m.statusBar.State = msg.State
		}
		if msg.Err != nil {
			m.statusBar.LastErr = msg.Err.Error()
		} else if msg.State == notify.StateConnected {
			m.statusBar.LastErr = ""
		}
		return m, nil

	case connectErrMsg:
		m.statusBar.State = notify.StateDisconnected
		m.statusBar.LastErr = msg.err.Error()
		return m, nil

	case NotificationMsg:
		m.statusBar.Received++
		m.feed.Add(Entry{Time: msg.At, Channel: msg.Payload.Channel, Summary: Summarize(msg.Payload)})
		return m, nil
	}
	return m, nil
}

// stale reports whether msg came from a session the connector has since
// replaced, such as the old session's disconnect after a reconnect.
func (m Model) stale(msg StateMsg) bool {
	if msg.Session == nil {
		return false
	}
	cur := m.conn.Session()
	return cur != nil && cur != msg.Session
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.conn.Disconnect()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Reconnect):
		m.conn.Disconnect()
		m.statusBar.State = notify.StateIdle
		m.statusBar.LastErr = ""
		return m, m.connect()

	case key.Matches(msg, m.keys.Up):
		m.feed.ScrollUp(1)
		return m, nil

	case key.Matches(msg, m.keys.Down):
		m.feed.ScrollDown(1)
		return m, nil

	case key.Matches(msg, m.keys.Clear):
		m.feed.Clear()
		return m, nil
	}
	return m, nil
}

func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	bar := m.statusBar.View()
	help := StyleDimmed.Render(m.keys.help())
	header := StyleHeader.Render("=== NOTIFICATIONS ===")
	body := m.height - lipgloss.Height(bar) - lipgloss.Height(help) - lipgloss.Height(header)

	return lipgloss.JoinVertical(lipgloss.Left,
		bar,
		header,
		m.feed.View(m.width, body),
		help,
	)
}
