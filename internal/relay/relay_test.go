package relay

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/foodflow/notifier/internal/credential"
	"github.com/foodflow/notifier/internal/notify"
	"github.com/foodflow/notifier/internal/stomp"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "relay-test-secret"

func startRelay(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer(Options{Secret: testSecret, Logger: zerolog.Nop()})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func postNotify(t *testing.T, ts *httptest.Server, req NotifyRequest) int {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)
	resp, err := http.Post(ts.URL+"/api/notify", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var out notifyResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out.Delivered
}

func TestAuthenticator(t *testing.T) {
	a := NewAuthenticator(testSecret)
	tok, err := a.Issue("42", time.Hour)
	require.NoError(t, err)

	user, err := a.User(tok)
	require.NoError(t, err)
	assert.Equal(t, "42", user)

	_, err = a.User("")
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = NewAuthenticator("other").User(tok)
	assert.Error(t, err)

	expired, err := a.Issue("42", -time.Minute)
	require.NoError(t, err)
	_, err = a.User(expired)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	anon := NewAuthenticator("")
	user, err = anon.User("")
	require.NoError(t, err)
	assert.Equal(t, "anonymous", user)
}

func TestManagerAgainstRelay(t *testing.T) {
	s, ts := startRelay(t)
	tok, err := s.Auth().Issue("42", time.Hour)
	require.NoError(t, err)

	connected := make(chan struct{}, 1)
	m, err := notify.NewManager(notify.Options{
		Endpoint:    ts.URL + "/ws",
		Credentials: credential.Static(tok),
		Hooks: notify.Hooks{
			OnConnect: func(*notify.Session) { connected <- struct{}{} },
		},
	})
	require.NoError(t, err)
	t.Cleanup(m.Disconnect)

	got := make(chan notify.Payload, 4)
	_, err = m.Connect(notify.Handlers{
		notify.ChannelMessages: notify.Func(func(p notify.Payload) { got <- p }),
	})
	require.NoError(t, err)

	select {
	case <-connected:
	case <-time.After(5 * time.Second):
		t.Fatal("manager did not connect to relay")
	}
	require.Eventually(t, func() bool {
		return len(s.Hub().Subscriptions("42")) == len(notify.Channels())
	}, 5*time.Second, 10*time.Millisecond)

	n := postNotify(t, ts, NotifyRequest{
		User:        "42",
		Destination: string(notify.ChannelMessages),
		Payload:     json.RawMessage(`{"a":1}`),
	})
	assert.Equal(t, 1, n)

	select {
	case p := <-got:
		assert.Equal(t, float64(1), p.Fields["a"])
	case <-time.After(5 * time.Second):
		t.Fatal("notification not delivered")
	}

	assert.Equal(t, 0, postNotify(t, ts, NotifyRequest{User: "7", Destination: string(notify.ChannelMessages)}))

	m.Disconnect()
	require.Eventually(t, func() bool { return s.Hub().ClientCount() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestManagerRejectedByRelay(t *testing.T) {
	_, ts := startRelay(t)

	protoErr := make(chan error, 1)
	m, err := notify.NewManager(notify.Options{
		Endpoint:    ts.URL + "/ws",
		Credentials: credential.Static("not-a-jwt"),
		NoReconnect: true,
		Hooks: notify.Hooks{
			OnProtocolError: func(_ *notify.Session, err error) { protoErr <- err },
		},
	})
	require.NoError(t, err)
	t.Cleanup(m.Disconnect)

	s, err := m.Connect(nil)
	require.NoError(t, err)

	select {
	case err := <-protoErr:
		var pe *notify.ProtocolError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, "invalid credentials", pe.Message)
	case <-time.After(5 * time.Second):
		t.Fatal("expected a protocol error")
	}
	<-s.Done()
	assert.Equal(t, notify.StateIdle, m.State())
}

func TestRelayFrames(t *testing.T) {
	s, ts := startRelay(t)
	tok, err := s.Auth().Issue("9", 0)
	require.NoError(t, err)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?token=" + tok
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	send := func(f *stomp.Frame) {
		data, err := f.MarshalBinary()
		require.NoError(t, err)
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
	}
	read := func() *stomp.Frame {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		f, err := stomp.Parse(data)
		require.NoError(t, err)
		return f
	}

	send(stomp.New(stomp.CmdConnect, stomp.HdrAcceptVersion, "1.2"))
	connected := read()
	assert.Equal(t, stomp.CmdConnected, connected.Command)
	assert.Equal(t, "9", connected.Get("user-name"))

	send(stomp.New(stomp.CmdSubscribe, stomp.HdrID, "a", stomp.HdrDestination, "/user/queue/reviews", stomp.HdrReceipt, "r1"))
	assert.Equal(t, "r1", read().Get(stomp.HdrReceiptID))

	assert.Equal(t, 1, postNotify(t, ts, NotifyRequest{User: "9", Destination: "/user/queue/reviews", Payload: json.RawMessage(`{"rating":4}`)}))
	msg := read()
	assert.Equal(t, stomp.CmdMessage, msg.Command)
	assert.Equal(t, "a", msg.Get(stomp.HdrSubscription))
	assert.JSONEq(t, `{"rating":4}`, string(msg.Body))

	send(stomp.New(stomp.CmdUnsubscribe, stomp.HdrID, "a", stomp.HdrReceipt, "r2"))
	assert.Equal(t, "r2", read().Get(stomp.HdrReceiptID))
	assert.Empty(t, s.Hub().Subscriptions("9"))

	send(stomp.New(stomp.CmdDisconnect, stomp.HdrReceipt, "bye"))
	receipt := read()
	assert.Equal(t, stomp.CmdReceipt, receipt.Command)
	assert.Equal(t, "bye", receipt.Get(stomp.HdrReceiptID))
}

func TestRelayRequiresConnectFirst(t *testing.T) {
	_, ts := startRelay(t)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	data, err := stomp.New(stomp.CmdSubscribe, stomp.HdrID, "x", stomp.HdrDestination, "/user/queue/claims").MarshalBinary()
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, reply, err := conn.ReadMessage()
	require.NoError(t, err)
	f, err := stomp.Parse(reply)
	require.NoError(t, err)
	assert.Equal(t, stomp.CmdError, f.Command)
	assert.Equal(t, "not connected", f.Get(stomp.HdrMessage))
}

func TestNotifyValidation(t *testing.T) {
	_, ts := startRelay(t)
	resp, err := http.Post(ts.URL+"/api/notify", "application/json", strings.NewReader(`{"user":"1"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
