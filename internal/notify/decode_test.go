package notify

import (
	"bytes"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		ok      bool
		wantErr error
		anyErr  bool
	}{
		{name: "object", body: `{"a":1,"b":"x"}`, ok: true},
		{name: "empty object", body: `{}`, ok: true},
		{name: "empty body", body: ``},
		{name: "array", body: `[{"a":1}]`, wantErr: ErrNotObject},
		{name: "string", body: `"hello"`, wantErr: ErrNotObject},
		{name: "number", body: `42`, wantErr: ErrNotObject},
		{name: "null", body: `null`, wantErr: ErrNotObject},
		{name: "truncated", body: `{"a":`, anyErr: true},
		{name: "garbage", body: `<html>`, anyErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok, err := decode(ChannelClaims, []byte(tt.body))
			assert.Equal(t, tt.ok, ok)
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.anyErr:
				assert.Error(t, err)
			default:
				assert.NoError(t, err)
			}
			if tt.ok {
				assert.Equal(t, ChannelClaims, p.Channel)
				assert.NotNil(t, p.Fields)
				assert.JSONEq(t, tt.body, string(p.Raw))
			}
		})
	}
}

func TestDecodeCopiesBody(t *testing.T) {
	body := []byte(`{"a":1}`)
	p, ok, err := decode(ChannelMessages, body)
	require.NoError(t, err)
	require.True(t, ok)
	body[2] = 'b'
	assert.JSONEq(t, `{"a":1}`, string(p.Raw))
}

func TestPayloadDecode(t *testing.T) {
	p, _, err := decode(ChannelDonorStatus, []byte(`{"donationId":7,"previousStatus":"AVAILABLE","newStatus":"CLAIMED","extra":true}`))
	require.NoError(t, err)

	var st DonationStatus
	require.NoError(t, p.Decode(&st))
	assert.Equal(t, DonationStatus{DonationID: 7, PreviousStatus: "AVAILABLE", NewStatus: "CLAIMED"}, st)
}

func TestTypedDecodeFailure(t *testing.T) {
	called := false
	h := Typed(func(Review) error {
		called = true
		return nil
	})
	p, _, err := decode(ChannelReviews, []byte(`{"rating":"five"}`))
	require.NoError(t, err)

	err = h(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notify.Review")
	assert.False(t, called)
}

func TestDispatchIsolatesFailures(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)
	metrics := NewMetrics(prometheus.NewRegistry())
	d := newDispatcher(log, metrics)

	assert.False(t, d.dispatch(ChannelReviews, []byte(`oops`), discard))
	assert.False(t, d.dispatch(ChannelReviews, nil, discard))
	assert.True(t, d.dispatch(ChannelReviews, []byte(`{}`), func(Payload) error { panic("handler bug") }))
	assert.True(t, d.dispatch(ChannelReviews, []byte(`{}`), func(Payload) error { return errors.New("nope") }))
	assert.True(t, d.dispatch(ChannelReviews, []byte(`{}`), nil))

	assert.Equal(t, float64(5), testutil.ToFloat64(metrics.frames.WithLabelValues(string(ChannelReviews))))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.decodeErrors.WithLabelValues(string(ChannelReviews))))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.handlerErrors.WithLabelValues(string(ChannelReviews))))
	assert.Contains(t, buf.String(), "handler panic: handler bug")
	assert.Contains(t, buf.String(), `"channel":"/user/queue/reviews"`)
}

func TestDispatchThrottlesLogs(t *testing.T) {
	var buf bytes.Buffer
	d := newDispatcher(zerolog.New(&buf), nil)

	for i := 0; i < 20; i++ {
		d.dispatch(ChannelMessages, []byte(`not json`), discard)
	}
	assert.Equal(t, logBurst, bytes.Count(buf.Bytes(), []byte("\n")), "only the burst is logged")

	// Another channel has its own budget.
	d.dispatch(ChannelClaims, []byte(`not json`), discard)
	assert.Equal(t, logBurst+1, bytes.Count(buf.Bytes(), []byte("\n")))

	n, allow := d.allow(ChannelMessages)
	assert.False(t, allow)
	assert.Zero(t, n)
	assert.Equal(t, 20-logBurst+1, d.suppressed[ChannelMessages])
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.frame(ChannelMessages)
		m.decodeError(ChannelMessages)
		m.handlerError(ChannelMessages)
		m.connected()
		m.transportError()
		m.protocolError()
		m.setState(StateConnected)
	})
}
