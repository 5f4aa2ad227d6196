package notify

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts traffic and failures on the notification connection. A nil
// *Metrics records nothing.
type Metrics struct {
	frames          *prometheus.CounterVec
	decodeErrors    *prometheus.CounterVec
	handlerErrors   *prometheus.CounterVec
	connects        prometheus.Counter
	transportErrors prometheus.Counter
	protocolErrors  prometheus.Counter
	state           prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		frames: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "foodflow",
				Subsystem: "notify",
				Name:      "frames_total",
				Help:      "Inbound notification frames per channel.",
			},
			[]string{"channel"},
		),
		decodeErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "foodflow",
				Subsystem: "notify",
				Name:      "decode_errors_total",
				Help:      "Frames dropped because the body was not a JSON object.",
			},
			[]string{"channel"},
		),
		handlerErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "foodflow",
				Subsystem: "notify",
				Name:      "handler_errors_total",
				Help:      "Handler invocations that returned an error or panicked.",
			},
			[]string{"channel"},
		),
		connects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "foodflow",
			Subsystem: "notify",
			Name:      "connects_total",
			Help:      "Successful handshakes.",
		}),
		transportErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "foodflow",
			Subsystem: "notify",
			Name:      "transport_errors_total",
			Help:      "Failures to establish or keep the transport.",
		}),
		protocolErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "foodflow",
			Subsystem: "notify",
			Name:      "protocol_errors_total",
			Help:      "ERROR frames and handshake rejections.",
		}),
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "foodflow",
			Subsystem: "notify",
			Name:      "session_state",
			Help:      "Current session state (0 idle, 1 connecting, 2 connected, 3 disconnected).",
		}),
	}
	reg.MustRegister(m.frames, m.decodeErrors, m.handlerErrors, m.connects, m.transportErrors, m.protocolErrors, m.state)
	return m
}

// unknownLabel stands in for every destination outside the fixed channel
// list so the label set stays bounded.
const unknownLabel = "unknown"

func channelLabel(ch Channel) string {
	if ch.Known() {
		return string(ch)
	}
	return unknownLabel
}

func (m *Metrics) frame(ch Channel) {
	if m != nil {
		m.frames.WithLabelValues(channelLabel(ch)).Inc()
	}
}

func (m *Metrics) decodeError(ch Channel) {
	if m != nil {
		m.decodeErrors.WithLabelValues(channelLabel(ch)).Inc()
	}
}

func (m *Metrics) handlerError(ch Channel) {
	if m != nil {
		m.handlerErrors.WithLabelValues(channelLabel(ch)).Inc()
	}
}

func (m *Metrics) connected() {
	if m != nil {
		m.connects.Inc()
	}
}

func (m *Metrics) transportError() {
	if m != nil {
		m.transportErrors.Inc()
	}
}

func (m *Metrics) protocolError() {
	if m != nil {
		m.protocolErrors.Inc()
	}
}

func (m *Metrics) setState(s State) {
	if m != nil {
		m.state.Set(float64(s))
	}
}
