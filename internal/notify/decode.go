package notify

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ErrNotObject is reported for bodies that are valid JSON but not an object.
var ErrNotObject = errors.New("payload is not a JSON object")

// Payload is one decoded notification. Raw is the original body; Fields is
// the same body parsed into a generic object.
type Payload struct {
	Channel Channel
	Raw     json.RawMessage
	Fields  map[string]any
}

// Decode unmarshals the raw body into v.
func (p Payload) Decode(v any) error {
	return json.Unmarshal(p.Raw, v)
}

// Handler consumes payloads for one channel. A returned error is logged and
// counted; it never affects the connection or other channels.
type Handler func(Payload) error

// Handlers maps channels to their handlers. Channels left out still
// subscribe and discard their traffic.
type Handlers map[Channel]Handler

// Func adapts a handler that cannot fail.
func Func(fn func(Payload)) Handler {
	return func(p Payload) error {
		fn(p)
		return nil
	}
}

// Typed decodes each payload into T before calling fn.
func Typed[T any](fn func(T) error) Handler {
	return func(p Payload) error {
		var v T
		if err := p.Decode(&v); err != nil {
			return fmt.Errorf("decode %T: %w", v, err)
		}
		return fn(v)
	}
}

func discard(Payload) error { return nil }

// decode parses body as a JSON object. An empty body reports ok=false with
// no error.
func decode(ch Channel, body []byte) (p Payload, ok bool, err error) {
	if len(body) == 0 {
		return Payload{}, false, nil
	}
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return Payload{}, false, ErrNotObject
		}
		return Payload{}, false, err
	}
	if fields == nil {
		return Payload{}, false, ErrNotObject
	}
	return Payload{
		Channel: ch,
		Raw:     append(json.RawMessage(nil), body...),
		Fields:  fields,
	}, true, nil
}

const (
	logEvery = 10 * time.Second
	logBurst = 3
)

// dispatcher decodes frame bodies and runs handlers, isolating every
// failure to the frame that caused it. Failure logs are throttled per
// channel; metrics still see every failure.
type dispatcher struct {
	log     zerolog.Logger
	metrics *Metrics

	mu         sync.Mutex
	limiters   map[Channel]*rate.Limiter
	suppressed map[Channel]int
}

func newDispatcher(log zerolog.Logger, metrics *Metrics) *dispatcher {
	return &dispatcher{
		log:        log,
		metrics:    metrics,
		limiters:   make(map[Channel]*rate.Limiter),
		suppressed: make(map[Channel]int),
	}
}

// dispatch delivers body to h. It reports whether h was invoked.
func (d *dispatcher) dispatch(ch Channel, body []byte, h Handler) bool {
	d.metrics.frame(ch)

	p, ok, err := decode(ch, body)
	if err != nil {
		d.metrics.decodeError(ch)
		if n, allow := d.allow(ch); allow {
			d.log.Warn().Err(err).
				Str("channel", string(ch)).
				Int("bytes", len(body)).
				Int("suppressed", n).
				Msg("dropping undecodable notification")
		}
		return false
	}
	if !ok {
		return false
	}
	if h == nil {
		h = discard
	}

	if err := invoke(h, p); err != nil {
		d.metrics.handlerError(ch)
		if n, allow := d.allow(ch); allow {
			d.log.Error().Err(err).
				Str("channel", string(ch)).
				Int("suppressed", n).
				Msg("notification handler failed")
		}
	}
	return true
}

func invoke(h Handler, p Payload) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(p)
}

// allow reports whether a failure on ch may be logged now, along with how
// many failures were suppressed since the last logged one.
func (d *dispatcher) allow(ch Channel) (int, bool) {
	if !ch.Known() {
		ch = unknownLabel
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	lim, ok := d.limiters[ch]
	if !ok {
		lim = rate.NewLimiter(rate.Every(logEvery), logBurst)
		d.limiters[ch] = lim
	}
	if !lim.Allow() {
		d.suppressed[ch]++
		return 0, false
	}
	n := d.suppressed[ch]
	d.suppressed[ch] = 0
	return n, true
}
