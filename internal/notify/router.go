package notify

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/foodflow/notifier/internal/stomp"
	"github.com/rs/zerolog"
)

// ErrUnknownChannel is returned by Connect for handler keys outside the
// fixed channel list.
var ErrUnknownChannel = errors.New("unknown channel")

// router binds every known channel to a handler and routes MESSAGE frames.
// It is immutable once built and is shared by every connection a session
// makes.
type router struct {
	handlers map[Channel]Handler
	unknown  Handler
	subs     map[string]Channel
	d        *dispatcher
	log      zerolog.Logger
}

func newRouter(h Handlers, unknown Handler, d *dispatcher, log zerolog.Logger) (*router, error) {
	for ch := range h {
		if !ch.Known() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownChannel, string(ch))
		}
	}

	r := &router{
		handlers: make(map[Channel]Handler, len(channels)),
		unknown:  unknown,
		subs:     make(map[string]Channel, len(channels)),
		d:        d,
		log:      log,
	}
	for i, ch := range channels {
		handler := h[ch]
		if handler == nil {
			handler = discard
		}
		r.handlers[ch] = handler
		r.subs[subscriptionID(i)] = ch
	}
	return r, nil
}

func subscriptionID(i int) string { return "sub-" + strconv.Itoa(i) }

// registerAll issues one SUBSCRIBE per channel, handler or not. It must only
// run after CONNECTED.
func (r *router) registerAll(send func(*stomp.Frame) error) error {
	for i, ch := range channels {
		f := stomp.New(stomp.CmdSubscribe,
			stomp.HdrID, subscriptionID(i),
			stomp.HdrDestination, string(ch),
			stomp.HdrAck, "auto",
		)
		if err := send(f); err != nil {
			return fmt.Errorf("subscribe %s: %w", ch, err)
		}
	}
	return nil
}

// route dispatches a MESSAGE frame by its subscription id, falling back to
// the destination header.
func (r *router) route(f *stomp.Frame) {
	ch, ok := r.subs[f.Get(stomp.HdrSubscription)]
	if !ok {
		ch = Channel(f.Get(stomp.HdrDestination))
	}
	if h, ok := r.handlers[ch]; ok {
		r.d.dispatch(ch, f.Body, h)
		return
	}
	if r.unknown != nil {
		r.d.dispatch(ch, f.Body, r.unknown)
		return
	}
	r.log.Debug().
		Str("destination", f.Get(stomp.HdrDestination)).
		Str("subscription", f.Get(stomp.HdrSubscription)).
		Msg("dropping message for unknown channel")
}
