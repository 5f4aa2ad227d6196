package relay

import (
	"sort"
	"sync"

	"github.com/foodflow/notifier/internal/stomp"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Hub tracks connected clients and fans published notifications out to the
// subscriptions of one user.
type Hub struct {
	log zerolog.Logger

	mu      sync.RWMutex
	clients map[*client]bool
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		log:     log,
		clients: make(map[*client]bool),
	}
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
	h.mu.Unlock()
}

// Publish sends payload as a MESSAGE to every subscription user holds on
// destination. It returns the number of frames queued.
func (h *Hub) Publish(user, destination string, payload []byte) int {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		if c.user == user {
			clients = append(clients, c)
		}
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range clients {
		for _, id := range c.subscriptionsTo(destination) {
			f := stomp.New(stomp.CmdMessage,
				stomp.HdrSubscription, id,
				stomp.HdrDestination, destination,
				stomp.HdrMessageID, uuid.NewString(),
				stomp.HdrContentType, "application/json",
			)
			f.Body = payload
			if !c.enqueue(f) {
				h.log.Warn().Str("user", user).Msg("relay client too slow, disconnecting")
				h.remove(c)
				break
			}
			delivered++
		}
	}
	return delivered
}

// Subscriptions lists the destinations user is subscribed to across all of
// its connections, sorted and without duplicates.
func (h *Hub) Subscriptions(user string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[string]bool)
	for c := range h.clients {
		if c.user != user {
			continue
		}
		for _, dest := range c.destinations() {
			seen[dest] = true
		}
	}
	out := make([]string, 0, len(seen))
	for dest := range seen {
		out = append(out, dest)
	}
	sort.Strings(out)
	return out
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
