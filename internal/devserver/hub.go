// Package devserver serves the output tree over HTTP and pushes reload
// signals to connected browsers over Server-Sent Events.
package devserver

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Event types sent to browsers.
const (
	EventReload = "reload"
	EventInject = "inject"
)

// Event is one message on the reload channel.
type Event struct {
	Type  string   `json:"type"`
	Paths []string `json:"paths,omitempty"`
}

// clientBuffer holds pending events per browser. A slow browser drops
// events beyond it rather than blocking the build.
const clientBuffer = 16

// Hub fans reload events out to subscribed browsers. The zero value is not
// usable; call NewHub.
type Hub struct {
	Logger *slog.Logger

	mu      sync.Mutex
	clients map[string]chan Event
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[string]chan Event)}
}

func (h *Hub) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// Subscribe registers a browser. The returned cancel func unregisters it
// and closes the channel.
func (h *Hub) Subscribe() (id string, events <-chan Event, cancel func()) {
	id = uuid.NewString()
	ch := make(chan Event, clientBuffer)

	h.mu.Lock()
	h.clients[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return id, ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.clients, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Clients returns the IDs of subscribed browsers, sorted.
func (h *Hub) Clients() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Reload asks every browser to reload the page.
func (h *Hub) Reload() {
	h.broadcast(Event{Type: EventReload})
}

// Inject pushes changed stylesheets without a page reload. Paths are
// relative to the output root. It implements core.Notifier.
func (h *Hub) Inject(paths []string) {
	if len(paths) == 0 {
		return
	}
	h.broadcast(Event{Type: EventInject, Paths: append([]string(nil), paths...)})
}

func (h *Hub) broadcast(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.clients {
		select {
		case ch <- ev:
		default:
			h.logger().Warn("dropping event for slow browser", "client", id, "event", ev.Type)
		}
	}
	h.logger().Debug("broadcast", "event", ev.Type, "clients", len(h.clients), "paths", ev.Paths)
}
