package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/floorscore/floorscore/server/internal/allocation"
)

// buildTimeout bounds one dashboard query.
const buildTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Allow all origins; callers should apply CORS at the reverse-proxy level.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Dashboard is the live view pushed to clients.
type Dashboard struct {
	GeneratedAt time.Time         `json:"generated_at"`
	Filter      string            `json:"filter,omitempty"` // the subscription query, e.g. "line_number=L2"
	Report      allocation.Report `json:"report"`
}

// Message is the JSON envelope sent to clients on every broadcast.
type Message struct {
	Event string    `json:"event"`
	Data  Dashboard `json:"data"`
}

// Hub pushes the floor dashboard to WebSocket clients every interval and
// shortly after any record change. Each client subscribes with the same
// query parameters the report endpoint accepts (?line_number=L2&search=ana);
// clients sharing a subscription share one report query per broadcast.
type Hub struct {
	svc      *allocation.Service
	interval time.Duration
	changed  chan struct{}
	now      func() time.Time

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// New creates a Hub that reads from svc and broadcasts every interval.
func New(svc *allocation.Service, interval time.Duration) *Hub {
	return &Hub{
		svc:      svc,
		interval: interval,
		changed:  make(chan struct{}, 1),
		now:      time.Now,
		clients:  make(map[*client]struct{}),
	}
}

// Notify schedules a broadcast on the Run loop. Calls that arrive while one
// is already pending are coalesced. Safe to register with
// allocation.Service.OnChange.
func (h *Hub) Notify(allocation.Change) {
	select {
	case h.changed <- struct{}{}:
	default:
	}
}

// Run is the broadcast loop. It blocks until ctx is cancelled, then closes
// every connection.
func (h *Hub) Run(ctx context.Context) {
	t := time.NewTicker(h.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-t.C:
		case <-h.changed:
		}
		h.broadcast(ctx)
	}
}

// ServeHTTP validates the subscription, upgrades the connection and sends
// the current dashboard straight away. It blocks until the client leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	q.Del("token") // auth parameter, not a filter
	f, err := allocation.ParseFilter(q)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()}) //nolint:errcheck
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return // upgrader has already answered
	}
	c := newClient(conn, q.Encode(), f)
	h.add(c)
	defer h.remove(c)

	if data, err := h.render(r.Context(), c.sub, c.filter); err == nil {
		h.offer(c, data)
	} else {
		slog.Warn("ws: initial dashboard", "filter", c.sub, "err", err)
	}

	go c.writeLoop()
	c.readLoop()
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// subscriptions groups the connected clients by filter.
func (h *Hub) subscriptions() map[string][]*client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	subs := make(map[string][]*client)
	for c := range h.clients {
		subs[c.sub] = append(subs[c.sub], c)
	}
	return subs
}

func (h *Hub) broadcast(ctx context.Context) {
	var slow []*client
	for sub, group := range h.subscriptions() {
		data, err := h.render(ctx, sub, group[0].filter)
		if err != nil {
			slog.Warn("ws: build dashboard", "filter", sub, "err", err)
			continue
		}
		for _, c := range group {
			if !h.offer(c, data) {
				slow = append(slow, c)
			}
		}
	}
	for _, c := range slow {
		slog.Debug("ws: dropping slow client", "filter", c.sub)
		h.remove(c)
	}
}

// offer queues data for c if c is still connected. It holds the read lock so
// remove and closeAll cannot close the channel mid-send. A client that is
// already gone counts as delivered.
func (h *Hub) offer(c *client, data []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, live := h.clients[c]; !live {
		return true
	}
	return c.offer(data)
}

func (h *Hub) render(ctx context.Context, sub string, f allocation.Filter) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, buildTimeout)
	defer cancel()

	rep, err := h.svc.Report(ctx, f)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{
		Event: "dashboard",
		Data:  Dashboard{GeneratedAt: h.now().UTC(), Filter: sub, Report: rep},
	})
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}
