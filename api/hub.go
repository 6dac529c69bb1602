package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/warp/backoffice/generic"
)

const (
	pingInterval  = 30 * time.Second
	readDeadline  = 60 * time.Second
	writeDeadline = 5 * time.Second
	hubBuffer     = 256
)

// ChangeSource is the part of generic.Bus the hub listens to.
type ChangeSource interface {
	SubscribeAll(fn func(generic.Change)) (unsubscribe func())
}

// client wraps a connection with a mutex for serialized writes.
type client struct {
	conn *ws.Conn
	mu   sync.Mutex
}

// Hub pushes every store change to the connected websocket clients.
// Changes are queued and written by Run so store writers never wait on a
// slow socket; when the queue is full the change is dropped and logged.
type Hub struct {
	log     zerolog.Logger
	metrics *Metrics

	mu      sync.RWMutex
	clients map[*client]struct{}

	events chan generic.Change
}

func NewHub(log zerolog.Logger, metrics *Metrics) *Hub {
	return &Hub{
		log:     log,
		metrics: metrics,
		clients: make(map[*client]struct{}),
		events:  make(chan generic.Change, hubBuffer),
	}
}

// Attach subscribes the hub to src and returns the unsubscribe func.
func (h *Hub) Attach(src ChangeSource) func() {
	return src.SubscribeAll(h.enqueue)
}

func (h *Hub) enqueue(ch generic.Change) {
	select {
	case h.events <- ch:
	default:
		h.log.Warn().Str("collection", string(ch.Collection)).Str("id", ch.ID).Msg("change stream full, dropping event")
	}
}

// Run broadcasts queued changes until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case ch := <-h.events:
			h.Broadcast(ch)
		}
	}
}

func (h *Hub) register(c *client) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	if h.metrics != nil {
		h.metrics.StreamClients.Set(float64(len(h.clients)))
	}
	return len(h.clients)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	if h.metrics != nil {
		h.metrics.StreamClients.Set(float64(len(h.clients)))
	}
	h.mu.Unlock()
	if ok {
		_ = c.conn.Close()
	}
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		h.unregister(c)
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast writes ch to every client. A client whose write fails is dropped.
func (h *Hub) Broadcast(ch generic.Change) {
	data, err := json.Marshal(ch)
	if err != nil {
		h.log.Error().Err(err).Msg("change stream marshal failed")
		return
	}

	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.mu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
		err := c.conn.WriteMessage(ws.TextMessage, data)
		c.mu.Unlock()
		if err != nil {
			h.log.Debug().Err(err).Msg("change stream client dropped")
			h.unregister(c)
		}
	}
}

var upgrader = ws.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS upgrades the request and keeps the connection alive with pings
// until the client goes away. Inbound messages are ignored.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{conn: conn}
	n := h.register(c)
	h.log.Info().Int("clients", n).Msg("change stream client connected")

	_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				c.mu.Lock()
				err := conn.WriteControl(ws.PingMessage, nil, time.Now().Add(writeDeadline))
				c.mu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	close(done)
	h.unregister(c)
	h.log.Info().Msg("change stream client disconnected")
}
