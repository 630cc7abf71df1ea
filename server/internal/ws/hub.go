package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sleeperqc/sleeperqc/pkg/report"
	"github.com/sleeperqc/sleeperqc/pkg/types"
	"github.com/sleeperqc/sleeperqc/server/internal/store"
)

const (
	// writeTimeout is the deadline for a single write to a client.
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for a pong response before treating the
	// connection as dead.
	pongWait = 60 * time.Second

	// pingPeriod controls how often the server sends WebSocket ping frames.
	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// sendBufSize is the per-client outgoing message buffer depth.
	sendBufSize = 16
)

// Event names carried in Message.Event.
const (
	EventReport = "report"
	EventUpdate = "update"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 8192,
	// CORS is applied at the reverse proxy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Message is the JSON envelope sent to clients. A "report" message carries
// every shift the client watches; an "update" carries the one shift that
// just changed.
type Message struct {
	Event       string               `json:"event"`
	GeneratedAt time.Time            `json:"generated_at"`
	Data        []report.ShiftReport `json:"data"`
}

// Hub manages WebSocket client connections and streams shift reports to them.
type Hub struct {
	store    *store.Store
	interval time.Duration
	opts     report.Options

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// client represents one connected WebSocket client. An empty container
// watches every shift.
type client struct {
	conn      *websocket.Conn
	send      chan []byte
	container string
}

func (c *client) watches(cid string) bool {
	return c.container == "" || c.container == cid
}

// New creates a Hub that reads from st and broadcasts every interval.
func New(st *store.Store, interval time.Duration, opts report.Options) *Hub {
	return &Hub{
		store:    st,
		interval: interval,
		opts:     opts,
		clients:  make(map[*client]struct{}),
	}
}

// Run starts the broadcast ticker loop. Run blocks until ctx is cancelled,
// then closes all active connections.
func (h *Hub) Run(ctx context.Context) {
	t := time.NewTicker(h.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-t.C:
			h.broadcast()
		}
	}
}

// ServeHTTP upgrades the HTTP connection to WebSocket and serves the client.
// The optional ?container= query restricts the stream to one shift. The
// current reports are sent immediately on connect.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}

	c := &client{
		conn:      conn,
		send:      make(chan []byte, sendBufSize),
		container: r.URL.Query().Get("container"),
	}
	h.register(c)
	defer h.unregister(c)

	if data, err := h.encode(EventReport, h.reportsFor(c, h.store.Shifts())); err == nil {
		select {
		case c.send <- data:
		default:
		}
	}

	go c.writePump()
	c.readPump() // blocks until connection closes
}

// Notify pushes the fresh report of container cid to every client watching
// it, without waiting for the next tick.
func (h *Hub) Notify(cid string) {
	sh, ok := h.store.Shift(cid)
	if !ok {
		return
	}
	data, err := h.encode(EventUpdate, []report.ShiftReport{report.Build(sh, h.opts)})
	if err != nil {
		return
	}
	for _, c := range h.targets() {
		if c.watches(cid) {
			h.deliver(c, data)
		}
	}
}

// Count returns the number of currently connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// --- internal ---------------------------------------------------------------

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *Hub) targets() []*client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		out = append(out, c)
	}
	return out
}

// broadcast builds every report once and encodes one message per distinct
// container filter.
func (h *Hub) broadcast() {
	targets := h.targets()
	if len(targets) == 0 {
		return
	}
	shifts := h.store.Shifts()
	reports := make([]report.ShiftReport, 0, len(shifts))
	for _, sh := range shifts {
		reports = append(reports, report.Build(sh, h.opts))
	}

	encoded := make(map[string][]byte)
	for _, c := range targets {
		data, ok := encoded[c.container]
		if !ok {
			var err error
			if data, err = h.encode(EventReport, filter(reports, c)); err != nil {
				continue
			}
			encoded[c.container] = data
		}
		h.deliver(c, data)
	}
}

// deliver queues data for c, disconnecting a client whose buffer is full.
func (h *Hub) deliver(c *client, data []byte) {
	h.mu.RLock()
	_, live := h.clients[c]
	if live {
		select {
		case c.send <- data:
			h.mu.RUnlock()
			return
		default:
		}
	}
	h.mu.RUnlock()
	if live {
		slog.Debug("ws: dropping slow client", "container", c.container)
		h.unregister(c)
	}
}

func (h *Hub) reportsFor(c *client, shifts []types.Shift) []report.ShiftReport {
	out := make([]report.ShiftReport, 0, len(shifts))
	for _, sh := range shifts {
		if c.watches(sh.ID) {
			out = append(out, report.Build(sh, h.opts))
		}
	}
	return out
}

func filter(reports []report.ShiftReport, c *client) []report.ShiftReport {
	if c.container == "" {
		return reports
	}
	out := make([]report.ShiftReport, 0, 1)
	for _, r := range reports {
		if c.watches(r.ContainerID) {
			out = append(out, r)
		}
	}
	return out
}

func (h *Hub) encode(event string, reports []report.ShiftReport) ([]byte, error) {
	return json.Marshal(Message{
		Event:       event,
		GeneratedAt: time.Now().UTC(),
		Data:        reports,
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

// writePump drains the client's send channel and forwards messages to the
// WebSocket connection. It also sends periodic ping frames.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump handles control frames and detects disconnects. Blocks until the
// connection closes.
func (c *client) readPump() {
	defer c.conn.Close()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}
