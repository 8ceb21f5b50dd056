package server

// hub.go holds the websocket hub that streams snapshots of a simulation to
// renderers.  The hub observes the simulation; ticks arrive at the simulation's
// rate and frames leave at the render rate, at most, so a fast tick period does
// not flood slow clients.

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/iti/flowsim"
	"golang.org/x/time/rate"
)

const (
	sendBuffer = 16
	writeWait  = 5 * time.Second
)

// Frame is one message of the stream
type Frame struct {
	Type      string                    `json:"type"`
	Snapshot  flowsim.Snapshot          `json:"snapshot"`
	Triggered []flowsim.SimulationEvent `json:"triggered,omitempty"`
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub fans snapshot frames out to the connected websocket clients
type Hub struct {
	sim      *flowsim.Simulation
	logger   *slog.Logger
	limiter  *rate.Limiter
	upgrader websocket.Upgrader

	register  chan *client
	remove    chan *client
	broadcast chan []byte
	done      chan struct{}

	mu      sync.Mutex
	pending []flowsim.SimulationEvent
	dropped int
}

// NewHub creates a hub sending at most fps frames per second.  It must be
// added as an observer of sim, and Run must be called, for frames to flow
func NewHub(sim *flowsim.Simulation, fps float64, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		sim:     sim,
		logger:  logger.With("component", "hub"),
		limiter: rate.NewLimiter(rate.Limit(fps), 1),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		register:  make(chan *client),
		remove:    make(chan *client),
		broadcast: make(chan []byte, sendBuffer),
		done:      make(chan struct{}),
	}
}

// Run delivers frames until ctx is cancelled, then disconnects every client
func (h *Hub) Run(ctx context.Context) error {
	clients := make(map[string]*client)
	defer func() {
		close(h.done)
		for _, c := range clients {
			close(c.send)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case c := <-h.register:
			clients[c.id] = c
			h.logger.Info("stream client connected", "client", c.id, "clients", len(clients))
		case c := <-h.remove:
			if _, present := clients[c.id]; present {
				delete(clients, c.id)
				close(c.send)
				h.logger.Info("stream client disconnected", "client", c.id, "clients", len(clients))
			}
		case msg := <-h.broadcast:
			for _, c := range clients {
				select {
				case c.send <- msg:
				default:
					// a client that cannot keep up misses frames
					h.countDrop()
				}
			}
		}
	}
}

// OnTick publishes a frame when the render rate allows it.  Triggered
// timeline events are held over to the next frame published
func (h *Hub) OnTick(rpt *flowsim.TickReport) {
	h.mu.Lock()
	h.pending = append(h.pending, rpt.Triggered...)
	h.mu.Unlock()

	if !h.limiter.Allow() {
		return
	}
	h.publish("tick")
}

// OnReset publishes the emptied state at once
func (h *Hub) OnReset() {
	h.mu.Lock()
	h.pending = nil
	h.mu.Unlock()
	h.publish("reset")
}

// Dropped is the number of frames a slow client or a full queue has missed
func (h *Hub) Dropped() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

func (h *Hub) countDrop() {
	h.mu.Lock()
	h.dropped += 1
	h.mu.Unlock()
}

func (h *Hub) frame(kind string) ([]byte, error) {
	h.mu.Lock()
	triggered := h.pending
	h.pending = nil
	h.mu.Unlock()
	return json.Marshal(Frame{Type: kind, Snapshot: h.sim.Snapshot(), Triggered: triggered})
}

func (h *Hub) publish(kind string) {
	data, err := h.frame(kind)
	if err != nil {
		h.logger.Error("failed to marshal frame", "error", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.countDrop()
	}
}

// ServeWS upgrades the request and streams frames to it, starting with the current state
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	c := &client{id: uuid.NewString(), conn: conn, send: make(chan []byte, sendBuffer)}

	if data, err := h.frame("hello"); err == nil {
		c.send <- data
	}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}
	go h.writePump(c)
	go h.readPump(c)
}

// writePump owns the writes to the connection, and closes it when the hub lets go of the client
func (h *Hub) writePump(c *client) {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.logger.Warn("failed to send frame", "client", c.id, "error", err)
			h.unregister(c)
			// drain until the hub closes send
			for range c.send {
			}
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}

// readPump discards what the client sends and notices when it goes away
func (h *Hub) readPump(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket error", "client", c.id, "error", err)
			}
			h.unregister(c)
			return
		}
	}
}

func (h *Hub) unregister(c *client) {
	select {
	case h.remove <- c:
	case <-h.done:
	}
}
