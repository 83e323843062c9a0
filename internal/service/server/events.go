package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vertextoedge/browser-shell/internal/domain/event"
	"github.com/vertextoedge/browser-shell/internal/util/ratelimiter"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	clientSendSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// Message is what an /events client receives
type Message struct {
	Type string            `json:"type"`
	Data event.DomainEvent `json:"data"`
}

// EventHub pushes domain events to websocket clients. Progress events are
// thinned per download; everything else is delivered as it happens.
type EventHub struct {
	logger   *zap.Logger
	progress *ratelimiter.Keyed

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	closed  bool
}

type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *wsClient) close() {
	c.once.Do(func() { close(c.send) })
}

// NewEventHub creates a hub that forwards at most one progress event per
// download per interval
func NewEventHub(progressInterval time.Duration, logger *zap.Logger) *EventHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventHub{
		logger:   logger,
		progress: ratelimiter.New(progressInterval),
		clients:  make(map[*wsClient]struct{}),
	}
}

// Handle broadcasts an event to every connected client
func (h *EventHub) Handle(e event.DomainEvent) error {
	switch ev := e.(type) {
	case event.DownloadProgressed:
		if ok, _ := h.progress.Allow(ev.Download.ID); !ok {
			return nil
		}
	case event.DownloadStateChanged:
		if ev.To.IsTerminal() {
			h.progress.Forget(ev.Download.ID)
		}
	}

	payload, err := json.Marshal(Message{Type: e.EventName(), Data: e})
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			// slow client: drop it rather than block the dispatcher
			h.logger.Warn("dropping slow event client", zap.String("client_id", c.id))
			delete(h.clients, c)
			c.close()
		}
	}
	return nil
}

// HandledEvents subscribes the hub to everything
func (h *EventHub) HandledEvents() []string {
	return []string{event.AllEvents}
}

// Clients returns the number of connected clients
func (h *EventHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and streams events until the client leaves
func (h *EventHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &wsClient{id: uuid.NewString(), conn: conn, send: make(chan []byte, clientSendSize)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.logger.Debug("event client connected", zap.String("client_id", c.id), zap.String("remote_addr", r.RemoteAddr))

	go h.writePump(c)
	h.readPump(c)
}

// readPump discards client messages and notices when the client goes away
func (h *EventHub) readPump(c *wsClient) {
	defer func() {
		h.remove(c)
		c.conn.Close()
		h.logger.Debug("event client disconnected", zap.String("client_id", c.id))
	}()

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *EventHub) writePump(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *EventHub) remove(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
}

// Close disconnects every client
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}
