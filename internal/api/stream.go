package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/hay-kot/orderbell/internal/core/view"
)

// ping/pong keeps idle stream connections alive
const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// the stream is read-only and served on a local address
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StreamFrame is the message pushed to stream clients.
type StreamFrame struct {
	Type     string         `json:"type"`
	Snapshot *view.Snapshot `json:"snapshot"`
}

type frame struct {
	version uint64
	data    []byte
}

type client struct {
	conn *websocket.Conn
	send chan frame
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.send)
	})
}

// Hub fans published snapshots out to connected stream clients. A client
// that falls behind by more than its send buffer is disconnected.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
	logger  zerolog.Logger
}

// NewHub returns an empty hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{clients: make(map[*client]struct{}), logger: logger}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast queues s for every client.
func (h *Hub) Broadcast(s *view.Snapshot) {
	if s == nil {
		return
	}
	f, err := encodeFrame(s)
	if err != nil {
		h.logger.Error().Err(err).Msg("encode snapshot frame")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- f:
		default:
			h.logger.Warn().Msg("stream client too slow, disconnecting")
			delete(h.clients, c)
			c.close()
		}
	}
}

// Close disconnects every client. Later connections are refused.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
}

// Handler upgrades the request and streams snapshots, starting with the
// current one.
func (h *Hub) Handler(engine Engine) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		conn, err := upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
		if err != nil {
			// Upgrade already wrote the error response
			return
		}

		c := &client{conn: conn, send: make(chan frame, sendBuffer)}
		if !h.register(c) {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(writeWait))
			_ = conn.Close()
			return
		}

		if f, err := encodeFrame(engine.Snapshot()); err == nil {
			select {
			case c.send <- f:
			default:
			}
		}

		go h.writePump(c)
		h.readPump(c)
	}
}

// readPump discards client frames and notices when the peer goes away.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
	}()

	c.conn.SetReadLimit(512)
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

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	var last uint64
	for {
		select {
		case f, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			// the initial frame can race a broadcast; never go backwards
			if f.version != 0 && f.version <= last {
				continue
			}
			last = f.version
			if err := c.conn.WriteMessage(websocket.TextMessage, f.data); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func encodeFrame(s *view.Snapshot) (frame, error) {
	b, err := json.Marshal(StreamFrame{Type: "snapshot", Snapshot: s})
	if err != nil {
		return frame{}, err
	}
	return frame{version: s.Version, data: b}, nil
}
