package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/zeusync/salvo/internal/core/events/bus"
	"github.com/zeusync/salvo/internal/core/observability/log"
)

const (
	sendQueueSize = 64
	writeWait     = 5 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = pongWait * 9 / 10
	maxFrameBytes = 64 << 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// EventMessage is a bus event as sent to clients.
type EventMessage struct {
	Type   string    `json:"type"`
	Source string    `json:"source"`
	Time   time.Time `json:"time"`
	Data   any       `json:"data,omitempty"`
}

// Envelope is one outgoing WebSocket frame: an event or a command reply.
type Envelope struct {
	Kind  string        `json:"kind"`
	Event *EventMessage `json:"event,omitempty"`
	Reply *Reply        `json:"reply,omitempty"`
}

// WebSocketHandler streams every bus event to the client and answers Command
// frames. Slow clients lose events rather than stall publishers.
type WebSocketHandler struct {
	svc    *Service
	logger log.Log

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	closed  bool
}

func NewWebSocketHandler(svc *Service, logger log.Log) *WebSocketHandler {
	return &WebSocketHandler{
		svc:     svc,
		logger:  logger.With(log.String("component", "websocket")),
		clients: make(map[*wsClient]struct{}),
	}
}

// Clients returns the number of connected clients.
func (h *WebSocketHandler) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close sends a going-away frame to every client, drops their connections
// and refuses new ones. Hijacked connections are outside http.Server's
// Shutdown, so the server calls this on the way down.
func (h *WebSocketHandler) Close() error {
	h.mu.Lock()
	h.closed = true
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for _, c := range clients {
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		_ = c.conn.Close()
	}
	return nil
}

func (h *WebSocketHandler) track(c *wsClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *WebSocketHandler) untrack(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

type wsClient struct {
	id     string
	conn   *websocket.Conn
	send   chan Envelope
	done   chan struct{}
	logger log.Log
}

func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Upgrade failed", log.Error(err))
		return
	}

	c := &wsClient{
		id:     uuid.NewString(),
		conn:   conn,
		send:   make(chan Envelope, sendQueueSize),
		done:   make(chan struct{}),
		logger: h.logger.WithContext(r.Context()),
	}
	c.logger = c.logger.With(log.String("client_id", c.id))

	if !h.track(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}
	defer h.untrack(c)

	sub, err := h.svc.Bus().Subscribe(bus.AnyEvent, func(e bus.Event) error {
		c.enqueue(Envelope{Kind: "event", Event: &EventMessage{
			Type:   e.Type(),
			Source: e.Source(),
			Time:   e.Timestamp(),
			Data:   e.Data(),
		}})
		return nil
	})
	if err != nil {
		c.logger.Error("Event subscription failed", log.Error(err))
		_ = conn.Close()
		return
	}

	c.logger.Info("Client connected", log.String("remote_addr", conn.RemoteAddr().String()))
	go c.writeLoop()
	h.readLoop(c)

	_ = sub.Cancel()
	close(c.done)
	c.logger.Info("Client disconnected")
}

func (h *WebSocketHandler) readLoop(c *wsClient) {
	c.conn.SetReadLimit(maxFrameBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("Read failed", log.Error(err))
			}
			return
		}

		cmd, err := decodeCommand(raw)
		var reply Reply
		if err != nil {
			reply = Reply{Error: err.Error()}
		} else {
			reply = h.svc.Dispatch(cmd)
		}
		c.enqueue(Envelope{Kind: "reply", Reply: &reply})
	}
}

func (c *wsClient) enqueue(env Envelope) {
	select {
	case c.send <- env:
	case <-c.done:
	default:
		c.logger.Warn("Send queue full, dropping frame", log.String("kind", env.Kind))
	}
}

func (c *wsClient) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case env := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(env); err != nil {
				c.logger.Warn("Write failed", log.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
