package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/oesperto/comparador/internal/models"
	"github.com/oesperto/comparador/internal/notifications"
)

const (
	EventToast      = "toast"
	EventChime      = "chime"
	EventDesktop    = "desktop_notification"
	EventConnection = "connection_status"
	EventSync       = "sync"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 64
)

// Envelope wraps every message pushed to a UI socket.
type Envelope struct {
	Type      string `json:"type"`
	Data      any    `json:"data"`
	Timestamp int64  `json:"timestamp"`
}

type wsClient struct {
	userID uuid.UUID
	conn   *websocket.Conn
	send   chan []byte
}

// Hub fans UI events out to each user's open sockets. It is the UI side of
// the notification manager and of the write services' toasts.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu      sync.RWMutex
	clients map[uuid.UUID]map[*wsClient]struct{}
}

func NewHub(allowedOrigins []string, logger *slog.Logger) *Hub {
	h := &Hub{
		logger:  logger.With("component", "ws"),
		clients: make(map[uuid.UUID]map[*wsClient]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

// originChecker allows same-origin requests and the listed origins. With an
// empty list only same-origin requests get through.
func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		return sameOrigin(r) || set[r.Header.Get("Origin")]
	}
}

// sameOrigin accepts requests without an Origin header (non-browser clients)
// and those whose Origin host matches the request host.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// Connected counts the user's open sockets.
func (h *Hub) Connected(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

func (h *Hub) Send(userID uuid.UUID, eventType string, data any) {
	if h.Connected(userID) == 0 {
		return
	}

	payload, err := json.Marshal(Envelope{Type: eventType, Data: data, Timestamp: time.Now().Unix()})
	if err != nil {
		h.logger.Error("failed to marshal ws message", "type", eventType, "error", err)
		return
	}

	// sends happen under the read lock so unregister cannot close a channel
	// mid-send
	var slow []*wsClient
	h.mu.RLock()
	for c := range h.clients[userID] {
		select {
		case c.send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("ws client too slow, disconnecting", "user_id", userID)
		h.unregister(c)
	}
}

func (h *Hub) Toast(userID uuid.UUID, n models.Notification) {
	h.Send(userID, EventToast, n)
}

func (h *Hub) Chime(userID uuid.UUID, cue notifications.Cue) {
	h.Send(userID, EventChime, cue)
}

func (h *Hub) Desktop(userID uuid.UUID, n models.Notification) {
	h.Send(userID, EventDesktop, n)
}

func (h *Hub) ConnectionChanged(userID uuid.UUID, status models.ConnectionStatus) {
	h.Send(userID, EventConnection, status)
}

// ServeWS upgrades the request and attaches the socket to userID.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID uuid.UUID) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "error", err)
		return
	}

	c := &wsClient{userID: userID, conn: conn, send: make(chan []byte, sendBuffer)}
	h.register(c)

	go h.writePump(c)
	go h.readPump(c)
}

// CloseUser drops every socket of the user.
func (h *Hub) CloseUser(userID uuid.UUID) {
	h.mu.RLock()
	targets := make([]*wsClient, 0, len(h.clients[userID]))
	for c := range h.clients[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	for _, c := range targets {
		h.unregister(c)
	}
}

func (h *Hub) register(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.userID] == nil {
		h.clients[c.userID] = make(map[*wsClient]struct{})
	}
	h.clients[c.userID][c] = struct{}{}
	h.logger.Debug("ws client connected", "user_id", c.userID, "sockets", len(h.clients[c.userID]))
}

// unregister closes c.send exactly once; writePump then closes the socket.
func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.userID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.userID)
	}
	close(c.send)
}

// readPump only keeps the connection alive; the UI talks to the agent over
// HTTP.
func (h *Hub) readPump(c *wsClient) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("ws read error", "error", err)
			}
			return
		}
	}
}

func (h *Hub) writePump(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
