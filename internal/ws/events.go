package ws

import (
	"log"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/shuleplus/backend/internal/service"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS is handled at the HTTP level
	},
}

// client wraps a connection with a write mutex. Events arrive from the poll
// session's goroutine and from handler goroutines (cancel, retry) at the same
// time, and gorilla/websocket forbids concurrent writers on one connection.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// EventsHandler streams confirmation poll state changes to the UI over
// WebSocket so payment pages update without polling the status endpoint.
type EventsHandler struct {
	poller *service.Poller
	auth   *service.AuthService

	mu      sync.Mutex
	clients map[string]map[*client]bool // orderID -> connections
}

// NewEventsHandler creates an EventsHandler and registers it with the poller.
func NewEventsHandler(poller *service.Poller, auth *service.AuthService) *EventsHandler {
	h := &EventsHandler{
		poller:  poller,
		auth:    auth,
		clients: make(map[string]map[*client]bool),
	}
	poller.Subscribe(h.broadcast)
	return h
}

func (h *EventsHandler) broadcast(ev service.PollEvent) {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients[ev.OrderID]))
	for c := range h.clients[ev.OrderID] {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		if err := c.writeJSON(ev); err != nil {
			h.drop(ev.OrderID, c)
		}
	}
}

func (h *EventsHandler) drop(orderID string, c *client) {
	h.mu.Lock()
	if set, ok := h.clients[orderID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, orderID)
		}
	}
	h.mu.Unlock()
	c.conn.Close()
}

// Handle upgrades HTTP to WebSocket and streams events for one order.
// URL: /payments/{orderId}/events?token=JWT_TOKEN
func (h *EventsHandler) Handle(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	if orderID == "" {
		http.Error(w, "invalid path", http.StatusBadRequest)
		return
	}

	// Authenticate via query param token
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "token required", http.StatusUnauthorized)
		return
	}
	if _, err := h.auth.VerifyToken(token); err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	snap, ok := h.poller.Snapshot(orderID)
	if !ok {
		http.Error(w, "no confirmation in progress for this order", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	c := &client{conn: conn}

	// Send the current state before registering for broadcasts, so the
	// client always sees the snapshot first and a broadcast firing during
	// the handshake cannot interleave with it.
	if err := c.writeJSON(service.PollEvent{
		OrderID: snap.OrderID,
		State:   snap.State,
		Message: snap.Message,
		Attempt: snap.Attempt,
	}); err != nil {
		conn.Close()
		return
	}

	h.mu.Lock()
	if h.clients[orderID] == nil {
		h.clients[orderID] = make(map[*client]bool)
	}
	h.clients[orderID][c] = true
	h.mu.Unlock()

	// The reconnect is a visibility resumption: the user came back to the
	// page, so check the gateway now instead of waiting for the next tick.
	_ = h.poller.Resume(orderID)

	// Reads are discarded; the loop exists to detect the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.drop(orderID, c)
			return
		}
	}
}
