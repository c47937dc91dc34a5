// Package hub pushes the live map scene to browser clients over websockets.
//
// A Scene is the tracker's Display on the server: it issues handles, keeps
// every drawn object, and sends its changes through the Hub in batch frames,
// one per applied snapshot or selection. New clients receive the whole scene
// first and batches after that. A scene frame may also arrive later, when a
// batch could not be queued; clients replace everything they hold with it.
// A client that falls behind is disconnected and gets the whole scene again
// when it reconnects.
package hub

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/unklstewy/vatscope/internal/metrics"
)

// Message types sent to clients.
const (
	TypeScene    = "scene"
	TypeBatch    = "batch"
	TypeMarker   = "marker"
	TypePolyline = "polyline"
	TypeCircle   = "circle"
	TypePopup    = "popup"
	TypeRemove   = "remove"
	TypeView     = "view"
	TypeFit      = "fit"
	TypeNotice   = "notice"
	TypeStats    = "stats"
	TypePing     = "ping"
	TypePong     = "pong"
)

const registerTimeout = 5 * time.Second

// VisitorCookie keeps the visitor id between browser sessions.
const VisitorCookie = "vatscope_visitor"

// Message is the envelope of every websocket frame.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Sessions receives connect and disconnect events. admin.Visitors implements it.
type Sessions interface {
	Connect(visitorID string) (sessionID, visitor string)
	Disconnect(sessionID string)
}

// Options configures a Hub.
type Options struct {
	// AllowedOrigins is checked against the Origin header; "*" allows all.
	// Requests without an Origin header (non-browser clients) are accepted.
	AllowedOrigins []string

	// Sessions is optional.
	Sessions Sessions

	Logger zerolog.Logger
}

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	log      zerolog.Logger
	sessions Sessions
	origins  []string
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*Client]bool
	greet   func() Message

	broadcast chan Message
	register  chan *Client
}

// New creates a hub. Serve must be running for clients to be served.
func New(opts Options) *Hub {
	h := &Hub{
		log:       opts.Logger,
		sessions:  opts.Sessions,
		origins:   opts.AllowedOrigins,
		clients:   make(map[*Client]bool),
		broadcast: make(chan Message, 256),
		register:  make(chan *Client, 16),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  4096,
		CheckOrigin:      h.checkOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
	return h
}

// OnConnect sets the message every new client receives before any broadcast.
func (h *Hub) OnConnect(fn func() Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.greet = fn
}

// Serve runs the hub loop until ctx is done, then closes every client.
func (h *Hub) Serve(ctx context.Context) error {
	for {
		// Shutdown wins over a burst of queued broadcasts.
		if ctx.Err() != nil {
			h.closeAllClients()
			return nil
		}

		select {
		case <-ctx.Done():
			h.closeAllClients()
			return nil
		case c := <-h.register:
			h.addClient(c)
		case msg := <-h.broadcast:
			h.broadcastToClients(msg)
		}
	}
}

func (h *Hub) String() string { return "hub" }

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	if h.greet != nil {
		c.send <- h.greet()
	}
	n := len(h.clients)
	h.mu.Unlock()

	c.start()
	metrics.WebsocketClients.Set(float64(n))
	h.log.Debug().Str("session", c.session).Int("clients", n).Msg("Client connected")
}

// removeClient unregisters c. It is safe to call more than once.
func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		h.endSession(c)
		metrics.WebsocketClients.Set(float64(n))
		h.log.Debug().Str("session", c.session).Int("clients", n).Msg("Client disconnected")
	}
}

// broadcastToClients hands msg to every client. Clients whose buffer is full
// are dropped.
func (h *Hub) broadcastToClients(msg Message) {
	var slow []*Client

	h.mu.Lock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			close(c.send)
			delete(h.clients, c)
			slow = append(slow, c)
		}
	}
	n := len(h.clients)
	h.mu.Unlock()

	for _, c := range slow {
		h.endSession(c)
		h.log.Warn().Str("session", c.session).Msg("Dropping slow client")
	}
	if len(slow) > 0 {
		metrics.WebsocketClients.Set(float64(n))
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		close(c.send)
		clients = append(clients, c)
	}
	h.clients = make(map[*Client]bool)
	h.mu.Unlock()

	for _, c := range clients {
		h.endSession(c)
	}
	metrics.WebsocketClients.Set(0)
	if len(clients) > 0 {
		h.log.Info().Int("clients", len(clients)).Msg("Closed websocket clients")
	}
}

func (h *Hub) endSession(c *Client) {
	if h.sessions != nil && c.session != "" {
		h.sessions.Disconnect(c.session)
	}
}

// Broadcast queues a message for all clients. It never blocks; when the queue
// is full the message is dropped and Broadcast reports false.
func (h *Hub) Broadcast(msg Message) bool {
	select {
	case h.broadcast <- msg:
		return true
	default:
		h.log.Warn().Str("type", msg.Type).Msg("Broadcast queue full, dropping message")
		return false
	}
}

// BroadcastJSON wraps data in a message of the given type and broadcasts it.
func (h *Hub) BroadcastJSON(messageType string, data any) {
	h.Broadcast(Message{Type: messageType, Data: data})
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and registers the connection. The visitor id
// comes from the "visitor" query parameter or VisitorCookie and is echoed
// back as a cookie.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	visitor := visitorID(r)
	var session string
	if h.sessions != nil {
		session, visitor = h.sessions.Connect(visitor)
	}

	header := http.Header{}
	if visitor != "" {
		cookie := &http.Cookie{
			Name:     VisitorCookie,
			Value:    visitor,
			Path:     "/",
			MaxAge:   365 * 24 * 3600,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		}
		header.Add("Set-Cookie", cookie.String())
	}

	conn, err := h.upgrader.Upgrade(w, r, header)
	if err != nil {
		// The upgrader has already written the error response.
		h.log.Debug().Err(err).Msg("Websocket upgrade failed")
		if h.sessions != nil {
			h.sessions.Disconnect(session)
		}
		return
	}

	c := newClient(h, conn, session)
	select {
	case h.register <- c:
	case <-time.After(registerTimeout):
		h.log.Warn().Msg("Hub not accepting clients, closing connection")
		conn.Close()
		if h.sessions != nil {
			h.sessions.Disconnect(session)
		}
	}
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.origins) == 0 {
		return true
	}
	for _, allowed := range h.origins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	h.log.Warn().Str("origin", origin).Msg("Websocket connection rejected from unauthorized origin")
	return false
}

// visitorID returns a well-formed visitor id from the request, or "".
func visitorID(r *http.Request) string {
	id := r.URL.Query().Get("visitor")
	if id == "" {
		if c, err := r.Cookie(VisitorCookie); err == nil {
			id = c.Value
		}
	}
	if _, err := uuid.Parse(id); err != nil {
		return ""
	}
	return id
}
