package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	EventNewMessage     = "newMessage"
	EventMessageDeleted = "messageDeleted"
	EventOnlineUsers    = "getOnlineUsers"
)

const (
	writeTimeout = 10 * time.Second
	readTimeout  = 60 * time.Second
)

// Event is the wire envelope for every realtime frame, in both
// directions. Data stays raw on receive so handlers can decode it per
// event name.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func NewEvent(name string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Event: name, Data: raw}, nil
}

// PresenceStore mirrors connect/disconnect transitions to an external
// registry. The hub's in-memory map stays authoritative; registry
// failures are logged and ignored.
type PresenceStore interface {
	Connect(userID string) error
	Disconnect(userID string) error
}

type connection struct {
	id      string
	userID  string
	sock    *websocket.Conn
	writeMu sync.Mutex
}

func (c *connection) write(ev Event) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.sock.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.sock.WriteJSON(ev)
}

func (c *connection) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.sock.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

// Hub maps each user to at most one live connection and fans realtime
// events out to them. Delivery is at-most-once with no queuing: events
// for absent or broken connections are dropped and the client recovers
// through an explicit fetch.
type Hub struct {
	upgrader websocket.Upgrader
	presence PresenceStore

	mu    sync.Mutex
	conns map[string]*connection
}

func NewHub(presence PresenceStore) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin:      func(r *http.Request) bool { return true },
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
			HandshakeTimeout: 10 * time.Second,
		},
		presence: presence,
		conns:    make(map[string]*connection),
	}
}

// Serve upgrades the request and runs the connection's read loop until
// the peer goes away. The latest connection for a user wins; any prior
// one is closed and replaced.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID string) error {
	sock, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	conn := &connection{id: uuid.NewString(), userID: userID, sock: sock}
	h.register(conn)
	defer h.unregister(conn)
	h.readLoop(conn)
	return nil
}

func (h *Hub) register(conn *connection) {
	h.mu.Lock()
	if prev, ok := h.conns[conn.userID]; ok {
		prev.sock.Close()
	}
	h.conns[conn.userID] = conn
	h.mu.Unlock()

	if h.presence != nil {
		if err := h.presence.Connect(conn.userID); err != nil {
			log.Printf("Error recording presence for %s: %v", conn.userID, err)
		}
	}
	h.broadcastPresence()
}

func (h *Hub) unregister(conn *connection) {
	h.mu.Lock()
	current, ok := h.conns[conn.userID]
	removed := ok && current == conn
	if removed {
		delete(h.conns, conn.userID)
	}
	h.mu.Unlock()
	conn.sock.Close()

	// A connection that was already replaced must not clear the newer
	// entry's presence.
	if !removed {
		return
	}
	if h.presence != nil {
		if err := h.presence.Disconnect(conn.userID); err != nil {
			log.Printf("Error clearing presence for %s: %v", conn.userID, err)
		}
	}
	h.broadcastPresence()
}

func (h *Hub) readLoop(conn *connection) {
	conn.sock.SetReadDeadline(time.Now().Add(readTimeout))
	conn.sock.SetPongHandler(func(string) error {
		conn.sock.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})
	for {
		var ev Event
		if err := conn.sock.ReadJSON(&ev); err != nil {
			return
		}
		conn.sock.SetReadDeadline(time.Now().Add(readTimeout))

		switch ev.Event {
		case EventMessageDeleted:
			// The deleting client tells its peers itself; relay the
			// frame to every other connection.
			h.broadcastExcept(ev, conn.id)
		default:
			log.Printf("Ignoring unknown event %q from %s", ev.Event, conn.userID)
		}
	}
}

// Lookup returns the live connection id for a user, if any.
func (h *Hub) Lookup(userID string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conn, ok := h.conns[userID]
	if !ok {
		return "", false
	}
	return conn.id, true
}

// OnlineUsers returns the ids of all currently connected users.
func (h *Hub) OnlineUsers() []string {
	h.mu.Lock()
	users := make([]string, 0, len(h.conns))
	for userID := range h.conns {
		users = append(users, userID)
	}
	h.mu.Unlock()
	sort.Strings(users)
	return users
}

// Push sends one event to a user's live connection, fire-and-forget.
func (h *Hub) Push(userID string, event string, payload interface{}) {
	h.mu.Lock()
	conn, ok := h.conns[userID]
	h.mu.Unlock()
	if !ok {
		return
	}
	ev, err := NewEvent(event, payload)
	if err != nil {
		log.Printf("Error encoding %s event: %v", event, err)
		return
	}
	if err := conn.write(ev); err != nil {
		log.Printf("Error pushing %s to %s: %v", event, userID, err)
	}
}

func (h *Hub) broadcastPresence() {
	ev, err := NewEvent(EventOnlineUsers, h.OnlineUsers())
	if err != nil {
		log.Printf("Error encoding presence event: %v", err)
		return
	}
	h.broadcastExcept(ev, "")
}

func (h *Hub) broadcastExcept(ev Event, exceptConnID string) {
	h.mu.Lock()
	targets := make([]*connection, 0, len(h.conns))
	for _, conn := range h.conns {
		if conn.id != exceptConnID {
			targets = append(targets, conn)
		}
	}
	h.mu.Unlock()

	for _, conn := range targets {
		if err := conn.write(ev); err != nil {
			log.Printf("Error broadcasting %s to %s: %v", ev.Event, conn.userID, err)
		}
	}
}

// pingAll pings every live connection and closes the ones that fail;
// their read loops then exit and unregister them.
func (h *Hub) pingAll() {
	h.mu.Lock()
	targets := make([]*connection, 0, len(h.conns))
	for _, conn := range h.conns {
		targets = append(targets, conn)
	}
	h.mu.Unlock()

	for _, conn := range targets {
		if err := conn.ping(); err != nil {
			log.Printf("Dropping dead connection for %s: %v", conn.userID, err)
			conn.sock.Close()
		}
	}
}
