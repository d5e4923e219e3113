package ws

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type recordingPresence struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPresence) Connect(userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, "+"+userID)
	return nil
}

func (p *recordingPresence) Disconnect(userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, "-"+userID)
	return nil
}

func (p *recordingPresence) snapshot() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	copy(out, p.events)
	return out
}

func newTestServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.Serve(w, r, r.URL.Query().Get("userId"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dialUser(t *testing.T, srv *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?userId=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dialing as %s: %v", userID, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("reading event: %v", err)
	}
	return ev
}

func readPresence(t *testing.T, conn *websocket.Conn) []string {
	t.Helper()
	ev := readEvent(t, conn)
	if ev.Event != EventOnlineUsers {
		t.Fatalf("expected %s event, got %s", EventOnlineUsers, ev.Event)
	}
	var users []string
	if err := json.Unmarshal(ev.Data, &users); err != nil {
		t.Fatalf("decoding presence payload: %v", err)
	}
	return users
}

func waitForOffline(t *testing.T, hub *Hub, userID string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := hub.Lookup(userID); !ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("connection for %s was never reaped", userID)
}

func TestPresenceBroadcast(t *testing.T) {
	hub := NewHub(nil)
	srv := newTestServer(t, hub)

	alice := dialUser(t, srv, "alice")
	if got := readPresence(t, alice); len(got) != 1 || got[0] != "alice" {
		t.Errorf("expected [alice], got %v", got)
	}

	bob := dialUser(t, srv, "bob")
	if got := readPresence(t, bob); len(got) != 2 {
		t.Errorf("expected both users online, got %v", got)
	}
	if got := readPresence(t, alice); len(got) != 2 || got[0] != "alice" || got[1] != "bob" {
		t.Errorf("expected [alice bob], got %v", got)
	}

	bob.Close()
	if got := readPresence(t, alice); len(got) != 1 || got[0] != "alice" {
		t.Errorf("expected [alice] after bob left, got %v", got)
	}
	waitForOffline(t, hub, "bob")
}

func TestPushDeliversToConnectedUser(t *testing.T) {
	hub := NewHub(nil)
	srv := newTestServer(t, hub)

	alice := dialUser(t, srv, "alice")
	readPresence(t, alice)

	hub.Push("alice", EventNewMessage, map[string]string{"text": "hi"})
	ev := readEvent(t, alice)
	if ev.Event != EventNewMessage {
		t.Fatalf("expected %s, got %s", EventNewMessage, ev.Event)
	}
	var payload map[string]string
	if err := json.Unmarshal(ev.Data, &payload); err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	if payload["text"] != "hi" {
		t.Errorf("expected text hi, got %q", payload["text"])
	}
}

func TestPushToOfflineUserIsDropped(t *testing.T) {
	hub := NewHub(nil)

	// No connection exists; the push must be a silent no-op.
	hub.Push("ghost", EventNewMessage, map[string]string{"text": "hi"})

	if _, ok := hub.Lookup("ghost"); ok {
		t.Errorf("expected no connection for ghost")
	}
}

func TestReconnectReplacesPriorConnection(t *testing.T) {
	presence := &recordingPresence{}
	hub := NewHub(presence)
	srv := newTestServer(t, hub)

	first := dialUser(t, srv, "alice")
	readPresence(t, first)
	firstID, ok := hub.Lookup("alice")
	if !ok {
		t.Fatalf("expected alice online")
	}

	second := dialUser(t, srv, "alice")
	readPresence(t, second)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if id, ok := hub.Lookup("alice"); ok && id != firstID {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	secondID, ok := hub.Lookup("alice")
	if !ok || secondID == firstID {
		t.Fatalf("expected the newer connection to win")
	}
	if users := hub.OnlineUsers(); len(users) != 1 || users[0] != "alice" {
		t.Errorf("expected a single alice entry, got %v", users)
	}

	// The replaced connection's exit must not clear alice's presence.
	time.Sleep(100 * time.Millisecond)
	for _, ev := range presence.snapshot() {
		if ev == "-alice" {
			t.Errorf("replaced connection cleared presence: %v", presence.snapshot())
		}
	}

	hub.Push("alice", EventNewMessage, map[string]string{"text": "still here"})
	ev := readEvent(t, second)
	if ev.Event != EventNewMessage {
		t.Fatalf("expected push on the new connection, got %s", ev.Event)
	}
}

func TestMessageDeletedRebroadcast(t *testing.T) {
	hub := NewHub(nil)
	srv := newTestServer(t, hub)

	alice := dialUser(t, srv, "alice")
	readPresence(t, alice)
	bob := dialUser(t, srv, "bob")
	readPresence(t, bob)
	readPresence(t, alice)

	ev, err := NewEvent(EventMessageDeleted, "507f1f77bcf86cd799439011")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := bob.WriteJSON(ev); err != nil {
		t.Fatalf("sending deletion frame: %v", err)
	}

	got := readEvent(t, alice)
	if got.Event != EventMessageDeleted {
		t.Fatalf("expected %s, got %s", EventMessageDeleted, got.Event)
	}
	var id string
	if err := json.Unmarshal(got.Data, &id); err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	if id != "507f1f77bcf86cd799439011" {
		t.Errorf("expected the deleted message id, got %q", id)
	}

	// The origin connection must not get its own frame back.
	bob.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var echo Event
	err = bob.ReadJSON(&echo)
	if err == nil {
		t.Fatalf("expected no echo to the origin, got %s", echo.Event)
	}
	if netErr, ok := err.(net.Error); !ok || !netErr.Timeout() {
		t.Fatalf("expected a read timeout, got %v", err)
	}
}
