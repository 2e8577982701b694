package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/spsquared/battleboxes-server/internal/game"
)

// sendQueueSize bounds the per-client outbound queue. A client that cannot
// drain 40 snapshots a second is dropped rather than allowed to stall the
// room broadcast.
const sendQueueSize = 256

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || strings.HasPrefix(origin, "http://localhost") || strings.HasPrefix(origin, "http://127.0.0.1") {
			return true
		}
		log.Printf("websocket rejected from origin %s", origin)
		RecordConnectionRejected("origin")
		return false
	},
}

var activeSockets int64 // atomic

// socketCounter caps concurrent sockets per client IP.
type socketCounter struct {
	mu    sync.Mutex
	perIP map[string]int
	max   int
}

func newSocketCounter(max int) *socketCounter {
	return &socketCounter{perIP: make(map[string]int), max: max}
}

// acquire takes a connection slot for ip, reporting false at the cap. Every
// successful acquire must be paired with a release.
func (sc *socketCounter) acquire(ip string) bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.perIP[ip] >= sc.max {
		return false
	}
	sc.perIP[ip]++
	return true
}

func (sc *socketCounter) release(ip string) {
	sc.mu.Lock()
	if n := sc.perIP[ip]; n <= 1 {
		delete(sc.perIP, ip)
	} else {
		sc.perIP[ip] = n - 1
	}
	sc.mu.Unlock()
}

// envelope is the wire format of every socket message, both directions.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outEnvelope struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// socketClient bridges one WebSocket connection to a room. It implements
// the room's Client interface; Send never blocks the room fan-out.
type socketClient struct {
	conn *websocket.Conn
	send chan outEnvelope
	done chan struct{}
	once sync.Once
}

func newSocketClient(conn *websocket.Conn) *socketClient {
	c := &socketClient{
		conn: conn,
		send: make(chan outEnvelope, sendQueueSize),
		done: make(chan struct{}),
	}
	go c.writePump()
	return c
}

// Send queues an event for the client. A full queue means the client fell
// too far behind; the connection is dropped.
func (c *socketClient) Send(event string, data any) {
	select {
	case c.send <- outEnvelope{Event: event, Data: data}:
	case <-c.done:
	default:
		c.Close("send queue overflow")
	}
}

// Close shuts the connection down. Idempotent.
func (c *socketClient) Close(reason string) {
	c.once.Do(func() {
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
			time.Now().Add(time.Second))
		close(c.done)
		c.conn.Close()
	})
}

// writePump drains the outbound queue onto the wire so room fan-out never
// blocks on a slow socket.
func (c *socketClient) writePump() {
	for {
		select {
		case msg := <-c.send:
			if err := c.conn.WriteJSON(msg); err != nil {
				c.conn.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// handleGameSocket upgrades GET /games/{id}/ws and bridges the connection
// into the room. The client authenticates with the one-time join code in
// the token query parameter; a bad code closes the socket immediately.
func (h *handlers) handleGameSocket(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	g, ok := h.manager.GetGame(id)
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND")
		return
	}

	ip := GetClientIP(r)
	if !h.sockets.acquire(ip) {
		RecordConnectionRejected("ws_limit")
		writeError(w, http.StatusTooManyRequests, "TOO_MANY_SOCKETS")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.sockets.release(ip)
		return
	}
	UpdateWSConnections(int(atomic.AddInt64(&activeSockets, 1)))

	client := newSocketClient(conn)
	defer func() {
		client.Close("connection closed")
		h.sockets.release(ip)
		UpdateWSConnections(int(atomic.AddInt64(&activeSockets, -1)))
	}()
	username, ok := g.Redeem(r.URL.Query().Get("token"), client)
	if !ok {
		RecordConnectionRejected("bad_code")
		client.Close("invalid auth code")
		return
	}
	defer g.Disconnect(username)

	conn.SetReadLimit(4096)
	for {
		var msg envelope
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}

		// Malformed payloads are dropped without response; a confused or
		// hostile client gets no feedback channel.
		switch msg.Event {
		case "ping":
			g.HandlePing(username)
		case "ready":
			g.HandleReady(username)
		case "readyStart":
			var ready bool
			if json.Unmarshal(msg.Data, &ready) == nil {
				g.HandleReadyStart(username, ready)
			}
		case "tick":
			var input game.TickInput
			if json.Unmarshal(msg.Data, &input) == nil {
				g.HandleTick(username, input)
			}
		case "chatMessage":
			var text string
			if json.Unmarshal(msg.Data, &text) == nil {
				g.HandleChat(username, text)
			}
		}
	}
}
