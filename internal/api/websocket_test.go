package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// dialGame connects a websocket to a room with the given auth token.
func dialGame(t *testing.T, httpURL, roomID, token string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(httpURL, "http") + "/games/" + roomID + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// awaitEvent reads frames until the named event arrives.
func awaitEvent(t *testing.T, conn *websocket.Conn, event string) json.RawMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var msg struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %q: %v", event, err)
		}
		if msg.Event == event {
			return msg.Data
		}
	}
}

func sendEvent(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	if err := conn.WriteJSON(map[string]any{"event": event, "data": data}); err != nil {
		t.Fatalf("send %q: %v", event, err)
	}
}

func TestSocketAuthAndPing(t *testing.T) {
	ts, _ := testServer(t)

	var created struct {
		ID   string `json:"id"`
		Code string `json:"code"`
	}
	doJSON(t, "POST", ts.URL+"/games/createGame", "alice", `{"public":true}`, &created)

	conn := dialGame(t, ts.URL, created.ID, created.Code)
	data := awaitEvent(t, conn, "initPlayerPhysics")
	var init struct {
		Username string `json:"username"`
	}
	if err := json.Unmarshal(data, &init); err != nil || init.Username != "alice" {
		t.Fatalf("initPlayerPhysics = %s (%v)", data, err)
	}

	sendEvent(t, conn, "ping", nil)
	awaitEvent(t, conn, "pong")
}

func TestSocketRejectsBadCode(t *testing.T) {
	ts, _ := testServer(t)

	var created struct {
		ID   string `json:"id"`
		Code string `json:"code"`
	}
	doJSON(t, "POST", ts.URL+"/games/createGame", "alice", `{"public":true}`, &created)

	conn := dialGame(t, ts.URL, created.ID, "not-a-code")
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("socket with a bad code should be closed")
	}
}

func TestSocketUnknownRoom(t *testing.T) {
	ts, _ := testServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/games/ZZZZZZ/ws?token=x"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("dial to unknown room should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("unexpected handshake response: %+v", resp)
	}
}

func TestSocketGameFlow(t *testing.T) {
	ts, _ := testServer(t)

	var created struct {
		ID   string `json:"id"`
		Code string `json:"code"`
	}
	doJSON(t, "POST", ts.URL+"/games/createGame", "alice", `{"public":true}`, &created)
	var joined struct {
		Code string `json:"code"`
	}
	doJSON(t, "POST", ts.URL+"/games/joinGame/"+created.ID, "bob", "", &joined)

	alice := dialGame(t, ts.URL, created.ID, created.Code)
	bob := dialGame(t, ts.URL, created.ID, joined.Code)
	awaitEvent(t, alice, "initPlayerPhysics")
	awaitEvent(t, bob, "initPlayerPhysics")

	sendEvent(t, alice, "readyStart", true)
	sendEvent(t, bob, "readyStart", true)
	awaitEvent(t, alice, "gameInfo")
	awaitEvent(t, bob, "gameInfo")

	// Snapshots flow once the match starts.
	data := awaitEvent(t, bob, "tick")
	var snap struct {
		Players []struct {
			Username string `json:"username"`
		} `json:"players"`
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("tick payload: %v", err)
	}
	if len(snap.Players) != 2 {
		t.Errorf("snapshot has %d players, want 2", len(snap.Players))
	}

	// Chat reaches the other client.
	sendEvent(t, alice, "chatMessage", "hello")
	awaitEvent(t, bob, "chatMessage")

	// Closing one socket below the player floor ends the game.
	bob.Close()
	awaitEvent(t, alice, "gameEnd")
}

func TestSocketCounterCap(t *testing.T) {
	sc := newSocketCounter(2)
	if !sc.acquire("1.2.3.4") || !sc.acquire("1.2.3.4") {
		t.Fatal("connections under the cap must be allowed")
	}
	if sc.acquire("1.2.3.4") {
		t.Error("connection over the cap must be refused")
	}
	if !sc.acquire("5.6.7.8") {
		t.Error("other IPs are counted independently")
	}
	sc.release("1.2.3.4")
	if !sc.acquire("1.2.3.4") {
		t.Error("released slot must be reusable")
	}
}
