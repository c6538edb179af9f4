package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/FocuswithJustin/SacredPsalms/core/gesture"
	"github.com/FocuswithJustin/SacredPsalms/internal/session"
)

// wsMessage mirrors WSMessage with Data left raw.
type wsMessage struct {
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data"`
	Error *APIError       `json:"error"`
}

func startWSServer(t *testing.T, a *testAPI) string {
	t.Helper()
	srv := httptest.NewServer(a.handler)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string, header http.Header) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("dial %s: %v (status %d)", url, err, status)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) wsMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg wsMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

// readUntil reads messages until one of the given type satisfies ok.
func readUntil(t *testing.T, conn *websocket.Conn, typ string, ok func(json.RawMessage) bool) json.RawMessage {
	t.Helper()
	for i := 0; i < 32; i++ {
		msg := readMessage(t, conn)
		if msg.Type == typ && ok(msg.Data) {
			return msg.Data
		}
	}
	t.Fatalf("no matching %q message", typ)
	return nil
}

func waitForClients(t *testing.T, h *Hub, id string, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for h.SessionClients(id) != n {
		if time.Now().After(deadline) {
			t.Fatalf("session %s has %d clients, want %d", id, h.SessionClients(id), n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWebSocketGestureStream(t *testing.T) {
	a := newTestAPI(t)
	id := a.createLoaded()
	conn := dial(t, startWSServer(t, a)+"/sessions/"+id+"/ws", nil)

	first := readMessage(t, conn)
	if first.Type != MessageSession {
		t.Fatalf("first message type = %q, want session", first.Type)
	}
	var v session.View
	if err := json.Unmarshal(first.Data, &v); err != nil || v.ID != id {
		t.Fatalf("initial snapshot = %+v, %v", v, err)
	}

	events := []map[string]any{
		{"type": "start", "index": 0, "x": 0, "y": 0},
		{"type": "move", "index": 4, "x": 120, "y": 2},
		{"type": "end", "x": 120, "y": 2},
	}
	for _, ev := range events {
		if err := conn.WriteJSON(ev); err != nil {
			t.Fatal(err)
		}
	}

	var res session.GestureResult
	readUntil(t, conn, MessageGesture, func(data json.RawMessage) bool {
		res = session.GestureResult{}
		return json.Unmarshal(data, &res) == nil && res.Commit != nil
	})
	if res.Commit.Kind != gesture.Drag || len(res.View.Highlights) != 3 {
		t.Errorf("commit = %+v, highlights = %d", res.Commit, len(res.View.Highlights))
	}

	if err := conn.WriteJSON(map[string]any{"type": "wave"}); err != nil {
		t.Fatal(err)
	}
	for {
		msg := readMessage(t, conn)
		if msg.Type == MessageError {
			if msg.Error == nil || msg.Error.Code != "INVALID_REQUEST" {
				t.Errorf("error message = %+v", msg.Error)
			}
			break
		}
	}
}

func TestWebSocketBroadcast(t *testing.T) {
	a := newTestAPI(t)
	id := a.createLoaded()
	url := startWSServer(t, a) + "/sessions/" + id + "/ws"

	watcher := dial(t, url, nil)
	readMessage(t, watcher)
	waitForClients(t, a.server.Hub(), id, 1)

	a.call(http.MethodPost, "/sessions/"+id+"/highlights", map[string]int{"index": 6}, http.StatusOK, nil)

	readUntil(t, watcher, MessageSession, func(data json.RawMessage) bool {
		var v session.View
		return json.Unmarshal(data, &v) == nil && len(v.Highlights) == 1 && v.Highlights[0].Word == "know"
	})

	a.call(http.MethodDelete, "/sessions/"+id, nil, http.StatusOK, nil)
	waitForClients(t, a.server.Hub(), id, 0)
	watcher.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		if _, _, err := watcher.ReadMessage(); err != nil {
			break
		}
	}
}

func TestWebSocketRejects(t *testing.T) {
	a := newTestAPI(t, func(c *Config) { c.AllowedOrigins = []string{"https://app.example"} })
	id := a.createLoaded()
	base := startWSServer(t, a)

	tests := []struct {
		name   string
		path   string
		origin string
		status int
	}{
		{"unknown session", "/sessions/missing/ws", "https://app.example", http.StatusNotFound},
		{"bad origin", "/sessions/" + id + "/ws", "https://evil.example", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{"Origin": []string{tt.origin}}
			_, resp, err := websocket.DefaultDialer.Dial(base+tt.path, header)
			if err == nil {
				t.Fatal("dial should fail")
			}
			if resp == nil || resp.StatusCode != tt.status {
				t.Errorf("response = %v, want status %d", resp, tt.status)
			}
		})
	}

	dial(t, base+"/sessions/"+id+"/ws", http.Header{"Origin": []string{"https://app.example"}})
}

func TestHubPublishWithoutClients(t *testing.T) {
	h := NewHub()
	h.Publish("nobody", session.View{ID: "nobody"})
	if h.ClientCount() != 0 || h.SessionClients("nobody") != 0 {
		t.Error("hub should have no clients")
	}
}
