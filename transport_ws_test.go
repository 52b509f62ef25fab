package stepwire

import (
	"net/http"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

func dialWS(t *testing.T, url, task string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(url, "http") + "/ws"
	if task != "" {
		wsURL += "?task=" + task
	}
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("WebSocket dial failed: %v", err)
	}
	return ws
}

// readWSEvents decodes frames from WebSocket text messages until the
// server closes the connection.
func readWSEvents(t *testing.T, ws *websocket.Conn, onEvent func(Event)) []Event {
	t.Helper()
	var events []Event
	rec := NewReceiver(HandlerFuncs{OnEvent: func(ev Event) {
		events = append(events, ev)
		if onEvent != nil {
			onEvent(ev)
		}
	}})
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return events
		}
		rec.Feed(data)
	}
}

func TestWSStreamCompletes(t *testing.T) {
	ts, _ := setupTestServer(t)

	ws := dialWS(t, ts.URL, "")
	defer ws.Close()

	events := readWSEvents(t, ws, nil)

	if len(events) != 11 {
		t.Fatalf("got %d events, want 11", len(events))
	}
	for i := 0; i < 10; i++ {
		if events[i].Type != EventProgress || events[i].Step != i+1 {
			t.Errorf("event %d: %+v, want progress step %d", i, events[i], i+1)
		}
	}
	if events[10].Type != EventComplete {
		t.Errorf("last event %+v, want complete", events[10])
	}
}

func TestWSInBandCancel(t *testing.T) {
	ts, _ := setupTestServer(t)

	ws := dialWS(t, ts.URL, "slow")
	defer ws.Close()

	events := readWSEvents(t, ws, func(ev Event) {
		if ev.Type == EventProgress && ev.Step == 2 {
			if err := ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"cancel"}`)); err != nil {
				t.Errorf("cancel write failed: %v", err)
			}
		}
	})

	if len(events) == 0 {
		t.Fatal("no events received")
	}
	last := events[len(events)-1]
	if last.Type != EventCancelled {
		t.Fatalf("last event %+v, want cancelled", last)
	}
	if last.Step > 3 {
		t.Errorf("cancelled at step %d, want <= 3", last.Step)
	}
	for _, ev := range events {
		if ev.Type == EventComplete {
			t.Error("received complete after cancellation")
		}
	}
}

func TestWSIgnoresMalformedIncoming(t *testing.T) {
	ts, _ := setupTestServer(t)

	ws := dialWS(t, ts.URL, "")
	defer ws.Close()

	// Garbage control messages must not disturb the run.
	if err := ws.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	events := readWSEvents(t, ws, nil)
	if len(events) != 11 {
		t.Fatalf("got %d events, want 11", len(events))
	}
	if events[10].Type != EventComplete {
		t.Errorf("last event %+v, want complete", events[10])
	}
}

func TestWSCheckOriginOption(t *testing.T) {
	ts, _ := setupTestServer(t, ServerOptions{
		CheckOrigin: func(r *http.Request) bool { return false },
	})

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("expected dial to fail when the origin check rejects")
	}
	if resp != nil && resp.StatusCode != http.StatusForbidden {
		t.Errorf("status %d, want 403", resp.StatusCode)
	}
}

func TestWSUnknownTask(t *testing.T) {
	ts, _ := setupTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?task=nope"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("expected dial to fail for unknown task")
	}
	if resp != nil && resp.StatusCode != 404 {
		t.Errorf("status %d, want 404", resp.StatusCode)
	}
}
